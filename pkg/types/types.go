package types

import (
	"encoding/json"
	"fmt"
)

// EventSearch is the channel name used in both directions: clients send
// queries on it and the server streams result items back on it.
const EventSearch = "search"

// Envelope is the JSON frame exchanged over the websocket.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Query is the inbound payload of a search event.
type Query struct {
	Query string `json:"query"`
}

// ErrorPayload is streamed on the search channel when a lookup cannot be
// served. The page/resultCount sentinels of -1 let clients tell it apart
// from a regular result.
type ErrorPayload struct {
	Page        int    `json:"page"`
	ResultCount int    `json:"resultCount"`
	Error       string `json:"error"`
}

// NewErrorPayload returns an ErrorPayload carrying msg.
func NewErrorPayload(msg string) ErrorPayload {
	return ErrorPayload{Page: -1, ResultCount: -1, Error: msg}
}

// Encode marshals data and wraps it in an Envelope for event.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// Decode parses a single frame into an Envelope.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}
