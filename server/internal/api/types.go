package api

import "github.com/searchrelay/searchrelay/server/internal/session"

// HealthResponse is the payload for GET /healthz.
type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

// SessionsResponse is the payload for GET /api/v1/sessions.
type SessionsResponse struct {
	Count       int            `json:"count"`
	Sessions    []session.Info `json:"sessions"`
	GeneratedAt string         `json:"generated_at"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
