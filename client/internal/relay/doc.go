// Package relay is the websocket client side of the search relay.
//
// Client dials the server, keeps a read loop running, and dispatches every
// inbound envelope to the handlers subscribed to its event. When the
// connection drops unexpectedly the client reconnects in the background with
// truncated exponential backoff (Reconnect.Delay doubling up to
// Reconnect.DelayMax, ±25% jitter) for at most Reconnect.Attempts tries.
package relay
