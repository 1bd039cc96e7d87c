// Package ws is the websocket transport of the relay.
//
// Handler upgrades GET /ws, registers a session, and runs two pumps per
// connection: the read pump decodes envelopes and submits "search" queries to
// the session; the write pump drains the session's outbound frames and sends
// keepalive pings. When the read pump exits the session is removed from the
// registry, which cancels any query cycle still running for it.
//
// Frames are JSON envelopes:
//
//	client -> server  {"event": "search", "data": {"query": "r2"}}
//	server -> client  {"event": "search", "data": { ...result item... }}
//
// Unknown events and undecodable frames are logged and ignored. The upgrader
// accepts all origins; apply CORS restrictions at the reverse proxy.
package ws
