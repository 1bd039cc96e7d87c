// Package session tracks live client connections.
//
// A Session is created per websocket connection and owns a context that is
// cancelled on disconnect or process shutdown; every query cycle started on
// the session runs under that context. Outbound frames are queued on a
// buffered channel that the transport drains (see Outbound).
//
// Queries are dispatched according to the overlap policy:
//
//	queue       one worker per session, FIFO, bounded (default)
//	concurrent  one goroutine per query; streams may interleave
//
// Registry maps session ids to sessions and keeps the active-session gauge.
package session
