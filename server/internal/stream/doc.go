// Package stream replays a collaborator's result list to one session.
//
// For every query the Streamer calls the Searcher once, then emits the
// returned items strictly in order. An item carrying a "delay" key is sent
// without that key, and the next item waits that many milliseconds. The
// session context is checked before each emission and raced against each
// wait, so a disconnect stops the loop without touching the transport again.
//
// A failed lookup produces a single error payload on the same channel:
//
//	{"page": -1, "resultCount": -1, "error": "<message>"}
package stream
