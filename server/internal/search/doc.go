// Package search defines the collaborator contract the relay depends on and
// the concrete collaborators it can be wired with.
//
// A Searcher turns a query string into an ordered list of Items. Items are
// opaque JSON objects; the only key the relay looks at is "delay", a
// server-side pacing directive in milliseconds.
//
// Collaborators:
//   - SWAPI: looks up people on the Star Wars API, resolves film titles,
//     retries on HTTP 429 and optionally caches upstream bodies in redis
//   - Fixture: canned results loaded from a YAML file
//   - Func: adapts a plain function (tests, embedding)
package search
