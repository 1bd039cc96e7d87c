// Package cache is a small key/value store on top of rueidis. The SWAPI
// collaborator uses it to keep upstream HTTP responses between lookups.
package cache
