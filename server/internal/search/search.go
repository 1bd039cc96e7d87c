package search

import (
	"context"
	"errors"
	"time"
)

// DelayKey is the item key carrying the pacing delay in milliseconds.
const DelayKey = "delay"

// ErrUpstream marks failures reported by a remote collaborator.
var ErrUpstream = errors.New("search: upstream error")

// Item is one search result. Its fields are collaborator-defined.
type Item map[string]any

// Searcher resolves a query into an ordered, possibly empty, list of items.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Item, error)
}

// Func adapts an ordinary function to the Searcher interface.
type Func func(ctx context.Context, query string) ([]Item, error)

// Search calls f(ctx, query).
func (f Func) Search(ctx context.Context, query string) ([]Item, error) {
	return f(ctx, query)
}

// ResponseCache is the consumer interface for caching upstream responses.
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
