package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/searchrelay/searchrelay/pkg/types"
	"github.com/searchrelay/searchrelay/server/internal/logger"
	"github.com/searchrelay/searchrelay/server/internal/metrics"
	"github.com/searchrelay/searchrelay/server/internal/search"
)

// ErrSearchFailed is returned by Run when the collaborator failed and the
// error payload was sent in place of results.
var ErrSearchFailed = errors.New("stream: search failed")

// Emitter delivers one payload to the session that issued the query.
type Emitter func(ctx context.Context, payload any) error

// Streamer runs query cycles against a Searcher.
type Streamer struct {
	searcher search.Searcher
	maxDelay time.Duration
}

// New creates a Streamer. maxDelay caps any single pacing wait; 0 disables the cap.
func New(searcher search.Searcher, maxDelay time.Duration) *Streamer {
	return &Streamer{searcher: searcher, maxDelay: maxDelay}
}

// Run performs one query cycle: search, then emit every item in order.
//
// It returns nil when all items were emitted, ctx.Err() when the session went
// away mid-cycle, ErrSearchFailed (wrapped) when the collaborator failed, or
// the emitter's error.
func (s *Streamer) Run(ctx context.Context, query string, emit Emitter) error {
	log := logger.FromContext(ctx).With(zap.String("query", query))

	start := time.Now()
	items, err := s.searcher.Search(ctx, query)
	metrics.SearchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if ctx.Err() != nil {
			metrics.QueriesTotal.WithLabelValues(metrics.OutcomeCancelled).Inc()
			log.Debug("Search abandoned, session closed")
			return ctx.Err()
		}
		metrics.SearchErrorsTotal.Inc()
		metrics.QueriesTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		log.Error("Search failed", zap.Error(err))
		if emitErr := emit(ctx, types.NewErrorPayload(err.Error())); emitErr != nil {
			return fmt.Errorf("emit error payload: %w", emitErr)
		}
		return fmt.Errorf("%w: %w", ErrSearchFailed, err)
	}

	log.Debug("Search resolved", zap.Int("items", len(items)), zap.Duration("took", time.Since(start)))

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			metrics.QueriesTotal.WithLabelValues(metrics.OutcomeCancelled).Inc()
			log.Debug("Stream cancelled", zap.Int("emitted", i))
			return err
		}

		payload, wait := Split(item, s.maxDelay)
		if err := emit(ctx, payload); err != nil {
			metrics.QueriesTotal.WithLabelValues(metrics.OutcomeCancelled).Inc()
			return fmt.Errorf("emit item %d: %w", i, err)
		}
		metrics.ItemsEmittedTotal.Inc()

		if wait > 0 {
			if err := sleep(ctx, wait); err != nil {
				metrics.QueriesTotal.WithLabelValues(metrics.OutcomeCancelled).Inc()
				log.Debug("Stream cancelled during pacing wait", zap.Int("emitted", i+1))
				return err
			}
		}
	}

	metrics.QueriesTotal.WithLabelValues(metrics.OutcomeCompleted).Inc()
	log.Debug("Stream completed", zap.Int("emitted", len(items)))
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
