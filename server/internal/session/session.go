package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/searchrelay/searchrelay/pkg/types"
	"github.com/searchrelay/searchrelay/server/internal/logger"
	"github.com/searchrelay/searchrelay/server/internal/metrics"
	"github.com/searchrelay/searchrelay/server/internal/stream"
)

const (
	OverlapQueue      = "queue"
	OverlapConcurrent = "concurrent"
)

var (
	// ErrClosed is returned when sending on a session that has gone away.
	ErrClosed = errors.New("session: closed")

	// ErrQueueFull is returned by Submit when the pending-query queue is full.
	ErrQueueFull = errors.New("session: too many pending queries")
)

// Runner runs one query cycle. *stream.Streamer satisfies it.
type Runner interface {
	Run(ctx context.Context, query string, emit stream.Emitter) error
}

// Options configures a Session.
type Options struct {
	Overlap    string // OverlapQueue (default) or OverlapConcurrent
	QueueSize  int
	SendBuffer int
	RemoteAddr string
}

// Info is a point-in-time description of a session.
type Info struct {
	ID          string    `json:"id"`
	RemoteAddr  string    `json:"remote_addr,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Session is one connected client.
type Session struct {
	id          string
	remoteAddr  string
	connectedAt time.Time
	overlap     string

	runner Runner
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	send  chan []byte
	queue chan string

	wg sync.WaitGroup
}

// New creates a session bound to parent. Cancelling parent closes the session.
func New(parent context.Context, runner Runner, opts Options, log *zap.Logger) *Session {
	if opts.Overlap == "" {
		opts.Overlap = OverlapQueue
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 8
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if log == nil {
		log = zap.NewNop()
	}

	id := uuid.NewString()
	log = log.With(zap.String("session_id", id))

	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		id:          id,
		remoteAddr:  opts.RemoteAddr,
		connectedAt: time.Now().UTC(),
		overlap:     opts.Overlap,
		runner:      runner,
		logger:      log,
		ctx:         logger.ContextWithLogger(ctx, log),
		cancel:      cancel,
		send:        make(chan []byte, opts.SendBuffer),
	}

	if s.overlap == OverlapQueue {
		s.queue = make(chan string, opts.QueueSize)
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Info describes the session.
func (s *Session) Info() Info {
	return Info{ID: s.id, RemoteAddr: s.remoteAddr, ConnectedAt: s.connectedAt}
}

// Logger returns the session-scoped logger.
func (s *Session) Logger() *zap.Logger { return s.logger }

// Context is cancelled when the session closes.
func (s *Session) Context() context.Context { return s.ctx }

// Done is closed when the session closes.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

// Outbound yields encoded frames for the transport to write.
func (s *Session) Outbound() <-chan []byte { return s.send }

// Close cancels all work on the session. It is safe to call more than once.
func (s *Session) Close() { s.cancel() }

// Wait blocks until every query cycle started on the session has returned.
func (s *Session) Wait() { s.wg.Wait() }

// Submit schedules a query cycle according to the overlap policy.
func (s *Session) Submit(query string) error {
	if s.ctx.Err() != nil {
		return ErrClosed
	}

	if s.overlap == OverlapConcurrent {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.run(query)
		}()
		return nil
	}

	select {
	case s.queue <- query:
		return nil
	default:
	}

	metrics.QueriesTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
	s.logger.Warn("Query rejected, queue full", zap.String("query", query))
	if err := s.Emit(s.ctx, types.NewErrorPayload("too many pending queries")); err != nil {
		return fmt.Errorf("%w: %w", ErrQueueFull, err)
	}
	return ErrQueueFull
}

// Emit encodes payload as a search event and queues it for the transport.
func (s *Session) Emit(ctx context.Context, payload any) error {
	frame, err := types.Encode(types.EventSearch, payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return s.Send(ctx, frame)
}

// Send queues an encoded frame. It blocks while the outbound buffer is full
// and returns ErrClosed once the session has closed.
func (s *Session) Send(ctx context.Context, frame []byte) error {
	if s.ctx.Err() != nil {
		return ErrClosed
	}
	select {
	case s.send <- frame:
		return nil
	case <-s.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case q := <-s.queue:
			s.run(q)
		}
	}
}

func (s *Session) run(query string) {
	err := s.runner.Run(s.ctx, query, s.Emit)
	switch {
	case err == nil:
	case s.ctx.Err() != nil, errors.Is(err, ErrClosed):
		s.logger.Debug("Query cycle stopped, session closed", zap.String("query", query))
	case errors.Is(err, stream.ErrSearchFailed):
		// Already logged and reported to the client.
	default:
		s.logger.Warn("Query cycle failed", zap.String("query", query), zap.Error(err))
	}
}
