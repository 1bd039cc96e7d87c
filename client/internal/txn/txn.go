// Package txn implements the console client's search transaction.
//
// A SearchTxn subscribes to the search channel, emits one query, and collects
// result pages. A page is accepted only when it is the next one expected
// (page == accepted+1); the transaction completes when the accepted page
// equals resultCount. An error payload (resultCount == -1), an undecodable
// payload, or the timeout fails it.
package txn

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/searchrelay/searchrelay/client/internal/relay"
	"github.com/searchrelay/searchrelay/pkg/types"
)

// DefaultTimeout bounds a transaction when none is given.
const DefaultTimeout = 30 * time.Second

// ErrTimeout is the failure message of a transaction that ran out of time.
const ErrTimeout = "Transaction timed out."

// Status is the lifecycle state of a transaction.
type Status int

const (
	StatusNew Status = iota
	StatusComplete
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "NEW"
	case StatusComplete:
		return "COMPLETE"
	case StatusFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Conn is the part of the relay client a transaction needs.
type Conn interface {
	Emit(event string, data any) error
	Subscribe(event string, h relay.Handler) (unsubscribe func())
}

// Response is one payload received on the search channel.
type Response struct {
	Page        int    `json:"page"`
	ResultCount int    `json:"resultCount"`
	Name        string `json:"name,omitempty"`
	Films       string `json:"films,omitempty"`
	Error       string `json:"error,omitempty"`
}

// SearchTxn is a single search request and its collected responses.
type SearchTxn struct {
	id      string
	query   string
	timeout time.Duration

	mu        sync.Mutex
	status    Status
	accepted  int
	responses []Response
	done      chan struct{}
}

// NewSearch creates a transaction for query. A non-positive timeout means DefaultTimeout.
func NewSearch(query string, timeout time.Duration) *SearchTxn {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &SearchTxn{
		id:      uuid.NewString(),
		query:   query,
		timeout: timeout,
		done:    make(chan struct{}),
	}
}

// ID returns the transaction id.
func (t *SearchTxn) ID() string { return t.id }

// Query returns the searched term.
func (t *SearchTxn) Query() string { return t.query }

// Execute runs the transaction on c and blocks until it completes, fails,
// times out, or ctx is cancelled. The returned error is nil unless the
// transaction could not be started or ctx ended first; inspect Status and
// Error for the search outcome.
func (t *SearchTxn) Execute(ctx context.Context, c Conn) error {
	unsubscribe := c.Subscribe(types.EventSearch, t.Handle)
	defer unsubscribe()

	if err := c.Emit(types.EventSearch, types.Query{Query: t.query}); err != nil {
		t.fail(err.Error())
		return errors.Wrapf(err, "txn %s", t.id)
	}

	timer := time.NewTimer(t.timeout)
	defer timer.Stop()

	select {
	case <-t.done:
		return nil
	case <-timer.C:
		t.fail(ErrTimeout)
		return nil
	case <-ctx.Done():
		t.fail(ctx.Err().Error())
		return errors.Wrapf(ctx.Err(), "txn %s", t.id)
	}
}

// Handle processes one search payload.
func (t *SearchTxn) Handle(data json.RawMessage) {
	var r Response
	if err := json.Unmarshal(data, &r); err != nil {
		t.fail(errors.Wrap(err, "decode search payload").Error())
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusNew {
		return
	}

	if r.ResultCount == -1 {
		t.responses = append(t.responses, r)
		t.finish(StatusFailed)
		return
	}
	if r.Page >= 0 && r.Page == t.accepted+1 {
		t.accepted++
		t.responses = append(t.responses, r)
		if r.Page == r.ResultCount {
			t.finish(StatusComplete)
		}
	}
}

// Status returns the current status.
func (t *SearchTxn) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// IsComplete reports whether the transaction has finished either way.
func (t *SearchTxn) IsComplete() bool { return t.Status() != StatusNew }

// Responses returns a copy of the accepted responses.
func (t *SearchTxn) Responses() []Response {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Response(nil), t.responses...)
}

// Result renders the results of a completed transaction. It returns "" for
// any other status.
func (t *SearchTxn) Result() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusComplete {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "[Txn:%s] Results found:\n", t.id)
	for _, r := range t.responses {
		fmt.Fprintf(&sb, "%s featured in\n    %s\n", r.Name, r.Films)
	}
	return sb.String()
}

// Error returns the failure message of a failed transaction, or "".
func (t *SearchTxn) Error() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusFailed {
		return ""
	}
	for _, r := range t.responses {
		if r.Error != "" {
			return r.Error
		}
	}
	return ""
}

func (t *SearchTxn) fail(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusNew {
		return
	}
	t.responses = append(t.responses, Response{Page: -1, ResultCount: -1, Error: msg})
	t.finish(StatusFailed)
}

// finish must be called with mu held.
func (t *SearchTxn) finish(s Status) {
	t.status = s
	close(t.done)
}
