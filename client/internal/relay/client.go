package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/searchrelay/searchrelay/pkg/types"
)

const writeTimeout = 10 * time.Second

// ErrNotConnected is returned by Emit while there is no live connection.
var ErrNotConnected = errors.New("relay: not connected")

// Handler receives the data of one inbound event.
type Handler func(data json.RawMessage)

// Reconnect configures reconnection after an unexpected disconnect.
type Reconnect struct {
	Attempts int
	Delay    time.Duration
	DelayMax time.Duration
}

// Options configures a Client.
type Options struct {
	URL       string
	Header    http.Header
	Reconnect Reconnect
	Dialer    *websocket.Dialer
	// OnStateChange, when set, is called with true on (re)connect and false
	// on disconnect.
	OnStateChange func(connected bool)
}

// Client is a reconnecting websocket client.
type Client struct {
	opts Options

	mu        sync.Mutex
	conn      *websocket.Conn
	closing   bool
	cancelRec context.CancelFunc
	loopDone  chan struct{}

	writeMu sync.Mutex

	subsMu sync.RWMutex
	subs   map[string]map[uint64]Handler
	nextID uint64
}

// New creates a Client. Nothing is dialed until Connect.
func New(opts Options) *Client {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Client{
		opts: opts,
		subs: make(map[string]map[uint64]Handler),
	}
}

// Connect dials the server, retrying with backoff up to Reconnect.Attempts
// additional times. It is a no-op when already connected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.closing = false
	if c.cancelRec != nil {
		c.cancelRec()
		c.cancelRec = nil
	}
	c.mu.Unlock()

	conn, err := c.dialWithRetry(ctx)
	if err != nil {
		return err
	}
	c.attach(conn)
	return nil
}

// IsConnected reports whether a live connection exists.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Emit sends data on event.
func (c *Client) Emit(event string, data any) error {
	frame, err := types.Encode(event, data)
	if err != nil {
		return errors.Wrap(err, "encode frame")
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return errors.Wrapf(err, "emit %s", event)
	}
	return nil
}

// Subscribe registers h for event and returns a func that removes it.
func (c *Client) Subscribe(event string, h Handler) (unsubscribe func()) {
	c.subsMu.Lock()
	c.nextID++
	id := c.nextID
	if c.subs[event] == nil {
		c.subs[event] = make(map[uint64]Handler)
	}
	c.subs[event][id] = h
	c.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subsMu.Lock()
			delete(c.subs[event], id)
			if len(c.subs[event]) == 0 {
				delete(c.subs, event)
			}
			c.subsMu.Unlock()
		})
	}
}

// Unsubscribe removes every handler for event.
func (c *Client) Unsubscribe(event string) {
	c.subsMu.Lock()
	delete(c.subs, event)
	c.subsMu.Unlock()
}

// Close disconnects and stops any background reconnection.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closing = true
	conn := c.conn
	c.conn = nil
	done := c.loopDone
	if c.cancelRec != nil {
		c.cancelRec()
		c.cancelRec = nil
	}
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	conn.WriteControl(websocket.CloseMessage, //nolint:errcheck
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	err := conn.Close()
	if done != nil {
		<-done
	}
	c.notify(false)
	return errors.Wrap(err, "close connection")
}

// --- internal ---------------------------------------------------------------

func (c *Client) dialWithRetry(ctx context.Context) (*websocket.Conn, error) {
	bo := newBackoff(c.opts.Reconnect.Delay, c.opts.Reconnect.DelayMax)
	var lastErr error
	for attempt := 0; attempt <= c.opts.Reconnect.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, errors.Wrap(ctx.Err(), "connect cancelled")
			case <-time.After(bo.next()):
			}
		}

		conn, resp, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, c.opts.Header)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		// Rejected credentials will not get better by retrying.
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, errors.Wrapf(err, "dial %s: HTTP %d", c.opts.URL, resp.StatusCode)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errors.Wrapf(lastErr, "dial %s", c.opts.URL)
}

func (c *Client) attach(conn *websocket.Conn) {
	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.loopDone = done
	c.mu.Unlock()

	c.notify(true)
	go c.readLoop(conn, done)
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			c.handleDrop(conn)
			return
		}
		env, err := types.Decode(frame)
		if err != nil {
			continue
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env types.Envelope) {
	c.subsMu.RLock()
	handlers := make([]Handler, 0, len(c.subs[env.Event]))
	for _, h := range c.subs[env.Event] {
		handlers = append(handlers, h)
	}
	c.subsMu.RUnlock()

	for _, h := range handlers {
		h(env.Data)
	}
}

// handleDrop runs when the read loop ends. Unless Close caused it, the
// connection is cleared and a background reconnect starts.
func (c *Client) handleDrop(conn *websocket.Conn) {
	c.mu.Lock()
	if c.closing || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelRec = cancel
	c.mu.Unlock()

	conn.Close()
	c.notify(false)

	if c.opts.Reconnect.Attempts == 0 {
		return
	}
	go func() {
		next, err := c.dialWithRetry(ctx)
		if err != nil {
			return
		}
		c.mu.Lock()
		if c.closing || ctx.Err() != nil {
			c.mu.Unlock()
			next.Close()
			return
		}
		c.cancelRec = nil
		c.mu.Unlock()
		c.attach(next)
	}()
}

func (c *Client) notify(connected bool) {
	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(connected)
	}
}
