package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/searchrelay/searchrelay/pkg/types"
	"github.com/searchrelay/searchrelay/server/internal/session"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxFrameSize bounds inbound frames.
	maxFrameSize = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Options are passed to every session the handler creates.
type Options struct {
	Overlap    string
	QueueSize  int
	SendBuffer int
}

// Handler serves websocket connections.
type Handler struct {
	ctx      context.Context
	registry *session.Registry
	runner   session.Runner
	opts     Options
	logger   *zap.Logger
}

// New creates a Handler. Sessions are bound to ctx, so cancelling it closes
// every open connection.
func New(ctx context.Context, registry *session.Registry, runner session.Runner, opts Options, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		ctx:      ctx,
		registry: registry,
		runner:   runner,
		opts:     opts,
		logger:   logger,
	}
}

// ServeHTTP upgrades the connection and serves it until the client goes away.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		h.logger.Debug("Upgrade failed", zap.Error(err))
		return
	}

	s := session.New(h.ctx, h.runner, session.Options{
		Overlap:    h.opts.Overlap,
		QueueSize:  h.opts.QueueSize,
		SendBuffer: h.opts.SendBuffer,
		RemoteAddr: r.RemoteAddr,
	}, h.logger)
	h.registry.Add(s)
	s.Logger().Info("Client connected", zap.String("remote_addr", r.RemoteAddr))

	defer func() {
		h.registry.Remove(s.ID())
		s.Logger().Info("Client disconnected")
	}()

	go writePump(conn, s)
	readPump(conn, s) // blocks until connection closes
}

// writePump forwards the session's outbound frames to the connection and
// sends periodic pings. It is the only writer on conn.
func writePump(conn *websocket.Conn, s *session.Session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
		s.Close()
	}()

	for {
		select {
		case msg := <-s.Outbound():
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.Logger().Debug("Write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.Done():
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			conn.WriteMessage(websocket.CloseMessage, //nolint:errcheck
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		}
	}
}

// readPump decodes inbound frames and dispatches search queries. Blocks until
// the connection closes.
func readPump(conn *websocket.Conn, s *session.Session) {
	defer conn.Close()
	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.Logger().Debug("Read failed", zap.Error(err))
			}
			return
		}
		dispatch(s, frame)
	}
}

func dispatch(s *session.Session, frame []byte) {
	env, err := types.Decode(frame)
	if err != nil {
		s.Logger().Warn("Ignoring malformed frame", zap.Error(err))
		return
	}

	switch env.Event {
	case types.EventSearch:
		var q types.Query
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &q); err != nil {
				s.Logger().Warn("Ignoring malformed query", zap.Error(err))
				return
			}
		}
		s.Logger().Info("Query received", zap.String("query", q.Query))
		if err := s.Submit(q.Query); err != nil {
			s.Logger().Debug("Query not scheduled", zap.Error(err))
		}
	default:
		s.Logger().Debug("Ignoring unknown event", zap.String("event", env.Event))
	}
}
