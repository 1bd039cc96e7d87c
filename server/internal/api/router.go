package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/searchrelay/searchrelay/server/internal/logger"
	"github.com/searchrelay/searchrelay/server/internal/metrics"
	"github.com/searchrelay/searchrelay/server/internal/session"
)

// WSPath is where the websocket handler is mounted.
const WSPath = "/ws"

// Deps are the collaborators the router needs.
type Deps struct {
	Registry *session.Registry
	WS       http.Handler
	Gatherer prometheus.Gatherer
	// Auth guards WSPath; nil leaves it open.
	Auth   func(http.Handler) http.Handler
	Logger *zap.Logger
}

// NewRouter builds the HTTP handler for the relay server.
func NewRouter(d Deps) http.Handler {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	h := &handler{registry: d.Registry}

	r := chi.NewRouter()
	r.Use(jsonRecoverer(log))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(log))
	r.Use(metrics.Middleware(WSPath))

	r.Get("/healthz", h.health)
	r.Get("/api/v1/sessions", h.sessions)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	if d.WS != nil {
		ws := d.WS
		if d.Auth != nil {
			ws = d.Auth(ws)
		}
		r.Method(http.MethodGet, WSPath, ws)
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}

type handler struct {
	registry *session.Registry
}

// health returns GET /healthz.
func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, HealthResponse{Status: "ok", Sessions: h.registry.Count()})
}

// sessions returns GET /api/v1/sessions.
func (h *handler) sessions(w http.ResponseWriter, _ *http.Request) {
	list := h.registry.List()
	jsonResp(w, http.StatusOK, SessionsResponse{
		Count:       len(list),
		Sessions:    list,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// --- middleware -------------------------------------------------------------

func jsonRecoverer(log *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					if rvr == http.ErrAbortHandler {
						panic(rvr)
					}
					log.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					jsonErr(w, http.StatusInternalServerError, "internal_error", "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(log *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := log.With(zap.String("request_id", requestID))
			ctx := logger.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, errCode, msg string) {
	jsonResp(w, code, errorResponse{Code: errCode, Message: msg})
}
