package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/searchrelay/searchrelay/server/internal/api"
	"github.com/searchrelay/searchrelay/server/internal/auth"
	"github.com/searchrelay/searchrelay/server/internal/search"
	"github.com/searchrelay/searchrelay/server/internal/session"
	"github.com/searchrelay/searchrelay/server/internal/stream"
	"github.com/searchrelay/searchrelay/server/internal/ws"
)

// --- test helpers -----------------------------------------------------------

type noopRunner struct{}

func (noopRunner) Run(context.Context, string, stream.Emitter) error { return nil }

func newRouter(t *testing.T, reg *session.Registry) http.Handler {
	t.Helper()
	return api.NewRouter(api.Deps{Registry: reg, Gatherer: prometheus.NewRegistry()})
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

// --- /healthz ---------------------------------------------------------------

func TestHealthz_NoSessions(t *testing.T) {
	rr := get(t, newRouter(t, session.NewRegistry()), "/healthz")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q", ct)
	}
	var resp api.HealthResponse
	decode(t, rr, &resp)
	if resp.Status != "ok" || resp.Sessions != 0 {
		t.Errorf("got %+v", resp)
	}
}

func TestHealthz_CountsSessions(t *testing.T) {
	reg := session.NewRegistry()
	s := session.New(context.Background(), noopRunner{}, session.Options{}, nil)
	reg.Add(s)
	defer reg.CloseAll()

	var resp api.HealthResponse
	decode(t, get(t, newRouter(t, reg), "/healthz"), &resp)
	if resp.Sessions != 1 {
		t.Errorf("sessions: got %d, want 1", resp.Sessions)
	}
}

func TestHealthz_RequestIDHeader(t *testing.T) {
	rr := get(t, newRouter(t, session.NewRegistry()), "/healthz")
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID: missing")
	}
}

// --- /api/v1/sessions -------------------------------------------------------

func TestSessions_List(t *testing.T) {
	reg := session.NewRegistry()
	a := session.New(context.Background(), noopRunner{}, session.Options{RemoteAddr: "1.2.3.4:1"}, nil)
	reg.Add(a)
	defer reg.CloseAll()

	rr := get(t, newRouter(t, reg), "/api/v1/sessions")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.SessionsResponse
	decode(t, rr, &resp)

	if resp.Count != 1 || len(resp.Sessions) != 1 {
		t.Fatalf("count: got %d/%d, want 1", resp.Count, len(resp.Sessions))
	}
	if resp.Sessions[0].ID != a.ID() {
		t.Errorf("id: got %s, want %s", resp.Sessions[0].ID, a.ID())
	}
	if resp.Sessions[0].RemoteAddr != "1.2.3.4:1" {
		t.Errorf("remote_addr: got %s", resp.Sessions[0].RemoteAddr)
	}
	if resp.GeneratedAt == "" {
		t.Error("generated_at: missing")
	}
}

func TestSessions_EmptyIsArray(t *testing.T) {
	rr := get(t, newRouter(t, session.NewRegistry()), "/api/v1/sessions")
	if !strings.Contains(rr.Body.String(), `"sessions":[]`) {
		t.Errorf("body: %s", rr.Body.String())
	}
}

func TestSessions_MethodNotAllowed(t *testing.T) {
	h := newRouter(t, session.NewRegistry())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	rr := get(t, newRouter(t, session.NewRegistry()), "/api/v1/nope")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
	var resp map[string]string
	decode(t, rr, &resp)
	if resp["code"] != "not_found" {
		t.Errorf("code: got %q", resp["code"])
	}
}

// --- /metrics ---------------------------------------------------------------

func TestMetrics_ServesGatherer(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_relay_counter", Help: "t"})
	reg.MustRegister(c)
	c.Add(3)

	h := api.NewRouter(api.Deps{Registry: session.NewRegistry(), Gatherer: reg})
	rr := get(t, h, "/metrics")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "test_relay_counter 3") {
		t.Errorf("metrics body missing counter:\n%s", rr.Body.String())
	}
}

// --- /ws --------------------------------------------------------------------

func startRelay(t *testing.T, authMW func(http.Handler) http.Handler) (string, *session.Registry) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	reg := session.NewRegistry()
	searcher := search.Func(func(_ context.Context, q string) ([]search.Item, error) {
		return []search.Item{{"text": q, "delay": 0}}, nil
	})
	h := api.NewRouter(api.Deps{
		Registry: reg,
		WS:       ws.New(ctx, reg, stream.New(searcher, 0), ws.Options{}, nil),
		Gatherer: prometheus.NewRegistry(),
		Auth:     authMW,
	})
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + api.WSPath, reg
}

func TestWS_RoundTripThroughRouter(t *testing.T) {
	wsURL, _ := startRelay(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]any{"event": "search", "data": map[string]string{"query": "r2"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var env struct {
		Event string         `json:"event"`
		Data  map[string]any `json:"data"`
	}
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	if env.Event != "search" || env.Data["text"] != "r2" {
		t.Errorf("got %+v", env)
	}
	if _, ok := env.Data["delay"]; ok {
		t.Error("delay key leaked")
	}
}

func TestWS_AuthRejectsMissingKey(t *testing.T) {
	wsURL, _ := startRelay(t, auth.APIKey("apikey", "x-api-key", "secret"))

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected dial to fail without key")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status: got %v, want 401", resp)
	}
}

func TestWS_AuthAcceptsKey(t *testing.T) {
	wsURL, _ := startRelay(t, auth.APIKey("apikey", "x-api-key", "secret"))

	hdr := http.Header{}
	hdr.Set("x-api-key", "secret")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, hdr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Close()
}
