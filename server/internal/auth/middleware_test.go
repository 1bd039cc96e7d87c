package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok")) //nolint:errcheck
})

func call(t *testing.T, h http.Handler, target string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAPIKey_ModeNone_PassesThrough(t *testing.T) {
	h := APIKey("none", "x-api-key", "secret")(okHandler)
	// No key on the request; should still pass because mode != "apikey".
	rec := call(t, h, "/ws", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", rec.Code)
	}
}

func TestAPIKey_EmptyKey_PassesThrough(t *testing.T) {
	// key="" means auth is not configured → allow all.
	h := APIKey("apikey", "x-api-key", "")(okHandler)
	rec := call(t, h, "/ws", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", rec.Code)
	}
}

func TestAPIKey_CorrectHeader(t *testing.T) {
	h := APIKey("apikey", "x-api-key", "secret")(okHandler)
	rec := call(t, h, "/ws", map[string]string{"X-Api-Key": "secret"})
	if rec.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body: got %q", rec.Body.String())
	}
}

func TestAPIKey_QueryParamFallback(t *testing.T) {
	h := APIKey("apikey", "x-api-key", "secret")(okHandler)
	rec := call(t, h, "/ws?api_key=secret", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", rec.Code)
	}
}

func TestAPIKey_WrongKey(t *testing.T) {
	h := APIKey("apikey", "x-api-key", "secret")(okHandler)
	rec := call(t, h, "/ws", map[string]string{"x-api-key": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want 401", rec.Code)
	}
}

func TestAPIKey_MissingKey(t *testing.T) {
	h := APIKey("apikey", "x-api-key", "secret")(okHandler)
	rec := call(t, h, "/ws", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want 401", rec.Code)
	}
}

func TestAPIKey_CustomHeader(t *testing.T) {
	h := APIKey("apikey", "authorization", "Bearer tok")(okHandler)
	if rec := call(t, h, "/ws", map[string]string{"Authorization": "Bearer tok"}); rec.Code != http.StatusOK {
		t.Errorf("custom header: got %d, want 200", rec.Code)
	}
	if rec := call(t, h, "/ws", map[string]string{"x-api-key": "Bearer tok"}); rec.Code != http.StatusUnauthorized {
		t.Errorf("default header should not be accepted: got %d", rec.Code)
	}
}
