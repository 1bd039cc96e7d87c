package stats

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// relayMetrics is a realistic subset of the relay server's /metrics output.
const relayMetrics = `
# HELP searchrelay_sessions_active Number of currently connected sessions
# TYPE searchrelay_sessions_active gauge
searchrelay_sessions_active 3
# HELP searchrelay_sessions_total Total number of sessions opened
# TYPE searchrelay_sessions_total counter
searchrelay_sessions_total 41
# HELP searchrelay_queries_total Total number of search queries by outcome
# TYPE searchrelay_queries_total counter
searchrelay_queries_total{outcome="completed"} 120
searchrelay_queries_total{outcome="failed"} 4
searchrelay_queries_total{outcome="cancelled"} 2
# HELP searchrelay_items_emitted_total Total number of result items emitted to clients
# TYPE searchrelay_items_emitted_total counter
searchrelay_items_emitted_total 310
# HELP searchrelay_search_errors_total Total number of failed collaborator lookups
# TYPE searchrelay_search_errors_total counter
searchrelay_search_errors_total 4
# HELP searchrelay_search_duration_seconds Collaborator lookup duration in seconds
# TYPE searchrelay_search_duration_seconds histogram
searchrelay_search_duration_seconds_bucket{le="0.1"} 50
searchrelay_search_duration_seconds_bucket{le="1"} 120
searchrelay_search_duration_seconds_bucket{le="+Inf"} 126
searchrelay_search_duration_seconds_sum 63
searchrelay_search_duration_seconds_count 126
# HELP searchrelay_upstream_cache_total Upstream response cache hits and misses
# TYPE searchrelay_upstream_cache_total counter
searchrelay_upstream_cache_total{result="hit"} 80
searchrelay_upstream_cache_total{result="miss"} 20
`

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(relayMetrics))
	}))
	defer srv.Close()

	hdr := http.Header{}
	hdr.Set("x-api-key", "secret")
	s, err := Fetch(context.Background(), srv.Client(), srv.URL, hdr)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	checks := map[string][2]float64{
		"sessions_active": {s.SessionsActive, 3},
		"sessions_total":  {s.SessionsTotal, 41},
		"completed":       {s.Queries["completed"], 120},
		"failed":          {s.Queries["failed"], 4},
		"cancelled":       {s.Queries["cancelled"], 2},
		"rejected":        {s.Queries["rejected"], 0},
		"items_emitted":   {s.ItemsEmitted, 310},
		"search_errors":   {s.SearchErrors, 4},
		"search_seconds":  {s.SearchSeconds, 63},
		"cache_hits":      {s.CacheHits, 80},
		"cache_misses":    {s.CacheMisses, 20},
	}
	for name, c := range checks {
		if c[0] != c[1] {
			t.Errorf("%s: got %v, want %v", name, c[0], c[1])
		}
	}
	if s.SearchCount != 126 {
		t.Errorf("search_count: got %d, want 126", s.SearchCount)
	}
	if got := s.MeanSearch(); got != 500*time.Millisecond {
		t.Errorf("MeanSearch: got %v, want 500ms", got)
	}
}

func TestFetch_MissingFamilies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# TYPE go_goroutines gauge\ngo_goroutines 12\n"))
	}))
	defer srv.Close()

	s, err := Fetch(context.Background(), nil, srv.URL, nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if s.SessionsActive != 0 || len(s.Queries) != 0 || s.MeanSearch() != 0 {
		t.Errorf("expected zero summary, got %+v", s)
	}
}

func TestFetch_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := Fetch(context.Background(), srv.Client(), srv.URL, nil)
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("expected status error, got %v", err)
	}
}

func TestParseMetrics_Garbage(t *testing.T) {
	if _, err := parseMetrics(strings.NewReader("{{{ not metrics")); err == nil {
		t.Error("expected parse error")
	}
}

func TestSumFamily_Nil(t *testing.T) {
	if got := sumFamily(nil); got != 0 {
		t.Errorf("sumFamily(nil) = %v", got)
	}
	if got := sumByLabel(nil, "x"); len(got) != 0 {
		t.Errorf("sumByLabel(nil) = %v", got)
	}
}
