// Package stats scrapes the relay server's Prometheus endpoint and condenses
// the searchrelay_* families into a Summary for the console client.
package stats

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const defaultScrapeTimeout = 10 * time.Second

// Relay metric names read by Fetch.
const (
	metricSessionsActive = "searchrelay_sessions_active"
	metricSessionsTotal  = "searchrelay_sessions_total"
	metricQueriesTotal   = "searchrelay_queries_total"
	metricItemsEmitted   = "searchrelay_items_emitted_total"
	metricSearchErrors   = "searchrelay_search_errors_total"
	metricSearchDuration = "searchrelay_search_duration_seconds"
	metricUpstreamCache  = "searchrelay_upstream_cache_total"
)

// Summary is the condensed view of one scrape.
type Summary struct {
	ScrapedAt      time.Time
	SessionsActive float64
	SessionsTotal  float64
	// Queries is keyed by outcome: completed, failed, cancelled, rejected.
	Queries      map[string]float64
	ItemsEmitted float64
	SearchErrors float64
	// SearchCount and SearchSeconds come from the lookup duration histogram.
	SearchCount   uint64
	SearchSeconds float64
	CacheHits     float64
	CacheMisses   float64
}

// MeanSearch is the average collaborator lookup time, or 0 without samples.
func (s *Summary) MeanSearch() time.Duration {
	if s.SearchCount == 0 {
		return 0
	}
	return time.Duration(s.SearchSeconds / float64(s.SearchCount) * float64(time.Second))
}

// Fetch scrapes url and summarises the relay metrics. header is added to the
// request (API key) and may be nil.
func Fetch(ctx context.Context, client *http.Client, url string, header http.Header) (*Summary, error) {
	if client == nil {
		client = &http.Client{Timeout: defaultScrapeTimeout}
	}
	mfs, err := fetchMetrics(ctx, client, url, header)
	if err != nil {
		return nil, err
	}

	s := &Summary{
		ScrapedAt:      time.Now().UTC(),
		SessionsActive: sumFamily(mfs[metricSessionsActive]),
		SessionsTotal:  sumFamily(mfs[metricSessionsTotal]),
		Queries:        sumByLabel(mfs[metricQueriesTotal], "outcome"),
		ItemsEmitted:   sumFamily(mfs[metricItemsEmitted]),
		SearchErrors:   sumFamily(mfs[metricSearchErrors]),
	}
	if mf := mfs[metricSearchDuration]; mf != nil {
		for _, m := range mf.GetMetric() {
			if h := m.GetHistogram(); h != nil {
				s.SearchCount += h.GetSampleCount()
				s.SearchSeconds += h.GetSampleSum()
			}
		}
	}
	cache := sumByLabel(mfs[metricUpstreamCache], "result")
	s.CacheHits = cache["hit"]
	s.CacheMisses = cache["miss"]
	return s, nil
}

// fetchMetrics performs an HTTP GET to url and returns parsed metric families.
func fetchMetrics(ctx context.Context, client *http.Client, url string, header http.Header) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics decodes a Prometheus text exposition from r into metric families.
// A partial result with a non-fatal parse warning is still returned successfully.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// sumFamily adds up all counter, gauge, or untyped values in a MetricFamily.
// Returns 0 if mf is nil (metric not present in the scrape).
func sumFamily(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		total += value(m)
	}
	return total
}

// sumByLabel groups a family's values by the given label.
func sumByLabel(mf *dto.MetricFamily, label string) map[string]float64 {
	out := make(map[string]float64)
	if mf == nil {
		return out
	}
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == label {
				out[lp.GetValue()] += value(m)
				break
			}
		}
	}
	return out
}

func value(m *dto.Metric) float64 {
	switch {
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	case m.Untyped != nil:
		return m.Untyped.GetValue()
	}
	return 0
}
