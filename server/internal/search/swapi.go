package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/searchrelay/searchrelay/server/internal/cache"
	"github.com/searchrelay/searchrelay/server/internal/metrics"
)

const (
	swapiCachePrefix = "searchrelay:swapi:"
	maxPages         = 20
	maxBodyBytes     = 4 << 20
)

// SWAPIConfig configures a SWAPI collaborator.
type SWAPIConfig struct {
	BaseURL    string
	Timeout    time.Duration
	ItemDelay  time.Duration
	MaxRetries int

	// Cache is optional; nil disables upstream caching.
	Cache    ResponseCache
	CacheTTL time.Duration

	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// SWAPI looks up people on the Star Wars API. Each person becomes one item:
//
//	{"name": "R2-D2", "films": "A New Hope, ...", "page": 1, "resultCount": 2, "delay": 500}
//
// A query without matches yields a single error item with page and
// resultCount set to -1.
type SWAPI struct {
	baseURL    string
	client     *http.Client
	itemDelay  time.Duration
	maxRetries int
	cache      ResponseCache
	cacheTTL   time.Duration
	logger     *zap.Logger

	filmsMu sync.Mutex
	films   map[string]string // film url -> title
}

// NewSWAPI creates a SWAPI collaborator.
func NewSWAPI(cfg SWAPIConfig) *SWAPI {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SWAPI{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		client:     client,
		itemDelay:  cfg.ItemDelay,
		maxRetries: cfg.MaxRetries,
		cache:      cfg.Cache,
		cacheTTL:   cfg.CacheTTL,
		logger:     logger,
	}
}

type person struct {
	Name  string   `json:"name"`
	Films []string `json:"films"`
}

type film struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type page[T any] struct {
	Count   int    `json:"count"`
	Next    string `json:"next"`
	Results []T    `json:"results"`
}

// Search implements Searcher.
func (s *SWAPI) Search(ctx context.Context, query string) ([]Item, error) {
	people, err := fetchAll[person](ctx, s, s.baseURL+"/people/?search="+url.QueryEscape(query))
	if err != nil {
		return nil, fmt.Errorf("search people %q: %w", query, err)
	}
	if len(people) == 0 {
		return []Item{{
			"page":        -1,
			"resultCount": -1,
			"error":       fmt.Sprintf("No valid matches retrieved for query '%s'", query),
		}}, nil
	}

	titles, err := s.filmTitles(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(people))
	for i, p := range people {
		names := make([]string, 0, len(p.Films))
		for _, u := range p.Films {
			if t, ok := titles[u]; ok {
				names = append(names, t)
			} else {
				names = append(names, u)
			}
		}
		items = append(items, Item{
			"name":        p.Name,
			"films":       strings.Join(names, ", "),
			"page":        i + 1,
			"resultCount": len(people),
			DelayKey:      s.itemDelay.Milliseconds(),
		})
	}
	return items, nil
}

// filmTitles loads the film catalogue once per process.
func (s *SWAPI) filmTitles(ctx context.Context) (map[string]string, error) {
	s.filmsMu.Lock()
	defer s.filmsMu.Unlock()
	if s.films != nil {
		return s.films, nil
	}

	films, err := fetchAll[film](ctx, s, s.baseURL+"/films/")
	if err != nil {
		return nil, fmt.Errorf("list films: %w", err)
	}
	titles := make(map[string]string, len(films))
	for _, f := range films {
		titles[f.URL] = f.Title
	}
	s.films = titles
	return titles, nil
}

// fetchAll follows "next" links and concatenates every page's results.
func fetchAll[T any](ctx context.Context, s *SWAPI, next string) ([]T, error) {
	var out []T
	for n := 0; next != "" && n < maxPages; n++ {
		var p page[T]
		if err := s.getJSON(ctx, next, &p); err != nil {
			return nil, err
		}
		out = append(out, p.Results...)
		next = p.Next
	}
	return out, nil
}

// getJSON fetches rawURL, consulting the cache first, and decodes the body into v.
func (s *SWAPI) getJSON(ctx context.Context, rawURL string, v any) error {
	body, err := s.get(ctx, rawURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return nil
}

func (s *SWAPI) get(ctx context.Context, rawURL string) ([]byte, error) {
	key := cacheKey(rawURL)
	if body, ok := s.fromCache(ctx, key); ok {
		return body, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := doWithRetry(ctx, s.client, req, s.maxRetries)
	if err != nil {
		return nil, fmt.Errorf("http get %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned HTTP %d", ErrUpstream, rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}

	s.toCache(ctx, key, body)
	return body, nil
}

func (s *SWAPI) fromCache(ctx context.Context, key string) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}
	body, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrKeyNotFound) {
			s.logger.Warn("Failed to read cached response", zap.String("key", key), zap.Error(err))
		}
		metrics.UpstreamCacheTotal.WithLabelValues("miss").Inc()
		return nil, false
	}
	metrics.UpstreamCacheTotal.WithLabelValues("hit").Inc()
	return body, true
}

func (s *SWAPI) toCache(ctx context.Context, key string, body []byte) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetWithTTL(ctx, key, body, s.cacheTTL); err != nil {
		s.logger.Warn("Failed to cache response", zap.String("key", key), zap.Error(err))
	}
}

func cacheKey(rawURL string) string {
	h := sha256.Sum256([]byte(rawURL))
	return swapiCachePrefix + hex.EncodeToString(h[:])
}
