package search

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FixtureEntry is one canned answer. Match is compared case-insensitively
// as a substring of the query; an empty Match matches everything.
type FixtureEntry struct {
	Match   string        `yaml:"match"`
	Items   []Item        `yaml:"items"`
	Fail    string        `yaml:"fail"`
	Latency time.Duration `yaml:"latency"`
}

type fixtureFile struct {
	Queries []FixtureEntry `yaml:"queries"`
}

// Fixture answers queries from a static table. The first matching entry wins;
// a query that matches nothing returns an empty result.
type Fixture struct {
	entries []FixtureEntry
}

// NewFixture builds a fixture collaborator from in-memory entries.
func NewFixture(entries []FixtureEntry) *Fixture {
	return &Fixture{entries: entries}
}

// LoadFixture reads a YAML fixture file of the form:
//
//	queries:
//	  - match: r2
//	    items:
//	      - {name: R2-D2, delay: 100}
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f fixtureFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return NewFixture(f.Queries), nil
}

// Search implements Searcher.
func (f *Fixture) Search(ctx context.Context, query string) ([]Item, error) {
	q := strings.ToLower(query)
	for _, e := range f.entries {
		if !strings.Contains(q, strings.ToLower(e.Match)) {
			continue
		}
		if e.Latency > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.Latency):
			}
		}
		if e.Fail != "" {
			return nil, errors.New(e.Fail)
		}
		return cloneItems(e.Items), nil
	}
	return nil, nil
}

// cloneItems copies each item so callers may strip keys without touching the table.
func cloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		c := make(Item, len(it))
		for k, v := range it {
			c[k] = v
		}
		out[i] = c
	}
	return out
}
