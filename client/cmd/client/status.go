package main

import (
	"github.com/spf13/cobra"

	"github.com/searchrelay/searchrelay/client/internal/stats"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show relay server counters from its metrics endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := stats.Fetch(cmd.Context(), nil, a.cfg.MetricsURL, a.authHeader())
			if err != nil {
				return wrapf(err, "scrape %s", a.cfg.MetricsURL)
			}

			a.printf("Relay status (%s)\n", a.cfg.MetricsURL)
			a.printf("  sessions active     %.0f\n", s.SessionsActive)
			a.printf("  sessions total      %.0f\n", s.SessionsTotal)
			a.printf("  queries completed   %.0f\n", s.Queries["completed"])
			a.printf("  queries failed      %.0f\n", s.Queries["failed"])
			a.printf("  queries cancelled   %.0f\n", s.Queries["cancelled"])
			a.printf("  queries rejected    %.0f\n", s.Queries["rejected"])
			a.printf("  items emitted       %.0f\n", s.ItemsEmitted)
			a.printf("  mean lookup         %s\n", s.MeanSearch())
			if s.CacheHits+s.CacheMisses > 0 {
				a.printf("  upstream cache      %.0f hit / %.0f miss\n", s.CacheHits, s.CacheMisses)
			}
			return nil
		},
	}
}
