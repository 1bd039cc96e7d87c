package main

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/searchrelay/searchrelay/client/internal/txn"
)

func newSearchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "search <name>",
		Short: "Look up a character and print the streamed results",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.newClient(nil)
			if err := c.Connect(cmd.Context()); err != nil {
				return wrapf(err, "connect to %s", a.cfg.Server)
			}
			defer c.Close()

			t, err := a.runSearch(cmd.Context(), c, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if t.Status() != txn.StatusComplete {
				return errors.Errorf("search failed: %s", t.Error())
			}
			return nil
		},
	}
}

// runSearch executes one transaction and prints its outcome.
func (a *app) runSearch(ctx context.Context, c txn.Conn, query string) (*txn.SearchTxn, error) {
	t := txn.NewSearch(query, a.cfg.Timeout)
	a.printf("[Txn:%s] Searching for %q...\n", t.ID(), query)

	if err := t.Execute(ctx, c); err != nil {
		return t, err
	}

	switch t.Status() {
	case txn.StatusComplete:
		a.printf("%s", t.Result())
	case txn.StatusFailed:
		a.printf("[Txn:%s] Failed: %s\n", t.ID(), t.Error())
	}
	return t, nil
}
