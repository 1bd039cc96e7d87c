package main

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	input "github.com/tcnksm/go-input"
)

const (
	optConnect    = "1"
	optSearch     = "2"
	optDisconnect = "3"
	optQuit       = "4"
)

func newReplCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Interactive menu: connect, look for people, disconnect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.repl(cmd.Context())
		},
	}
}

func (a *app) repl(ctx context.Context) error {
	ui := &input.UI{Writer: a.out, Reader: a.in}

	var online atomic.Bool
	c := a.newClient(func(up bool) {
		if online.Swap(up) != up && !up {
			a.printf("Connection lost.\n")
		}
	})
	defer c.Close()

	for {
		a.printf("\n1) Connect\n2) Look for person\n3) Disconnect\n4) Quit\n")
		choice, err := ui.Ask("Select an option", &input.Options{
			Required: true,
			Loop:     true,
			ValidateFunc: func(s string) error {
				switch strings.TrimSpace(s) {
				case optConnect, optSearch, optDisconnect, optQuit:
					return nil
				default:
					return errors.Errorf("please enter 1, 2, 3 or 4")
				}
			},
		})
		if err != nil {
			if errors.Is(err, input.ErrInterrupted) {
				return nil
			}
			return errors.Wrap(err, "failed to get user input")
		}

		switch strings.TrimSpace(choice) {
		case optConnect:
			if c.IsConnected() {
				a.printf("Already connected to %s\n", a.cfg.Server)
				continue
			}
			if err := c.Connect(ctx); err != nil {
				a.printf("Connect failed: %v\n", err)
				continue
			}
			a.printf("Connected to %s\n", a.cfg.Server)

		case optSearch:
			if !c.IsConnected() {
				a.printf("Not connected. Choose 1 to connect first.\n")
				continue
			}
			name, err := ui.Ask("Name to look for", &input.Options{Required: true, Loop: true})
			if err != nil {
				return errors.Wrap(err, "failed to get user input")
			}
			if _, err := a.runSearch(ctx, c, strings.TrimSpace(name)); err != nil {
				a.printf("Search error: %v\n", err)
			}

		case optDisconnect:
			if !c.IsConnected() {
				a.printf("Not connected.\n")
				continue
			}
			online.Store(false)
			if err := c.Close(); err != nil {
				a.printf("Disconnect: %v\n", err)
			}
			a.printf("Disconnected.\n")

		case optQuit:
			return nil
		}
	}
}
