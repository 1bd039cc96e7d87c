package main

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/searchrelay/searchrelay/client/internal/config"
	"github.com/searchrelay/searchrelay/client/internal/relay"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	if err := newRootCmd(viper.New(), os.Stdin, os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries the resolved configuration into subcommands.
type app struct {
	v   *viper.Viper
	cfg *config.Config
	in  io.Reader
	out io.Writer
}

func newRootCmd(v *viper.Viper, in io.Reader, out io.Writer) *cobra.Command {
	a := &app{v: v, in: in, out: out}

	root := &cobra.Command{
		Use:          "searchrelay",
		Short:        "Console client for the search relay",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfgFile, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(a.v, cfgFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}
	root.SetIn(in)
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.String("config", "", "config file (default ./client.yaml or ~/.config/searchrelay/client.yaml)")
	pf.String("server", config.DefaultServer, "relay websocket url")
	pf.String("api-key", "", "API key sent on connect")
	pf.Duration("timeout", config.DefaultTimeout, "search transaction timeout")
	_ = v.BindPFlag("server", pf.Lookup("server"))
	_ = v.BindPFlag("api_key", pf.Lookup("api-key"))
	_ = v.BindPFlag("timeout", pf.Lookup("timeout"))

	root.AddCommand(
		newSearchCmd(a),
		newReplCmd(a),
		newStatusCmd(a),
	)
	return root
}

// authHeader returns the API key header, or nil when no key is configured.
func (a *app) authHeader() http.Header {
	if a.cfg.APIKey == "" {
		return nil
	}
	h := http.Header{}
	h.Set(a.cfg.APIKeyHeader, a.cfg.APIKey)
	return h
}

func (a *app) newClient(onState func(bool)) *relay.Client {
	return relay.New(relay.Options{
		URL:    a.cfg.Server,
		Header: a.authHeader(),
		Reconnect: relay.Reconnect{
			Attempts: a.cfg.Reconnect.Attempts,
			Delay:    a.cfg.Reconnect.Delay,
			DelayMax: a.cfg.Reconnect.DelayMax,
		},
		OnStateChange: onState,
	})
}

func (a *app) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(a.out, format, args...)
}

func wrapf(err error, format string, args ...any) error {
	return errors.Wrapf(err, format, args...)
}
