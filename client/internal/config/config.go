// Package config loads the console client's settings with viper.
//
// Sources, highest precedence first: SEARCHRELAY_* environment variables
// (dots become underscores, e.g. SEARCHRELAY_RECONNECT_ATTEMPTS), the config
// file, then the built-in defaults. Without an explicit file, client.yaml is
// looked up in the working directory and in ~/.config/searchrelay.
package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	EnvPrefix  = "SEARCHRELAY"
	ConfigName = "client"

	DefaultServer           = "ws://localhost:3000/ws"
	DefaultReconnectAttempt = 60
	DefaultReconnectDelay   = 500 * time.Millisecond
	DefaultReconnectMax     = time.Second
	DefaultTimeout          = 30 * time.Second
	DefaultAPIKeyHeader     = "x-api-key"
)

// Config is the resolved client configuration.
type Config struct {
	Server       string
	MetricsURL   string
	APIKey       string
	APIKeyHeader string
	Timeout      time.Duration
	Reconnect    Reconnect
}

// Reconnect controls the websocket reconnection policy.
type Reconnect struct {
	Attempts int
	Delay    time.Duration
	DelayMax time.Duration
}

// Load resolves the configuration into v. cfgFile may be empty.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	v.SetDefault("server", DefaultServer)
	v.SetDefault("metrics_url", "")
	v.SetDefault("api_key", "")
	v.SetDefault("api_key_header", DefaultAPIKeyHeader)
	v.SetDefault("timeout", DefaultTimeout)
	v.SetDefault("reconnect.attempts", DefaultReconnectAttempt)
	v.SetDefault("reconnect.delay", DefaultReconnectDelay)
	v.SetDefault("reconnect.delay_max", DefaultReconnectMax)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "searchrelay"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read client config")
		}
	}

	cfg := &Config{
		Server:       v.GetString("server"),
		MetricsURL:   v.GetString("metrics_url"),
		APIKey:       v.GetString("api_key"),
		APIKeyHeader: v.GetString("api_key_header"),
		Timeout:      v.GetDuration("timeout"),
		Reconnect: Reconnect{
			Attempts: v.GetInt("reconnect.attempts"),
			Delay:    v.GetDuration("reconnect.delay"),
			DelayMax: v.GetDuration("reconnect.delay_max"),
		},
	}
	if cfg.MetricsURL == "" {
		cfg.MetricsURL = MetricsURLFor(cfg.Server)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if !strings.HasPrefix(c.Server, "ws://") && !strings.HasPrefix(c.Server, "wss://") {
		return errors.Errorf("server %q must be a ws:// or wss:// url", c.Server)
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.Reconnect.Attempts < 0 {
		return errors.New("reconnect.attempts must not be negative")
	}
	if c.Reconnect.Delay < 0 || c.Reconnect.DelayMax < 0 {
		return errors.New("reconnect delays must not be negative")
	}
	return nil
}

// MetricsURLFor derives the server's /metrics url from its websocket url.
func MetricsURLFor(server string) string {
	u, err := url.Parse(server)
	if err != nil || u.Host == "" {
		return ""
	}
	scheme := "http"
	if u.Scheme == "wss" {
		scheme = "https"
	}
	return (&url.URL{Scheme: scheme, Host: u.Host, Path: "/metrics"}).String()
}
