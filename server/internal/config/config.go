package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 3000
	DefaultReadTimeout     = 10 * time.Second
	DefaultShutdownTimeout = 10 * time.Second

	DefaultOverlap    = OverlapQueue
	DefaultQueueSize  = 8
	DefaultMaxDelay   = 10 * time.Second
	DefaultSendBuffer = 64

	DefaultSearchDriver = "swapi"
	DefaultSWAPIBaseURL = "https://swapi.dev/api"
	DefaultSWAPITimeout = 15 * time.Second
	DefaultSWAPIDelay   = 500 * time.Millisecond
	DefaultSWAPIRetries = 3
	DefaultCacheTTL     = 24 * time.Hour
	DefaultLoggingEnv   = "local"
	DefaultAuthHeader   = "x-api-key"
)

// Overlap policies for queries arriving on a session that is still streaming.
const (
	OverlapQueue      = "queue"
	OverlapConcurrent = "concurrent"
)

// Config holds the relay server configuration parsed from config.yaml.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Stream  StreamConfig  `yaml:"stream"`
	Search  SearchConfig  `yaml:"search"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	// Host is the interface to bind (default 0.0.0.0).
	Host string `yaml:"host"`

	// Port serves the websocket endpoint, the REST API and /metrics (default 3000).
	Port int `yaml:"port"`

	// ReadTimeout bounds reading the HTTP upgrade request.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// ShutdownTimeout bounds graceful shutdown of the HTTP server.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AuthConfig controls client authentication on the websocket endpoint.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header to read the key from. Defaults to "x-api-key".
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return DefaultAuthHeader
}

// StreamConfig controls how result lists are replayed to sessions.
type StreamConfig struct {
	// Overlap is queue (serialise queries per session) or concurrent.
	Overlap string `yaml:"overlap"`

	// QueueSize is the number of pending queries a session may hold in queue mode.
	QueueSize int `yaml:"queue_size"`

	// MaxDelay caps a single pacing wait.
	MaxDelay time.Duration `yaml:"max_delay"`

	// SendBuffer is the per-session outgoing frame buffer depth.
	SendBuffer int `yaml:"send_buffer"`
}

// SearchConfig selects and configures the search collaborator.
type SearchConfig struct {
	// Driver is swapi or fixture.
	Driver  string        `yaml:"driver"`
	SWAPI   SWAPIConfig   `yaml:"swapi"`
	Fixture FixtureConfig `yaml:"fixture"`
	Cache   CacheConfig   `yaml:"cache"`
}

// SWAPIConfig configures the Star Wars API collaborator.
type SWAPIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`

	// ItemDelay is attached to every result as its pacing delay.
	ItemDelay time.Duration `yaml:"item_delay"`

	// MaxRetries bounds retries on HTTP 429.
	MaxRetries int `yaml:"max_retries"`
}

// FixtureConfig points at a YAML file of canned results.
type FixtureConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig enables the redis cache for upstream responses.
// The cache is disabled when Addrs is empty.
type CacheConfig struct {
	Addrs    []string      `yaml:"addrs"`
	Password string        `yaml:"password"`
	TTL      time.Duration `yaml:"ttl"`
}

// Enabled reports whether a cache backend is configured.
func (c CacheConfig) Enabled() bool {
	return len(c.Addrs) > 0
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Env selects the zap preset: prod | local | dev | docker.
	Env string `yaml:"env"`

	// Level overrides the preset level: debug, info, warn, error.
	Level string `yaml:"level"`
}

// Load reads and parses the config file at path. A missing file yields the
// defaults. ${VAR} and ${VAR:-default} references are expanded before parsing.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return cfg, nil
	case err != nil:
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	if err := yaml.Unmarshal(expandEnvVars(data), cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}
	cfg.applyDefaults()

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills zero-valued fields. It runs after unmarshalling so
// explicit empty sections in the file still get sane values.
func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Stream.Overlap == "" {
		c.Stream.Overlap = DefaultOverlap
	}
	if c.Stream.QueueSize == 0 {
		c.Stream.QueueSize = DefaultQueueSize
	}
	if c.Stream.MaxDelay == 0 {
		c.Stream.MaxDelay = DefaultMaxDelay
	}
	if c.Stream.SendBuffer == 0 {
		c.Stream.SendBuffer = DefaultSendBuffer
	}
	if c.Search.Driver == "" {
		c.Search.Driver = DefaultSearchDriver
	}
	if c.Search.SWAPI.BaseURL == "" {
		c.Search.SWAPI.BaseURL = DefaultSWAPIBaseURL
	}
	if c.Search.SWAPI.Timeout == 0 {
		c.Search.SWAPI.Timeout = DefaultSWAPITimeout
	}
	if c.Search.SWAPI.ItemDelay == 0 {
		c.Search.SWAPI.ItemDelay = DefaultSWAPIDelay
	}
	if c.Search.SWAPI.MaxRetries == 0 {
		c.Search.SWAPI.MaxRetries = DefaultSWAPIRetries
	}
	if c.Search.Cache.TTL == 0 {
		c.Search.Cache.TTL = DefaultCacheTTL
	}
	if c.Logging.Env == "" {
		c.Logging.Env = DefaultLoggingEnv
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range [1, 65535]", cfg.Server.Port)
	}
	switch cfg.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("auth.mode %q unknown: want apikey|none", cfg.Auth.Mode)
	}
	switch cfg.Stream.Overlap {
	case OverlapQueue, OverlapConcurrent:
	default:
		return fmt.Errorf("stream.overlap %q unknown: want queue|concurrent", cfg.Stream.Overlap)
	}
	if cfg.Stream.QueueSize < 0 {
		return fmt.Errorf("stream.queue_size must not be negative")
	}
	if cfg.Stream.MaxDelay < 0 {
		return fmt.Errorf("stream.max_delay must not be negative")
	}
	if cfg.Stream.SendBuffer < 0 {
		return fmt.Errorf("stream.send_buffer must not be negative")
	}
	switch cfg.Search.Driver {
	case "swapi":
	case "fixture":
		if cfg.Search.Fixture.Path == "" {
			return fmt.Errorf("search.fixture.path is required for the fixture driver")
		}
	default:
		return fmt.Errorf("search.driver %q unknown: want swapi|fixture", cfg.Search.Driver)
	}
	if cfg.Search.SWAPI.MaxRetries < 0 {
		return fmt.Errorf("search.swapi.max_retries must not be negative")
	}
	switch cfg.Logging.Env {
	case "prod", "local", "dev", "docker":
	default:
		return fmt.Errorf("logging.env %q unknown: want prod|local|dev|docker", cfg.Logging.Env)
	}
	return nil
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
