package config

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// ErrInvalidConfig is returned by Validate for out-of-range settings.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all host configuration.
type Config struct {
	Engine  EngineConfig  `yaml:"engine" toml:"engine"`
	Sandbox SandboxConfig `yaml:"sandbox" toml:"sandbox"`
	HTTP    HTTPConfig    `yaml:"http" toml:"http"`
	Test    TestConfig    `yaml:"test" toml:"test"`
	Logging LogConfig     `yaml:"logging" toml:"logging"`
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
}

// EngineConfig holds root context settings.
type EngineConfig struct {
	StackSize   int64 `envconfig:"COUCHJS_STACK_SIZE" default:"67108864" yaml:"stack_size" toml:"stack_size"`
	GCThreshold int   `envconfig:"COUCHJS_GC_THRESHOLD" default:"64" yaml:"gc_threshold" toml:"gc_threshold"`
}

// SandboxConfig holds evalcx settings.
type SandboxConfig struct {
	EvalEnabled bool  `envconfig:"COUCHJS_EVAL_ENABLED" default:"false" yaml:"eval_enabled" toml:"eval_enabled"`
	StackSize   int64 `envconfig:"COUCHJS_SANDBOX_STACK_SIZE" default:"8192" yaml:"stack_size" toml:"stack_size"`
	TimeoutMS   int   `envconfig:"COUCHJS_SANDBOX_TIMEOUT_MS" default:"0" yaml:"timeout_ms" toml:"timeout_ms"`
}

// HTTPConfig holds CouchHTTP settings.
type HTTPConfig struct {
	Enabled     bool    `envconfig:"COUCHJS_HTTP_ENABLED" default:"false" yaml:"enabled" toml:"enabled"`
	BaseURL     string  `envconfig:"COUCHJS_HTTP_BASE_URL" default:"" yaml:"base_url" toml:"base_url"`
	URIFile     string  `envconfig:"COUCHJS_HTTP_URI_FILE" default:"" yaml:"uri_file" toml:"uri_file"`
	TimeoutMS   int     `envconfig:"COUCHJS_HTTP_TIMEOUT_MS" default:"30000" yaml:"timeout_ms" toml:"timeout_ms"`
	Retries     int     `envconfig:"COUCHJS_HTTP_RETRIES" default:"0" yaml:"retries" toml:"retries"`
	RetryWaitMS int     `envconfig:"COUCHJS_HTTP_RETRY_WAIT_MS" default:"100" yaml:"retry_wait_ms" toml:"retry_wait_ms"`
	RateLimit   float64 `envconfig:"COUCHJS_HTTP_RATE_LIMIT" default:"0" yaml:"rate_limit" toml:"rate_limit"`
	UserAgent   string  `envconfig:"COUCHJS_HTTP_USER_AGENT" default:"couchjs/1.0" yaml:"user_agent" toml:"user_agent"`
}

// TestConfig holds test-suite support settings.
type TestConfig struct {
	Enabled bool `envconfig:"COUCHJS_TEST_FUNCS" default:"false" yaml:"enabled" toml:"enabled"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"COUCHJS_LOG_LEVEL" default:"warn" yaml:"level" toml:"level"`
	Development bool   `envconfig:"COUCHJS_LOG_DEV" default:"false" yaml:"development" toml:"development"`
}

// MetricsConfig holds metrics export configuration.
type MetricsConfig struct {
	File string `envconfig:"COUCHJS_METRICS_FILE" default:"" yaml:"file" toml:"file"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			StackSize:   64 * 1024 * 1024,
			GCThreshold: 64,
		},
		Sandbox: SandboxConfig{
			StackSize: 8 * 1024,
		},
		HTTP: HTTPConfig{
			TimeoutMS:   30000,
			RetryWaitMS: 100,
			UserAgent:   "couchjs/1.0",
		},
		Logging: LogConfig{
			Level: "warn",
		},
	}
}

// LoadFile overlays a YAML or TOML file onto cfg. Keys absent from the
// file keep their current values.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("%w: unsupported config file extension %q", ErrInvalidConfig, ext)
	}
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// Validate checks ranges that the engine cannot recover from at runtime.
func (c *Config) Validate() error {
	switch {
	case c.Engine.StackSize <= 0:
		return fmt.Errorf("%w: stack size must be positive", ErrInvalidConfig)
	case c.Engine.GCThreshold < 0:
		return fmt.Errorf("%w: gc threshold must not be negative", ErrInvalidConfig)
	case c.Sandbox.StackSize <= 0:
		return fmt.Errorf("%w: sandbox stack size must be positive", ErrInvalidConfig)
	case c.Sandbox.TimeoutMS < 0:
		return fmt.Errorf("%w: sandbox timeout must not be negative", ErrInvalidConfig)
	case c.HTTP.TimeoutMS < 0 || c.HTTP.Retries < 0 || c.HTTP.RetryWaitMS < 0:
		return fmt.Errorf("%w: http timeout and retry settings must not be negative", ErrInvalidConfig)
	case c.HTTP.RateLimit < 0:
		return fmt.Errorf("%w: http rate limit must not be negative", ErrInvalidConfig)
	}
	return nil
}

// SandboxTimeout returns the sandbox wall-clock budget; zero disables it.
func (s SandboxConfig) SandboxTimeout() time.Duration {
	return time.Duration(s.TimeoutMS) * time.Millisecond
}

// Timeout returns the per-request transport timeout.
func (h HTTPConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutMS) * time.Millisecond
}

// RetryWait returns the minimum wait between transport retries.
func (h HTTPConfig) RetryWait() time.Duration {
	return time.Duration(h.RetryWaitMS) * time.Millisecond
}

// ResolveBaseURL returns the base URL relative request paths resolve
// against. The first line of URIFile wins over BaseURL. An empty result
// means no base URL is configured.
func (h HTTPConfig) ResolveBaseURL() (string, error) {
	raw := h.BaseURL
	if h.URIFile != "" {
		f, err := os.Open(h.URIFile)
		if err != nil {
			return "", fmt.Errorf("failed to open uri file: %w", err)
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		if scanner.Scan() {
			raw = scanner.Text()
		} else if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("failed to read uri file: %w", err)
		} else {
			raw = ""
		}
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: base url: %v", ErrInvalidConfig, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("%w: base url %q must be absolute", ErrInvalidConfig, raw)
	}
	return u.String(), nil
}
