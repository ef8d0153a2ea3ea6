// Package config loads chatlink configuration files.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/haasonsaas/chatlink/internal/backoff"
	"github.com/haasonsaas/chatlink/internal/typing"
)

// Config is the main configuration structure for chatlink.
type Config struct {
	Version   int             `yaml:"version"`
	Server    ServerConfig    `yaml:"server"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Typing    TypingConfig    `yaml:"typing"`
	Queue     QueueConfig     `yaml:"queue"`
	Notify    NotifyConfig    `yaml:"notify"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// ServerConfig describes the chat server endpoint.
type ServerConfig struct {
	// URL is the WebSocket endpoint, e.g. wss://chat.example.com/ws.
	URL string `yaml:"url" jsonschema:"format=uri"`

	// AuthToken is sent as a bearer token during the handshake.
	AuthToken string `yaml:"auth_token"`

	// Headers are extra handshake headers.
	Headers map[string]string `yaml:"headers"`

	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PongWait         time.Duration `yaml:"pong_wait"`
	MaxMessageBytes  int64         `yaml:"max_message_bytes"`
}

// ReconnectConfig controls the reconnect backoff.
type ReconnectConfig struct {
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	MaxAttempts int           `yaml:"max_attempts"`
	Jitter      float64       `yaml:"jitter" jsonschema:"minimum=0,maximum=1"`
}

// TypingConfig controls typing indicators.
type TypingConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// IdleStop sends stop_typing automatically once a local typing signal
	// has not been refreshed for TTL.
	IdleStop bool `yaml:"idle_stop"`
}

// QueueConfig bounds the offline queue. Zero means unbounded.
type QueueConfig struct {
	MaxSize int `yaml:"max_size"`
}

// NotifyConfig controls local notifications.
type NotifyConfig struct {
	Enabled bool `yaml:"enabled"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig exposes Prometheus metrics when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// TracingConfig exports spans over OTLP when Endpoint is set.
type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	Insecure     bool    `yaml:"insecure"`
	SamplingRate float64 `yaml:"sampling_rate" jsonschema:"minimum=0,maximum=1"`
	Environment  string  `yaml:"environment"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads and parses the configuration file, resolving includes,
// expanding environment variables, applying defaults, and validating the result.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	if cfg.Server.HandshakeTimeout == 0 {
		cfg.Server.HandshakeTimeout = 10 * time.Second
	}
	if cfg.Server.PongWait == 0 {
		cfg.Server.PongWait = 60 * time.Second
	}
	if cfg.Server.PingInterval == 0 {
		cfg.Server.PingInterval = 30 * time.Second
	}
	if cfg.Server.MaxMessageBytes == 0 {
		cfg.Server.MaxMessageBytes = 1 << 20
	}
	if cfg.Reconnect.BaseDelay == 0 {
		cfg.Reconnect.BaseDelay = backoff.DefaultBaseDelay
	}
	if cfg.Reconnect.MaxAttempts == 0 {
		cfg.Reconnect.MaxAttempts = backoff.DefaultMaxAttempts
	}
	if cfg.Typing.TTL == 0 {
		cfg.Typing.TTL = typing.DefaultTTL
	}
	if cfg.Typing.SweepInterval == 0 {
		cfg.Typing.SweepInterval = typing.DefaultSweepInterval
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Tracing.SamplingRate == 0 {
		cfg.Tracing.SamplingRate = 1.0
	}
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var issues []string
	if err := ValidateVersion(c.Version); err != nil {
		issues = append(issues, err.Error())
	}

	if c.Server.URL != "" {
		u, err := url.Parse(c.Server.URL)
		switch {
		case err != nil:
			issues = append(issues, fmt.Sprintf("server.url: %v", err))
		case u.Scheme != "ws" && u.Scheme != "wss":
			issues = append(issues, "server.url must use ws or wss")
		case u.Host == "":
			issues = append(issues, "server.url must include a host")
		}
	}
	for name := range c.Server.Headers {
		if strings.TrimSpace(name) == "" {
			issues = append(issues, "server.headers contains an empty name")
		}
	}
	if c.Server.HandshakeTimeout < 0 {
		issues = append(issues, "server.handshake_timeout must be >= 0")
	}
	if c.Server.PingInterval > 0 && c.Server.PongWait > 0 && c.Server.PingInterval >= c.Server.PongWait {
		issues = append(issues, "server.ping_interval must be shorter than server.pong_wait")
	}
	if c.Server.MaxMessageBytes < 0 {
		issues = append(issues, "server.max_message_bytes must be >= 0")
	}

	if c.Reconnect.BaseDelay < 0 {
		issues = append(issues, "reconnect.base_delay must be >= 0")
	}
	if c.Reconnect.MaxDelay < 0 {
		issues = append(issues, "reconnect.max_delay must be >= 0")
	}
	if c.Reconnect.Jitter < 0 || c.Reconnect.Jitter > 1 {
		issues = append(issues, "reconnect.jitter must be between 0 and 1")
	}

	if c.Typing.TTL < 0 {
		issues = append(issues, "typing.ttl must be >= 0")
	}
	if c.Typing.SweepInterval < 0 {
		issues = append(issues, "typing.sweep_interval must be >= 0")
	}
	if c.Queue.MaxSize < 0 {
		issues = append(issues, "queue.max_size must be >= 0")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		issues = append(issues, fmt.Sprintf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "text":
	default:
		issues = append(issues, fmt.Sprintf("logging.format %q must be json or text", c.Logging.Format))
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		issues = append(issues, "tracing.sampling_rate must be between 0 and 1")
	}

	if len(issues) == 0 {
		return nil
	}
	return &ValidationError{Issues: issues}
}

// ValidationError lists config validation failures.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

// BackoffPolicy converts the reconnect section into a backoff policy.
// A negative max_attempts retries forever.
func (c ReconnectConfig) BackoffPolicy() backoff.Policy {
	p := backoff.DefaultPolicy()
	p.BaseDelay = c.BaseDelay
	p.MaxDelay = c.MaxDelay
	p.MaxAttempts = c.MaxAttempts
	p.Jitter = c.Jitter
	return p.Normalize()
}
