package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/foxzi/broadcaster/internal/ipfilter"
)

// Session modes
const (
	SessionModeGateway = "gateway"
	SessionModeSandbox = "sandbox"
)

// DefaultAddressSuffix is appended to a phone number to address a chat
const DefaultAddressSuffix = "@c.us"

// Config is the main configuration structure
type Config struct {
	Session SessionConfig `yaml:"session"`
	API     APIConfig     `yaml:"api"`
	Send    SendConfig    `yaml:"send"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"` // Prometheus metrics configuration
}

// SessionConfig describes how the messaging session is reached
type SessionConfig struct {
	Mode          string        `yaml:"mode"`           // gateway, sandbox
	GatewayURL    string        `yaml:"gateway_url"`    // Base URL of the session gateway
	APIKey        string        `yaml:"api_key"`        // Bearer token for the gateway
	CallbackURL   string        `yaml:"callback_url"`   // Where the gateway posts session events
	Timeout       time.Duration `yaml:"timeout"`        // HTTP transport timeout (default: 2m)
	AddressSuffix string        `yaml:"address_suffix"` // Default: @c.us
	EventsBuffer  int           `yaml:"events_buffer"`  // Push event channel size (default: 64)
	Sandbox       SandboxConfig `yaml:"sandbox"`
}

// SandboxConfig contains settings for the offline sandbox session
type SandboxConfig struct {
	FixtureFile      string  `yaml:"fixture_file"`      // YAML file with contacts and groups
	ErrorProbability float64 `yaml:"error_probability"` // 0.0 to 1.0
}

// APIConfig contains HTTP API settings
type APIConfig struct {
	ListenAddr     string        `yaml:"listen_addr"`
	APIKey         string        `yaml:"api_key"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"` // Max HTTP header size (default: 1MB)
	ReadTimeout    time.Duration `yaml:"read_timeout"`     // HTTP read timeout (default: 30s)
	WriteTimeout   time.Duration `yaml:"write_timeout"`    // HTTP write timeout (default: 30s)
	IdleTimeout    time.Duration `yaml:"idle_timeout"`     // HTTP idle timeout (default: 60s)
	AllowedIPs     []string      `yaml:"allowed_ips"`      // IP addresses/CIDRs allowed to access API (empty = allow all)
	TrustProxy     bool          `yaml:"trust_proxy"`      // Honor X-Forwarded-For / X-Real-IP
}

// SendConfig contains broadcast settings
type SendConfig struct {
	RatePerSec float64 `yaml:"rate_per_sec"` // Pacing between recipients (0 = no pacing)
}

// StorageConfig contains storage settings
type StorageConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled    bool     `yaml:"enabled"`
	ListenAddr string   `yaml:"listen_addr"` // Default: :9090
	Path       string   `yaml:"path"`        // Default: /metrics
	AllowedIPs []string `yaml:"allowed_ips"` // IP addresses/CIDRs allowed to access metrics

	FlushInterval time.Duration `yaml:"flush_interval"` // Counter persistence period (default: 1m)
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Session.Mode == "" {
		c.Session.Mode = SessionModeGateway
	}
	if c.Session.Timeout == 0 {
		c.Session.Timeout = 2 * time.Minute
	}
	if c.Session.AddressSuffix == "" {
		c.Session.AddressSuffix = DefaultAddressSuffix
	}
	if c.Session.EventsBuffer == 0 {
		c.Session.EventsBuffer = 64
	}

	if c.API.ListenAddr == "" {
		c.API.ListenAddr = "127.0.0.1:8080"
	}
	if c.API.MaxHeaderBytes == 0 {
		c.API.MaxHeaderBytes = 1 << 20 // 1 MB
	}
	if c.API.ReadTimeout == 0 {
		c.API.ReadTimeout = 30 * time.Second
	}
	if c.API.WriteTimeout == 0 {
		c.API.WriteTimeout = 30 * time.Second
	}
	if c.API.IdleTimeout == 0 {
		c.API.IdleTimeout = 60 * time.Second
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "/var/lib/broadcaster/broadcaster.db"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.FlushInterval == 0 {
		c.Metrics.FlushInterval = time.Minute
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Session.Mode {
	case SessionModeGateway:
		if c.Session.GatewayURL == "" {
			return fmt.Errorf("session.gateway_url is required in gateway mode")
		}
		u, err := url.Parse(c.Session.GatewayURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid session.gateway_url: %q", c.Session.GatewayURL)
		}
		if c.Session.CallbackURL != "" {
			u, err := url.Parse(c.Session.CallbackURL)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return fmt.Errorf("invalid session.callback_url: %q", c.Session.CallbackURL)
			}
		}
	case SessionModeSandbox:
		p := c.Session.Sandbox.ErrorProbability
		if p < 0 || p > 1 {
			return fmt.Errorf("session.sandbox.error_probability must be between 0 and 1")
		}
	default:
		return fmt.Errorf("invalid session.mode: %s (must be gateway or sandbox)", c.Session.Mode)
	}

	if !strings.HasPrefix(c.Session.AddressSuffix, "@") {
		return fmt.Errorf("session.address_suffix must start with @")
	}
	if c.Session.EventsBuffer < 0 {
		return fmt.Errorf("session.events_buffer must not be negative")
	}

	if err := ipfilter.ValidateList(c.API.AllowedIPs); err != nil {
		return fmt.Errorf("invalid api.allowed_ips: %w", err)
	}
	if err := ipfilter.ValidateList(c.Metrics.AllowedIPs); err != nil {
		return fmt.Errorf("invalid metrics.allowed_ips: %w", err)
	}

	if c.Send.RatePerSec < 0 {
		return fmt.Errorf("send.rate_per_sec must not be negative")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	return nil
}

// IsSandbox returns true if messages are captured instead of delivered
func (c *Config) IsSandbox() bool {
	return c.Session.Mode == SessionModeSandbox
}
