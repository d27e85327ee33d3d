// ABOUTME: Configuration loading and parsing for webchat-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Defaults applied when the corresponding value is not configured.
const (
	DefaultIdleTimeout    = 30 * time.Minute
	DefaultRequestTimeout = 120 * time.Second
	DefaultChannel        = "web"
	DefaultSenderID       = "web_user"
	DefaultPushRelayURL   = "https://exp.host/--/api/v2/push/send"
	DefaultPushTimeout    = 10 * time.Second
	DefaultPushBodyLimit  = 100
	DefaultPushTitle      = "nanobot"
	DefaultBusKeyPrefix   = "webchat:bus:"
)

// Backend modes.
const (
	BackendBus  = "bus"
	BackendEcho = "echo"
)

// Bus drivers.
const (
	BusMemory = "memory"
	BusRedis  = "redis"
)

// Config represents the complete webchat-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Gateway   GatewayConfig   `yaml:"gateway" toml:"gateway"`
	Backend   BackendConfig   `yaml:"backend" toml:"backend"`
	Bus       BusConfig       `yaml:"bus" toml:"bus"`
	Push      PushConfig      `yaml:"push" toml:"push"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr" toml:"grpc_addr"` // optional gRPC health endpoint
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // Enable public Funnel (implies HTTPS)
}

// AuthConfig holds the shared-secret token policy
type AuthConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Token   string `yaml:"token" toml:"token"`
	// TokenFile, when set, is read at startup and watched for rotation.
	TokenFile string `yaml:"token_file" toml:"token_file"`
}

// GatewayConfig holds connection timing and bus identity settings
type GatewayConfig struct {
	IdleTimeout    time.Duration `yaml:"-" toml:"-"`
	RequestTimeout time.Duration `yaml:"-" toml:"-"`
	Channel        string        `yaml:"channel" toml:"channel"`
	SenderID       string        `yaml:"sender_id" toml:"sender_id"`
	// AllowedOrigins are browser Origin host patterns accepted on /ws/chat in
	// addition to same-origin requests. Non-browser clients send no Origin.
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`

	// Raw string values for unmarshaling
	IdleTimeoutRaw    string `yaml:"idle_timeout" toml:"idle_timeout"`
	RequestTimeoutRaw string `yaml:"request_timeout" toml:"request_timeout"`
}

// BackendConfig selects how messages reach the agent
type BackendConfig struct {
	Mode string `yaml:"mode" toml:"mode"` // bus | echo
}

// BusConfig holds external bus configuration
type BusConfig struct {
	Driver    string `yaml:"driver" toml:"driver"` // memory | redis
	RedisAddr string `yaml:"redis_addr" toml:"redis_addr"`
	KeyPrefix string `yaml:"key_prefix" toml:"key_prefix"`
}

// PushConfig holds push notification fan-out configuration
type PushConfig struct {
	Enabled   bool          `yaml:"enabled" toml:"enabled"`
	RelayURL  string        `yaml:"relay_url" toml:"relay_url"`
	Timeout   time.Duration `yaml:"-" toml:"-"`
	BodyLimit int           `yaml:"body_limit" toml:"body_limit"`
	Title     string        `yaml:"title" toml:"title"`
	Database  string        `yaml:"database" toml:"database"` // SQLite path for registered tokens; empty keeps them in memory

	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Files ending in .toml are parsed as TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expandedData, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// ApplyDefaults fills in zero values with the reference policy.
func (c *Config) ApplyDefaults() {
	if c.Gateway.IdleTimeout == 0 {
		c.Gateway.IdleTimeout = DefaultIdleTimeout
	}
	if c.Gateway.RequestTimeout == 0 {
		c.Gateway.RequestTimeout = DefaultRequestTimeout
	}
	if c.Gateway.Channel == "" {
		c.Gateway.Channel = DefaultChannel
	}
	if c.Gateway.SenderID == "" {
		c.Gateway.SenderID = DefaultSenderID
	}
	if c.Backend.Mode == "" {
		c.Backend.Mode = BackendBus
	}
	if c.Bus.Driver == "" {
		c.Bus.Driver = BusMemory
	}
	if c.Bus.KeyPrefix == "" {
		c.Bus.KeyPrefix = DefaultBusKeyPrefix
	}
	if c.Push.RelayURL == "" {
		c.Push.RelayURL = DefaultPushRelayURL
	}
	if c.Push.Timeout == 0 {
		c.Push.Timeout = DefaultPushTimeout
	}
	if c.Push.BodyLimit == 0 {
		c.Push.BodyLimit = DefaultPushBodyLimit
	}
	if c.Push.Title == "" {
		c.Push.Title = DefaultPushTitle
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Auth.Enabled && c.Auth.Token == "" && c.Auth.TokenFile == "" {
		return fmt.Errorf("auth.token or auth.token_file is required when auth is enabled")
	}

	if c.Gateway.IdleTimeout < 0 || c.Gateway.RequestTimeout < 0 {
		return fmt.Errorf("gateway timeouts must be positive")
	}

	switch c.Backend.Mode {
	case "", BackendBus, BackendEcho:
	default:
		return fmt.Errorf("backend.mode must be %q or %q, got %q", BackendBus, BackendEcho, c.Backend.Mode)
	}

	switch c.Bus.Driver {
	case "", BusMemory:
	case BusRedis:
		if c.Bus.RedisAddr == "" {
			return fmt.Errorf("bus.redis_addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("bus.driver must be %q or %q, got %q", BusMemory, BusRedis, c.Bus.Driver)
	}

	if c.Push.Timeout < 0 {
		return fmt.Errorf("push.timeout must not be negative")
	}
	if c.Push.BodyLimit < 0 {
		return fmt.Errorf("push.body_limit must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Gateway.IdleTimeoutRaw != "" {
		cfg.Gateway.IdleTimeout, err = time.ParseDuration(cfg.Gateway.IdleTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing idle_timeout %q: %w", cfg.Gateway.IdleTimeoutRaw, err)
		}
	}

	if cfg.Gateway.RequestTimeoutRaw != "" {
		cfg.Gateway.RequestTimeout, err = time.ParseDuration(cfg.Gateway.RequestTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing request_timeout %q: %w", cfg.Gateway.RequestTimeoutRaw, err)
		}
	}

	if cfg.Push.TimeoutRaw != "" {
		cfg.Push.Timeout, err = time.ParseDuration(cfg.Push.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing push timeout %q: %w", cfg.Push.TimeoutRaw, err)
		}
	}

	return nil
}
