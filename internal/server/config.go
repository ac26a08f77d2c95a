// Package server provides configuration helpers that define runtime defaults,
// validation, and file/environment loading for the chat relay.
package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

const (
	defaultPort            = 8888
	defaultManagementPort  = 8889
	defaultMaxLineSize     = 64 * 1024
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// RateLimitConfig defines the parameters for per-connection line rate limiting.
// A Burst of zero disables the limiter.
type RateLimitConfig struct {
	Burst          int           `yaml:"burst"`
	RefillInterval time.Duration `yaml:"refill_interval"`
}

// Config holds the chat relay settings. Durations in a YAML file are
// seconds when written as bare numbers ("write_timeout: 10") and may also
// use Go duration strings ("write_timeout: 1m").
type Config struct {
	Host            string          `yaml:"host"`
	Port            int             `yaml:"port"`
	ManagementPort  int             `yaml:"management_port"`
	WebSocketAddr   string          `yaml:"websocket_addr"`
	AllowedOrigins  []string        `yaml:"allowed_origins"`
	MaxLineSize     int             `yaml:"max_line_size"`
	WriteTimeout    time.Duration   `yaml:"write_timeout"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
}

func defaultConfig() Config {
	return Config{
		Port:           defaultPort,
		ManagementPort: defaultManagementPort,
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxLineSize:     defaultMaxLineSize,
		WriteTimeout:    defaultWriteTimeout,
		ShutdownTimeout: defaultShutdownTimeout,
		RateLimit: RateLimitConfig{
			RefillInterval: time.Second,
		},
	}
}

// Sanitize replaces out-of-range values with their defaults.
func (cfg *Config) Sanitize() {
	if !validPort(cfg.Port) {
		cfg.Port = defaultPort
	}

	if !validPort(cfg.ManagementPort) {
		cfg.ManagementPort = defaultManagementPort
	}

	if cfg.MaxLineSize <= 0 {
		cfg.MaxLineSize = defaultMaxLineSize
	}

	if cfg.WriteTimeout < 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	if cfg.RateLimit.Burst < 0 {
		cfg.RateLimit.Burst = 0
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}
}

func validPort(p int) bool {
	return p >= 0 && p <= 65535
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// LoadConfigFile reads a YAML file on top of the defaults. Keys missing from
// the file keep their default values.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := defaultConfig()
	if err := yaml.UnmarshalWithOptions(data, &cfg, yaml.CustomUnmarshaler(decodeDuration)); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Sanitize()
	return &cfg, nil
}

// decodeDuration reads a YAML duration. A bare number means seconds, as in
// the environment variables; a string such as "1m30s" uses Go duration syntax.
func decodeDuration(d *time.Duration, data []byte) error {
	value := strings.TrimSpace(string(data))
	var text string
	if err := yaml.Unmarshal(data, &text); err == nil {
		value = strings.TrimSpace(text)
	}

	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		*d = time.Duration(seconds * float64(time.Second))
		return nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value, err)
	}
	*d = parsed
	return nil
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()
	ApplyEnv(&cfg)
	return &cfg
}

// ApplyEnv overrides cfg with any of the recognised environment variables.
// Unparseable values are ignored.
func ApplyEnv(cfg *Config) {
	if host, ok := os.LookupEnv("CHAT_HOST"); ok {
		cfg.Host = host
	}

	if port := os.Getenv("CHAT_PORT"); port != "" {
		cfg.Port = parsePortValue(port, cfg.Port)
	}

	if port := os.Getenv("MANAGEMENT_PORT"); port != "" {
		cfg.ManagementPort = parsePortValue(port, cfg.ManagementPort)
	}

	if addr, ok := os.LookupEnv("WEBSOCKET_ADDR"); ok {
		cfg.WebSocketAddr = addr
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if maxSize := os.Getenv("MAX_LINE_SIZE"); maxSize != "" {
		cfg.MaxLineSize = parseIntValue(maxSize, cfg.MaxLineSize)
	}

	if timeout := os.Getenv("WRITE_TIMEOUT"); timeout != "" {
		cfg.WriteTimeout = parseSeconds(timeout, cfg.WriteTimeout)
	}

	if timeout := os.Getenv("SHUTDOWN_TIMEOUT"); timeout != "" {
		cfg.ShutdownTimeout = parseSeconds(timeout, cfg.ShutdownTimeout)
	}

	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}

	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseSeconds(interval, cfg.RateLimit.RefillInterval)
	}
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parsePortValue(value string, defaultValue int) int {
	if port, err := strconv.Atoi(value); err == nil && validPort(port) {
		return port
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
