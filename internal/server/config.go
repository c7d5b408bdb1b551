package server

import (
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
)

const (
	defaultAddr           = ":8000"
	defaultMaxMessageSize = 4096
	defaultSendBuffer     = 256
	defaultBurst          = 10
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `env:"RATE_LIMIT_BURST,default=10" validate:"gte=1"`
	RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL,default=1s" validate:"gt=0"`
}

// PresenceConfig selects and tunes the durable presence backend.
type PresenceConfig struct {
	Backend      string        `env:"PRESENCE_BACKEND,default=none" validate:"oneof=none postgres badger"`
	DatabaseURL  string        `env:"DATABASE_URL" validate:"required_if=Backend postgres"`
	BadgerPath   string        `env:"BADGER_PATH,default=./data/presence"`
	BufferSize   int           `env:"PRESENCE_BUFFER_SIZE,default=1024" validate:"gte=1"`
	Timeout      time.Duration `env:"PRESENCE_TIMEOUT,default=5s" validate:"gt=0"`
	ResetOnStart bool          `env:"PRESENCE_RESET_ON_START,default=true"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Addr                 string          `env:"SERVER_ADDR,default=:8000" validate:"required"`
	AllowedOrigins       string          `env:"ALLOWED_ORIGINS,default=http://localhost:3000"`
	MaxMessageSize       int64           `env:"MAX_MESSAGE_SIZE,default=4096" validate:"gte=1"`
	SendBufferSize       int             `env:"SEND_BUFFER_SIZE,default=256" validate:"gte=1"`
	ReportProtocolErrors bool            `env:"REPORT_PROTOCOL_ERRORS,default=false"`
	LogLevel             string          `env:"LOG_LEVEL,default=info" validate:"oneof=debug info warn error DEBUG INFO WARN ERROR"`
	ShutdownTimeout      time.Duration   `env:"SHUTDOWN_TIMEOUT,default=10s" validate:"gt=0"`
	RateLimit            RateLimitConfig
	Presence             PresenceConfig
}

// NewConfig returns a Config populated with default values for all settings.
func NewConfig() *Config {
	return &Config{
		Addr:            defaultAddr,
		AllowedOrigins:  "http://localhost:3000",
		MaxMessageSize:  defaultMaxMessageSize,
		SendBufferSize:  defaultSendBuffer,
		LogLevel:        "info",
		ShutdownTimeout: 10 * time.Second,
		RateLimit: RateLimitConfig{
			Burst:          defaultBurst,
			RefillInterval: time.Second,
		},
		Presence: PresenceConfig{
			Backend:      "none",
			BadgerPath:   "./data/presence",
			BufferSize:   1024,
			Timeout:      5 * time.Second,
			ResetOnStart: true,
		},
	}
}

// LoadConfig reads the configuration from the environment and validates it.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if _, err := env.UnmarshalFromEnviron(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.sanitize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// sanitize trims values that commonly arrive padded from .env files.
func (c *Config) sanitize() {
	c.Addr = strings.TrimSpace(c.Addr)
	c.LogLevel = strings.TrimSpace(c.LogLevel)
	c.Presence.Backend = strings.ToLower(strings.TrimSpace(c.Presence.Backend))
	c.Presence.DatabaseURL = strings.TrimSpace(c.Presence.DatabaseURL)
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Origins splits AllowedOrigins on commas.
func (c *Config) Origins() []string {
	return parseOrigins(c.AllowedOrigins)
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
