package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/mmuslimabdulj/drawtogether/internal/domain"
	"github.com/mmuslimabdulj/drawtogether/internal/logger"
)

// Config holds all application configuration
type Config struct {
	// Server
	ServerURL string `env:"WS_URL"`

	// Reconnect
	ReconnectMaxAttempts int           `env:"RECONNECT_MAX_ATTEMPTS"`
	ReconnectBaseDelay   time.Duration `env:"RECONNECT_BASE_DELAY"`

	// Outbound pacing (frames per second)
	OutboundRate  float64 `env:"OUTBOUND_RATE"`
	OutboundBurst int     `env:"OUTBOUND_BURST"`

	// WebSocket
	MaxMessageSize int `env:"MAX_MESSAGE_SIZE"`
	MaxHistorySize int `env:"MAX_HISTORY_SIZE"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL"` // Options: debug, info, warn, error, silent
	LogFormat string `env:"LOG_FORMAT"`
	LogFile   string `env:"LOG_FILE"`

	// Identity
	ProfilePath string `env:"PROFILE_PATH"`

	// Canvas
	CanvasWidth  int `env:"CANVAS_WIDTH"`
	CanvasHeight int `env:"CANVAS_HEIGHT"`

	// Inspection HTTP (empty disables it)
	InspectAddr      string  `env:"INSPECT_ADDR"`
	RateLimitInspect float64 `env:"RATE_LIMIT_INSPECT"`
}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	return &Config{
		ServerURL:            domain.DefaultServerURL,
		ReconnectMaxAttempts: domain.MaxReconnectAttempts,
		ReconnectBaseDelay:   domain.ReconnectBaseDelay,
		OutboundRate:         120,
		OutboundBurst:        60,
		MaxMessageSize:       domain.MaxMessageSize,
		MaxHistorySize:       domain.MaxHistorySize,
		LogLevel:             "info",
		LogFormat:            "console",
		ProfilePath:          "drawtogether_user.json",
		CanvasWidth:          1200,
		CanvasHeight:         800,
		RateLimitInspect:     10,
	}
}

// LoadFromEnv loads configuration from environment variables on top of the defaults
func LoadFromEnv() (*Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the client cannot run with
func (c *Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("WS_URL %q: must be a ws:// or wss:// URL", c.ServerURL)
	}
	if c.ReconnectMaxAttempts < 0 {
		return fmt.Errorf("RECONNECT_MAX_ATTEMPTS must not be negative, got %d", c.ReconnectMaxAttempts)
	}
	if c.ReconnectBaseDelay <= 0 {
		return fmt.Errorf("RECONNECT_BASE_DELAY must be positive, got %s", c.ReconnectBaseDelay)
	}
	if c.OutboundRate <= 0 || c.OutboundBurst <= 0 {
		return fmt.Errorf("OUTBOUND_RATE and OUTBOUND_BURST must be positive")
	}
	if c.MaxMessageSize <= 0 || c.MaxHistorySize <= 0 {
		return fmt.Errorf("MAX_MESSAGE_SIZE and MAX_HISTORY_SIZE must be positive")
	}
	if c.CanvasWidth <= 0 || c.CanvasHeight <= 0 {
		return fmt.Errorf("canvas size must be positive, got %dx%d", c.CanvasWidth, c.CanvasHeight)
	}
	return nil
}

// LogConfig maps the logging settings onto the logger package
func (c *Config) LogConfig() logger.LogConfig {
	lc := logger.DefaultLogConfig()
	lc.Level = c.LogLevel
	lc.Format = c.LogFormat
	lc.FilePath = c.LogFile
	return lc
}
