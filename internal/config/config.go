// Package config loads outbound settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Alfex4936/feishu-outbound/internal/chunk"
	"github.com/Alfex4936/feishu-outbound/internal/feishu"
	"github.com/Alfex4936/feishu-outbound/internal/net"
	"github.com/Alfex4936/feishu-outbound/outbound"
)

// Config holds everything the commands need to build an Adapter.
type Config struct {
	// Feishu app
	AppID         string
	AppSecret     string
	BaseURL       string
	ReceiveIDType string
	Timeout       time.Duration
	MaxMediaBytes int64

	// Chunking and delivery
	ChunkMode  string
	TextLimit  int
	MaxRetries int
	RetryDelay time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		AppID:         os.Getenv("FEISHU_APP_ID"),
		AppSecret:     os.Getenv("FEISHU_APP_SECRET"),
		BaseURL:       getEnv("FEISHU_BASE_URL", feishu.DefaultBaseURL),
		ReceiveIDType: getEnv("FEISHU_RECEIVE_ID_TYPE", feishu.DefaultReceiveIDType),
		Timeout:       getEnvDuration("FEISHU_TIMEOUT", net.DefaultTimeout),
		MaxMediaBytes: int64(getEnvInt("FEISHU_MEDIA_MAX_BYTES", feishu.DefaultMaxMediaBytes)),
		ChunkMode:     getEnv("OUTBOUND_CHUNK_MODE", string(chunk.ModeMarkdown)),
		TextLimit:     getEnvInt("OUTBOUND_TEXT_LIMIT", outbound.DefaultLimit),
		MaxRetries:    getEnvInt("OUTBOUND_MAX_RETRIES", 3),
		RetryDelay:    getEnvDuration("OUTBOUND_RETRY_DELAY", 500*time.Millisecond),
	}

	return cfg, cfg.Validate()
}

// Validate checks ranges. Missing credentials are not an error here;
// commands that only split never need them.
func (c *Config) Validate() error {
	if _, err := chunk.ParseMode(c.ChunkMode); err != nil {
		return fmt.Errorf("OUTBOUND_CHUNK_MODE: %w", err)
	}
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("OUTBOUND_MAX_RETRIES must be 0-10, got %d", c.MaxRetries)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("FEISHU_TIMEOUT must be positive, got %s", c.Timeout)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("OUTBOUND_RETRY_DELAY must not be negative, got %s", c.RetryDelay)
	}
	return nil
}

// HasCredentials reports whether both app id and secret are set.
func (c *Config) HasCredentials() bool {
	return c.AppID != "" && c.AppSecret != ""
}

// Mode returns the validated chunk mode.
func (c *Config) Mode() chunk.Mode {
	m, err := chunk.ParseMode(c.ChunkMode)
	if err != nil {
		return chunk.ModeMarkdown
	}
	return m
}

// NewFeishu builds a Feishu client from the app settings.
func (c *Config) NewFeishu() (*feishu.Client, error) {
	nc, err := net.New(c.Timeout)
	if err != nil {
		return nil, err
	}
	return feishu.New(c.AppID, c.AppSecret, feishu.Options{
		BaseURL:       c.BaseURL,
		ReceiveIDType: c.ReceiveIDType,
		MaxMediaBytes: c.MaxMediaBytes,
		Doer:          nc,
	})
}

// NewAdapter wraps s with the chunking and retry settings.
func (c *Config) NewAdapter(s outbound.Sender, r outbound.Reporter) (*outbound.Adapter, error) {
	return outbound.New(s, outbound.Options{
		Mode:       c.Mode(),
		Limit:      c.TextLimit,
		MaxRetries: c.MaxRetries,
		RetryDelay: c.RetryDelay,
		Reporter:   r,
	})
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
