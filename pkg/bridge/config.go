// Copyright 2025-2026 Ferdi Gartner

package bridge

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds the bridge configuration. Values come from a YAML file and
// may be overridden through environment variables, which is how container
// deployments inject the bot token without writing it to disk.
type Config struct {
	Telegram struct {
		// Token is the Bot API token of the bridge bot.
		Token string `yaml:"token" env:"WTB_TELEGRAM_TOKEN"`
		// ChatID is the forum supergroup that hosts one topic per
		// WhatsApp conversation. The bot must be an admin with the
		// manage-topics permission.
		ChatID int64 `yaml:"chat_id" env:"WTB_TELEGRAM_CHAT_ID"`
	} `yaml:"telegram"`

	WhatsApp struct {
		// SessionPath is the SQLite file holding the paired device
		// credentials. Created on first QR pairing.
		SessionPath string `yaml:"session_path" env:"WTB_WHATSAPP_SESSION_PATH"`
	} `yaml:"whatsapp"`

	Database struct {
		// Path is the SQLite file for mapping and profile tables.
		Path string `yaml:"path" env:"WTB_DATABASE_PATH"`
	} `yaml:"database"`

	Media struct {
		// TimeoutSeconds bounds a single media download or upload.
		TimeoutSeconds int `yaml:"timeout_seconds" env:"WTB_MEDIA_TIMEOUT_SECONDS"`
		// MaxBytes caps attachments that cannot be streamed. Larger
		// payloads are dropped with a failure marker.
		MaxBytes int64 `yaml:"max_bytes" env:"WTB_MEDIA_MAX_BYTES"`
		// TempDir is the staging area for relayed files. Defaults to
		// the OS temp dir.
		TempDir string `yaml:"temp_dir" env:"WTB_MEDIA_TEMP_DIR"`
	} `yaml:"media"`

	Limits struct {
		CommandsPerMinute int `yaml:"commands_per_minute" env:"WTB_LIMITS_COMMANDS_PER_MINUTE"`
		DownloadsPerHour  int `yaml:"downloads_per_hour" env:"WTB_LIMITS_DOWNLOADS_PER_HOUR"`
	} `yaml:"limits"`

	// ReconnectDelaySeconds is the fixed delay before a reconnect attempt
	// after a recoverable disconnect.
	ReconnectDelaySeconds int `yaml:"reconnect_delay_seconds" env:"WTB_RECONNECT_DELAY_SECONDS"`

	LogLevel string `yaml:"log_level" env:"WTB_LOG_LEVEL"`
}

// LoadConfig reads the YAML file at path, applies environment overrides and
// fills defaults. Validation is separate so callers can report all startup
// problems before going inert.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Media.TimeoutSeconds <= 0 {
		c.Media.TimeoutSeconds = 60
	}
	if c.Media.MaxBytes <= 0 {
		c.Media.MaxBytes = 64 << 20
	}
	if c.Media.TempDir == "" {
		c.Media.TempDir = os.TempDir()
	}
	if c.Limits.CommandsPerMinute <= 0 {
		c.Limits.CommandsPerMinute = 10
	}
	if c.Limits.DownloadsPerHour <= 0 {
		c.Limits.DownloadsPerHour = 5
	}
	if c.ReconnectDelaySeconds <= 0 {
		c.ReconnectDelaySeconds = 5
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate reports configuration errors that must keep the bridge inert.
// A missing token or chat id is not retryable; the operator has to fix the
// deployment.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if c.Telegram.ChatID == 0 {
		return fmt.Errorf("telegram.chat_id is required")
	}
	if c.WhatsApp.SessionPath == "" {
		return fmt.Errorf("whatsapp.session_path is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}

// MediaTimeout returns the media operation deadline as a duration.
func (c *Config) MediaTimeout() time.Duration {
	return time.Duration(c.Media.TimeoutSeconds) * time.Second
}

// ReconnectDelay returns the fixed reconnect delay as a duration.
func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelaySeconds) * time.Second
}
