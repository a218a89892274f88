package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DataFile          string        `mapstructure:"DATA_FILE"`
	PhotoDir          string        `mapstructure:"PHOTO_DIR"`
	SessionDB         string        `mapstructure:"SESSION_DB"`
	AdminPassword     string        `mapstructure:"ADMIN_PASSWORD"`
	AdminPasswordHash string        `mapstructure:"ADMIN_PASSWORD_HASH"`
	SessionTTL        time.Duration `mapstructure:"SESSION_TTL"`
	ListenAddr        string        `mapstructure:"LISTEN_ADDR"`
	LogLevel          string        `mapstructure:"LOG_LEVEL"`
	MaxPhotoBytes     int64         `mapstructure:"MAX_PHOTO_BYTES"`
}

var defaults = map[string]any{
	"DATA_FILE":           "library_members.csv",
	"PHOTO_DIR":           "photos",
	"SESSION_DB":          "sessions.db",
	"ADMIN_PASSWORD":      "admin123",
	"ADMIN_PASSWORD_HASH": "",
	"SESSION_TTL":         "12h",
	"LISTEN_ADDR":         ":8501",
	"LOG_LEVEL":           "info",
	"MAX_PHOTO_BYTES":     5 << 20,
}

// LoadConfig reads library.env from dir when present, then lets environment
// variables override it. A missing file just means defaults.
func LoadConfig(dir string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(dir)
	v.SetConfigName("library")
	v.SetConfigType("env")
	v.AutomaticEnv()

	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &c, nil
}

// Level maps LOG_LEVEL onto slog.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// NewLogger builds the process logger on stderr.
func (c *Config) NewLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: c.Level()}))
}
