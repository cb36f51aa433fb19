package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"rally-tagger/internal/constants"
)

type Config struct {
	DBPath        string
	ServerPort    string
	LogLevel      string
	WebhookURL    string
	FlushInterval time.Duration
	TagSpeed      float64
	PreviewLead   time.Duration
	PreviewTail   time.Duration
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		DBPath:     getEnv("DB_PATH", "rally-tagger.db"),
		ServerPort: getEnv("SERVER_PORT", "8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		WebhookURL: getEnv("WEBHOOK_URL", ""),
	}

	var err error
	if cfg.FlushInterval, err = getDuration("FLUSH_INTERVAL", constants.DefaultFlushInterval); err != nil {
		return nil, err
	}
	if cfg.PreviewLead, err = getDuration("PREVIEW_LEAD", constants.DefaultPreviewLead); err != nil {
		return nil, err
	}
	if cfg.PreviewTail, err = getDuration("PREVIEW_TAIL", constants.DefaultPreviewTail); err != nil {
		return nil, err
	}
	if cfg.TagSpeed, err = getFloat("TAG_SPEED", constants.DefaultTagSpeed); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Info().
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Bool("webhook", cfg.WebhookURL != "").
		Dur("flush_interval", cfg.FlushInterval).
		Float64("tag_speed", cfg.TagSpeed).
		Msg("configuration loaded")

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	if c.FlushInterval <= 0 {
		return fmt.Errorf("FLUSH_INTERVAL must be positive, got %s", c.FlushInterval)
	}
	if c.TagSpeed <= 0 {
		return fmt.Errorf("TAG_SPEED must be positive, got %g", c.TagSpeed)
	}
	if c.PreviewLead < 0 || c.PreviewTail < 0 {
		return fmt.Errorf("preview window must not be negative")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return f, nil
}

var Module = fx.Provide(Load)
