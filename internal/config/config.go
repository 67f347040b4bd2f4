// Package config loads kalamitra's settings from the environment, optionally
// backed by a config.env file in the user's config directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	AppName     = "kalamitra"
	EnvFileName = "config.env"
)

// Environment variable names.
const (
	EnvGeminiAPIKey      = "GEMINI_API_KEY"
	EnvBotToken          = "BOT_TOKEN"
	EnvAdminTelegramID   = "ADMIN_TELEGRAM_ID"
	EnvDBPath            = "KALAMITRA_DB_PATH"
	EnvHTTPAddr          = "KALAMITRA_HTTP_ADDR"
	EnvActivityLogDir    = "KALAMITRA_ACTIVITY_LOG_DIR"
	EnvImageModel        = "GEMINI_IMAGE_MODEL"
	EnvTextModel         = "GEMINI_TEXT_MODEL"
	EnvInstagramFailures = "INSTAGRAM_FAILURE_RATE"
	EnvONDCFailures      = "ONDC_FAILURE_RATE"
	EnvIdleTimeout       = "WORKSPACE_IDLE_TIMEOUT"
)

// Defaults for optional settings.
const (
	DefaultDBPath      = "kalamitra.db"
	DefaultHTTPAddr    = ":3000"
	DefaultIdleTimeout = 2 * time.Hour
)

// Config is the resolved runtime configuration.
type Config struct {
	GeminiAPIKey string

	// Telegram bot. The bot is disabled when BotToken is empty.
	BotToken        string
	AdminTelegramID int64

	DBPath         string
	HTTPAddr       string // Empty disables the HTTP API
	ActivityLogDir string // Empty disables per-user activity logs

	// Model overrides; empty means the built-in default.
	ImageModel string
	TextModel  string

	// Simulated channel failure rates; negative means the built-in default.
	InstagramFailureRate float64
	ONDCFailureRate      float64

	IdleTimeout time.Duration
}

// BotEnabled reports whether the Telegram bot should run.
func (c *Config) BotEnabled() bool {
	return c.BotToken != ""
}

// Dir returns the application's config directory path.
// Creates the directory if it doesn't exist.
func Dir() (string, error) {
	configBase, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}

	configDir := filepath.Join(configBase, AppName)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// FilePath returns the full path to the config file.
func FilePath() (string, error) {
	configDir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, EnvFileName), nil
}

// LoadEnvFile loads environment variables from the config file in the user's
// config directory. Errors are ignored since the file may not exist.
// Variables already set in the environment win.
func LoadEnvFile() {
	configPath, err := FilePath()
	if err != nil {
		return
	}
	_ = godotenv.Load(configPath)
}

// CheckRequired returns the names of any missing required variables. The
// admin ID is only required when the bot is enabled.
func CheckRequired() []string {
	var missing []string
	if os.Getenv(EnvGeminiAPIKey) == "" {
		missing = append(missing, EnvGeminiAPIKey)
	}
	if os.Getenv(EnvBotToken) != "" && os.Getenv(EnvAdminTelegramID) == "" {
		missing = append(missing, EnvAdminTelegramID)
	}
	return missing
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	if missing := CheckRequired(); len(missing) > 0 {
		return nil, fmt.Errorf("missing required config: %v", missing)
	}

	cfg := &Config{
		GeminiAPIKey:   os.Getenv(EnvGeminiAPIKey),
		BotToken:       os.Getenv(EnvBotToken),
		DBPath:         getenv(EnvDBPath, DefaultDBPath),
		HTTPAddr:       getenv(EnvHTTPAddr, DefaultHTTPAddr),
		ActivityLogDir: os.Getenv(EnvActivityLogDir),
		ImageModel:     os.Getenv(EnvImageModel),
		TextModel:      os.Getenv(EnvTextModel),
		IdleTimeout:    DefaultIdleTimeout,
	}

	if v := os.Getenv(EnvAdminTelegramID); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s must be a valid integer: %w", EnvAdminTelegramID, err)
		}
		cfg.AdminTelegramID = id
	}

	var err error
	if cfg.InstagramFailureRate, err = parseRate(EnvInstagramFailures); err != nil {
		return nil, err
	}
	if cfg.ONDCFailureRate, err = parseRate(EnvONDCFailures); err != nil {
		return nil, err
	}

	if v := os.Getenv(EnvIdleTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("%s must be a positive duration such as 90m: %q", EnvIdleTimeout, v)
		}
		cfg.IdleTimeout = d
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

// parseRate reads a probability in [0, 1]. Unset returns -1.
func parseRate(key string) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return -1, nil
	}
	rate, err := strconv.ParseFloat(v, 64)
	if err != nil || rate < 0 || rate > 1 {
		return 0, fmt.Errorf("%s must be a number between 0 and 1: %q", key, v)
	}
	return rate, nil
}
