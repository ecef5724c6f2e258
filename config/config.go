// Package config loads and validates birthdaybot configuration from
// environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrMissingAPIKey is returned by RequireAPIKey when GEMINI_API_KEY is unset.
var ErrMissingAPIKey = errors.New("config: GEMINI_API_KEY is not set")

// Config holds all configuration values. Values are populated by Load.
type Config struct {
	// APIKey authenticates against the Gemini API. Only commands that talk
	// to the model need it.
	APIKey string

	// Model is the Gemini model name. Defaults to "gemini-2.0-flash".
	Model string

	// Temperature is the sampling temperature. Defaults to 0.1 so replies
	// stay close to the canned messages.
	Temperature float32

	// Location is the timezone "today" is computed in. Defaults to the
	// local timezone.
	Location *time.Location

	// HistoryPath is the SQLite database conversations are stored in.
	HistoryPath string

	// ListenAddr is where the webhook server listens. Defaults to ":8080".
	ListenAddr string

	// SystemPromptPath optionally points at a file replacing the embedded
	// system prompt.
	SystemPromptPath string

	// LogLevel is one of debug, info, warn, error. Defaults to "info".
	LogLevel string

	// OTLPEndpoint is the host:port of an OTLP gRPC collector. Telemetry
	// export is off while it is empty.
	OTLPEndpoint string

	// ServiceName identifies this process in exported telemetry.
	ServiceName string

	// Environment is recorded as the deployment environment of exported
	// telemetry. Defaults to "development".
	Environment string
}

// Load reads configuration from environment variables and returns a Config.
// Returns an error naming every variable that holds an invalid value.
func Load() (Config, error) {
	cfg := Config{
		APIKey:           os.Getenv("GEMINI_API_KEY"),
		Model:            getEnv("BIRTHDAYBOT_MODEL", "gemini-2.0-flash"),
		HistoryPath:      getEnv("BIRTHDAYBOT_HISTORY_DB", ".birthdaybot/history.db"),
		ListenAddr:       getEnv("BIRTHDAYBOT_ADDR", ":8080"),
		SystemPromptPath: os.Getenv("BIRTHDAYBOT_SYSTEM_PROMPT"),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", "info")),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ServiceName:      getEnv("OTEL_SERVICE_NAME", "birthdaybot"),
		Environment:      getEnv("ENVIRONMENT", "development"),
	}

	var invalid []string

	temperature, err := strconv.ParseFloat(getEnv("BIRTHDAYBOT_TEMPERATURE", "0.1"), 32)
	if err != nil || temperature < 0 || temperature > 2 {
		invalid = append(invalid, "BIRTHDAYBOT_TEMPERATURE")
	}
	cfg.Temperature = float32(temperature)

	cfg.Location, err = time.LoadLocation(getEnv("BIRTHDAYBOT_TIMEZONE", "Local"))
	if err != nil {
		invalid = append(invalid, "BIRTHDAYBOT_TIMEZONE")
	}

	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		invalid = append(invalid, "LOG_LEVEL")
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variables: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

// RequireAPIKey returns ErrMissingAPIKey if no API key was configured.
func (c Config) RequireAPIKey() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// Level returns the slog level for LogLevel, falling back to info.
func (c Config) Level() slog.Level {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch name {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
}

// getEnv returns the value of the environment variable named by key,
// or fallback if the variable is not set or is empty.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
