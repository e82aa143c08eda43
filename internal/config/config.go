// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // zone database for hosts without one

	"golang.org/x/text/language"
)

// Config holds all configuration values for the API server.
// Values are populated by Load from environment variables.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Defaults to "8080".
	Port string

	// DatabaseURL is the Postgres connection string. Required.
	DatabaseURL string

	// LogLevel controls the minimum log level. Defaults to "info".
	// Valid values: debug, info, warn, error.
	LogLevel string

	// CORSOrigins is the list of allowed cross-origin request origins.
	// Defaults to ["http://localhost:5173"].
	// Set CORS_ORIGINS to a comma-separated list to override.
	CORSOrigins []string

	// Location is the zone all event dates are interpreted and labeled in.
	// Set by TIMEZONE (IANA name). Defaults to UTC.
	Location *time.Location

	// Languages are the active content languages as canonical BCP 47 tags.
	// Every visible record gets a linked translation in each of them.
	// Defaults to ["de"].
	Languages []string

	// DefaultLanguage is assigned to records saved without a language.
	// Defaults to the first entry of Languages.
	DefaultLanguage string

	// PageSize is the archive page size when the request does not set one. Defaults to 6.
	PageSize int

	// DateFormat and TimeFormat are Go time layouts used for display strings.
	DateFormat string
	TimeFormat string

	// ResyncCron is a cron spec for the periodic location resync. Empty disables it.
	ResyncCron string

	// MigrateOnStart applies pending goose migrations before serving.
	MigrateOnStart bool

	// MaxBodyBytes caps request body size. Defaults to 1 MiB.
	MaxBodyBytes int64
}

// Load reads configuration from environment variables and returns a Config.
// Returns an error listing any required variables that are not set, or the
// first malformed value.
func Load() (Config, error) {
	cfg := Config{
		Port:        getEnv("PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CORSOrigins: splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173")),
		DateFormat:  getEnv("DATE_FORMAT", "02.01.2006"),
		TimeFormat:  getEnv("TIME_FORMAT", "15:04"),
		ResyncCron:  os.Getenv("RESYNC_CRON"),
	}

	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}

	loc, err := time.LoadLocation(getEnv("TIMEZONE", "UTC"))
	if err != nil {
		return Config{}, fmt.Errorf("TIMEZONE: %w", err)
	}
	cfg.Location = loc

	cfg.Languages, err = parseLanguages(splitCSV(getEnv("LANGUAGES", "de")))
	if err != nil {
		return Config{}, fmt.Errorf("LANGUAGES: %w", err)
	}
	if len(cfg.Languages) == 0 {
		return Config{}, fmt.Errorf("LANGUAGES: at least one language is required")
	}

	cfg.DefaultLanguage = cfg.Languages[0]
	if v := os.Getenv("DEFAULT_LANGUAGE"); v != "" {
		tags, err := parseLanguages([]string{v})
		if err != nil {
			return Config{}, fmt.Errorf("DEFAULT_LANGUAGE: %w", err)
		}
		if !contains(cfg.Languages, tags[0]) {
			return Config{}, fmt.Errorf("DEFAULT_LANGUAGE: %q is not one of LANGUAGES", tags[0])
		}
		cfg.DefaultLanguage = tags[0]
	}

	if cfg.PageSize, err = getInt("PAGE_SIZE", 6); err != nil {
		return Config{}, err
	}
	maxBody, err := getInt("MAX_BODY_BYTES", 1<<20)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxBodyBytes = int64(maxBody)

	if v := os.Getenv("MIGRATE_ON_START"); v != "" {
		cfg.MigrateOnStart, err = strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("MIGRATE_ON_START: %w", err)
		}
	}

	return cfg, nil
}

// parseLanguages canonicalizes each code as a BCP 47 tag, dropping duplicates.
func parseLanguages(codes []string) ([]string, error) {
	var out []string
	for _, code := range codes {
		tag, err := language.Parse(code)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", code, err)
		}
		s := tag.String()
		if !contains(out, s) {
			out = append(out, s)
		}
	}
	return out, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// getEnv returns the value of the environment variable named by key,
// or fallback if the variable is not set or is empty.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getInt parses a positive integer environment variable, or returns fallback when unset.
func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s: must be a positive integer, got %q", key, v)
	}
	return n, nil
}

// splitCSV splits a comma-separated string into a trimmed slice, ignoring empty entries.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}
