package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath       string
	OutputDir    string
	ProfilesPath string

	IngestWorkers     int
	IngestFileTimeout time.Duration

	MatchMinConfidence float64
	MatchSampleRows    int
	HeaderScanRows     int

	LogLevel  string
	LogFormat string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:       getEnv("DB_PATH", filepath.Join(cwd, "data", "prices.db")),
		OutputDir:    getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),
		ProfilesPath: getEnv("PROFILES_PATH", ""),

		IngestWorkers:     getEnvInt("INGEST_WORKERS", 4),
		IngestFileTimeout: getEnvDuration("INGEST_FILE_TIMEOUT", 2*time.Minute),

		MatchMinConfidence: getEnvFloat("MATCH_MIN_CONFIDENCE", 0.2),
		MatchSampleRows:    getEnvInt("MATCH_SAMPLE_ROWS", 30),
		HeaderScanRows:     getEnvInt("HEADER_SCAN_ROWS", 20),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, "DB_PATH must not be empty")
	}
	if c.IngestWorkers <= 0 {
		errs = append(errs, fmt.Sprintf("INGEST_WORKERS (%d) must be positive", c.IngestWorkers))
	}
	if c.IngestFileTimeout <= 0 {
		errs = append(errs, "INGEST_FILE_TIMEOUT must be positive")
	}
	if c.MatchMinConfidence < 0 || c.MatchMinConfidence > 1 {
		errs = append(errs, fmt.Sprintf("MATCH_MIN_CONFIDENCE (%v) must be within 0-1", c.MatchMinConfidence))
	}
	if c.MatchSampleRows <= 0 {
		errs = append(errs, "MATCH_SAMPLE_ROWS must be positive")
	}
	if c.HeaderScanRows <= 0 {
		errs = append(errs, "HEADER_SCAN_ROWS must be positive")
	}
	if c.ProfilesPath != "" {
		if _, err := os.Stat(c.ProfilesPath); err != nil {
			errs = append(errs, fmt.Sprintf("PROFILES_PATH (%q) is not readable: %v", c.ProfilesPath, err))
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.LogLevel))
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(getEnv(key, ""))
	if value == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
