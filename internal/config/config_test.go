package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadReadsEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DB_PATH", "/tmp/x.db")
	t.Setenv("INGEST_WORKERS", "8")
	t.Setenv("INGEST_FILE_TIMEOUT", "45")
	t.Setenv("MATCH_MIN_CONFIDENCE", "0.35")
	t.Setenv("HEADER_SCAN_ROWS", "not-a-number")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "debug")
	for _, key := range []string{"PROFILES_PATH", "MATCH_SAMPLE_ROWS"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DBPath != "/tmp/x.db" || cfg.IngestWorkers != 8 || cfg.IngestFileTimeout != 45*time.Second {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.MatchMinConfidence != 0.35 || cfg.HeaderScanRows != 20 || cfg.MatchSampleRows != 30 {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.LogFormat != "json" || cfg.ProfilesPath != "" {
		t.Fatalf("cfg=%+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestGetEnvDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"":      time.Minute,
		"90s":   90 * time.Second,
		"2m":    2 * time.Minute,
		"10":    10 * time.Second,
		"bogus": time.Minute,
	}
	for raw, want := range cases {
		t.Run(raw, func(t *testing.T) {
			t.Setenv("TEST_DURATION", raw)
			if got := getEnvDuration("TEST_DURATION", time.Minute); got != want {
				t.Fatalf("got %v want %v", got, want)
			}
		})
	}
}

func TestValidateAggregatesErrors(t *testing.T) {
	cfg := Config{
		DBPath:             "",
		ProfilesPath:       filepath.Join(t.TempDir(), "missing.yaml"),
		IngestWorkers:      0,
		IngestFileTimeout:  time.Minute,
		MatchMinConfidence: 1.5,
		MatchSampleRows:    30,
		HeaderScanRows:     20,
		LogLevel:           "verbose",
		LogFormat:          "text",
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"DB_PATH", "INGEST_WORKERS", "MATCH_MIN_CONFIDENCE", "PROFILES_PATH", "LOG_LEVEL"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("missing %s in %v", want, err)
		}
	}
	if strings.Contains(err.Error(), "LOG_FORMAT") {
		t.Fatalf("unexpected LOG_FORMAT error: %v", err)
	}
}
