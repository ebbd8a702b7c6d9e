package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestFromContextCarriesBatchID(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	buf := &bytes.Buffer{}
	SetupWriter(buf, "debug", "json")

	ctx := WithBatch(context.Background(), "batch-42")
	FromContext(ctx).Info("workbook processed", "file", "sinapi.xlsx")

	out := buf.String()
	if !strings.Contains(out, `"batch_id":"batch-42"`) || !strings.Contains(out, `"file":"sinapi.xlsx"`) {
		t.Fatalf("unexpected log line: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q)=%v want %v", in, got, want)
		}
	}
}
