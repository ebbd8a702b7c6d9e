package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"pricenorm/internal"
	"pricenorm/internal/pipeline"
	"pricenorm/internal/storage"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCollectInputs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.csv"), "x")
	writeFile(t, filepath.Join(dir, "b.XLSX"), "x")
	writeFile(t, filepath.Join(dir, "notes.pdf"), "x")
	writeFile(t, filepath.Join(dir, ".hidden.csv"), "x")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	single := filepath.Join(dir, "a.csv")
	got, err := collectInputs([]string{single, dir, " "})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{single, filepath.Join(dir, "b.XLSX")}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v want %v", got, want)
	}

	if _, err := collectInputs([]string{filepath.Join(dir, "missing.csv")}); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestReadInputsSkipsUnchangedFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.csv")
	b := filepath.Join(dir, "b.csv")
	writeFile(t, a, "CODIGO;DESCRICAO\n1;x\n")
	writeFile(t, b, "CODIGO;DESCRICAO\n2;y\n")

	db, err := storage.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	data, _ := os.ReadFile(a)
	if err := db.UpsertProcessedFile(storage.ProcessedFile{Path: a, Hash: contentHash(data), Status: internal.StatusProcessed}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertProcessedFile(storage.ProcessedFile{Path: b, Hash: "stale", Status: internal.StatusProcessed}); err != nil {
		t.Fatal(err)
	}

	ref := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	inputs, skipped, err := readInputs(db, []string{a, b}, ref, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(skipped) != 1 || skipped[0] != a || len(inputs) != 1 || inputs[0].Path != b || !inputs[0].ReferencePeriod.Equal(ref) {
		t.Fatalf("inputs=%+v skipped=%v", inputs, skipped)
	}

	inputs, skipped, err = readInputs(db, []string{a, b}, ref, false)
	if err != nil || len(inputs) != 2 || len(skipped) != 0 {
		t.Fatalf("inputs=%d skipped=%v err=%v", len(inputs), skipped, err)
	}
}

func TestRunTimingsKeepsSameNamedFiles(t *testing.T) {
	batch := pipeline.BatchResult{
		Workbooks: []pipeline.WorkbookResult{
			{Path: filepath.Join("2023", "sinapi.xlsx"), Duration: 300 * time.Millisecond},
			{Path: filepath.Join("2024", "sinapi.xlsx"), Duration: 500 * time.Millisecond},
		},
		Duration: 900 * time.Millisecond,
	}

	timings := runTimings(batch)
	if len(timings) != 3 || timings["total_ms"] != 900 {
		t.Fatalf("timings=%v", timings)
	}
	if timings[filepath.Join("2023", "sinapi.xlsx")+"_ms"] != 300 || timings[filepath.Join("2024", "sinapi.xlsx")+"_ms"] != 500 {
		t.Fatalf("timings=%v", timings)
	}
}
