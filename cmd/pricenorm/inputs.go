package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"pricenorm/internal"
	"pricenorm/internal/pipeline"
	"pricenorm/internal/storage"
)

var workbookExts = []string{".xlsx", ".xlsm", ".csv", ".tsv", ".txt", ".html", ".htm", ".xls"}

// collectInputs expands directories one level deep into their workbook files
// and drops repeated paths, keeping the order given.
func collectInputs(args []string) ([]string, error) {
	var out []string
	seen := map[string]bool{}
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			continue
		}
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			if slices.Contains(workbookExts, strings.ToLower(filepath.Ext(e.Name()))) {
				add(filepath.Join(arg, e.Name()))
			}
		}
	}
	return out, nil
}

// readInputs loads every file up front so its content hash can be recorded.
// With skipProcessed, files whose hash matches a processed entry are left out.
func readInputs(db *storage.DB, paths []string, reference time.Time, skipProcessed bool) ([]pipeline.Input, []string, error) {
	var (
		inputs  []pipeline.Input
		skipped []string
	)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", path, err)
		}
		if db != nil && skipProcessed {
			prev, err := db.GetProcessedFile(path)
			if err != nil {
				return nil, nil, err
			}
			if prev != nil && prev.Status == internal.StatusProcessed && prev.Hash == contentHash(data) {
				skipped = append(skipped, path)
				continue
			}
		}
		inputs = append(inputs, pipeline.Input{Path: path, Data: data, ReferencePeriod: reference})
	}
	return inputs, skipped, nil
}

func persistBatch(db *storage.DB, batch pipeline.BatchResult, inputs []pipeline.Input) error {
	saved, err := db.SaveServices(batch.Accepted())
	if err != nil {
		return fmt.Errorf("store services: %w", err)
	}
	for _, c := range saved.Conflicts {
		fmt.Printf("conflict: %s already stored (from %s)\n", c.Key(), c.OriginFile)
	}

	for i, wb := range batch.Workbooks {
		f := storage.ProcessedFile{
			Path:      wb.Path,
			Hash:      contentHash(inputs[i].Data),
			Status:    wb.Status,
			Authority: wb.Match.Authority,
			Accepted:  wb.Summary.Accepted,
			Rejected:  wb.Summary.Rejected,
		}
		if wb.Err != nil {
			f.Error = wb.Err.Error()
		}
		if err := db.UpsertProcessedFile(f); err != nil {
			return err
		}
	}

	counts := map[string]int{
		"workbooks":             len(batch.Workbooks),
		"processed":             batch.Count(internal.StatusProcessed),
		"failed":                batch.Count(internal.StatusFailed),
		"cancelled":             batch.Count(internal.StatusCancelled),
		"accepted":              len(batch.Accepted()),
		"stored":                saved.Inserted,
		"conflicts":             len(saved.Conflicts),
		"cross_file_duplicates": batch.Duplicates,
	}
	if err := db.InsertRun(batch.ID, runTimings(batch), counts); err != nil {
		return err
	}
	if err := db.SetMetadata("last_batch_id", batch.ID); err != nil {
		return err
	}

	fmt.Printf("stored %d records, %d conflicts\n", saved.Inserted, len(saved.Conflicts))
	return nil
}

// runTimings keys each workbook by its full path, so files sharing a name in
// different directories keep separate entries.
func runTimings(batch pipeline.BatchResult) map[string]float64 {
	timings := map[string]float64{"total_ms": float64(batch.Duration.Milliseconds())}
	for _, wb := range batch.Workbooks {
		timings[wb.Path+"_ms"] = float64(wb.Duration.Milliseconds())
	}
	return timings
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
