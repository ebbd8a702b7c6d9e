package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestExportBatchToXLSX(t *testing.T) {
	e := NewEngine(mustRegistry(t), DefaultOptions())
	batch := e.RunBatch(context.Background(), []Input{
		{Path: "convenio.xlsx", Data: siconvWorkbook(t), ReferencePeriod: march2024},
		{Path: "legacy.xls", Data: []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}},
	})

	out := filepath.Join(t.TempDir(), "nested", "review.xlsx")
	if err := ExportBatchToXLSX(batch, out); err != nil {
		t.Fatal(err)
	}

	f, err := excelize.OpenFile(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	records, err := f.GetRows(recordsSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 4 || records[0][4] != "service_code" {
		t.Fatalf("records=%v", records)
	}
	var unpriced []string
	for _, row := range records[1:] {
		if row[4] == "1001001" && (row[10] != "100.00" || row[12] != "125.00" || row[13] != "accepted") {
			t.Fatalf("row=%v", row)
		}
		if row[4] == "1001003" {
			unpriced = row
		}
	}
	if unpriced == nil || unpriced[13] != "rejected" || !strings.HasPrefix(unpriced[14], RuleUnitValuePositive) {
		t.Fatalf("unpriced=%v", unpriced)
	}

	workbooks, err := f.GetRows(workbooksSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(workbooks) != 3 || workbooks[1][1] != "processed" || workbooks[2][1] != "failed" || workbooks[2][13] == "" {
		t.Fatalf("workbooks=%v", workbooks)
	}
}
