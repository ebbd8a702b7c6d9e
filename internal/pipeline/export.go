package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"pricenorm/internal"
)

const (
	recordsSheet   = "records"
	workbooksSheet = "workbooks"
)

// ExportBatchToXLSX writes every record outcome of a batch, accepted or not,
// plus one summary line per workbook, for manual review.
func ExportBatchToXLSX(batch BatchResult, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), recordsSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(workbooksSheet); err != nil {
		return err
	}

	writeHeader(f, recordsSheet, []string{
		"origin_file", "sheet", "row", "authority", "service_code", "base_date",
		"description", "unit", "tax_loaded", "quantity", "unit_value",
		"overhead_rate", "overhead_value", "status", "violations",
	})
	r := 2
	for _, wb := range batch.Workbooks {
		for _, o := range wb.Outcomes {
			rec := o.Record
			set := rowSetter(f, recordsSheet, r)
			set(1, rec.OriginFile)
			set(2, rec.Sheet)
			set(3, rec.Row)
			set(4, string(rec.Authority))
			set(5, rec.Code)
			set(6, formatDate(rec.BaseDate))
			set(7, rec.Description)
			set(8, rec.Unit)
			set(9, rec.TaxLoaded)
			set(10, derefDecimal(rec.Quantity))
			set(11, money(rec.UnitValue))
			set(12, derefDecimal(rec.OverheadRate))
			set(13, money(rec.OverheadValue))
			set(14, outcomeStatus(o.Outcome))
			set(15, violationText(o.Outcome))
			r++
		}
	}

	writeHeader(f, workbooksSheet, []string{
		"file", "status", "authority", "confidence", "fallback", "sheets", "rows_extracted",
		"cell_parse_failures", "join_dropped", "duplicates", "derivation_skipped",
		"accepted", "rejected", "error", "duration_ms",
	})
	for i, wb := range batch.Workbooks {
		set := rowSetter(f, workbooksSheet, i+2)
		set(1, wb.Path)
		set(2, string(wb.Status))
		set(3, string(wb.Match.Authority))
		set(4, wb.Match.Confidence)
		set(5, wb.Match.Fallback)
		set(6, wb.Summary.Sheets)
		set(7, wb.Summary.RowsExtracted)
		set(8, wb.Summary.CellParseFailures)
		set(9, wb.Summary.JoinDropped)
		set(10, wb.Summary.Duplicates)
		set(11, wb.Summary.DerivationSkipped)
		set(12, wb.Summary.Accepted)
		set(13, wb.Summary.Rejected)
		if wb.Err != nil {
			set(14, wb.Err.Error())
		}
		set(15, wb.Duration.Milliseconds())
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func writeHeader(f *excelize.File, sheet string, headers []string) {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
}

func rowSetter(f *excelize.File, sheet string, row int) func(col int, value any) {
	return func(col int, value any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, value)
	}
}

func outcomeStatus(o internal.ValidationOutcome) string {
	if o.Valid {
		return "accepted"
	}
	return "rejected"
}

func violationText(o internal.ValidationOutcome) string {
	parts := make([]string, 0, len(o.Violations))
	for _, v := range o.Violations {
		parts = append(parts, v.Rule+": "+v.Message)
	}
	return strings.Join(parts, "; ")
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}

// derefDecimal renders the exact decimal text, or "" when absent.
func derefDecimal(v *decimal.Decimal) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func money(v *decimal.Decimal) string {
	if v == nil {
		return ""
	}
	return v.StringFixed(moneyPlaces)
}
