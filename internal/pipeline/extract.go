package pipeline

import (
	"context"
	"iter"

	"golang.org/x/sync/errgroup"

	"pricenorm/internal"
	"pricenorm/internal/registry"
	"pricenorm/internal/util"
	"pricenorm/internal/workbook"
)

// SheetRows is the extracted content of one sheet together with the rule
// that selected it. Rule is nil for single-sheet layouts.
type SheetRows struct {
	Sheet         string
	Position      int
	Rule          *registry.SheetRule
	Header        registry.Header
	Rows          []internal.RawRow
	ParseFailures int
}

type Extractor struct {
	scanRows int
}

func NewExtractor(scanRows int) *Extractor {
	return &Extractor{scanRows: scanRows}
}

// Rows yields the data rows of a sheet under a profile's column aliases.
// The sequence is lazy and can be ranged over more than once.
func (e *Extractor) Rows(sheet workbook.Sheet, p *registry.Profile) iter.Seq[internal.RawRow] {
	return func(yield func(internal.RawRow) bool) {
		h := p.ResolveHeader(sheet.Rows, e.scanRows)
		if !h.Found() {
			return
		}
		unloaded := p.Unloaded(sheet.Name)
		for i := h.Row + 1; i < len(sheet.Rows); i++ {
			row, ok := buildRawRow(sheet.Rows[i], h, p)
			if !ok {
				continue
			}
			row.Sheet = sheet.Name
			row.RowIndex = i + 1
			row.Unloaded = unloaded
			if !yield(row) {
				return
			}
		}
	}
}

// Extract selects the sheets a profile reads and extracts them concurrently.
// Results come back in workbook order once every sheet is done.
func (e *Extractor) Extract(ctx context.Context, wb *workbook.Workbook, p *registry.Profile) ([]SheetRows, error) {
	selected := e.selectSheets(wb, p)
	out := make([]SheetRows, len(selected))

	g, gctx := errgroup.WithContext(ctx)
	for i, sel := range selected {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sr := SheetRows{Sheet: sel.sheet.Name, Position: sel.position, Rule: sel.rule}
			sr.Header = p.ResolveHeader(sel.sheet.Rows, e.scanRows)
			for row := range e.Rows(sel.sheet, p) {
				sr.ParseFailures += len(row.Missing)
				sr.Rows = append(sr.Rows, row)
			}
			out[i] = sr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

type selectedSheet struct {
	sheet    workbook.Sheet
	position int
	rule     *registry.SheetRule
}

func (e *Extractor) selectSheets(wb *workbook.Workbook, p *registry.Profile) []selectedSheet {
	var out []selectedSheet
	if p.MultiSheet() {
		for i, s := range wb.Sheets {
			if rule, ok := p.SheetRule(s.Name); ok {
				out = append(out, selectedSheet{sheet: s, position: i, rule: &rule})
			}
		}
		if len(out) > 0 {
			return out
		}
	}

	for i, s := range wb.Sheets {
		if p.MatchesSheetName(s.Name) && p.ResolveHeader(s.Rows, e.scanRows).Found() {
			out = append(out, selectedSheet{sheet: s, position: i})
		}
	}
	if len(out) > 0 {
		return out
	}

	for i, s := range wb.Sheets {
		if p.ResolveHeader(s.Rows, e.scanRows).Found() {
			out = append(out, selectedSheet{sheet: s, position: i})
		}
	}
	return out
}

func buildRawRow(cells []string, h registry.Header, p *registry.Profile) (internal.RawRow, bool) {
	cell := func(field internal.Field) string {
		col, ok := h.Columns[field]
		if !ok || col >= len(cells) {
			return ""
		}
		return cells[col]
	}

	row := internal.RawRow{
		Code:        cell(internal.FieldCode),
		Description: cell(internal.FieldDescription),
		Unit:        cell(internal.FieldUnit),
		BaseDate:    cell(internal.FieldBaseDate),
	}
	if row.Code == "" && row.Description == "" {
		return row, false
	}
	if repeatsHeader(row.Code, p.Aliases[internal.FieldCode]) {
		return row, false
	}

	row.Quantity = parseCell(&row, internal.FieldQuantity, cell(internal.FieldQuantity), util.ParseDecimal)
	row.UnitPrice = parseCell(&row, internal.FieldUnitPrice, cell(internal.FieldUnitPrice), util.ParseDecimal)
	row.OverheadRate = parseCell(&row, internal.FieldOverheadRate, cell(internal.FieldOverheadRate), util.ParseRate)

	if len(h.Aux) > 0 {
		row.Aux = map[string]string{}
		for name, col := range h.Aux {
			if col < len(cells) && cells[col] != "" {
				row.Aux[name] = cells[col]
			}
		}
	}
	return row, true
}

func parseCell[T any](row *internal.RawRow, field internal.Field, raw string, parse func(string) (T, bool)) *T {
	if raw == "" {
		return nil
	}
	v, ok := parse(raw)
	if !ok {
		row.Missing = append(row.Missing, field)
		return nil
	}
	return &v
}

// repeatsHeader catches header rows repeated on every printed page.
func repeatsHeader(code string, aliases []string) bool {
	if code == "" {
		return false
	}
	norm := util.NormalizeHeader(code)
	for _, a := range aliases {
		if norm == a {
			return true
		}
	}
	return false
}
