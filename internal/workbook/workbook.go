package workbook

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"pricenorm/internal/util"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported workbook format")
	ErrEmptyWorkbook     = errors.New("workbook has no rows")
	ErrCorruptWorkbook   = errors.New("workbook is corrupt or truncated")
)

type Format string

const (
	FormatXLSX    Format = "xlsx"
	FormatCSV     Format = "csv"
	FormatHTML    Format = "html"
	FormatLegacy  Format = "xls"
	FormatUnknown Format = "unknown"
)

type Sheet struct {
	Name string
	Rows [][]string
}

func (s Sheet) NonEmptyRows() int {
	n := 0
	for _, row := range s.Rows {
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				n++
				break
			}
		}
	}
	return n
}

type Workbook struct {
	Name   string
	Format Format
	Sheets []Sheet
}

func (w *Workbook) SheetNames() []string {
	out := make([]string, 0, len(w.Sheets))
	for _, s := range w.Sheets {
		out = append(out, s.Name)
	}
	return out
}

// Busiest returns the sheet with the most non-empty rows; the first sheet
// wins ties.
func (w *Workbook) Busiest() *Sheet {
	var best *Sheet
	bestRows := -1
	for i := range w.Sheets {
		if n := w.Sheets[i].NonEmptyRows(); n > bestRows {
			best = &w.Sheets[i]
			bestRows = n
		}
	}
	return best
}

var (
	magicZip = []byte{0x50, 0x4B, 0x03, 0x04}
	magicOLE = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// Detect looks at the leading bytes first and falls back to the extension.
// Government portals often publish HTML tables under an .xls name.
func Detect(name string, data []byte) Format {
	switch {
	case bytes.HasPrefix(data, magicZip):
		return FormatXLSX
	case bytes.HasPrefix(data, magicOLE):
		return FormatLegacy
	}

	head := strings.ToLower(string(data[:min(len(data), 512)]))
	if strings.Contains(head, "<table") || strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html") {
		return FormatHTML
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".tsv", ".txt":
		return FormatCSV
	case ".xlsx", ".xlsm":
		return FormatXLSX
	case ".htm", ".html":
		return FormatHTML
	case ".xls":
		return FormatLegacy
	}
	return FormatUnknown
}

func Read(name string, data []byte) (*Workbook, error) {
	if len(data) == 0 {
		return nil, ErrEmptyWorkbook
	}

	format := Detect(name, data)
	var (
		sheets []Sheet
		err    error
	)
	switch format {
	case FormatXLSX:
		sheets, err = readXLSX(data)
	case FormatCSV:
		sheets, err = readCSV(name, data)
	case FormatHTML:
		sheets, err = readHTML(data)
	case FormatLegacy:
		sheets, err = readLegacy(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(name))
	}
	if err != nil {
		return nil, err
	}

	wb := &Workbook{Name: name, Format: format}
	for _, s := range sheets {
		for i, row := range s.Rows {
			for j, cell := range row {
				s.Rows[i][j] = util.NormalizeSpaces(cell)
			}
		}
		wb.Sheets = append(wb.Sheets, s)
	}
	if len(wb.Sheets) == 0 || wb.Busiest().NonEmptyRows() == 0 {
		return nil, ErrEmptyWorkbook
	}
	return wb, nil
}
