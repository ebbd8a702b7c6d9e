package workbook

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var delimiters = []rune{';', ',', '\t', '|'}

// readCSV treats a delimited text file as a single-sheet workbook. Files that
// are not valid UTF-8 are decoded as Windows-1252, which covers the Latin-1
// exports most price tables are published in.
func readCSV(name string, data []byte) ([]Sheet, error) {
	data = stripBOM(data)
	if !utf8.Valid(data) {
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return nil, fmt.Errorf("decode csv: %w", err)
		}
		data = decoded
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = sniffDelimiter(data)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	sheet := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if sheet == "" || sheet == "." {
		sheet = "Sheet1"
	}
	return []Sheet{{Name: sheet, Rows: rows}}, nil
}

func sniffDelimiter(data []byte) rune {
	lines := strings.SplitN(string(data), "\n", 6)
	if len(lines) > 5 {
		lines = lines[:5]
	}

	best, bestCount := ',', 0
	for _, d := range delimiters {
		count := 0
		for _, line := range lines {
			count += countOutsideQuotes(line, d)
		}
		if count > bestCount {
			best, bestCount = d, count
		}
	}
	return best
}

func countOutsideQuotes(line string, d rune) int {
	n := 0
	quoted := false
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
		case r == d && !quoted:
			n++
		}
	}
	return n
}

func stripBOM(b []byte) []byte {
	bom := []byte{0xEF, 0xBB, 0xBF}
	if len(b) >= 3 && bytes.Equal(b[:3], bom) {
		return b[3:]
	}
	return b
}
