package workbook

import (
	"bytes"
	"fmt"

	"github.com/extrame/xls"
)

// readLegacy reads a BIFF (Excel 97-2003) workbook. Cells come back as the
// text Excel would display, which the number and date parsers already accept.
func readLegacy(content []byte) (sheets []Sheet, err error) {
	// the BIFF decoder panics on some truncated record streams
	defer func() {
		if r := recover(); r != nil {
			sheets, err = nil, fmt.Errorf("%w: xls: %v", ErrCorruptWorkbook, r)
		}
	}()

	book, err := xls.OpenReader(bytes.NewReader(content), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("%w: xls: %v", ErrCorruptWorkbook, err)
	}
	if book == nil {
		return nil, fmt.Errorf("%w: xls: no workbook stream", ErrCorruptWorkbook)
	}

	out := []Sheet{}
	for i := 0; i < book.NumSheets(); i++ {
		ws := book.GetSheet(i)
		if ws == nil {
			continue
		}
		rows := make([][]string, 0, int(ws.MaxRow)+1)
		for r := 0; r <= int(ws.MaxRow); r++ {
			row := ws.Row(r)
			if row == nil {
				rows = append(rows, nil)
				continue
			}
			cells := make([]string, 0, row.LastCol()+1)
			for c := 0; c <= row.LastCol(); c++ {
				cells = append(cells, row.Col(c))
			}
			rows = append(rows, trimTrailing(cells))
		}
		out = append(out, Sheet{Name: ws.Name, Rows: rows})
	}
	return out, nil
}

func trimTrailing(cells []string) []string {
	n := len(cells)
	for n > 0 && cells[n-1] == "" {
		n--
	}
	return cells[:n]
}
