package workbook

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

func readXLSX(content []byte) ([]Sheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	out := []Sheet{}
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", name, err)
		}
		out = append(out, Sheet{Name: name, Rows: rows})
	}
	return out, nil
}
