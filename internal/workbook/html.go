package workbook

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// readHTML turns every <table> into a sheet. Sheet names come from a caption
// when present.
func readHTML(content []byte) ([]Sheet, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	out := []Sheet{}
	doc.Find("table").Each(func(i int, table *goquery.Selection) {
		name := strings.TrimSpace(table.Find("caption").First().Text())
		if name == "" {
			name = fmt.Sprintf("Sheet%d", i+1)
		}

		rows := [][]string{}
		table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			cells := []string{}
			tr.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, cell.Text())
			})
			rows = append(rows, cells)
		})
		out = append(out, Sheet{Name: name, Rows: rows})
	})
	return out, nil
}
