package util

import (
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"02.01.2006",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"01/2006",
	"1/2006",
	"01-2006",
	"2006-01",
	"2006/01",
	"01.2006",
}

var monthNames = map[string]time.Month{
	"JAN": time.January, "FEV": time.February, "MAR": time.March,
	"ABR": time.April, "MAI": time.May, "JUN": time.June,
	"JUL": time.July, "AGO": time.August, "SET": time.September,
	"OUT": time.October, "NOV": time.November, "DEZ": time.December,
}

// ParseDate reads a base date cell. It understands ISO and Brazilian day-first
// layouts, month-only periods such as 03/2024 or MAR/2024, and Excel serial
// numbers as returned by raw cell values.
func ParseDate(input string) (time.Time, bool) {
	s := strings.TrimSpace(input)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOnly(t), true
		}
	}

	if t, ok := parseMonthName(s); ok {
		return t, true
	}

	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 && serial < 2958466 {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return DateOnly(t), true
		}
	}
	return time.Time{}, false
}

// ParsePeriod reads a reference period written as YYYY-MM (or any layout
// ParseDate accepts) and returns the first day of that month.
func ParsePeriod(input string) (time.Time, bool) {
	t, ok := ParseDate(input)
	if !ok {
		return time.Time{}, false
	}
	return MonthStart(t), true
}

func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func parseMonthName(s string) (time.Time, bool) {
	s = strings.ToUpper(FoldAccents(s))
	sep := strings.IndexAny(s, "/-. ")
	if sep < 3 {
		return time.Time{}, false
	}
	month, ok := monthNames[s[:3]]
	if !ok {
		return time.Time{}, false
	}
	year, err := strconv.Atoi(strings.TrimSpace(s[sep+1:]))
	if err != nil {
		return time.Time{}, false
	}
	if year < 100 {
		year += 2000
	}
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC), true
}
