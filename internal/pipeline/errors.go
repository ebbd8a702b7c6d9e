package pipeline

import (
	"errors"

	"pricenorm/internal/workbook"
)

var (
	ErrUnsupportedFormat = workbook.ErrUnsupportedFormat
	ErrEmptyWorkbook     = workbook.ErrEmptyWorkbook
	ErrCorruptWorkbook   = workbook.ErrCorruptWorkbook
	ErrFileTimeout       = errors.New("workbook exceeded its processing time budget")
	ErrNoInput           = errors.New("input has neither a path nor data")
)
