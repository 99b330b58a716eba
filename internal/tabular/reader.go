// File: internal/tabular/reader.go
// Brief: Internal tabular package implementation for 'tabular'.

// Package tabular reads delimited text and spreadsheet workbooks into a
// uniform [][]string row representation for the ingestion pipeline.
package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/alleyfoo/puhemies-fleet/internal/tabular/xlsx"
)

// ErrUnsupportedInput is returned for file extensions outside the
// supported delimited-text/spreadsheet set.
var ErrUnsupportedInput = fmt.Errorf("unsupported_input")

// Sheet is every row of an input file, already normalized to uniform width.
type Sheet struct {
	Rows      [][]string
	SheetName string
}

// IsSupported reports whether path's extension can be parsed.
func IsSupported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".xlsx", ".xls":
		return true
	default:
		return false
	}
}

// ReadAll reads every row of the input file (sheetName only applies to
// spreadsheet workbooks; empty means "first sheet").
func ReadAll(path string, sheetName string) (Sheet, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".csv":
		rows, err := readCSV(path)
		if err != nil {
			return Sheet{}, err
		}
		return Sheet{Rows: rows}, nil
	case ".xlsx", ".xls":
		rows, resolved, err := xlsx.Open(path, sheetName)
		if err != nil {
			return Sheet{}, err
		}
		return Sheet{Rows: rows, SheetName: resolved}, nil
	default:
		return Sheet{}, fmt.Errorf("%w: %s", ErrUnsupportedInput, ext)
	}
}

// ReadPreview reads up to the first n rows, with no header inference and
// missing cells rendered as empty strings.
func ReadPreview(path string, sheetName string, n int) (Sheet, error) {
	sheet, err := ReadAll(path, sheetName)
	if err != nil {
		return Sheet{}, err
	}
	if len(sheet.Rows) > n {
		sheet.Rows = sheet.Rows[:n]
	}
	return sheet, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows [][]string
	maxWidth := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv %q: %w", path, err)
		}
		if len(record) > maxWidth {
			maxWidth = len(record)
		}
		rows = append(rows, record)
	}
	for i, r := range rows {
		if len(r) < maxWidth {
			padded := make([]string, maxWidth)
			copy(padded, r)
			rows[i] = padded
		}
	}
	return rows, nil
}
