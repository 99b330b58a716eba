// File: internal/tabular/xlsx/xlsx.go
// Brief: Internal xlsx package implementation for 'xlsx'.

// Package xlsx wraps github.com/xuri/excelize/v2 to read spreadsheet
// workbooks the way the tabular preview/extraction stages need: first
// sheet by default, every row as a slice of strings, missing cells as
// empty strings.
package xlsx

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// Open reads every row of the named sheet (or the first sheet if name is
// empty) from an .xlsx/.xls workbook at path.
func Open(path string, sheetName string) (rows [][]string, resolvedSheet string, err error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("open workbook %q: %w", path, err)
	}
	defer f.Close()

	resolvedSheet = sheetName
	if resolvedSheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, "", fmt.Errorf("workbook %q has no sheets", path)
		}
		resolvedSheet = sheets[0]
	}

	raw, err := f.GetRows(resolvedSheet)
	if err != nil {
		return nil, "", fmt.Errorf("read sheet %q: %w", resolvedSheet, err)
	}

	maxWidth := 0
	for _, r := range raw {
		if len(r) > maxWidth {
			maxWidth = len(r)
		}
	}
	rows = make([][]string, len(raw))
	for i, r := range raw {
		padded := make([]string, maxWidth)
		copy(padded, r)
		rows[i] = padded
	}
	return rows, resolvedSheet, nil
}

// SheetNames returns every sheet name in the workbook, first sheet first.
func SheetNames(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %q: %w", path, err)
	}
	defer f.Close()
	return f.GetSheetList(), nil
}
