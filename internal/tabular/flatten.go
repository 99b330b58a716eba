// File: internal/tabular/flatten.go
// Brief: Multi-row header flattening for tabular previews.

package tabular

import "strings"

// FlattenHeaders collapses a block of header rows (headerRows, counted from
// row 0) into one header row per column. Within each header row, blank
// cells are forward-filled left-to-right from the nearest non-blank cell
// to their left (mirroring a row-wise ffill over a merged-cell header
// block); the per-row values for each column are then joined top-to-bottom
// with "_", skipping blanks. A column with no non-blank cell in any header
// row keeps an empty string, left for the caller to name positionally.
func FlattenHeaders(rows [][]string, headerRows int) []string {
	if headerRows <= 0 || len(rows) == 0 {
		return nil
	}
	if headerRows > len(rows) {
		headerRows = len(rows)
	}
	width := 0
	for i := 0; i < headerRows; i++ {
		if len(rows[i]) > width {
			width = len(rows[i])
		}
	}

	filled := make([][]string, headerRows)
	for row := 0; row < headerRows; row++ {
		filled[row] = make([]string, width)
		last := ""
		for col := 0; col < width; col++ {
			var cell string
			if col < len(rows[row]) {
				cell = strings.TrimSpace(rows[row][col])
			}
			if cell == "" {
				cell = last
			} else {
				last = cell
			}
			filled[row][col] = cell
		}
	}

	flattened := make([]string, width)
	for col := 0; col < width; col++ {
		var parts []string
		for row := 0; row < headerRows; row++ {
			cell := filled[row][col]
			if cell != "" && (len(parts) == 0 || parts[len(parts)-1] != cell) {
				parts = append(parts, cell)
			}
		}
		flattened[col] = strings.Join(parts, "_")
	}
	return flattened
}
