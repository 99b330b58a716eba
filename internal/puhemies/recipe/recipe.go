// File: internal/puhemies/recipe/recipe.go
// Brief: Manual recipe extraction — the declarative metadata/column extraction path.

// Package recipe implements the manual-recipe extraction process: resolve
// a header row against a declared column-name set, project data rows to
// the recipe's fields, pull scalar metadata values, and merge selected
// metadata onto every output row.
package recipe

import (
	"fmt"
	"strings"

	"github.com/alleyfoo/puhemies-fleet/internal/tabular"
)

const maxHeaderScanRows = 50

// Field mirrors puhemies.RecipeField without importing the orchestrator
// package, so this package stays a leaf dependency.
type Field struct {
	Target      string
	SourceType  string // "metadata" | "column"
	Row, Col    *int   // metadata pointer
	Column      string // column pointer: name
	ColumnIndex *int   // column pointer: index
	DataType    string
}

// Recipe is the resolved extraction plan.
type Recipe struct {
	Fields              []Field
	HeaderRowIndex      *int
	MergeMetadataFields []string
}

// Result is the outcome of a successful extraction.
type Result struct {
	Headers  []string
	Rows     [][]string
	Metadata map[string]string
	Warnings []string
}

// ErrNeedsInput signals a recoverable recipe problem that should surface
// as a needs_human_confirmation response rather than a fatal error.
type ErrNeedsInput struct {
	Message string
}

func (e *ErrNeedsInput) Error() string { return e.Message }

// Apply runs the manual-recipe extraction process (partition fields,
// resolve the header row, resolve column indices, project rows, clean
// values, extract and merge metadata).
func Apply(rows [][]string, r Recipe) (Result, error) {
	var metadataFields, columnFields []Field
	var warnings []string
	for _, f := range r.Fields {
		switch f.SourceType {
		case "metadata":
			if f.Row == nil || f.Col == nil {
				warnings = append(warnings, fmt.Sprintf("malformed metadata field %q: missing row/col", f.Target))
				continue
			}
			metadataFields = append(metadataFields, f)
		case "column":
			if f.Column == "" && f.ColumnIndex == nil {
				warnings = append(warnings, fmt.Sprintf("malformed column field %q: missing column pointer", f.Target))
				continue
			}
			columnFields = append(columnFields, f)
		default:
			warnings = append(warnings, fmt.Sprintf("field %q: unknown source_type %q", f.Target, f.SourceType))
		}
	}
	if len(columnFields) == 0 {
		return Result{}, &ErrNeedsInput{Message: "manual recipe requires at least one column field"}
	}

	headerRow := resolveHeaderRow(rows, r.HeaderRowIndex, columnFields)
	if headerRow < 0 || headerRow >= len(rows) {
		return Result{}, &ErrNeedsInput{Message: "header_row_index is out of range"}
	}

	nameToIndex := buildNameIndex(rows[headerRow])

	type resolvedColumn struct {
		field Field
		index int
		ok    bool
	}
	resolved := make([]resolvedColumn, len(columnFields))
	for i, f := range columnFields {
		idx, ok := resolveColumnIndex(f, nameToIndex)
		resolved[i] = resolvedColumn{field: f, index: idx, ok: ok}
		if !ok {
			warnings = append(warnings, fmt.Sprintf("column field %q could not be resolved to a column", f.Target))
		}
	}

	outHeaders := make([]string, len(resolved))
	for i, rc := range resolved {
		outHeaders[i] = rc.field.Target
	}

	dataRows := rows[headerRow+1:]
	outRows := make([][]string, len(dataRows))
	for ri, row := range dataRows {
		outRow := make([]string, len(resolved))
		for c, rc := range resolved {
			if !rc.ok || rc.index >= len(row) {
				outRow[c] = ""
				continue
			}
			cleaned, ok := tabular.CleanValue(row[rc.index], dataType(rc.field.DataType))
			if !ok {
				outRow[c] = ""
				continue
			}
			outRow[c] = cleaned
		}
		outRows[ri] = outRow
	}

	metadata := make(map[string]string, len(metadataFields))
	for _, f := range metadataFields {
		var raw string
		if *f.Row < len(rows) && *f.Col < len(rows[*f.Row]) {
			raw = rows[*f.Row][*f.Col]
		}
		cleaned, ok := tabular.CleanValue(raw, dataType(f.DataType))
		if ok {
			metadata[f.Target] = cleaned
		} else {
			metadata[f.Target] = ""
		}
	}

	if len(r.MergeMetadataFields) > 0 {
		for _, target := range r.MergeMetadataFields {
			outHeaders = append(outHeaders, target)
		}
		for i := range outRows {
			for _, target := range r.MergeMetadataFields {
				outRows[i] = append(outRows[i], metadata[target])
			}
		}
	}

	return Result{Headers: outHeaders, Rows: outRows, Metadata: metadata, Warnings: warnings}, nil
}

func dataType(name string) tabular.DataType {
	switch name {
	case "number":
		return tabular.DataTypeNumber
	case "date":
		return tabular.DataTypeDate
	default:
		return tabular.DataTypeString
	}
}

func resolveHeaderRow(rows [][]string, declared *int, columnFields []Field) int {
	if declared != nil {
		return *declared
	}
	wantNames := make(map[string]bool)
	for _, f := range columnFields {
		if f.Column != "" {
			wantNames[normalize(f.Column)] = true
		}
	}
	if len(wantNames) == 0 {
		return 0
	}

	limit := len(rows)
	if limit > maxHeaderScanRows {
		limit = maxHeaderScanRows
	}
	bestRow := 0
	bestScore := -1
	for i := 0; i < limit; i++ {
		score := 0
		for _, cell := range rows[i] {
			if wantNames[normalize(cell)] {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			bestRow = i
		}
	}
	return bestRow
}

func buildNameIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, cell := range header {
		name := normalize(cell)
		if _, exists := idx[name]; !exists {
			idx[name] = i
		}
	}
	return idx
}

func resolveColumnIndex(f Field, nameToIndex map[string]int) (int, bool) {
	if f.ColumnIndex != nil {
		return *f.ColumnIndex, true
	}
	idx, ok := nameToIndex[normalize(f.Column)]
	return idx, ok
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), "_"))
}
