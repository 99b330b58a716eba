// File: internal/csvutil/csvutil.go
// Brief: Internal csvutil package implementation for 'csvutil'.

// Package csvutil provides csvutil helpers.

package csvutil

import (
	"bytes"
	"encoding/csv"
	"io"
	"strings"
)

// SplitFields parses a comma-separated key/value list using CSV semantics.
func SplitFields(raw string) ([]string, error) {
	reader := csv.NewReader(strings.NewReader(raw))
	reader.Comma = ','
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	record, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

// WriteRows renders rows as comma-separated, LF-terminated, UTF-8 CSV bytes,
// quoting any field containing a comma or quote (doubling embedded quotes).
func WriteRows(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.UseCRLF = false
	if header != nil {
		if err := w.Write(header); err != nil {
			return nil, err
		}
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
