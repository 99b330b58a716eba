// File: internal/puhemies/headers.go
// Brief: Header candidate scoring and the ambiguity gate.

package puhemies

import (
	"regexp"
	"strconv"
	"strings"
)

var numericLikeRe = regexp.MustCompile(`^\d+(\.\d+)?$`)

// normalizeHeaderCell trims, lowercases, and replaces internal whitespace
// with underscores; blanks are named positionally by the caller.
func normalizeHeaderCell(raw string) string {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	fields := strings.Fields(trimmed)
	return strings.Join(fields, "_")
}

func normalizeRow(row []string) []string {
	out := make([]string, len(row))
	for i, cell := range row {
		norm := normalizeHeaderCell(cell)
		if norm == "" {
			norm = "unnamed_" + strconv.Itoa(i)
		}
		out[i] = norm
	}
	return out
}

// looksLikeData reports whether the normalized headers resemble numeric
// data rather than column names: at least max(1, len/2) numeric-looking
// cells, so a single numeric cell is enough to flag a narrow row.
func looksLikeData(normalized []string) bool {
	if len(normalized) == 0 {
		return false
	}
	numericCount := 0
	for _, h := range normalized {
		if numericLikeRe.MatchString(h) {
			numericCount++
		}
	}
	threshold := len(normalized) / 2
	if threshold < 1 {
		threshold = 1
	}
	return numericCount >= threshold
}

func fillRatio(row []string, maxWidth int) float64 {
	if maxWidth == 0 {
		return 0
	}
	nonEmpty := 0
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			nonEmpty++
		}
	}
	return float64(nonEmpty) / float64(maxWidth)
}

// BuildHeaderCandidates scores one candidate per preview row.
func BuildHeaderCandidates(previewRows [][]string) []HeaderCandidate {
	maxWidth := 0
	for _, row := range previewRows {
		if len(row) > maxWidth {
			maxWidth = len(row)
		}
	}

	candidates := make([]HeaderCandidate, 0, len(previewRows))
	for i, row := range previewRows {
		normalized := normalizeRow(row)
		confidence := fillRatio(row, maxWidth)
		if looksLikeData(normalized) {
			confidence -= 0.2
		}
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 0.95 {
			confidence = 0.95
		}
		candidates = append(candidates, HeaderCandidate{
			ID:                "row_" + strconv.Itoa(i),
			RowIndex:          i,
			NormalizedHeaders: normalized,
			Confidence:        confidence,
		})
	}
	return candidates
}

// SelectBestCandidate picks the candidate with the highest confidence,
// breaking ties by the lowest row index. Returns false when candidates
// is empty.
func SelectBestCandidate(candidates []HeaderCandidate) (HeaderCandidate, bool) {
	if len(candidates) == 0 {
		return HeaderCandidate{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Confidence > best.Confidence {
			best = c
		}
	}
	return best, true
}

// IsAmbiguous reapplies the data-likeness test used for scoring to decide
// whether a selected candidate needs human confirmation.
func IsAmbiguous(candidate HeaderCandidate) bool {
	return looksLikeData(candidate.NormalizedHeaders)
}
