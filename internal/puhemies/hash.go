// File: internal/puhemies/hash.go
// Brief: File and structural fingerprinting for recipe recall.

package puhemies

import (
	"strings"

	"github.com/alleyfoo/puhemies-fleet/internal/artifactstore"
)

// FileHash is the SHA-256 digest of the full input file bytes.
func FileHash(data []byte) string {
	return artifactstore.SHA256Digest(data)
}

// StructuralHash fingerprints a file's layout independent of its
// filename: the first five preview rows are whitespace-collapsed,
// lowercased, pipe-joined per row, and newline-joined across rows,
// then SHA-256'd. Two files with identical first-five-row shapes but
// different names produce identical hashes, which is what drives
// recipe recall.
func StructuralHash(previewRows [][]string) string {
	limit := len(previewRows)
	if limit > 5 {
		limit = 5
	}
	lines := make([]string, 0, limit)
	for i := 0; i < limit; i++ {
		cells := make([]string, len(previewRows[i]))
		for j, cell := range previewRows[i] {
			cells[j] = strings.ToLower(strings.Join(strings.Fields(cell), " "))
		}
		lines = append(lines, strings.Join(cells, "|"))
	}
	normalized := strings.Join(lines, "\n")
	return artifactstore.SHA256DigestString(normalized)
}
