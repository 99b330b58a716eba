package puhemies

import "testing"

func TestBuildHeaderCandidatesScoresFullRowsHigher(t *testing.T) {
	rows := [][]string{
		{"Name", "Age", "City"},
		{"", "", ""},
	}
	candidates := BuildHeaderCandidates(rows)
	if len(candidates) != 2 {
		t.Fatalf("expected one candidate per row, got %d", len(candidates))
	}
	if candidates[0].Confidence <= candidates[1].Confidence {
		t.Fatalf("expected the fully populated row to score higher, got %+v", candidates)
	}
	if candidates[0].NormalizedHeaders[0] != "name" {
		t.Fatalf("expected normalized header 'name', got %q", candidates[0].NormalizedHeaders[0])
	}
}

func TestBuildHeaderCandidatesBlankCellsGetPositionalNames(t *testing.T) {
	rows := [][]string{{"Name", "", "City"}}
	candidates := BuildHeaderCandidates(rows)
	if candidates[0].NormalizedHeaders[1] != "unnamed_1" {
		t.Fatalf("expected unnamed_1 for blank header cell, got %q", candidates[0].NormalizedHeaders[1])
	}
}

func TestSelectBestCandidatePrefersHighestConfidenceLowestIndexOnTie(t *testing.T) {
	candidates := []HeaderCandidate{
		{ID: "row_0", RowIndex: 0, Confidence: 0.5},
		{ID: "row_1", RowIndex: 1, Confidence: 0.9},
		{ID: "row_2", RowIndex: 2, Confidence: 0.9},
	}
	best, ok := SelectBestCandidate(candidates)
	if !ok {
		t.Fatalf("expected a selection")
	}
	if best.ID != "row_1" {
		t.Fatalf("expected the first of the tied highest-confidence rows, got %q", best.ID)
	}
}

func TestIsAmbiguousFlagsNumericLookingHeaders(t *testing.T) {
	numeric := HeaderCandidate{NormalizedHeaders: []string{"1", "2", "name"}}
	if !IsAmbiguous(numeric) {
		t.Fatalf("expected numeric-majority headers to be flagged ambiguous")
	}
	named := HeaderCandidate{NormalizedHeaders: []string{"name", "age", "city"}}
	if IsAmbiguous(named) {
		t.Fatalf("expected named headers to not be flagged ambiguous")
	}
	// A single numeric cell meets the max(1, len/2) threshold on odd widths.
	oneNumeric := HeaderCandidate{NormalizedHeaders: []string{"name", "42", "city"}}
	if !IsAmbiguous(oneNumeric) {
		t.Fatalf("expected a single numeric cell in a 3-wide row to be flagged ambiguous")
	}
}
