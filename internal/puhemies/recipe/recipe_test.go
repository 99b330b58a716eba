package recipe

import "testing"

func intPtr(i int) *int { return &i }

func TestApplyResolvesHeaderRowByNameIntersection(t *testing.T) {
	rows := [][]string{
		{"report generated 2026-07-30"},
		{"Name", "Amount"},
		{"Alice", "$12.50"},
		{"Bob", "$7"},
	}
	recipe := Recipe{
		Fields: []Field{
			{Target: "name", SourceType: "column", Column: "Name"},
			{Target: "amount", SourceType: "column", Column: "Amount", DataType: "number"},
		},
	}
	result, err := Apply(rows, recipe)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 output rows, got %d", len(result.Rows))
	}
	if result.Rows[0][1] != "12.5" {
		t.Fatalf("expected cleaned numeric amount '12.5', got %q", result.Rows[0][1])
	}
}

func TestApplyRequiresAtLeastOneColumnField(t *testing.T) {
	rows := [][]string{{"a", "b"}}
	recipe := Recipe{Fields: []Field{
		{Target: "meta", SourceType: "metadata", Row: intPtr(0), Col: intPtr(0)},
	}}
	_, err := Apply(rows, recipe)
	if err == nil {
		t.Fatalf("expected an error when no column fields are present")
	}
	if _, ok := err.(*ErrNeedsInput); !ok {
		t.Fatalf("expected ErrNeedsInput, got %T: %v", err, err)
	}
}

func TestApplyMergesMetadataOntoEveryRow(t *testing.T) {
	rows := [][]string{
		{"Report Title: Q3 Sales"},
		{"Name", "Amount"},
		{"Alice", "10"},
		{"Bob", "20"},
	}
	recipe := Recipe{
		Fields: []Field{
			{Target: "title", SourceType: "metadata", Row: intPtr(0), Col: intPtr(0)},
			{Target: "name", SourceType: "column", Column: "Name"},
			{Target: "amount", SourceType: "column", Column: "Amount", DataType: "number"},
		},
		MergeMetadataFields: []string{"title"},
	}
	result, err := Apply(rows, recipe)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result.Headers[len(result.Headers)-1] != "title" {
		t.Fatalf("expected merged metadata column last, got %v", result.Headers)
	}
	for _, row := range result.Rows {
		if row[len(row)-1] != "Report Title: Q3 Sales" {
			t.Fatalf("expected merged metadata value on every row, got %q", row[len(row)-1])
		}
	}
}

func TestApplyUnresolvableColumnProducesEmptyValues(t *testing.T) {
	rows := [][]string{
		{"Name", "Amount"},
		{"Alice", "10"},
	}
	recipe := Recipe{Fields: []Field{
		{Target: "name", SourceType: "column", Column: "Name"},
		{Target: "missing", SourceType: "column", Column: "DoesNotExist"},
	}}
	result, err := Apply(rows, recipe)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(result.Warnings) == 0 {
		t.Fatalf("expected a warning for the unresolvable column")
	}
	if result.Rows[0][1] != "" {
		t.Fatalf("expected empty value for unresolvable column, got %q", result.Rows[0][1])
	}
}
