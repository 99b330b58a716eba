package tabular

import "testing"

func TestCleanNumberHandlesThousandsAndParens(t *testing.T) {
	cases := map[string]float64{
		"1,234.5": 1234.5,
		" 42 ":    42,
		"(10)":    -10,
		"$99.99":  99.99,
		"12%":     12,
		"USD 3":   3,
		"3 units": 3,
	}
	for raw, want := range cases {
		got, ok := CleanNumber(raw)
		if !ok {
			t.Fatalf("CleanNumber(%q): expected ok", raw)
		}
		if got != want {
			t.Fatalf("CleanNumber(%q) = %v, want %v", raw, got, want)
		}
	}
	if _, ok := CleanNumber(""); ok {
		t.Fatalf("CleanNumber(\"\") expected not ok")
	}
	if _, ok := CleanNumber("abc"); ok {
		t.Fatalf("CleanNumber(\"abc\") expected not ok")
	}
}

func TestCleanValueNumberRendersIntegralAsFloat(t *testing.T) {
	cases := map[string]string{
		"3":      "3.0",
		"USD 3":  "3.0",
		"$12.50": "12.5",
		"19.95":  "19.95",
	}
	for raw, want := range cases {
		got, ok := CleanValue(raw, DataTypeNumber)
		if !ok || got != want {
			t.Fatalf("CleanValue(%q, number) = %q, %v; want %q", raw, got, ok, want)
		}
	}
}

func TestCleanDateRecognizesKnownLayouts(t *testing.T) {
	got, ok := CleanDate("01/02/2026")
	if !ok || got != "2026-01-02" {
		t.Fatalf("CleanDate(01/02/2026) = %q, %v", got, ok)
	}
	if _, ok := CleanDate("not-a-date"); ok {
		t.Fatalf("expected not ok for garbage date")
	}
}

func TestFlattenHeadersJoinsAndForwardFills(t *testing.T) {
	rows := [][]string{
		{"Sales", "", "Region"},
		{"Q1", "Q2", ""},
	}
	got := FlattenHeaders(rows, 2)
	want := []string{"Sales_Q1", "Sales_Q2", "Region_Q2"}
	for i, w := range want {
		if got[i] != w {
			t.Fatalf("FlattenHeaders()[%d] = %q, want %q", i, got[i], w)
		}
	}
}
