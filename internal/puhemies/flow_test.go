package puhemies

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-logr/logr"

	"github.com/alleyfoo/puhemies-fleet/internal/artifactstore"
	"github.com/alleyfoo/puhemies-fleet/internal/recipestore"
	"github.com/alleyfoo/puhemies-fleet/internal/shadowlog"
)

const ambiguousCSV = "Sales Report Q1,,,\n" +
	",Product Code,Qty,Amount\n" +
	"row1,X100,3,19.95\n" +
	"row2,Y200,1,5.00\n"

const recipeCSV = "Report Date,2025-01-01,,\n" +
	",Product Code,Qty,Amount\n" +
	"row1,X100,USD 3,19.95\n" +
	"row2,Y200,1,5.00\n"

func newOrchestrator(t *testing.T) (*Orchestrator, artifactstore.Store) {
	t.Helper()
	store, err := artifactstore.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	idx, err := recipestore.Open(context.Background(), store, filepath.Join(t.TempDir(), "recipes.db"))
	if err != nil {
		t.Fatalf("open recipe index: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return &Orchestrator{Store: store, Recipes: idx, Log: logr.Discard()}, store
}

func writeInputFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write input file: %v", err)
	}
	return path
}

func hasEvent(t *testing.T, store artifactstore.Store, runID, event string) bool {
	t.Helper()
	entries, err := shadowlog.ReadAll(context.Background(), store, runID)
	if err != nil {
		t.Fatalf("read shadow log: %v", err)
	}
	for _, e := range entries {
		if e.Event == event {
			return true
		}
	}
	return false
}

func TestAmbiguousCSVSuspendsThenConfirmAndResume(t *testing.T) {
	o, store := newOrchestrator(t)
	ctx := context.Background()
	runID := "run-ambiguous"
	input := writeInputFile(t, "sales.csv", ambiguousCSV)

	resp, err := o.RunFromFile(ctx, runID, input)
	if err != nil {
		t.Fatalf("run from file: %v", err)
	}
	if resp.Status != StatusNeedsHumanConfirmation {
		t.Fatalf("expected needs_human_confirmation, got %q", resp.Status)
	}
	if len(resp.Choices) != 4 {
		t.Fatalf("expected one choice per preview row, got %d", len(resp.Choices))
	}
	var row1 *HeaderCandidate
	for i := range resp.Choices {
		if resp.Choices[i].ID == "row_1" {
			row1 = &resp.Choices[i]
		}
	}
	if row1 == nil {
		t.Fatalf("expected row_1 among choices: %+v", resp.Choices)
	}
	if !hasEvent(t, store, runID, "stop_due_to_ambiguous_headers") {
		t.Fatalf("expected stop_due_to_ambiguous_headers in shadow log")
	}

	resp, err = o.SubmitHumanConfirmation(ctx, runID, HumanConfirmation{ConfirmedHeaderCandidate: "row_1", ConfirmedBy: "tester"})
	if err != nil {
		t.Fatalf("submit confirmation: %v", err)
	}
	if resp.Status != StatusOK {
		t.Fatalf("expected ok after confirmation, got %q (%s)", resp.Status, resp.Message)
	}

	csvText, err := store.ReadText(ctx, cleanCSVKey(runID))
	if err != nil {
		t.Fatalf("read clean.csv: %v", err)
	}
	lines := strings.Split(strings.TrimRight(csvText, "\n"), "\n")
	if lines[0] != "unnamed_0,product_code,qty,amount" {
		t.Fatalf("unexpected header line: %q", lines[0])
	}
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 data rows, got %d lines", len(lines))
	}

	var spec SchemaSpec
	if ok, err := readJSON(ctx, store, schemaSpecKey(runID), &spec); err != nil || !ok {
		t.Fatalf("read schema spec: %v %v", ok, err)
	}
	if spec.SchemaLayer != "core" {
		t.Fatalf("expected schema layer core, got %q", spec.SchemaLayer)
	}

	// Re-running the resume step must be idempotent.
	if _, err := o.ContinueRun(ctx, runID); err != nil {
		t.Fatalf("second continue: %v", err)
	}
	again, err := store.ReadText(ctx, cleanCSVKey(runID))
	if err != nil {
		t.Fatalf("reread clean.csv: %v", err)
	}
	if again != csvText {
		t.Fatalf("expected byte-identical clean.csv on re-run")
	}
}

func TestHeaderOverrideRenamesColumnAndCompletes(t *testing.T) {
	o, store := newOrchestrator(t)
	ctx := context.Background()
	runID := "run-override"
	input := writeInputFile(t, "sales.csv", ambiguousCSV)

	if _, err := o.RunFromFile(ctx, runID, input); err != nil {
		t.Fatalf("run from file: %v", err)
	}
	resp, err := o.SubmitHeaderOverride(ctx, runID, HeaderOverride{
		HeaderRowIndex: 1,
		EditedHeaders:  map[string]string{"qty": "quantity"},
	})
	if err != nil {
		t.Fatalf("submit override: %v", err)
	}
	if resp.Status != StatusOK {
		t.Fatalf("expected ok after override, got %q (%s)", resp.Status, resp.Message)
	}

	csvText, err := store.ReadText(ctx, cleanCSVKey(runID))
	if err != nil {
		t.Fatalf("read clean.csv: %v", err)
	}
	if !strings.Contains(strings.Split(csvText, "\n")[0], "quantity") {
		t.Fatalf("expected renamed quantity column, got %q", strings.Split(csvText, "\n")[0])
	}
	if !hasEvent(t, store, runID, "header_override_applied") {
		t.Fatalf("expected header_override_applied in shadow log")
	}
}

func metadataMergeRecipe() ManualRecipe {
	row, col := 0, 1
	headerRow := 1
	return ManualRecipe{
		Fields: []RecipeField{
			{Target: "report_date", SourceType: "metadata", SourcePointer: SourcePointer{Row: &row, Col: &col}},
			{Target: "product_code", SourceType: "column", SourcePointer: SourcePointer{Column: "Product Code"}},
			{Target: "qty", SourceType: "column", SourcePointer: SourcePointer{Column: "Qty"}, DataType: "number"},
		},
		HeaderRowIndex:      &headerRow,
		MergeMetadataFields: []string{"report_date"},
	}
}

func TestManualRecipeWithMetadataMerge(t *testing.T) {
	o, store := newOrchestrator(t)
	ctx := context.Background()
	runID := "run-recipe"
	input := writeInputFile(t, "report.csv", recipeCSV)

	resp, err := o.RunFromFile(ctx, runID, input)
	if err != nil {
		t.Fatalf("run from file: %v", err)
	}
	if resp.Status != StatusOK {
		t.Fatalf("expected ok from clear header, got %q", resp.Status)
	}

	resp, err = o.SubmitManualRecipe(ctx, runID, metadataMergeRecipe())
	if err != nil {
		t.Fatalf("submit recipe: %v", err)
	}
	if resp.Status != StatusOK {
		t.Fatalf("expected ok after recipe, got %q (%s)", resp.Status, resp.Message)
	}

	csvText, err := store.ReadText(ctx, cleanDataCSVKey(runID))
	if err != nil {
		t.Fatalf("read clean_data.csv: %v", err)
	}
	lines := strings.Split(strings.TrimRight(csvText, "\n"), "\n")
	want := []string{
		"product_code,qty,report_date",
		"X100,3.0,2025-01-01",
		"Y200,1.0,2025-01-01",
	}
	for i, w := range want {
		if lines[i] != w {
			t.Fatalf("clean_data.csv line %d = %q, want %q", i, lines[i], w)
		}
	}

	var metadata map[string]string
	if ok, err := readJSON(ctx, store, extractedMetadataKey(runID), &metadata); err != nil || !ok {
		t.Fatalf("read extracted metadata: %v %v", ok, err)
	}
	if metadata["report_date"] != "2025-01-01" {
		t.Fatalf("expected report_date metadata, got %v", metadata)
	}

	var spec SchemaSpec
	if ok, err := readJSON(ctx, store, schemaSpecKey(runID), &spec); err != nil || !ok {
		t.Fatalf("read schema spec: %v %v", ok, err)
	}
	if spec.SchemaLayer != "manual_recipe" {
		t.Fatalf("expected schema layer manual_recipe, got %q", spec.SchemaLayer)
	}
}

func TestRecipeRecallAppliesStoredRecipeToSiblingFile(t *testing.T) {
	o, store := newOrchestrator(t)
	ctx := context.Background()
	input := writeInputFile(t, "report-jan.csv", recipeCSV)

	if _, err := o.RunFromFile(ctx, "run-first", input); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if resp, err := o.SubmitManualRecipe(ctx, "run-first", metadataMergeRecipe()); err != nil || resp.Status != StatusOK {
		t.Fatalf("first recipe application: %v %+v", err, resp)
	}

	// A sibling file with the same first-five-row shape but a different
	// name must recall the stored recipe and finish without human input.
	sibling := writeInputFile(t, "report-feb.csv", recipeCSV)
	resp, err := o.RunFromFile(ctx, "run-second", sibling)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if resp.Status != StatusOK {
		t.Fatalf("expected ok via recalled recipe, got %q (%s)", resp.Status, resp.Message)
	}
	if !hasEvent(t, store, "run-second", "manual_recipe_recalled") {
		t.Fatalf("expected manual_recipe_recalled in shadow log")
	}
	if exists, _ := store.Exists(ctx, saveManifestKey("run-second")); !exists {
		t.Fatalf("expected save manifest for recalled run")
	}
	if exists, _ := store.Exists(ctx, cleanDataCSVKey("run-second")); !exists {
		t.Fatalf("expected clean_data.csv for recalled run")
	}
}
