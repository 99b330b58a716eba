// File: internal/puhemies/manual.go
// Brief: Wires the manual recipe extractor into the orchestrator and recipe store.

package puhemies

import (
	"context"

	"github.com/alleyfoo/puhemies-fleet/internal/csvutil"
	"github.com/alleyfoo/puhemies-fleet/internal/puhemies/recipe"
	"github.com/alleyfoo/puhemies-fleet/internal/shadowlog"
	"github.com/alleyfoo/puhemies-fleet/internal/tabular"
)

func toRecipeFields(fields []RecipeField) []recipe.Field {
	out := make([]recipe.Field, len(fields))
	for i, f := range fields {
		out[i] = recipe.Field{
			Target:      f.Target,
			SourceType:  f.SourceType,
			Row:         f.SourcePointer.Row,
			Col:         f.SourcePointer.Col,
			Column:      f.SourcePointer.ColumnNameValue(),
			ColumnIndex: f.SourcePointer.ColumnIndex,
			DataType:    f.DataType,
		}
	}
	return out
}

func (o *Orchestrator) applyManualRecipe(ctx context.Context, runID string, evidence EvidencePacket, manual ManualRecipe) (Response, error) {
	sheet, err := tabular.ReadAll(evidence.SourceURI, evidence.SheetName)
	if err != nil {
		return Response{}, err
	}

	result, err := recipe.Apply(sheet.Rows, recipe.Recipe{
		Fields:              toRecipeFields(manual.Fields),
		HeaderRowIndex:       manual.HeaderRowIndex,
		MergeMetadataFields: manual.MergeMetadataFields,
	})
	if err != nil {
		if needsInput, ok := err.(*recipe.ErrNeedsInput); ok {
			shadowlog.Event(ctx, o.Store, runID, "manual_recipe_rejected", map[string]any{"reason": needsInput.Message})
			return Response{
				RunID:    runID,
				Status:   StatusNeedsHumanConfirmation,
				Message:  needsInput.Message,
				NextStep: NextStepFixManualRecipe,
			}, nil
		}
		return Response{}, err
	}

	for _, w := range result.Warnings {
		shadowlog.Event(ctx, o.Store, runID, "manual_recipe_warning", map[string]any{"warning": w})
	}

	csvBytes, err := csvutil.WriteRows(result.Headers, result.Rows)
	if err != nil {
		return Response{}, err
	}
	if err := o.Store.WriteBytes(ctx, cleanDataCSVKey(runID), csvBytes); err != nil {
		return Response{}, err
	}
	if err := writeJSON(ctx, o.Store, extractedMetadataKey(runID), result.Metadata); err != nil {
		return Response{}, err
	}

	fields := make([]SchemaSpecField, len(result.Headers))
	for i, h := range result.Headers {
		fields[i] = SchemaSpecField{Name: h}
	}
	if err := writeJSON(ctx, o.Store, schemaSpecKey(runID), SchemaSpec{Fields: fields, SchemaLayer: "manual_recipe"}); err != nil {
		return Response{}, err
	}
	if err := writeJSON(ctx, o.Store, saveManifestKey(runID), SaveManifest{
		SavedFiles:   []string{cleanDataCSVKey(runID), extractedMetadataKey(runID), schemaSpecKey(runID)},
		SavedURIs:    []string{o.Store.URIForKey(cleanDataCSVKey(runID))},
		EvidenceKeys: []string{evidenceKey(runID)},
	}); err != nil {
		return Response{}, err
	}
	shadowlog.Event(ctx, o.Store, runID, "manual_recipe_extraction_complete", nil)

	if o.Recipes != nil {
		if err := o.Recipes.Store(ctx, evidence.StructuralHash, manual); err != nil {
			shadowlog.Event(ctx, o.Store, runID, "recipe_store_write_failed", map[string]any{"error": err.Error()})
		}
	}

	return Response{RunID: runID, Status: StatusOK, Message: "manual recipe extraction complete", NextStep: NextStepReviewArtifacts}, nil
}
