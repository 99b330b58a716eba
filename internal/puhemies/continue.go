// File: internal/puhemies/continue.go
// Brief: ContinueRun — resumes a suspended run per input-artifact precedence.

package puhemies

import (
	"context"
	"fmt"
	"os"

	"github.com/alleyfoo/puhemies-fleet/internal/csvutil"
	"github.com/alleyfoo/puhemies-fleet/internal/shadowlog"
	"github.com/alleyfoo/puhemies-fleet/internal/tabular"
)

// ContinueRun resumes a suspended or newly-established run, applying
// whichever of ManualRecipe / HeaderOverride / HumanConfirmation is
// present, in that precedence order, and finally falling back to
// needs_human_confirmation.
func (o *Orchestrator) ContinueRun(ctx context.Context, runID string) (Response, error) {
	var evidence EvidencePacket
	found, err := readJSON(ctx, o.Store, evidenceKey(runID), &evidence)
	if err != nil {
		return Response{}, err
	}
	if !found {
		return Response{}, fmt.Errorf("no evidence packet for run %q; call RunFromFile first", runID)
	}

	if evidence.FileHash != "" {
		localPath := evidence.SourceURI
		if !artifactExists(localPath) {
			localPath = ""
		}
		if localPath != "" {
			data, err := os.ReadFile(localPath)
			if err == nil && FileHash(data) != evidence.FileHash {
				shadowlog.Event(ctx, o.Store, runID, "resume_guard_file_changed", nil)
				return Response{
					RunID:    runID,
					Status:   StatusNeedsHumanConfirmation,
					Message:  "source file changed since the evidence packet was recorded",
					NextStep: NextStepRerunRequired,
				}, nil
			}
		}
	}

	var manual ManualRecipe
	if ok, err := readJSON(ctx, o.Store, manualRecipeKey(runID), &manual); err != nil {
		return Response{}, err
	} else if ok {
		return o.applyManualRecipe(ctx, runID, evidence, manual)
	}

	var override HeaderOverride
	if ok, err := readJSON(ctx, o.Store, headerOverrideKey(runID), &override); err != nil {
		return Response{}, err
	} else if ok {
		return o.applyHeaderOverride(ctx, runID, evidence, override)
	}

	var confirmation HumanConfirmation
	if ok, err := readJSON(ctx, o.Store, humanConfirmKey(runID), &confirmation); err != nil {
		return Response{}, err
	} else if ok {
		return o.applyHumanConfirmation(ctx, runID, evidence, confirmation)
	}

	return Response{
		RunID:    runID,
		Status:   StatusNeedsHumanConfirmation,
		Message:  "no confirmation, override, or recipe found",
		NextStep: NextStepWriteHumanConfirmation,
	}, nil
}

func artifactExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func (o *Orchestrator) applyHeaderOverride(ctx context.Context, runID string, evidence EvidencePacket, override HeaderOverride) (Response, error) {
	sheet, err := tabular.ReadAll(evidence.SourceURI, override.SheetName)
	if err != nil {
		return Response{}, err
	}
	if override.HeaderRowIndex < 0 || override.HeaderRowIndex >= len(sheet.Rows) {
		return Response{
			RunID:    runID,
			Status:   StatusNeedsHumanConfirmation,
			Message:  "header_row_index is out of range",
			NextStep: NextStepFixManualRecipe,
		}, nil
	}

	raw := sheet.Rows[override.HeaderRowIndex]
	normalized := normalizeRow(raw)
	finalHeaders := make([]string, len(normalized))
	for i, h := range normalized {
		if edited, ok := override.EditedHeaders[h]; ok {
			finalHeaders[i] = edited
		} else {
			finalHeaders[i] = h
		}
	}

	candidate := HeaderCandidate{ID: "manual", RowIndex: override.HeaderRowIndex, NormalizedHeaders: finalHeaders, Confidence: 0.9}
	if err := writeJSON(ctx, o.Store, headerSpecKey(runID), HeaderSpec{
		Candidates:             []HeaderCandidate{candidate},
		SelectedCandidateID:    "manual",
		NeedsHumanConfirmation: false,
	}); err != nil {
		return Response{}, err
	}
	shadowlog.Event(ctx, o.Store, runID, "header_override_applied", map[string]any{"header_row_index": override.HeaderRowIndex})

	dataRows := sheet.Rows[override.HeaderRowIndex+1:]
	return o.extractFromHeader(ctx, runID, finalHeaders, dataRows)
}

func (o *Orchestrator) applyHumanConfirmation(ctx context.Context, runID string, evidence EvidencePacket, confirmation HumanConfirmation) (Response, error) {
	var spec HeaderSpec
	ok, err := readJSON(ctx, o.Store, headerSpecKey(runID), &spec)
	if err != nil {
		return Response{}, err
	}
	if !ok {
		return Response{
			RunID:    runID,
			Status:   StatusNeedsHumanConfirmation,
			Message:  "no header_spec.json to confirm against",
			NextStep: NextStepWriteHumanConfirmation,
		}, nil
	}

	var chosen *HeaderCandidate
	for i := range spec.Candidates {
		if spec.Candidates[i].ID == confirmation.ConfirmedHeaderCandidate {
			chosen = &spec.Candidates[i]
			break
		}
	}
	if chosen == nil {
		return Response{
			RunID:    runID,
			Status:   StatusNeedsHumanConfirmation,
			Message:  "confirmed_header_candidate does not match any known candidate id",
			NextStep: NextStepWriteHumanConfirmation,
		}, nil
	}

	spec.SelectedCandidateID = chosen.ID
	spec.NeedsHumanConfirmation = false
	if err := writeJSON(ctx, o.Store, headerSpecKey(runID), spec); err != nil {
		return Response{}, err
	}
	shadowlog.Event(ctx, o.Store, runID, "human_confirmation_applied", map[string]any{"candidate_id": chosen.ID})

	sheet, err := tabular.ReadAll(evidence.SourceURI, evidence.SheetName)
	if err != nil {
		return Response{}, err
	}
	dataRows := sheet.Rows[chosen.RowIndex+1:]
	return o.extractFromHeader(ctx, runID, chosen.NormalizedHeaders, dataRows)
}

// extractFromHeader applies the optional TableRegion and AdapterSchema
// layers over a resolved header + data rows, then writes the standard
// Core A output set. The schema layer recorded in schema_spec.json is
// "adapter" when an adapter schema was applied and "core" otherwise.
func (o *Orchestrator) extractFromHeader(ctx context.Context, runID string, headers []string, dataRows [][]string) (Response, error) {
	var region TableRegion
	hasRegion, err := readJSON(ctx, o.Store, tableRegionKey(runID), &region)
	if err != nil {
		return Response{}, err
	}

	includeIdx := make([]int, len(headers))
	for i := range includeIdx {
		includeIdx[i] = i
	}
	if hasRegion {
		dataRows = clipRows(dataRows, region.StartRow, region.EndRow)
		includeIdx = filterColumns(headers, region.IncludeColumns, region.ExcludeColumns)
	}

	var adapter AdapterSchema
	hasAdapter, err := readJSON(ctx, o.Store, adapterSchemaKey(runID), &adapter)
	if err != nil {
		return Response{}, err
	}

	schemaLayer := "core"
	var outHeaders []string
	var fields []SchemaSpecField
	var outRows [][]string
	if hasAdapter && len(adapter.CanonicalFields) > 0 {
		schemaLayer = "adapter"
		outHeaders = adapter.CanonicalFields
		sourceIdx := make(map[string]int, len(headers))
		for i, h := range headers {
			sourceIdx[h] = i
		}
		for _, canon := range adapter.CanonicalFields {
			fields = append(fields, SchemaSpecField{Name: canon, DataType: adapter.Types[canon]})
		}
		outRows = make([][]string, len(dataRows))
		for r, row := range dataRows {
			outRow := make([]string, len(adapter.CanonicalFields))
			for c, canon := range adapter.CanonicalFields {
				source := adapter.FieldMap[canon]
				idx, ok := sourceIdx[source]
				if !ok || idx >= len(row) {
					outRow[c] = ""
					continue
				}
				cleaned, ok := cleanByDataType(row[idx], adapter.Types[canon])
				if !ok {
					cleaned = ""
				}
				outRow[c] = cleaned
			}
			outRows[r] = outRow
		}
	} else {
		outHeaders = make([]string, len(includeIdx))
		for i, idx := range includeIdx {
			outHeaders[i] = headers[idx]
			fields = append(fields, SchemaSpecField{Name: headers[idx]})
		}
		outRows = make([][]string, len(dataRows))
		for r, row := range dataRows {
			outRow := make([]string, len(includeIdx))
			for c, idx := range includeIdx {
				if idx < len(row) {
					outRow[c] = row[idx]
				}
			}
			outRows[r] = outRow
		}
	}

	csvBytes, err := csvutil.WriteRows(outHeaders, outRows)
	if err != nil {
		return Response{}, err
	}
	if err := o.Store.WriteBytes(ctx, cleanCSVKey(runID), csvBytes); err != nil {
		return Response{}, err
	}
	if err := writeJSON(ctx, o.Store, schemaSpecKey(runID), SchemaSpec{Fields: fields, SchemaLayer: schemaLayer}); err != nil {
		return Response{}, err
	}
	if err := writeJSON(ctx, o.Store, saveManifestKey(runID), SaveManifest{
		SavedFiles:   []string{cleanCSVKey(runID), schemaSpecKey(runID)},
		SavedURIs:    []string{o.Store.URIForKey(cleanCSVKey(runID))},
		EvidenceKeys: []string{evidenceKey(runID)},
	}); err != nil {
		return Response{}, err
	}
	shadowlog.Event(ctx, o.Store, runID, "extraction_complete", nil)

	return Response{RunID: runID, Status: StatusOK, Message: "extraction complete", NextStep: NextStepReviewArtifacts}, nil
}

func clipRows(rows [][]string, start, end *int) [][]string {
	lo, hi := 0, len(rows)
	if start != nil && *start > lo {
		lo = *start
	}
	if end != nil && *end < hi {
		hi = *end
	}
	if lo > hi {
		return nil
	}
	return rows[lo:hi]
}

func filterColumns(headers, include, exclude []string) []int {
	excludeSet := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		excludeSet[e] = true
	}
	includeSet := make(map[string]bool, len(include))
	for _, in := range include {
		includeSet[in] = true
	}
	var idx []int
	for i, h := range headers {
		if excludeSet[h] {
			continue
		}
		if len(include) > 0 && !includeSet[h] {
			continue
		}
		idx = append(idx, i)
	}
	return idx
}

// cleanByDataType dispatches to the shared number/date/string cleaning
// rules by the adapter/recipe-declared type name.
func cleanByDataType(raw, dataType string) (string, bool) {
	switch dataType {
	case "number":
		return tabular.CleanValue(raw, tabular.DataTypeNumber)
	case "date":
		return tabular.CleanValue(raw, tabular.DataTypeDate)
	default:
		return tabular.CleanValue(raw, tabular.DataTypeString)
	}
}
