// File: internal/puhemies/orchestrate.go
// Brief: RunFromFile entry point — preview, evidence, header candidates, ambiguity gate.

package puhemies

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/alleyfoo/puhemies-fleet/internal/artifactstore"
	"github.com/alleyfoo/puhemies-fleet/internal/recipestore"
	"github.com/alleyfoo/puhemies-fleet/internal/shadowlog"
	"github.com/alleyfoo/puhemies-fleet/internal/tabular"
)

const previewRowCount = 5

// Orchestrator ties the artifact store and recipe index together for a
// single caller. It holds no per-run state; every call is keyed by run_id.
type Orchestrator struct {
	Store   artifactstore.Store
	Recipes *recipestore.Index
	Log     logr.Logger

	// FlattenHeaders forward-fills the first two preview rows into a
	// single header row before candidate scoring. The structural hash is
	// always computed over the raw preview so fingerprints stay stable
	// whether or not flattening is requested.
	FlattenHeaders bool
}

// materializeLocal resolves inputPath to a local filesystem path,
// downloading it first if it names an object-storage URI.
func materializeLocal(ctx context.Context, store artifactstore.Store, inputPath string) (string, func(), error) {
	if !artifactstore.IsObjectURI(inputPath) {
		return inputPath, func() {}, nil
	}
	bucket, prefix, err := artifactstore.ParseObjectURI(inputPath)
	if err != nil {
		return "", nil, err
	}
	objStore, err := artifactstore.NewObjectStore(ctx, bucket, "")
	if err != nil {
		return "", nil, fmt.Errorf("open object store for %q: %w", inputPath, err)
	}
	data, err := objStore.ReadBytes(ctx, prefix)
	if err != nil {
		return "", nil, fmt.Errorf("download %q: %w", inputPath, err)
	}
	tmp, err := os.CreateTemp("", "puhemies-input-*"+filepath.Ext(prefix))
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()
	cleanup := func() { os.Remove(tmp.Name()) }
	return tmp.Name(), cleanup, nil
}

// RunFromFile is the Core A entry point: preview the file, compute its
// fingerprints, write the evidence packet, score header candidates, and
// either finish as ok or suspend as needs_human_confirmation.
func (o *Orchestrator) RunFromFile(ctx context.Context, runID, inputPath string) (Response, error) {
	localPath, cleanup, err := materializeLocal(ctx, o.Store, inputPath)
	if err != nil {
		return Response{}, err
	}
	defer cleanup()

	if !tabular.IsSupported(localPath) {
		return Response{}, fmt.Errorf("unsupported_input: %s", filepath.Ext(localPath))
	}

	fullBytes, err := os.ReadFile(localPath)
	if err != nil {
		return Response{}, fmt.Errorf("read input %q: %w", localPath, err)
	}

	sheet, err := tabular.ReadPreview(localPath, "", previewRowCount)
	if err != nil {
		return Response{}, fmt.Errorf("read preview: %w", err)
	}
	if sheet.Rows == nil {
		sheet.Rows = [][]string{}
	}

	fileHash := FileHash(fullBytes)
	structuralHash := StructuralHash(sheet.Rows)

	basename := filepath.Base(localPath)
	artifactKey := inputKey(runID, basename)
	if err := o.Store.WriteBytes(ctx, artifactKey, fullBytes); err != nil {
		return Response{}, fmt.Errorf("persist input copy: %w", err)
	}

	evidence := EvidencePacket{
		PreviewRows:      sheet.Rows,
		StructuralHash:   structuralHash,
		FileHash:         fileHash,
		SourceURI:        inputPath,
		InputArtifactKey: artifactKey,
		SheetName:        sheet.SheetName,
	}
	if err := writeJSON(ctx, o.Store, evidenceKey(runID), evidence); err != nil {
		return Response{}, err
	}

	candidateRows := sheet.Rows
	flattened := false
	if o.FlattenHeaders && len(candidateRows) >= 2 {
		flat := tabular.FlattenHeaders(candidateRows, 2)
		candidateRows = append([][]string{flat}, candidateRows[2:]...)
		flattened = true
	}

	candidates := BuildHeaderCandidates(candidateRows)
	if flattened {
		// The flattened candidate stands in for sheet rows 0-1, so every
		// candidate's row index shifts by one relative to the full sheet.
		for i := range candidates {
			candidates[i].RowIndex++
		}
	}
	if len(candidates) == 0 {
		shadowlog.Event(ctx, o.Store, runID, "stop_due_to_no_candidates", nil)
		return Response{
			RunID:    runID,
			Status:   StatusNeedsHumanConfirmation,
			Message:  "input file is empty; no header candidates available",
			Question: "which row (if any) contains the header?",
			Choices:  nil,
			NextStep: NextStepWriteHumanConfirmation,
		}, nil
	}

	best, _ := SelectBestCandidate(candidates)
	if IsAmbiguous(best) {
		if err := writeJSON(ctx, o.Store, headerSpecKey(runID), HeaderSpec{
			Candidates:             candidates,
			SelectedCandidateID:    "",
			NeedsHumanConfirmation: true,
		}); err != nil {
			return Response{}, err
		}
		shadowlog.Event(ctx, o.Store, runID, "stop_due_to_ambiguous_headers", nil)
		return Response{
			RunID:    runID,
			Status:   StatusNeedsHumanConfirmation,
			Message:  "header row is ambiguous; human confirmation required",
			Question: "which candidate row is the header?",
			Choices:  candidates,
			NextStep: NextStepProvideConfirmedCandidate,
		}, nil
	}

	if err := writeJSON(ctx, o.Store, headerSpecKey(runID), HeaderSpec{
		Candidates:             candidates,
		SelectedCandidateID:    best.ID,
		NeedsHumanConfirmation: false,
	}); err != nil {
		return Response{}, err
	}
	shadowlog.Event(ctx, o.Store, runID, "header_candidate_selected", map[string]any{"candidate_id": best.ID})

	if o.Recipes != nil {
		if raw, ok, err := o.Recipes.Lookup(ctx, structuralHash); err == nil && ok {
			var recalled ManualRecipe
			if err := json.Unmarshal(raw, &recalled); err == nil {
				if err := writeJSON(ctx, o.Store, manualRecipeKey(runID), recalled); err == nil {
					shadowlog.Event(ctx, o.Store, runID, "manual_recipe_recalled", map[string]any{
						"structural_hash": structuralHash,
						"header_diff":     recalledHeaderDiff(recalled, best),
					})
					return o.ContinueRun(ctx, runID)
				}
			}
		}
	}

	return Response{
		RunID:    runID,
		Status:   StatusOK,
		Message:  "header selected",
		NextStep: NextStepContinueToSchema,
	}, nil
}

// recalledHeaderDiff renders a unified diff between the column names a
// recalled recipe expects and the headers of the candidate row actually
// selected this run, so a reviewer can spot drift without decoding both
// artifacts by hand.
func recalledHeaderDiff(recalled ManualRecipe, candidate HeaderCandidate) string {
	var expected []string
	for _, f := range recalled.Fields {
		if f.SourceType == "column" {
			if name := f.SourcePointer.ColumnNameValue(); name != "" {
				expected = append(expected, name)
			}
		}
	}
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(strings.Join(expected, "\n") + "\n"),
		B:        difflib.SplitLines(strings.Join(candidate.NormalizedHeaders, "\n") + "\n"),
		FromFile: "recalled_recipe_columns",
		ToFile:   "current_header_candidate",
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return ""
	}
	return text
}
