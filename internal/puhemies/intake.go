// File: internal/puhemies/intake.go
// Brief: Exported writers for the human-in-the-loop intake artifacts.

package puhemies

import "context"

// SubmitHumanConfirmation records a human's header-candidate pick and
// resumes the run.
func (o *Orchestrator) SubmitHumanConfirmation(ctx context.Context, runID string, confirmation HumanConfirmation) (Response, error) {
	if err := writeJSON(ctx, o.Store, humanConfirmKey(runID), confirmation); err != nil {
		return Response{}, err
	}
	return o.ContinueRun(ctx, runID)
}

// SubmitHeaderOverride records a hand-picked header row/renames and
// resumes the run.
func (o *Orchestrator) SubmitHeaderOverride(ctx context.Context, runID string, override HeaderOverride) (Response, error) {
	if err := writeJSON(ctx, o.Store, headerOverrideKey(runID), override); err != nil {
		return Response{}, err
	}
	return o.ContinueRun(ctx, runID)
}

// SubmitManualRecipe records a declarative extraction recipe and resumes
// the run.
func (o *Orchestrator) SubmitManualRecipe(ctx context.Context, runID string, recipe ManualRecipe) (Response, error) {
	if err := writeJSON(ctx, o.Store, manualRecipeKey(runID), recipe); err != nil {
		return Response{}, err
	}
	return o.ContinueRun(ctx, runID)
}
