// File: internal/puhemies/types.go
// Brief: Artifact types for the tabular ingestion orchestrator.

// Package puhemies implements the resumable, human-in-the-loop tabular
// ingestion flow: preview a spreadsheet or delimited file, propose a
// header row, optionally accept a declarative extraction recipe, and
// persist every intermediate artifact so the run can be resumed or
// recalled.
package puhemies

import "encoding/json"

// EvidencePacket is the immutable record of what the orchestrator saw
// when it first looked at the input file.
type EvidencePacket struct {
	PreviewRows      [][]string `json:"preview_rows"`
	StructuralHash   string     `json:"structural_hash"`
	FileHash         string     `json:"file_hash"`
	SourceURI        string     `json:"source_uri"`
	InputArtifactKey string     `json:"input_artifact_key"`
	SheetName        string     `json:"sheet_name,omitempty"`
}

// HeaderCandidate is one proposed header row reading, scored by
// plausibility.
type HeaderCandidate struct {
	ID                string   `json:"id"`
	RowIndex          int      `json:"row_index"`
	NormalizedHeaders []string `json:"normalized_headers"`
	Confidence        float64  `json:"confidence"`
}

// HeaderSpec records the orchestrator's header selection.
type HeaderSpec struct {
	Candidates             []HeaderCandidate `json:"candidates"`
	SelectedCandidateID    string            `json:"selected_candidate_id"`
	NeedsHumanConfirmation bool              `json:"needs_human_confirmation"`
}

// HumanConfirmation is written by a caller to pick a candidate id.
type HumanConfirmation struct {
	ConfirmedHeaderCandidate string `json:"confirmed_header_candidate"`
	ConfirmedBy              string `json:"confirmed_by,omitempty"`
	Timestamp                string `json:"timestamp,omitempty"`
}

// HeaderOverride lets a caller hand-pick the header row and rename cells.
type HeaderOverride struct {
	HeaderRowIndex int               `json:"header_row_index"`
	EditedHeaders  map[string]string `json:"edited_headers,omitempty"`
	SheetName      string            `json:"sheet_name,omitempty"`
}

// SourcePointer is a tagged union: exactly one of Row/Col (metadata),
// Column (name), or ColumnIndex is meaningful, depending on the
// recipe field's SourceType.
type SourcePointer struct {
	Row         *int   `json:"row,omitempty"`
	Col         *int   `json:"col,omitempty"`
	Column      string `json:"column,omitempty"`
	Header      string `json:"header,omitempty"`
	ColumnName  string `json:"column_name,omitempty"`
	ColumnIndex *int   `json:"column_index,omitempty"`
}

// ColumnNameValue resolves whichever of the column-naming aliases was used.
func (p SourcePointer) ColumnNameValue() string {
	switch {
	case p.Column != "":
		return p.Column
	case p.Header != "":
		return p.Header
	case p.ColumnName != "":
		return p.ColumnName
	default:
		return ""
	}
}

// RecipeField declares one extraction target.
type RecipeField struct {
	Target        string        `json:"target"`
	SourceType    string        `json:"source_type"`
	SourcePointer SourcePointer `json:"source_pointer"`
	DataType      string        `json:"data_type,omitempty"`
}

// ManualRecipe is a declarative extraction plan: metadata cells, column
// mappings, types, and optional merge targets.
type ManualRecipe struct {
	Fields              []RecipeField `json:"fields"`
	HeaderRowIndex      *int          `json:"header_row_index,omitempty"`
	MergeMetadataFields []string      `json:"merge_metadata_fields,omitempty"`
}

// TableRegion optionally clips the data rows and columns read by the
// extractor.
type TableRegion struct {
	StartRow       *int     `json:"start_row,omitempty"`
	EndRow         *int     `json:"end_row,omitempty"`
	IncludeColumns []string `json:"include_columns,omitempty"`
	ExcludeColumns []string `json:"exclude_columns,omitempty"`
}

// AdapterSchema is an optional canonical-renaming/typing layer applied
// on top of a confirmed header.
type AdapterSchema struct {
	CanonicalFields []string          `json:"canonical_fields"`
	FieldMap        map[string]string `json:"field_map"`
	Types           map[string]string `json:"types,omitempty"`
	RequiredFields  []string          `json:"required_fields,omitempty"`
}

// SchemaSpecField describes one output column's provenance and type.
type SchemaSpecField struct {
	Name     string `json:"name"`
	DataType string `json:"data_type,omitempty"`
}

// SchemaSpec is written once extraction succeeds.
type SchemaSpec struct {
	Fields      []SchemaSpecField `json:"fields"`
	SchemaLayer string            `json:"schema_layer"`
}

// SaveManifest is the terminal marker for a successful run.
type SaveManifest struct {
	SavedFiles   []string `json:"saved_files"`
	SavedURIs    []string `json:"saved_uris"`
	EvidenceKeys []string `json:"evidence_keys"`
}

// Response is the shape returned by RunFromFile/ContinueRun to callers.
type Response struct {
	RunID    string            `json:"run_id"`
	Status   string            `json:"status"`
	Message  string            `json:"message"`
	Question string            `json:"question,omitempty"`
	Choices  []HeaderCandidate `json:"choices,omitempty"`
	NextStep string            `json:"next_step,omitempty"`
}

const (
	StatusOK                     = "ok"
	StatusNeedsHumanConfirmation = "needs_human_confirmation"
)

const (
	NextStepContinueToSchema          = "continue_to_schema"
	NextStepProvideConfirmedCandidate = "provide_confirmed_header_candidate"
	NextStepWriteHumanConfirmation    = "write_human_confirmation"
	NextStepFixManualRecipe           = "fix_manual_recipe"
	NextStepRerunRequired             = "rerun_required"
	NextStepReviewArtifacts           = "review_artifacts"
)

// Key helpers centralize the run-scoped artifact-store layout.
func evidenceKey(runID string) string          { return runID + "/evidence_packet.json" }
func headerSpecKey(runID string) string        { return runID + "/header_spec.json" }
func humanConfirmKey(runID string) string      { return runID + "/human_confirmation.json" }
func headerOverrideKey(runID string) string    { return runID + "/header_override.json" }
func manualRecipeKey(runID string) string      { return runID + "/manual_recipe.json" }
func tableRegionKey(runID string) string       { return runID + "/table_region.json" }
func adapterSchemaKey(runID string) string     { return runID + "/adapter_schema_spec.json" }
func schemaSpecKey(runID string) string        { return runID + "/schema_spec.json" }
func saveManifestKey(runID string) string      { return runID + "/save_manifest.json" }
func inputKey(runID, basename string) string   { return runID + "/input/" + basename }
func cleanCSVKey(runID string) string          { return runID + "/output/clean.csv" }
func cleanDataCSVKey(runID string) string      { return runID + "/output/clean_data.csv" }
func extractedMetadataKey(runID string) string { return runID + "/output/extracted_metadata.json" }

func marshalIndent(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
