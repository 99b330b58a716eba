// File: internal/schemavalidate/validate.go
// Brief: Internal schemavalidate package implementation for 'schemavalidate'.

// Package schemavalidate loads the JSON-Schema set shipped with the system
// and validates run artifacts against it on write-out, using Draft 2020-12
// compilation via santhosh-tekuri/jsonschema/v6.
package schemavalidate

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/alleyfoo/puhemies-fleet/internal/artifactstore"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBaseURL = "https://puhemies-fleet.internal/schemas/"

// Validator compiles and caches the schema set shipped with the system.
type Validator struct {
	compiler *jsonschema.Compiler
	cache    map[string]*jsonschema.Schema
}

// New builds a Validator, loading every *.schema.json resource once.
func New() (*Validator, error) {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("read embedded schemas: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		raw, err := schemaFS.ReadFile("schemas/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", e.Name(), err)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("unmarshal schema %s: %w", e.Name(), err)
		}
		if err := compiler.AddResource(schemaBaseURL+e.Name(), doc); err != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", e.Name(), err)
		}
	}
	return &Validator{compiler: compiler, cache: make(map[string]*jsonschema.Schema)}, nil
}

func (v *Validator) schema(name string) (*jsonschema.Schema, error) {
	if sch, ok := v.cache[name]; ok {
		return sch, nil
	}
	sch, err := v.compiler.Compile(schemaBaseURL + name)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	v.cache[name] = sch
	return sch, nil
}

func (v *Validator) validateDoc(name string, instance any) error {
	sch, err := v.schema(name)
	if err != nil {
		return err
	}
	return sch.Validate(instance)
}

func decodeJSON(text string) (any, error) {
	return jsonschema.UnmarshalJSON(strings.NewReader(text))
}

// ValidateRun validates every snapshot, ticket, timeline-embedded incident,
// the fleet summary, and the run manifest under runID, returning one
// human-readable description per failure found (empty when all pass).
func ValidateRun(ctx context.Context, v *Validator, store artifactstore.Store, runID string) []string {
	var problems []string

	snapshotKeys, _ := store.List(ctx, runID+"/snapshots")
	for _, key := range filterJSON(snapshotKeys) {
		if err := validateKey(ctx, v, store, key, "snapshot.schema.json"); err != nil {
			problems = append(problems, fmt.Sprintf("snapshot %s: %v", key, err))
		}
	}

	ticketKeys, _ := store.List(ctx, runID+"/tickets")
	for _, key := range filterJSON(ticketKeys) {
		if err := validateKey(ctx, v, store, key, "ticket.schema.json"); err != nil {
			problems = append(problems, fmt.Sprintf("ticket %s: %v", key, err))
		}
	}

	timelineKeys, _ := store.List(ctx, runID+"/hosts")
	for _, key := range timelineKeys {
		if !strings.HasSuffix(key, "timeline.json") {
			continue
		}
		text, err := store.ReadText(ctx, key)
		if err != nil {
			problems = append(problems, fmt.Sprintf("timeline %s: %v", key, err))
			continue
		}
		doc, err := decodeJSON(text)
		if err != nil {
			problems = append(problems, fmt.Sprintf("timeline %s: %v", key, err))
			continue
		}
		m, ok := doc.(map[string]any)
		if !ok {
			problems = append(problems, fmt.Sprintf("timeline %s: not a JSON object", key))
			continue
		}
		incidents, _ := m["incidents"].([]any)
		sch, err := v.schema("incident.schema.json")
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		for _, inc := range incidents {
			if err := sch.Validate(inc); err != nil {
				problems = append(problems, fmt.Sprintf("timeline %s incident: %v", key, err))
			}
		}
	}

	fleetKey := runID + "/fleet_summary.json"
	if exists, _ := store.Exists(ctx, fleetKey); exists {
		if err := validateKey(ctx, v, store, fleetKey, "fleet_summary.schema.json"); err != nil {
			problems = append(problems, fmt.Sprintf("fleet_summary %s: %v", fleetKey, err))
		}
	}

	manifestKey := runID + "/save_manifest.json"
	if exists, _ := store.Exists(ctx, manifestKey); exists {
		if err := validateKey(ctx, v, store, manifestKey, "run_manifest.schema.json"); err != nil {
			problems = append(problems, fmt.Sprintf("run_manifest %s: %v", manifestKey, err))
		}
	}

	return problems
}

func validateKey(ctx context.Context, v *Validator, store artifactstore.Store, key, schemaName string) error {
	text, err := store.ReadText(ctx, key)
	if err != nil {
		return err
	}
	doc, err := decodeJSON(text)
	if err != nil {
		return err
	}
	return v.validateDoc(schemaName, doc)
}

func filterJSON(keys []string) []string {
	out := keys[:0:0]
	for _, k := range keys {
		if strings.HasSuffix(k, ".json") {
			out = append(out, k)
		}
	}
	return out
}

// ValidateOrError returns a single joined error if ValidateRun finds problems.
func ValidateOrError(ctx context.Context, v *Validator, store artifactstore.Store, runID string) error {
	problems := ValidateRun(ctx, v, store, runID)
	if len(problems) == 0 {
		return nil
	}
	return errors.New("schema validation failed: " + strings.Join(problems, "; "))
}
