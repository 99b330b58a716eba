// File: internal/shadowlog/shadowlog.go
// Brief: Internal shadowlog package implementation for 'shadowlog'.

// Package shadowlog appends JSON-line events to a single per-run ledger,
// shared between Core A (which labels entries "event") and Core B (which
// labels them "stage").
package shadowlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alleyfoo/puhemies-fleet/internal/artifactstore"
)

// Key returns the shadow log key for a run.
func Key(runID string) string {
	return runID + "/shadow.jsonl"
}

// Append records one event under the run's shadow log. label is stored
// under "event" for Core A callers and "stage" for Core B callers; both
// share this implementation since the artifact is one unified ledger.
func Append(ctx context.Context, store artifactstore.Store, runID, labelField, label string, meta map[string]any) error {
	if labelField != "event" && labelField != "stage" {
		return fmt.Errorf("shadowlog: labelField must be \"event\" or \"stage\", got %q", labelField)
	}
	entry := map[string]any{
		"run_id":     runID,
		labelField:   label,
		"created_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range meta {
		entry[k] = v
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal shadow event: %w", err)
	}

	key := Key(runID)
	existing, err := store.ReadText(ctx, key)
	if err != nil {
		if !errors.Is(err, artifactstore.ErrNotFound) {
			return fmt.Errorf("read shadow log: %w", err)
		}
		existing = ""
	}
	var b strings.Builder
	b.WriteString(existing)
	if existing != "" && !strings.HasSuffix(existing, "\n") {
		b.WriteString("\n")
	}
	b.Write(line)
	b.WriteString("\n")
	if err := store.WriteText(ctx, key, b.String()); err != nil {
		return fmt.Errorf("write shadow log: %w", err)
	}
	return nil
}

// Event is a convenience wrapper for Core A's "event" label.
func Event(ctx context.Context, store artifactstore.Store, runID, event string, meta map[string]any) error {
	return Append(ctx, store, runID, "event", event, meta)
}

// Stage is a convenience wrapper for Core B's "stage" label.
func Stage(ctx context.Context, store artifactstore.Store, runID, stage string, meta map[string]any) error {
	return Append(ctx, store, runID, "stage", stage, meta)
}

// Entry is a single decoded shadow log line, used by tests and diagnostics.
type Entry struct {
	RunID     string         `json:"run_id"`
	CreatedAt string         `json:"created_at"`
	Event     string         `json:"event,omitempty"`
	Stage     string         `json:"stage,omitempty"`
	Meta      map[string]any `json:"-"`
}

// ReadAll decodes every line of the run's shadow log in append order.
func ReadAll(ctx context.Context, store artifactstore.Store, runID string) ([]Entry, error) {
	text, err := store.ReadText(ctx, Key(runID))
	if err != nil {
		if errors.Is(err, artifactstore.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var entries []Entry
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var raw map[string]any
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			return nil, fmt.Errorf("decode shadow log line: %w", err)
		}
		e := Entry{Meta: raw}
		if v, ok := raw["run_id"].(string); ok {
			e.RunID = v
		}
		if v, ok := raw["created_at"].(string); ok {
			e.CreatedAt = v
		}
		if v, ok := raw["event"].(string); ok {
			e.Event = v
		}
		if v, ok := raw["stage"].(string); ok {
			e.Stage = v
		}
		entries = append(entries, e)
	}
	return entries, nil
}
