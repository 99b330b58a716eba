// File: internal/incident/lifecycle/lifecycle.go
// Brief: The locked, single-writer Core B worker run: lock, pipeline, validate, publish, purge.

// Package lifecycle drives one Core B worker invocation end to end: it
// acquires the advisory worker lock, runs the snapshot/redact/detect/
// cluster pipeline, writes per-host and fleet artifacts, schema-validates
// the run, updates history and the latest-run pointer, purges stale runs,
// and releases the lock on every path out.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/alleyfoo/puhemies-fleet/internal/artifactstore"
	"github.com/alleyfoo/puhemies-fleet/internal/config"
	"github.com/alleyfoo/puhemies-fleet/internal/incident"
	"github.com/alleyfoo/puhemies-fleet/internal/incident/cluster"
	"github.com/alleyfoo/puhemies-fleet/internal/incident/pipeline"
	"github.com/alleyfoo/puhemies-fleet/internal/incident/snapshot"
	"github.com/alleyfoo/puhemies-fleet/internal/schemavalidate"
	"github.com/alleyfoo/puhemies-fleet/internal/shadowlog"
)

const maxHistoryEntries = 7

// ErrLockHeld is returned when the worker lock is held and not yet stale.
var ErrLockHeld = errors.New("lifecycle: worker lock is held by another run")

// Worker executes one Core B run against a single artifact store.
// SnapshotStore, when set, is a separate store snapshots are read from
// (the --snapshot-root flag); all writes still go to Store.
type Worker struct {
	Store         artifactstore.Store
	SnapshotStore artifactstore.Store
	Validator     *schemavalidate.Validator
	Log           logr.Logger
}

// Run executes the full lifecycle for opts.RunID, returning the fleet
// summary on success. The run_status artifact and worker lock are managed
// internally and reflect the outcome on every return path.
func (w *Worker) Run(ctx context.Context, opts *config.Options) (incident.FleetSummary, error) {
	runID := opts.RunID
	if runID == "" {
		return incident.FleetSummary{}, fmt.Errorf("lifecycle: run id is required")
	}

	acquired, err := w.acquireLock(ctx, runID, opts.LockTTL())
	if err != nil {
		return incident.FleetSummary{}, fmt.Errorf("acquire worker lock: %w", err)
	}
	if !acquired {
		return incident.FleetSummary{}, ErrLockHeld
	}
	defer w.releaseLock(ctx)

	startedAt := time.Now().UTC().Format(time.RFC3339)
	w.writeRunStatus(ctx, incident.RunStatus{RunID: runID, Status: incident.RunStatusRunning, StartedAt: startedAt})
	shadowlog.Stage(ctx, w.Store, runID, "run_started", nil)

	summary, err := w.execute(ctx, opts)
	finishedAt := time.Now().UTC().Format(time.RFC3339)
	if err != nil {
		w.writeRunStatus(ctx, incident.RunStatus{
			RunID: runID, Status: incident.RunStatusFailure,
			StartedAt: startedAt, FinishedAt: finishedAt, Message: err.Error(),
		})
		shadowlog.Stage(ctx, w.Store, runID, "error", map[string]any{"message": err.Error()})
		return incident.FleetSummary{}, err
	}

	w.writeRunStatus(ctx, incident.RunStatus{
		RunID: runID, Status: incident.RunStatusSuccess,
		StartedAt: startedAt, FinishedAt: finishedAt, Message: "ok",
	})
	shadowlog.Stage(ctx, w.Store, runID, "run_finished", nil)
	return summary, nil
}

func (w *Worker) execute(ctx context.Context, opts *config.Options) (incident.FleetSummary, error) {
	runID := opts.RunID

	snapStore := w.SnapshotStore
	if snapStore == nil {
		snapStore = w.Store
	}
	snapPrefix := opts.SnapshotPrefix
	if snapPrefix == "" {
		snapPrefix = incident.SnapshotsPrefix(runID)
	} else {
		snapPrefix = runID + "/" + strings.TrimPrefix(snapPrefix, "/")
	}

	loaded, err := snapshot.Load(ctx, snapStore, runID, snapPrefix, opts.WindowHours, opts.SelectMode, opts.MaxHosts)
	if err != nil {
		return incident.FleetSummary{}, fmt.Errorf("load snapshots: %w", err)
	}
	shadowlog.Stage(ctx, w.Store, runID, "snapshots_selected", map[string]any{"count": len(loaded)})

	ticketPrefix := runID + "/" + strings.TrimPrefix(firstNonEmpty(opts.TicketPrefix, "tickets"), "/")
	timelines, err := pipeline.Build(ctx, w.Store, runID, ticketPrefix, opts.RedactionMode, opts.RedactionSalt, loaded)
	if err != nil {
		return incident.FleetSummary{}, fmt.Errorf("build host timelines: %w", err)
	}

	prevSummary, err := w.previousSummary(ctx)
	if err != nil {
		w.Log.V(1).Info("no usable prior fleet summary for delta computation", "error", err.Error())
	}

	summary := cluster.Aggregate(timelines, prevSummary)
	summary.RunID = runID
	summary.GeneratedAt = time.Now().UTC().Format(time.RFC3339)

	if err := w.writeHostArtifacts(ctx, runID, timelines); err != nil {
		return incident.FleetSummary{}, fmt.Errorf("write host artifacts: %w", err)
	}
	if err := writeJSON(ctx, w.Store, incident.FleetSummaryKey(runID), summary); err != nil {
		return incident.FleetSummary{}, fmt.Errorf("write fleet summary: %w", err)
	}
	shadowlog.Stage(ctx, w.Store, runID, "fleet_summary_written", map[string]any{"clusters": len(summary.Clusters)})

	if w.Validator != nil {
		if err := schemavalidate.ValidateOrError(ctx, w.Validator, w.Store, runID); err != nil {
			return incident.FleetSummary{}, err
		}
	}

	w.appendHistory(ctx, runID, summary)
	w.updateLatestPointer(ctx, runID)
	w.purgeOldRuns(ctx, runID, opts.RetentionWindow())

	return summary, nil
}

func (w *Worker) writeHostArtifacts(ctx context.Context, runID string, timelines map[string]incident.HostTimeline) error {
	hostIDs := make([]string, 0, len(timelines))
	for hostID := range timelines {
		hostIDs = append(hostIDs, hostID)
	}
	sort.Strings(hostIDs)
	for _, hostID := range hostIDs {
		timeline := timelines[hostID]
		if err := writeJSON(ctx, w.Store, incident.HostTimelineKey(runID, hostID), timeline); err != nil {
			return err
		}
		report := renderHostReport(timeline)
		if err := w.Store.WriteText(ctx, incident.HostReportKey(runID, hostID), report); err != nil {
			return err
		}
	}
	return nil
}

func renderHostReport(t incident.HostTimeline) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Host %s\n\n", t.HostID)
	fmt.Fprintf(&b, "- Window: %s -> %s\n", t.Window.Start, t.Window.End)
	fmt.Fprintf(&b, "- Severity: %.1f\n", t.Severity)
	fmt.Fprintf(&b, "- Incidents: %d\n\n", len(t.Incidents))
	if len(t.Incidents) == 0 {
		b.WriteString("No incidents detected.\n")
		return b.String()
	}
	b.WriteString("## Incidents\n\n")
	for _, inc := range t.Incidents {
		fmt.Fprintf(&b, "- `%s` **%s** severity=%.1f confidence=%.2f (signature %s)\n",
			inc.ID, inc.Type, inc.Severity, inc.Confidence, inc.SignatureHash)
	}
	if len(t.Tickets) > 0 {
		b.WriteString("\n## Tickets\n\n")
		for _, tk := range t.Tickets {
			fmt.Fprintf(&b, "- %s\n", tk.Subject)
		}
	}
	return b.String()
}

func (w *Worker) previousSummary(ctx context.Context) (*incident.FleetSummary, error) {
	lastRunID, err := w.Store.ReadText(ctx, incident.LatestPointerKey())
	if err != nil {
		if errors.Is(err, artifactstore.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	lastRunID = strings.TrimSpace(lastRunID)
	if lastRunID == "" {
		return nil, nil
	}
	data, err := w.Store.ReadBytes(ctx, incident.HistoryKey(lastRunID))
	if err != nil {
		if errors.Is(err, artifactstore.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var prev incident.FleetSummary
	if err := json.Unmarshal(data, &prev); err != nil {
		return nil, err
	}
	return &prev, nil
}

func (w *Worker) appendHistory(ctx context.Context, runID string, summary incident.FleetSummary) {
	if err := writeJSON(ctx, w.Store, incident.HistoryKey(runID), summary); err != nil {
		w.Log.Error(err, "failed to append run history")
		return
	}
	w.trimHistory(ctx)
}

func (w *Worker) trimHistory(ctx context.Context) {
	if _, local := w.Store.(*artifactstore.LocalStore); !local {
		return
	}
	keys, err := w.Store.List(ctx, "history")
	if err != nil {
		return
	}
	sort.Strings(keys)
	if len(keys) <= maxHistoryEntries {
		return
	}
	for _, key := range keys[:len(keys)-maxHistoryEntries] {
		if err := w.Store.DeletePrefix(ctx, key); err != nil {
			w.Log.V(1).Info("failed to trim old history entry", "key", key, "error", err.Error())
		}
	}
}

func (w *Worker) updateLatestPointer(ctx context.Context, runID string) {
	if err := w.Store.WriteText(ctx, incident.LatestPointerKey(), runID); err != nil {
		w.Log.Error(err, "failed to update latest run pointer")
	}
}

func (w *Worker) purgeOldRuns(ctx context.Context, currentRunID string, retention time.Duration) {
	if retention <= 0 {
		return
	}
	keys, err := w.Store.List(ctx, "")
	if err != nil {
		w.Log.V(1).Info("failed to list artifact store root for retention purge", "error", err.Error())
		return
	}
	cutoff := time.Now().UTC().Add(-retention)
	candidates := map[string]bool{}
	for _, key := range keys {
		prefix := strings.SplitN(key, "/", 2)[0]
		if prefix == "" || prefix == "history" || prefix == "locks" || prefix == incident.LatestPointerKey() {
			continue
		}
		candidates[prefix] = true
	}
	for runID := range candidates {
		if runID == currentRunID {
			continue
		}
		if pinned, _ := w.Store.Exists(ctx, incident.PinnedKey(runID)); pinned {
			continue
		}
		statusText, err := w.Store.ReadText(ctx, incident.RunStatusKey(runID))
		if err != nil {
			continue
		}
		var status incident.RunStatus
		if err := json.Unmarshal([]byte(statusText), &status); err != nil {
			continue
		}
		ts := status.FinishedAt
		if ts == "" {
			ts = status.StartedAt
		}
		finished, err := time.Parse(time.RFC3339, ts)
		if err != nil || finished.After(cutoff) {
			continue
		}
		if err := w.Store.DeletePrefix(ctx, runID); err != nil {
			w.Log.V(1).Info("failed to purge old run", "run_id", runID, "error", err.Error())
		}
	}
}

func (w *Worker) acquireLock(ctx context.Context, runID string, ttl time.Duration) (bool, error) {
	lock := incident.WorkerLock{
		RunID:      runID,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
		TTLMinutes: int(ttl.Minutes()),
	}
	data, err := json.Marshal(lock)
	if err != nil {
		return false, err
	}

	ok, err := w.Store.CreateIfAbsent(ctx, incident.WorkerLockKey(), data)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}

	existing, err := w.Store.ReadBytes(ctx, incident.WorkerLockKey())
	if err != nil {
		if errors.Is(err, artifactstore.ErrNotFound) {
			return w.Store.CreateIfAbsent(ctx, incident.WorkerLockKey(), data)
		}
		return false, err
	}
	var held incident.WorkerLock
	if err := json.Unmarshal(existing, &held); err != nil {
		return false, nil
	}
	createdAt, err := time.Parse(time.RFC3339, held.CreatedAt)
	if err != nil {
		return false, nil
	}
	if time.Since(createdAt) <= time.Duration(held.TTLMinutes)*time.Minute {
		return false, nil
	}

	shadowlog.Stage(ctx, w.Store, runID, "lock_break_glass", map[string]any{"stale_run_id": held.RunID})
	if err := w.Store.DeletePrefix(ctx, incident.WorkerLockKey()); err != nil {
		return false, err
	}
	return w.Store.CreateIfAbsent(ctx, incident.WorkerLockKey(), data)
}

func (w *Worker) releaseLock(ctx context.Context) {
	if err := w.Store.DeletePrefix(ctx, incident.WorkerLockKey()); err != nil {
		w.Log.V(1).Info("failed to release worker lock", "error", err.Error())
	}
}

func (w *Worker) writeRunStatus(ctx context.Context, status incident.RunStatus) {
	if err := writeJSON(ctx, w.Store, incident.RunStatusKey(status.RunID), status); err != nil {
		w.Log.Error(err, "failed to write run status")
	}
}

func writeJSON(ctx context.Context, store artifactstore.Store, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return store.WriteBytes(ctx, key, data)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
