package lifecycle

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-logr/logr"

	"github.com/alleyfoo/puhemies-fleet/internal/artifactstore"
	"github.com/alleyfoo/puhemies-fleet/internal/config"
	"github.com/alleyfoo/puhemies-fleet/internal/incident"
)

func newOpts(t *testing.T, runID string) *config.Options {
	t.Helper()
	opts := config.NewOptions()
	opts.RunID = runID
	opts.SelectMode = "latest"
	opts.WindowHours = 24
	opts.RedactionMode = config.RedactionBalanced
	opts.LockTTLMinutes = 15
	opts.RetentionHours = 0
	return opts
}

func writeSnapshot(t *testing.T, store artifactstore.Store, runID, hostID string, tagged bool) {
	t.Helper()
	now := time.Now().UTC()
	var tags []string
	if tagged {
		tags = []string{"bsod"}
	}
	snap := incident.Snapshot{
		HostID: hostID,
		Window: incident.Window{Start: now.Add(-time.Hour).Format(time.RFC3339), End: now.Format(time.RFC3339)},
		Events: []incident.Event{{TS: now.Format(time.RFC3339), Provider: "Kernel-Power", Message: "reboot", Tags: tags}},
	}
	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	key := runID + "/snapshots/" + hostID + "/snapshot-20260731T000000Z.json"
	if err := store.WriteBytes(context.Background(), key, data); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
}

func TestWorkerRunProducesFleetSummaryAndSuccessStatus(t *testing.T) {
	store, err := artifactstore.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}
	writeSnapshot(t, store, "run1", "hostA", true)

	worker := &Worker{Store: store, Log: logr.Discard()}
	opts := newOpts(t, "run1")
	summary, err := worker.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(summary.TopHosts) != 1 {
		t.Fatalf("expected one top host, got %d", len(summary.TopHosts))
	}

	statusText, err := store.ReadText(context.Background(), incident.RunStatusKey("run1"))
	if err != nil {
		t.Fatalf("read run status: %v", err)
	}
	var status incident.RunStatus
	if err := json.Unmarshal([]byte(statusText), &status); err != nil {
		t.Fatalf("unmarshal run status: %v", err)
	}
	if status.Status != incident.RunStatusSuccess {
		t.Fatalf("expected success status, got %q", status.Status)
	}

	latest, err := store.ReadText(context.Background(), incident.LatestPointerKey())
	if err != nil {
		t.Fatalf("read latest pointer: %v", err)
	}
	if latest != "run1" {
		t.Fatalf("expected latest pointer to be run1, got %q", latest)
	}

	held, err := store.Exists(context.Background(), incident.WorkerLockKey())
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if held {
		t.Fatalf("expected lock to be released after a successful run")
	}
}

func TestWorkerRunReadsSnapshotsFromSeparateSnapshotStore(t *testing.T) {
	store, err := artifactstore.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}
	snapStore, err := artifactstore.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new snapshot store: %v", err)
	}
	// The snapshot lives only in the snapshot store; a worker reading the
	// artifacts store would see an empty fleet.
	writeSnapshot(t, snapStore, "run1", "hostA", true)

	worker := &Worker{Store: store, SnapshotStore: snapStore, Log: logr.Discard()}
	opts := newOpts(t, "run1")
	summary, err := worker.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.HostCount != 1 || len(summary.TopHosts) != 1 {
		t.Fatalf("expected the snapshot-store host in the summary, got %+v", summary)
	}

	// All writes still land in the artifacts store.
	if exists, _ := store.Exists(context.Background(), incident.HostTimelineKey("run1", "hostA")); !exists {
		t.Fatalf("expected timeline written to the artifacts store")
	}
	if exists, _ := snapStore.Exists(context.Background(), incident.HostTimelineKey("run1", "hostA")); exists {
		t.Fatalf("expected no writes to the snapshot store")
	}
}

func TestWorkerRunRefusesWhenLockIsFresh(t *testing.T) {
	store, err := artifactstore.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}
	lock := incident.WorkerLock{RunID: "other-run", CreatedAt: time.Now().UTC().Format(time.RFC3339), TTLMinutes: 15}
	data, _ := json.Marshal(lock)
	if _, err := store.CreateIfAbsent(context.Background(), incident.WorkerLockKey(), data); err != nil {
		t.Fatalf("seed lock: %v", err)
	}

	worker := &Worker{Store: store, Log: logr.Discard()}
	opts := newOpts(t, "run1")
	if _, err := worker.Run(context.Background(), opts); err != ErrLockHeld {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}
}

func TestWorkerRunBreaksGlassOnStaleLock(t *testing.T) {
	store, err := artifactstore.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}
	staleLock := incident.WorkerLock{RunID: "other-run", CreatedAt: time.Now().UTC().Add(-time.Hour).Format(time.RFC3339), TTLMinutes: 15}
	data, _ := json.Marshal(staleLock)
	if _, err := store.CreateIfAbsent(context.Background(), incident.WorkerLockKey(), data); err != nil {
		t.Fatalf("seed stale lock: %v", err)
	}
	writeSnapshot(t, store, "run1", "hostA", false)

	worker := &Worker{Store: store, Log: logr.Discard()}
	opts := newOpts(t, "run1")
	if _, err := worker.Run(context.Background(), opts); err != nil {
		t.Fatalf("expected stale lock to be broken and run to proceed, got error: %v", err)
	}
}
