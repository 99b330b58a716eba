package artifactstore

import (
	"context"
	"errors"
	"sort"
	"testing"
)

func TestLocalStoreWriteReadRoundTrip(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}
	ctx := context.Background()
	if err := store.WriteText(ctx, "run1/evidence_packet.json", `{"ok":true}`); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := store.ReadText(ctx, "run1/evidence_packet.json")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != `{"ok":true}` {
		t.Fatalf("unexpected content: %s", got)
	}
}

func TestLocalStoreReadMissingReturnsNotFound(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}
	_, err = store.ReadText(context.Background(), "missing.json")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLocalStoreCreateIfAbsentAtomic(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}
	ctx := context.Background()
	ok, err := store.CreateIfAbsent(ctx, "locks/worker.lock", []byte("first"))
	if err != nil || !ok {
		t.Fatalf("expected first create to succeed, got ok=%v err=%v", ok, err)
	}
	ok, err = store.CreateIfAbsent(ctx, "locks/worker.lock", []byte("second"))
	if err != nil {
		t.Fatalf("second create errored: %v", err)
	}
	if ok {
		t.Fatalf("expected second create to report false")
	}
	got, err := store.ReadText(ctx, "locks/worker.lock")
	if err != nil {
		t.Fatalf("read lock: %v", err)
	}
	if got != "first" {
		t.Fatalf("lock content should be unchanged, got %q", got)
	}
}

func TestLocalStoreListRecursive(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}
	ctx := context.Background()
	keys := []string{"run1/snapshots/hostA/snapshot-1.json", "run1/snapshots/hostB/snapshot-1.json", "run1/fleet_summary.json"}
	for _, k := range keys {
		if err := store.WriteText(ctx, k, "{}"); err != nil {
			t.Fatalf("write %s: %v", k, err)
		}
	}
	listed, err := store.List(ctx, "run1/snapshots")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	sort.Strings(listed)
	want := []string{"run1/snapshots/hostA/snapshot-1.json", "run1/snapshots/hostB/snapshot-1.json"}
	if len(listed) != len(want) {
		t.Fatalf("expected %v, got %v", want, listed)
	}
	for i := range want {
		if listed[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, listed)
		}
	}
}

func TestLocalStoreDeletePrefixBestEffort(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}
	ctx := context.Background()
	if err := store.DeletePrefix(ctx, "never/existed"); err != nil {
		t.Fatalf("delete prefix of absent key should not error: %v", err)
	}
	if err := store.WriteText(ctx, "run1/a.json", "{}"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := store.DeletePrefix(ctx, "run1"); err != nil {
		t.Fatalf("delete prefix: %v", err)
	}
	exists, err := store.Exists(ctx, "run1/a.json")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists {
		t.Fatalf("expected key to be gone after delete_prefix")
	}
}
