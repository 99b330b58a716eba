// File: internal/config/config_test.go
// Brief: Internal config package implementation for 'config'.

// config_test.go verifies Options parsing, validation, and env fallbacks for
// the two pipeline CLIs.
package config

import (
	"testing"
)

func TestNewOptionsDefaults(t *testing.T) {
	opts := NewOptions()
	if opts.ArtifactsRoot == "" {
		t.Fatalf("expected a default artifacts root")
	}
	if opts.RetentionHours != defaultRetention {
		t.Fatalf("retention default mismatch, got %d", opts.RetentionHours)
	}
	if opts.RedactionMode != RedactionBalanced {
		t.Fatalf("expected balanced redaction by default, got %s", opts.RedactionMode)
	}
	if opts.LockTTLMinutes != defaultLockTTLMins {
		t.Fatalf("lock ttl default mismatch, got %d", opts.LockTTLMinutes)
	}
}

func TestValidateKeepsAbsoluteArtifactsRootAndDefaultsSnapshotRoot(t *testing.T) {
	opts := NewOptions()
	opts.ArtifactsRoot = "/tmp/runs"
	if err := opts.Validate(); err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if opts.ArtifactsRoot != "/tmp/runs" {
		t.Fatalf("unexpected artifacts root: %s", opts.ArtifactsRoot)
	}
	if opts.SnapshotRoot != opts.ArtifactsRoot {
		t.Fatalf("expected snapshot root to default to artifacts root")
	}
}

func TestValidatePreservesNonDefaultSnapshotRoot(t *testing.T) {
	opts := NewOptions()
	opts.ArtifactsRoot = "/tmp/runs"
	opts.SnapshotRoot = "/tmp/snapshots"
	if err := opts.Validate(); err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if opts.SnapshotRoot != "/tmp/snapshots" {
		t.Fatalf("expected snapshot root to keep its non-default value, got %s", opts.SnapshotRoot)
	}
}

func TestValidateRejectsEmptyArtifactsRoot(t *testing.T) {
	opts := NewOptions()
	opts.ArtifactsRoot = ""
	if err := opts.Validate(); err == nil {
		t.Fatalf("expected error for empty artifacts root")
	}
}

func TestValidateRedactionMode(t *testing.T) {
	opts := NewOptions()
	opts.ArtifactsRoot = "/tmp/runs"
	opts.RedactionMode = "strict"
	if err := opts.Validate(); err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if opts.RedactionMode != RedactionStrict {
		t.Fatalf("expected strict redaction, got %s", opts.RedactionMode)
	}
}

func TestValidateRejectsUnknownRedactionMode(t *testing.T) {
	opts := NewOptions()
	opts.ArtifactsRoot = "/tmp/runs"
	opts.RedactionMode = "paranoid"
	if err := opts.Validate(); err == nil {
		t.Fatalf("expected error for unknown redaction mode")
	}
}

func TestValidateSelectMode(t *testing.T) {
	opts := NewOptions()
	opts.ArtifactsRoot = "/tmp/runs"
	opts.SelectMode = "bogus"
	if err := opts.Validate(); err == nil {
		t.Fatalf("expected error for unknown select mode")
	}
}

func TestValidateRejectsNegativeRetention(t *testing.T) {
	opts := NewOptions()
	opts.ArtifactsRoot = "/tmp/runs"
	opts.RetentionHours = -1
	if err := opts.Validate(); err == nil {
		t.Fatalf("expected error for negative retention")
	}
}

func TestLockTTLAndRetentionWindow(t *testing.T) {
	opts := NewOptions()
	opts.ArtifactsRoot = "/tmp/runs"
	opts.LockTTLMinutes = 30
	opts.RetentionHours = 2
	if err := opts.Validate(); err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if opts.LockTTL().Minutes() != 30 {
		t.Fatalf("expected 30 minute lock ttl, got %v", opts.LockTTL())
	}
	if opts.RetentionWindow().Hours() != 2 {
		t.Fatalf("expected 2 hour retention window, got %v", opts.RetentionWindow())
	}
}
