// File: internal/config/config.go
// Brief: Internal config package implementation for 'config'.

// Package config defines the flag plumbing and runtime options shared by the
// two batch pipelines, translating Cobra/Viper flag values and environment
// variables into a strongly typed, immutable-once-validated struct that the
// orchestrator, extractor, and incident worker consume.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RedactionMode controls how aggressively event messages are scrubbed before
// incident detection runs over them.
type RedactionMode string

const (
	RedactionOff      RedactionMode = "off"
	RedactionBalanced RedactionMode = "balanced"
	RedactionStrict   RedactionMode = "strict"
)

const (
	envArtifactsRoot   = "ARTIFACTS_ROOT"
	envRetentionHours  = "RETENTION_HOURS"
	envRedactionMode   = "REDACTION_MODE"
	envRedactionSalt   = "REDACTION_SALT"
	envLockTTLMinutes  = "LOCK_TTL_MINUTES"
	defaultRetention   = 168
	defaultLockTTLMins = 15
)

// Options holds the configuration shared by both pipeline CLIs. Only the
// fields relevant to a given binary are populated by its flag set; the rest
// keep their defaults.
type Options struct {
	ArtifactsRoot   string
	SnapshotRoot    string
	SnapshotPrefix  string
	TicketPrefix    string
	RetentionHours  int
	WindowHours     int
	SelectMode      string
	MaxHosts        int
	RedactionMode   RedactionMode
	RedactionSalt   string
	LockTTLMinutes  int
	RunID           string
	Interactive     bool
	FlattenHeaders  bool
	SecretsConfig   string
}

// NewOptions returns Options with defaults applied, mirroring the
// environment-variable fallbacks described for the pipelines.
func NewOptions() *Options {
	return &Options{
		ArtifactsRoot:  firstNonEmpty(os.Getenv(envArtifactsRoot), "./artifacts"),
		RetentionHours: envInt(envRetentionHours, defaultRetention),
		SelectMode:     "latest",
		RedactionMode:  RedactionMode(firstNonEmpty(os.Getenv(envRedactionMode), string(RedactionBalanced))),
		RedactionSalt:  os.Getenv(envRedactionSalt),
		LockTTLMinutes: envInt(envLockTTLMinutes, defaultLockTTLMins),
		WindowHours:    24,
	}
}

// BindPuhemiesFlags attaches the Core A (Puhemies) flag set and returns the
// flag names for further customization, matching the reference CLI's pattern
// of returning bound flag names from BindFlags.
func (o *Options) BindPuhemiesFlags(fs *pflag.FlagSet) []string {
	var names []string
	fs.StringVar(&o.ArtifactsRoot, "artifacts-root", o.ArtifactsRoot, "Artifact store root (local path, file://, or gs://bucket/prefix)")
	names = append(names, "artifacts-root")
	fs.StringVar(&o.RunID, "run-id", "", "Run identifier; generated if omitted")
	names = append(names, "run-id")
	fs.BoolVar(&o.Interactive, "interactive", false, "Prompt for header confirmation instead of exiting when ambiguous")
	names = append(names, "interactive")
	fs.BoolVar(&o.FlattenHeaders, "flatten-headers", false, "Forward-fill a multi-row header block before scoring candidates")
	names = append(names, "flatten-headers")
	fs.StringVar(&o.SecretsConfig, "secrets-config", "", "Path to a secret provider config file for resolving secret:// references")
	names = append(names, "secrets-config")
	return names
}

// AddPuhemiesFlags binds Core A flags to the provided Cobra command.
func (o *Options) AddPuhemiesFlags(cmd *cobra.Command) {
	o.BindPuhemiesFlags(cmd.PersistentFlags())
}

// BindIncidentFlags attaches the Core B (fleet incident) flag set.
func (o *Options) BindIncidentFlags(fs *pflag.FlagSet) []string {
	var names []string
	fs.StringVar(&o.ArtifactsRoot, "artifacts-root", o.ArtifactsRoot, "Artifact store root (local path, file://, or gs://bucket/prefix)")
	names = append(names, "artifacts-root")
	fs.StringVar(&o.RunID, "run-id", "", "Run identifier for this worker invocation")
	names = append(names, "run-id")
	fs.StringVar(&o.SnapshotRoot, "snapshot-root", "", "Artifact store root where per-host snapshots are written (defaults to artifacts-root)")
	names = append(names, "snapshot-root")
	fs.StringVar(&o.SnapshotPrefix, "snapshot-prefix", "snapshots", "Key prefix under which per-host snapshots live")
	names = append(names, "snapshot-prefix")
	fs.StringVar(&o.TicketPrefix, "ticket-prefix", "tickets", "Key prefix under which tickets live")
	names = append(names, "ticket-prefix")
	fs.IntVar(&o.RetentionHours, "retention-hours", o.RetentionHours, "Delete run prefixes older than this many hours (except pinned or current)")
	names = append(names, "retention-hours")
	fs.IntVar(&o.WindowHours, "window-hours", o.WindowHours, "Only include snapshots ending within this many hours of now")
	names = append(names, "window-hours")
	fs.StringVar(&o.SelectMode, "select-mode", o.SelectMode, "Snapshot selection mode per host: latest or all")
	names = append(names, "select-mode")
	fs.IntVar(&o.MaxHosts, "max-hosts", 0, "Cap the number of hosts processed (0 = unlimited)")
	names = append(names, "max-hosts")
	fs.StringVar((*string)(&o.RedactionMode), "redaction-mode", string(o.RedactionMode), "Redaction level applied to event messages: off, balanced, or strict")
	names = append(names, "redaction-mode")
	fs.IntVar(&o.LockTTLMinutes, "lock-ttl-minutes", o.LockTTLMinutes, "Minutes after which a held worker lock is considered stale")
	names = append(names, "lock-ttl-minutes")
	fs.StringVar(&o.SecretsConfig, "secrets-config", "", "Path to a secret provider config file for resolving secret:// references")
	names = append(names, "secrets-config")
	return names
}

// AddIncidentFlags binds Core B flags to the provided Cobra command.
func (o *Options) AddIncidentFlags(cmd *cobra.Command) {
	o.BindIncidentFlags(cmd.PersistentFlags())
}

// Validate normalizes and checks option coherence, expanding the artifacts
// root's leading "~" the way the reference CLI expands kubeconfig paths.
func (o *Options) Validate() error {
	if strings.TrimSpace(o.ArtifactsRoot) == "" {
		return fmt.Errorf("artifacts root is required")
	}
	if expanded, err := homedir.Expand(o.ArtifactsRoot); err == nil {
		o.ArtifactsRoot = expanded
	}
	if o.SnapshotRoot == "" {
		o.SnapshotRoot = o.ArtifactsRoot
	} else if expanded, err := homedir.Expand(o.SnapshotRoot); err == nil {
		o.SnapshotRoot = expanded
	}
	switch strings.ToLower(strings.TrimSpace(string(o.RedactionMode))) {
	case "", "balanced":
		o.RedactionMode = RedactionBalanced
	case "off":
		o.RedactionMode = RedactionOff
	case "strict":
		o.RedactionMode = RedactionStrict
	default:
		return fmt.Errorf("invalid --redaction-mode value %q (allowed: off, balanced, strict)", o.RedactionMode)
	}
	switch strings.ToLower(strings.TrimSpace(o.SelectMode)) {
	case "", "latest":
		o.SelectMode = "latest"
	case "all":
		o.SelectMode = "all"
	default:
		return fmt.Errorf("invalid --select-mode value %q (allowed: latest, all)", o.SelectMode)
	}
	if o.RetentionHours < 0 {
		return fmt.Errorf("--retention-hours cannot be negative")
	}
	if o.WindowHours <= 0 {
		return fmt.Errorf("--window-hours must be positive")
	}
	if o.LockTTLMinutes <= 0 {
		return fmt.Errorf("--lock-ttl-minutes must be positive")
	}
	if o.MaxHosts < 0 {
		return fmt.Errorf("--max-hosts cannot be negative")
	}
	o.RunID = strings.TrimSpace(o.RunID)
	return nil
}

// LockTTL returns the configured lock TTL as a time.Duration.
func (o *Options) LockTTL() time.Duration {
	return time.Duration(o.LockTTLMinutes) * time.Minute
}

// RetentionWindow returns the configured retention window as a time.Duration.
func (o *Options) RetentionWindow() time.Duration {
	return time.Duration(o.RetentionHours) * time.Hour
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func envInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
