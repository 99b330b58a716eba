// File: cmd/incident-flow/main.go
// Brief: Main incident-flow CLI entrypoint and root command wiring.

// main.go bootstraps the fleet incident detection worker: it builds the
// root Cobra command, wires an environment-aware Viper layer over the
// flags, and executes with a signal-cancellable context.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/alleyfoo/puhemies-fleet/internal/artifactstore"
	"github.com/alleyfoo/puhemies-fleet/internal/config"
	"github.com/alleyfoo/puhemies-fleet/internal/incident/lifecycle"
	"github.com/alleyfoo/puhemies-fleet/internal/incident/validation"
	"github.com/alleyfoo/puhemies-fleet/internal/logging"
	"github.com/alleyfoo/puhemies-fleet/internal/schemavalidate"
	"github.com/alleyfoo/puhemies-fleet/internal/secretstore"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	root := buildRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		writeHighlightedError(os.Stderr, err.Error())
		if errors.Is(err, lifecycle.ErrLockHeld) {
			os.Exit(3)
		}
		os.Exit(1)
	}
}

func buildRootCommand() *cobra.Command {
	opts := config.NewOptions()
	var logLevel string

	root := &cobra.Command{
		Use:           "incident-flow",
		Short:         "Fleet incident detection worker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log verbosity: debug, info, warn, or error")
	opts.AddIncidentFlags(root)

	bindViper("INCIDENT_FLOW", root)

	root.AddCommand(
		newRunCommand(opts, &logLevel),
		newValidateCommand(opts),
	)
	return root
}

func newRunCommand(opts *config.Options, logLevel *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one locked worker run over the fleet's snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.Validate(); err != nil {
				return pkgerrors.Wrap(err, "validate options")
			}
			if opts.RunID == "" {
				opts.RunID = "run-" + uuid.NewString()
			}
			if err := resolveSecretRefs(cmd.Context(), opts); err != nil {
				return pkgerrors.Wrap(err, "resolve secret references")
			}
			log, err := logging.New(*logLevel)
			if err != nil {
				return pkgerrors.Wrap(err, "build logger")
			}
			store, err := artifactstore.Build(cmd.Context(), opts.ArtifactsRoot)
			if err != nil {
				return pkgerrors.Wrap(err, "open artifact store")
			}
			snapStore := store
			if opts.SnapshotRoot != opts.ArtifactsRoot {
				snapStore, err = artifactstore.Build(cmd.Context(), opts.SnapshotRoot)
				if err != nil {
					return pkgerrors.Wrap(err, "open snapshot store")
				}
			}
			validator, err := schemavalidate.New()
			if err != nil {
				return pkgerrors.Wrap(err, "build schema validator")
			}
			worker := &lifecycle.Worker{Store: store, SnapshotStore: snapStore, Validator: validator, Log: log}
			summary, err := worker.Run(cmd.Context(), opts)
			if err != nil {
				return pkgerrors.Wrap(err, "run")
			}
			log.Info("run complete", "run_id", opts.RunID, "overall_risk_score", summary.OverallRiskScore, "clusters", len(summary.Clusters))
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: risk=%.1f clusters=%d top_hosts=%d\n",
				opts.RunID, summary.OverallRiskScore, len(summary.Clusters), len(summary.TopHosts))
			return nil
		},
	}
	return cmd
}

func newValidateCommand(opts *config.Options) *cobra.Command {
	var strictScenario bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Schema-validate a run and score it against truth labels when present",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.RunID == "" {
				return fmt.Errorf("--run-id is required")
			}
			if err := opts.Validate(); err != nil {
				return pkgerrors.Wrap(err, "validate options")
			}
			store, err := artifactstore.Build(cmd.Context(), opts.ArtifactsRoot)
			if err != nil {
				return pkgerrors.Wrap(err, "open artifact store")
			}
			validator, err := schemavalidate.New()
			if err != nil {
				return pkgerrors.Wrap(err, "build schema validator")
			}

			summary, err := validation.Run(cmd.Context(), validator, store, opts.RunID)
			if errors.Is(err, validation.ErrNoTruth) {
				problems := schemavalidate.ValidateRun(cmd.Context(), validator, store, opts.RunID)
				if len(problems) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "ok: no schema violations found (no truth labels to score against)")
					return nil
				}
				for _, p := range problems {
					fmt.Fprintln(cmd.OutOrStdout(), p)
				}
				return fmt.Errorf("%d schema violation(s) found", len(problems))
			}
			if err != nil {
				return pkgerrors.Wrap(err, "validate run")
			}

			fmt.Fprintf(cmd.OutOrStdout(), "run %s: precision=%.2f recall=%.2f ranking=%.2f cluster_detected=%v\n",
				opts.RunID, summary.IncidentTypePrecision, summary.IncidentTypeRecall, summary.RankingScore, summary.ClusterDetected)
			for _, w := range summary.ScenarioWarnings {
				fmt.Fprintf(cmd.OutOrStdout(), "warning: %s\n", w)
			}
			if strictScenario && len(summary.ScenarioWarnings) > 0 {
				return fmt.Errorf("%d scenario check(s) failed", len(summary.ScenarioWarnings))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strictScenario, "strict-scenario", false, "Fail when scenario checks produce warnings (useful for CI)")
	return cmd
}

// resolveSecretRefs expands a secret://provider/path reference in the
// redaction salt when --secrets-config points at a provider file. Left
// untouched when no secrets config is configured or the salt isn't a
// reference, so plain-text salts keep working without one.
func resolveSecretRefs(ctx context.Context, opts *config.Options) error {
	if strings.TrimSpace(opts.SecretsConfig) == "" {
		return nil
	}
	cfg, err := secretstore.LoadConfig(opts.SecretsConfig)
	if err != nil {
		return err
	}
	resolver, err := secretstore.NewResolver(cfg, secretstore.ResolverOptions{Mode: secretstore.ResolveModeValue})
	if err != nil {
		return err
	}
	resolved, _, err := resolver.ResolveString(ctx, opts.RedactionSalt)
	if err != nil {
		return err
	}
	opts.RedactionSalt = resolved
	return nil
}

var (
	viperInitOnce sync.Once
	viperMu       sync.Mutex
	viperCmds     []*cobra.Command
)

func bindViper(prefix string, commands ...*cobra.Command) {
	viperMu.Lock()
	viperCmds = append(viperCmds, commands...)
	viperMu.Unlock()

	viperInitOnce.Do(func() {
		v := viper.New()
		v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
		v.SetEnvPrefix(prefix)
		v.AutomaticEnv()

		cobra.OnInitialize(func() {
			viperMu.Lock()
			cmds := append([]*cobra.Command(nil), viperCmds...)
			viperMu.Unlock()

			for _, cmd := range cmds {
				_ = v.BindPFlags(cmd.PersistentFlags())
				for _, sub := range cmd.Commands() {
					_ = v.BindPFlags(sub.Flags())
				}
			}
			for _, cmd := range cmds {
				for _, sub := range cmd.Commands() {
					sub.Flags().VisitAll(func(f *pflag.Flag) {
						if f.Changed || !v.IsSet(f.Name) {
							return
						}
						if val := fmt.Sprintf("%v", v.Get(f.Name)); val != "" {
							_ = f.Value.Set(val)
						}
					})
				}
			}
		})
	})
}

func writeHighlightedError(w io.Writer, message string) {
	errPrefix := color.New(color.FgRed, color.Bold).Sprint("Error:")
	fmt.Fprintf(w, "%s %s\n", errPrefix, message)
}
