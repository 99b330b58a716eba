// File: cmd/puhemies/main.go
// Brief: Main puhemies CLI entrypoint and root command wiring.

// main.go bootstraps the puhemies CLI: it builds the root Cobra command,
// wires an environment-aware Viper layer over the flags, and executes
// with a signal-cancellable context.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/alleyfoo/puhemies-fleet/internal/artifactstore"
	"github.com/alleyfoo/puhemies-fleet/internal/config"
	"github.com/alleyfoo/puhemies-fleet/internal/logging"
	"github.com/alleyfoo/puhemies-fleet/internal/puhemies"
	"github.com/alleyfoo/puhemies-fleet/internal/recipestore"
	"github.com/alleyfoo/puhemies-fleet/internal/schemavalidate"
)

const exitNeedsConfirmation = 2

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	root, err := buildRootCommand()
	if err != nil {
		writeHighlightedError(os.Stderr, err.Error())
		os.Exit(1)
	}

	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, errNeedsConfirmation) {
			os.Exit(exitNeedsConfirmation)
		}
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		writeHighlightedError(os.Stderr, err.Error())
		os.Exit(1)
	}
}

var errNeedsConfirmation = errors.New("puhemies: run suspended, needs_human_confirmation")

func buildRootCommand() (*cobra.Command, error) {
	opts := config.NewOptions()
	var logLevel string
	var recipeDBPath string

	root := &cobra.Command{
		Use:           "puhemies",
		Short:         "Resumable tabular ingestion orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log verbosity: debug, info, warn, or error")
	root.PersistentFlags().StringVar(&recipeDBPath, "recipe-db", "", "Path to the recipe-recall SQLite cache (defaults to <artifacts-root>/recipe_store/index.sqlite)")
	opts.AddPuhemiesFlags(root)

	bindViper("PUHEMIES", root)

	newOrchestrator := func(ctx context.Context) (*puhemies.Orchestrator, logr.Logger, error) {
		log, err := logging.New(logLevel)
		if err != nil {
			return nil, logr.Logger{}, pkgerrors.Wrap(err, "build logger")
		}
		if err := opts.Validate(); err != nil {
			return nil, log, pkgerrors.Wrap(err, "validate options")
		}
		store, err := artifactstore.Build(ctx, opts.ArtifactsRoot)
		if err != nil {
			return nil, log, pkgerrors.Wrap(err, "open artifact store")
		}
		dbPath := recipeDBPath
		if dbPath == "" {
			dbPath = defaultRecipeDBPath(opts.ArtifactsRoot)
		}
		recipes, err := recipestore.Open(ctx, store, dbPath)
		if err != nil {
			return nil, log, pkgerrors.Wrap(err, "open recipe store")
		}
		return &puhemies.Orchestrator{Store: store, Recipes: recipes, Log: log, FlattenHeaders: opts.FlattenHeaders}, log, nil
	}

	root.AddCommand(
		newRunCommand(opts, newOrchestrator),
		newConfirmCommand(opts, newOrchestrator),
		newResumeCommand(opts, newOrchestrator),
		newValidateCommand(opts),
	)
	return root, nil
}

func newRunCommand(opts *config.Options, newOrchestrator func(context.Context) (*puhemies.Orchestrator, logr.Logger, error)) *cobra.Command {
	var inputPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a new ingestion run from an input file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if inputPath == "" {
				return fmt.Errorf("--input is required")
			}
			o, log, err := newOrchestrator(cmd.Context())
			if err != nil {
				return err
			}
			runID := opts.RunID
			if runID == "" {
				runID = newRunID()
			}
			resp, err := o.RunFromFile(cmd.Context(), runID, inputPath)
			if err != nil {
				return pkgerrors.Wrap(err, "run")
			}
			if resp.Status == puhemies.StatusNeedsHumanConfirmation && opts.Interactive && len(resp.Choices) > 0 {
				resp, err = promptForCandidate(cmd, o, resp)
				if err != nil {
					return pkgerrors.Wrap(err, "interactive confirmation")
				}
			}
			log.Info("run complete", "run_id", resp.RunID, "status", resp.Status)
			return emitResponse(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVar(&inputPath, "input", "", "Path (local or gs://) to the input spreadsheet/delimited file")
	return cmd
}

func newConfirmCommand(opts *config.Options, newOrchestrator func(context.Context) (*puhemies.Orchestrator, logr.Logger, error)) *cobra.Command {
	var choiceID, editedHeadersJSON string
	var headerRow int
	var recipeJSON string
	cmd := &cobra.Command{
		Use:   "confirm",
		Short: "Supply a human header confirmation, override, or manual recipe, then resume",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.RunID == "" {
				return fmt.Errorf("--run-id is required")
			}
			o, log, err := newOrchestrator(cmd.Context())
			if err != nil {
				return err
			}

			var resp puhemies.Response
			switch {
			case recipeJSON != "":
				var recipe puhemies.ManualRecipe
				if err := json.Unmarshal([]byte(recipeJSON), &recipe); err != nil {
					return pkgerrors.Wrap(err, "parse --recipe")
				}
				resp, err = o.SubmitManualRecipe(cmd.Context(), opts.RunID, recipe)
			case choiceID != "":
				resp, err = o.SubmitHumanConfirmation(cmd.Context(), opts.RunID, puhemies.HumanConfirmation{ConfirmedHeaderCandidate: choiceID})
			case editedHeadersJSON != "" || cmd.Flags().Changed("header-row"):
				edited := map[string]string{}
				if editedHeadersJSON != "" {
					if err := json.Unmarshal([]byte(editedHeadersJSON), &edited); err != nil {
						return pkgerrors.Wrap(err, "parse --edited-headers")
					}
				}
				resp, err = o.SubmitHeaderOverride(cmd.Context(), opts.RunID, puhemies.HeaderOverride{HeaderRowIndex: headerRow, EditedHeaders: edited})
			default:
				return fmt.Errorf("one of --choice, --header-row, or --recipe is required")
			}
			if err != nil {
				return pkgerrors.Wrap(err, "confirm")
			}
			log.Info("confirmation applied", "run_id", resp.RunID, "status", resp.Status)
			return emitResponse(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVar(&choiceID, "choice", "", "Header candidate id to confirm")
	cmd.Flags().IntVar(&headerRow, "header-row", -1, "Row index to use as the header (header override path)")
	cmd.Flags().StringVar(&editedHeadersJSON, "edited-headers", "", "JSON object of normalized-header renames for the override path")
	cmd.Flags().StringVar(&recipeJSON, "recipe", "", "JSON-encoded manual recipe")
	return cmd
}

func newResumeCommand(opts *config.Options, newOrchestrator func(context.Context) (*puhemies.Orchestrator, logr.Logger, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume a suspended run using whatever artifacts are already present",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.RunID == "" {
				return fmt.Errorf("--run-id is required")
			}
			o, log, err := newOrchestrator(cmd.Context())
			if err != nil {
				return err
			}
			resp, err := o.ContinueRun(cmd.Context(), opts.RunID)
			if err != nil {
				return pkgerrors.Wrap(err, "resume")
			}
			log.Info("resume complete", "run_id", resp.RunID, "status", resp.Status)
			return emitResponse(cmd.OutOrStdout(), resp)
		},
	}
	return cmd
}

func newValidateCommand(opts *config.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Schema-validate a run's artifacts",
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
			problems := schemavalidate.ValidateRun(cmd.Context(), validator, store, opts.RunID)
			if len(problems) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "ok: no schema violations found")
				return nil
			}
			for _, p := range problems {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return fmt.Errorf("%d schema violation(s) found", len(problems))
		},
	}
	return cmd
}

// promptForCandidate lists the proposed header candidates on stdout and
// reads a candidate id from stdin, then resumes the run with the pick.
// An empty line aborts the prompt and leaves the run suspended.
func promptForCandidate(cmd *cobra.Command, o *puhemies.Orchestrator, resp puhemies.Response) (puhemies.Response, error) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, resp.Question)
	for _, c := range resp.Choices {
		fmt.Fprintf(out, "  %s (confidence %.2f): %s\n", c.ID, c.Confidence, strings.Join(c.NormalizedHeaders, ", "))
	}
	fmt.Fprint(out, "candidate id> ")

	scanner := bufio.NewScanner(cmd.InOrStdin())
	if !scanner.Scan() {
		return resp, scanner.Err()
	}
	choice := strings.TrimSpace(scanner.Text())
	if choice == "" {
		return resp, nil
	}
	return o.SubmitHumanConfirmation(cmd.Context(), resp.RunID, puhemies.HumanConfirmation{
		ConfirmedHeaderCandidate: choice,
		ConfirmedBy:              "interactive",
	})
}

func emitResponse(w io.Writer, resp puhemies.Response) error {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return pkgerrors.Wrap(err, "marshal response")
	}
	fmt.Fprintln(w, string(data))
	if resp.Status == puhemies.StatusNeedsHumanConfirmation {
		return errNeedsConfirmation
	}
	return nil
}

func defaultRecipeDBPath(artifactsRoot string) string {
	if artifactstore.IsObjectURI(artifactsRoot) {
		return "./recipe_index.sqlite"
	}
	return artifactsRoot + "/recipe_store/index.sqlite"
}

func newRunID() string {
	return "run-" + uuid.NewString()
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
