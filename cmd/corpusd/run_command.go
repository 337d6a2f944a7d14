package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"os/signal"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"corpusd/internal/config"
	"corpusd/internal/logging"
	"corpusd/internal/services"
)

func newRunCommand(state *cliState) *cobra.Command {
	var (
		channelOverride string
		forceReprocess  bool
		forceSpeakerID  bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Enumerate the configured channel and ingest every admitted candidate",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := state.ensureConfig()
			if err != nil {
				return &exitError{code: exitConfigError, err: err}
			}
			if channelOverride != "" {
				cfg.ChannelRef = channelOverride
			}
			if forceReprocess {
				cfg.ForceReprocess = true
			}
			if forceSpeakerID {
				cfg.ForceSpeakerID = true
			}

			return runIngest(cmd.Context(), cfg, state.jsonOutput)
		},
	}

	cmd.Flags().StringVar(&channelOverride, "channel", "", "Channel reference override")
	cmd.Flags().BoolVar(&forceReprocess, "force-reprocess", false, "Reprocess sources regardless of recorded status")
	cmd.Flags().BoolVar(&forceSpeakerID, "force-speaker-id", false, "Run diarization/attribution even under the monologue assumption")

	return cmd
}

// runIngest acquires the single-instance lock, builds every pipeline
// collaborator, and drives one orchestrator Run to completion.
func runIngest(cmdCtx context.Context, cfg *config.Config, jsonOutput bool) error {
	if err := cfg.EnsureDirectories(); err != nil {
		return &exitError{code: exitFatalRuntime, err: err}
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if !cfg.CancelOnSigint {
		signalCtx = cmdCtx
	}

	lockPath := filepath.Join(cfg.LogDir, "corpusd.lock")
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return &exitError{code: exitFatalRuntime, err: fmt.Errorf("acquire lock %s: %w", lockPath, err)}
	}
	if !locked {
		return &exitError{code: exitFatalRuntime, err: fmt.Errorf("another corpusd run holds %s", lockPath)}
	}
	defer lock.Unlock()

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return &exitError{code: exitFatalRuntime, err: fmt.Errorf("init logger: %w", err)}
	}

	logging.CleanupOldLogs(logger, cfg.LogRetentionDays, logging.RetentionTarget{
		Dir:     cfg.LogDir,
		Pattern: "*.log",
		Exclude: []string{filepath.Join(cfg.LogDir, "corpusd.log")},
	})

	runID := uuid.NewString()
	runLogger := logger.With(logging.String("run_id", runID))
	signalCtx = services.WithRequestID(signalCtx, runID)

	comps, err := buildOrchestrator(signalCtx, cfg, runLogger)
	if err != nil {
		return &exitError{code: exitFatalRuntime, err: err}
	}
	defer comps.Close()

	runLogger.Info("run starting",
		logging.String(logging.FieldEventType, "run_started"),
		logging.String("channel_reference", cfg.ChannelRef))

	summary, runErr := comps.orch.Run(signalCtx, cfg.ChannelRef)

	if jsonOutput {
		if encErr := renderSummaryJSON(os.Stdout, summary, runID); encErr != nil {
			runLogger.Warn("failed to render summary JSON", logging.Error(encErr))
		}
	} else {
		renderSummaryTable(os.Stdout, summary, runID)
	}

	if runErr != nil {
		if signalCtx.Err() != nil {
			return context.Canceled
		}
		return &exitError{code: exitFatalRuntime, err: runErr}
	}
	if signalCtx.Err() != nil {
		return context.Canceled
	}
	return nil
}
