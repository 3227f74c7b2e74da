package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vitae/internal/jobs"
	"vitae/internal/workflow"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		wait        bool
		maxAttempts int
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "submit <file>",
		Short: "Queue a résumé for background extraction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path, err := resolveDocumentPath(args[0])
			if err != nil {
				return err
			}
			if maxAttempts <= 0 {
				maxAttempts = cfg.Jobs.MaxAttempts
			}
			payload, err := json.Marshal(workflow.ExtractPayload{Path: path, Filename: filepath.Base(path)})
			if err != nil {
				return fmt.Errorf("encode payload: %w", err)
			}

			return ctx.withStore(cmd.Context(), func(store *jobs.Store) error {
				job, err := store.Create(cmd.Context(), jobs.NewJob{
					WorkType:    workflow.WorkTypeExtract,
					Payload:     payload,
					MaxAttempts: maxAttempts,
				})
				if err != nil {
					return err
				}
				if !wait {
					if ctx.jsonOutput() {
						return writeJSON(cmd, job)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Queued job %s for %s\n", job.ID, path)
					return nil
				}

				waitCtx := cmd.Context()
				if timeout > 0 {
					var cancel context.CancelFunc
					waitCtx, cancel = context.WithTimeout(waitCtx, timeout)
					defer cancel()
				}
				final, err := waitForJob(waitCtx, store, job.ID, cfg.PollInterval())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, final)
				}
				printJobDetails(cmd.OutOrStdout(), final, shouldColorize(cmd.OutOrStdout()))
				if final.Status != jobs.StatusCompleted {
					return fmt.Errorf("job %s finished as %s", final.ID, final.Status)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the job to finish and print its result")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "Attempt bound for this job (default: jobs.max_attempts)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Stop waiting after this long (0 waits indefinitely)")
	return cmd
}

func resolveDocumentPath(arg string) (string, error) {
	trimmed := strings.TrimSpace(arg)
	if trimmed == "" {
		return "", fmt.Errorf("document path is required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve document path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("stat document: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("document path %q is a directory", abs)
	}
	return abs, nil
}

// waitForJob polls the store until the job reaches a terminal status.
func waitForJob(ctx context.Context, store *jobs.Store, id string, interval time.Duration) (*jobs.Job, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for job %s (last status %s): %w", id, job.Status, ctx.Err())
		case <-ticker.C:
		}
	}
}
