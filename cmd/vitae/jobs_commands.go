package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"vitae/internal/jobs"
	"vitae/internal/services"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage extraction jobs",
	}

	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsCancelCommand(ctx))
	jobsCmd.AddCommand(newJobsStatsCommand(ctx))
	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var (
		statusFlags []string
		workType    string
		limit       int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := make([]jobs.Status, 0, len(statusFlags))
			for _, raw := range statusFlags {
				for _, part := range strings.Split(raw, ",") {
					if strings.TrimSpace(part) == "" {
						continue
					}
					status, err := jobs.ParseStatus(part)
					if err != nil {
						return err
					}
					statuses = append(statuses, status)
				}
			}

			return ctx.withStore(cmd.Context(), func(store *jobs.Store) error {
				list, err := store.List(cmd.Context(), jobs.Filter{WorkType: workType, Statuses: statuses, Limit: limit})
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					if list == nil {
						list = []*jobs.Job{}
					}
					return writeJSON(cmd, list)
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No jobs found")
					return nil
				}
				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(list))
				for _, job := range list {
					rows = append(rows, []string{
						job.ID,
						job.WorkType,
						statusLabel(job.Status, colorize),
						formatPercent(job.ProgressPercent),
						fmt.Sprintf("%d/%d", job.Attempts, job.MaxAttempts),
						formatTimestamp(&job.CreatedAt),
						truncate(jobNote(job), 48),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Type", "Status", "Progress", "Attempts", "Created", "Note"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statusFlags, "status", "s", nil, "Filter by status (repeatable or comma separated)")
	cmd.Flags().StringVar(&workType, "type", "", "Filter by work type")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of jobs to list")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var resultOnly bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a job with its result or error",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(store *jobs.Store) error {
				job, err := store.Get(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if resultOnly {
					if len(job.Result) == 0 {
						return fmt.Errorf("job %s has no result (status %s)", job.ID, job.Status)
					}
					return writeJSON(cmd, job.Result)
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, job)
				}
				printJobDetails(cmd.OutOrStdout(), job, shouldColorize(cmd.OutOrStdout()))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&resultOnly, "result", false, "Print only the result JSON")
	return cmd
}

func newJobsCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id> [id...]",
		Short: "Cancel pending, retrying, or running jobs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(store *jobs.Store) error {
				type outcome struct {
					ID      string `json:"id"`
					Outcome string `json:"outcome"`
					Detail  string `json:"detail,omitempty"`
				}
				results := make([]outcome, 0, len(args))
				for _, arg := range args {
					id := strings.TrimSpace(arg)
					err := store.Cancel(cmd.Context(), id)
					switch {
					case err == nil:
						results = append(results, outcome{ID: id, Outcome: "cancelled"})
					case errors.Is(err, services.ErrNotFound):
						results = append(results, outcome{ID: id, Outcome: "not_found"})
					case jobs.IsTransitionRejected(err):
						results = append(results, outcome{ID: id, Outcome: "not_cancellable", Detail: err.Error()})
					default:
						return err
					}
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]any{"items": results})
				}
				out := cmd.OutOrStdout()
				for _, r := range results {
					switch r.Outcome {
					case "cancelled":
						fmt.Fprintf(out, "Job %s cancelled\n", r.ID)
					case "not_found":
						fmt.Fprintf(out, "Job %s not found\n", r.ID)
					default:
						fmt.Fprintf(out, "Job %s is already finished\n", r.ID)
					}
				}
				return nil
			})
		},
	}
}

func newJobsStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show job counts per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(store *jobs.Store) error {
				health, err := store.Health(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, health)
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				counts := map[jobs.Status]int{
					jobs.StatusPending:    health.Pending,
					jobs.StatusProcessing: health.Processing,
					jobs.StatusRetrying:   health.Retrying,
					jobs.StatusCompleted:  health.Completed,
					jobs.StatusFailed:     health.Failed,
					jobs.StatusCancelled:  health.Cancelled,
				}
				rows := make([][]string, 0, len(counts)+1)
				for _, status := range jobs.AllStatuses() {
					rows = append(rows, []string{statusLabel(status, colorize), strconv.Itoa(counts[status])})
				}
				rows = append(rows, []string{"Total", strconv.Itoa(health.Total)})
				fmt.Fprintln(out, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				fmt.Fprintf(out, "Store: %s (%s)\n", store.Driver(), store.Location())
				return nil
			})
		},
	}
}

func jobNote(job *jobs.Job) string {
	if job.Error != nil && job.Status != jobs.StatusCompleted {
		return job.Error.Kind + ": " + job.Error.Message
	}
	return job.CurrentStep
}

func printJobDetails(out io.Writer, job *jobs.Job, colorize bool) {
	fmt.Fprintf(out, "Job:       %s\n", job.ID)
	fmt.Fprintf(out, "Type:      %s\n", job.WorkType)
	fmt.Fprintf(out, "Status:    %s\n", statusLabel(job.Status, colorize))
	fmt.Fprintf(out, "Progress:  %s", formatPercent(job.ProgressPercent))
	if job.CurrentStep != "" {
		fmt.Fprintf(out, " (%s)", job.CurrentStep)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Attempts:  %d/%d\n", job.Attempts, job.MaxAttempts)
	fmt.Fprintf(out, "Created:   %s\n", formatTimestamp(&job.CreatedAt))
	fmt.Fprintf(out, "Started:   %s\n", formatTimestamp(job.StartedAt))
	fmt.Fprintf(out, "Finished:  %s\n", formatTimestamp(job.CompletedAt))
	if job.NextRunAt != nil {
		fmt.Fprintf(out, "Next run:  %s\n", formatTimestamp(job.NextRunAt))
	}
	if job.Error != nil {
		fmt.Fprintf(out, "Error:     %s: %s\n", job.Error.Kind, job.Error.Message)
		if job.Error.Hint != "" {
			fmt.Fprintf(out, "Hint:      %s\n", job.Error.Hint)
		}
		if len(job.Error.Details) > 0 {
			keys := make([]string, 0, len(job.Error.Details))
			for k := range job.Error.Details {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(out, "  %s: %s\n", k, job.Error.Details[k])
			}
		}
	}
	if len(job.Result) > 0 {
		var pretty any
		if err := json.Unmarshal(job.Result, &pretty); err == nil {
			if data, err := json.MarshalIndent(pretty, "", "  "); err == nil {
				fmt.Fprintf(out, "Result:\n%s\n", data)
				return
			}
		}
		fmt.Fprintf(out, "Result:\n%s\n", job.Result)
	}
}
