package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"groovesheet/internal/jobs"
	"groovesheet/internal/jobstore"
	"groovesheet/internal/objectstore"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage submitted jobs",
	}

	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsClearCommand(ctx))

	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs known to the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			records, err := newAPIClient(cfg).list(listStatuses)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs found")
				return nil
			}
			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				rows = append(rows, []string{
					rec.JobID,
					rec.Filename,
					string(rec.Status),
					fmt.Sprintf("%d%%", rec.Progress),
					rec.CreatedAt.Local().Format(time.RFC3339),
				})
			}
			table := renderTable(
				[]string{"Job", "File", "Status", "Progress", "Created"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			)
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by job status (repeatable)")
	return cmd
}

func newJobsClearCommand(ctx *commandContext) *cobra.Command {
	var clearCompleted bool
	var clearFailed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove terminal jobs and their artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearCompleted && clearFailed {
				return errors.New("specify only one of --completed or --failed")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			cmdCtx := cmd.Context()
			objects, err := objectstore.Open(cmdCtx, cfg)
			if err != nil {
				return fmt.Errorf("open object store: %w", err)
			}
			defer objects.Close()
			store, err := jobstore.Open(cfg, objects)
			if err != nil {
				return fmt.Errorf("open job store: %w", err)
			}
			defer store.Close()

			records, err := store.List(cmdCtx)
			if err != nil {
				return err
			}

			prefix := cfg.ObjectPrefix()
			removed := 0
			for _, rec := range records {
				switch {
				case clearCompleted && rec.Status != jobs.StatusCompleted:
					continue
				case clearFailed && rec.Status != jobs.StatusFailed:
					continue
				case !rec.IsTerminal():
					continue
				}
				for _, key := range []string{
					jobs.InputKey(prefix, rec.JobID),
					jobs.IsolatedKey(prefix, rec.JobID),
					jobs.TranscriptionKey(prefix, rec.JobID),
					jobs.OutputKey(prefix, rec.JobID),
				} {
					if err := objects.Delete(cmdCtx, key); err != nil && !errors.Is(err, objectstore.ErrNotFound) {
						return fmt.Errorf("delete artifact %s: %w", key, err)
					}
				}
				if err := store.Delete(cmdCtx, rec.JobID); err != nil {
					return fmt.Errorf("delete job %s: %w", rec.JobID, err)
				}
				removed++
			}

			switch {
			case clearCompleted:
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d completed jobs\n", removed)
			case clearFailed:
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d failed jobs\n", removed)
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d terminal jobs\n", removed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&clearCompleted, "completed", false, "Remove only completed jobs")
	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Remove only failed jobs")
	return cmd
}
