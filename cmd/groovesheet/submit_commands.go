package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"groovesheet/internal/config"
	"groovesheet/internal/fileutil"
	"groovesheet/internal/jobs"
	"groovesheet/internal/jobstore"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var local bool

	cmd := &cobra.Command{
		Use:   "submit <audio-file>",
		Short: "Submit an audio file for drum transcription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			var rec *jobs.Record
			if local {
				rec, err = submitLocal(cmd, cfg, args[0])
			} else {
				var data []byte
				data, err = os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("read audio file: %w", err)
				}
				rec, err = newAPIClient(cfg).submit(args[0], data)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Submitted %s\n", rec.Filename)
			fmt.Fprintf(out, "Job ID: %s\n", rec.JobID)
			fmt.Fprintf(out, "Track progress with `groovesheet status %s`\n", rec.JobID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&local, "local", false, "Copy into jobs_dir for poller pickup instead of uploading to the daemon")
	return cmd
}

// submitLocal drops the audio file and a pending descriptor into jobs_dir,
// where the poller discovers it on the next scan. No daemon is required.
func submitLocal(cmd *cobra.Command, cfg *config.Config, srcPath string) (*jobs.Record, error) {
	if cfg.Delivery.Mode != "poller" {
		return nil, fmt.Errorf("submit --local requires delivery.mode poller, configured mode is %q", cfg.Delivery.Mode)
	}

	rec := jobs.New(filepath.Base(srcPath), "")
	rec.InputRef = jobs.InputKey(cfg.ObjectPrefix(), rec.JobID)

	dst := filepath.Join(cfg.Paths.JobsDir, rec.JobID, jobs.InputObjectName)
	if err := fileutil.CopyFileVerified(srcPath, dst); err != nil {
		return nil, fmt.Errorf("copy audio into job tree: %w", err)
	}

	store, err := jobstore.NewFileStore(cfg.Paths.JobsDir)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	defer store.Close()
	if err := store.Save(cmd.Context(), rec); err != nil {
		return nil, fmt.Errorf("write job descriptor: %w", err)
	}
	return rec, nil
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the current state of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			rec, err := newAPIClient(cfg).job(args[0])
			if err != nil {
				return err
			}
			printRecord(cmd, rec)
			return nil
		},
	}
}

func printRecord(cmd *cobra.Command, rec *jobs.Record) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job:      %s\n", rec.JobID)
	fmt.Fprintf(out, "File:     %s\n", rec.Filename)
	fmt.Fprintf(out, "Status:   %s\n", rec.Status.StageLabel())
	fmt.Fprintf(out, "Progress: %d%%\n", rec.Progress)
	if rec.Message != "" {
		fmt.Fprintf(out, "Message:  %s\n", rec.Message)
	}
	if rec.Error != "" {
		fmt.Fprintf(out, "Error:    %s\n", rec.Error)
	}
	if rec.Result != nil {
		fmt.Fprintf(out, "Notation: %s\n", rec.Result.NotationRef)
		fmt.Fprintf(out, "Took:     %.1fs\n", rec.Result.ProcessingSeconds)
	}
}

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "download <job-id>",
		Short: "Download the MusicXML notation of a completed job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client := newAPIClient(cfg)

			target := strings.TrimSpace(outputPath)
			if target == "" {
				rec, err := client.job(args[0])
				if err != nil {
					return err
				}
				base := strings.TrimSuffix(rec.Filename, filepath.Ext(rec.Filename))
				if base == "" {
					base = rec.JobID
				}
				target = base + ".musicxml"
			}

			data, err := client.download(args[0])
			if err != nil {
				return err
			}
			if err := os.WriteFile(target, data, 0o644); err != nil {
				return fmt.Errorf("write notation file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", target, len(data))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Destination file (defaults to <input-name>.musicxml)")
	return cmd
}
