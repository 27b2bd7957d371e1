package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"groovesheet/internal/config"
	"groovesheet/internal/jobs"
	"groovesheet/internal/testsupport"
)

func writeTestConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stdout)
	if configPath != "" {
		args = append([]string{"--config", configPath}, args...)
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func TestConfigInitAndValidate(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	out, err := runCLI(t, "", "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, "Wrote sample configuration") {
		t.Fatalf("unexpected init output: %q", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, err := runCLI(t, "", "config", "init", "--path", target); err == nil {
		t.Fatal("expected init without --overwrite to fail on existing file")
	}
	if _, err := runCLI(t, "", "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}

	cfg := testsupport.NewConfig(t)
	path := writeTestConfig(t, cfg)
	out, err = runCLI(t, path, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") {
		t.Fatalf("unexpected validate output: %q", out)
	}
}

func TestConfigShow(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := writeTestConfig(t, cfg)

	out, err := runCLI(t, path, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	for _, want := range []string{"jobs_dir", cfg.Paths.JobsDir, "delivery.mode", "poller"} {
		if !strings.Contains(out, want) {
			t.Fatalf("config show output missing %q: %q", want, out)
		}
	}
}

func TestJobsClearRemovesTerminalJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := writeTestConfig(t, cfg)

	ctx := context.Background()
	objects := testsupport.MustOpenObjects(t, cfg)
	store := testsupport.MustOpenStore(t, cfg, objects)

	done := testsupport.NewJob(t, cfg, store, objects, "done.mp3")
	done.Advance(jobs.StatusSeparating, 10, "Separating drum track from audio...")
	done.SetCompleted(&jobs.Result{NotationRef: jobs.OutputKey(cfg.ObjectPrefix(), done.JobID)}, "Processing completed in 1s")
	if err := store.Save(ctx, done); err != nil {
		t.Fatalf("save completed record: %v", err)
	}

	active := testsupport.NewJob(t, cfg, store, objects, "active.mp3")

	out, err := runCLI(t, path, "jobs", "clear")
	if err != nil {
		t.Fatalf("jobs clear: %v", err)
	}
	if !strings.Contains(out, "Cleared 1 terminal jobs") {
		t.Fatalf("unexpected clear output: %q", out)
	}

	rec, err := store.Load(ctx, done.JobID)
	if err != nil {
		t.Fatalf("load cleared record: %v", err)
	}
	if rec != nil {
		t.Fatal("expected completed record removed")
	}
	if _, err := objects.Get(ctx, jobs.InputKey(cfg.ObjectPrefix(), done.JobID)); err == nil {
		t.Fatal("expected cleared job input removed")
	}

	rec, err = store.Load(ctx, active.JobID)
	if err != nil {
		t.Fatalf("load active record: %v", err)
	}
	if rec == nil || rec.Status != jobs.StatusPending {
		t.Fatalf("expected pending record untouched, got %+v", rec)
	}
}

func TestSubmitLocalDropsJobIntoTree(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := writeTestConfig(t, cfg)

	src := filepath.Join(t.TempDir(), "groove.mp3")
	testsupport.WriteFile(t, src, 4096)

	out, err := runCLI(t, path, "submit", "--local", src)
	if err != nil {
		t.Fatalf("submit --local: %v", err)
	}
	if !strings.Contains(out, "Submitted groove.mp3") {
		t.Fatalf("unexpected submit output: %q", out)
	}

	objects := testsupport.MustOpenObjects(t, cfg)
	store := testsupport.MustOpenStore(t, cfg, objects)
	records, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	rec := records[0]
	if rec.Status != jobs.StatusPending || rec.Filename != "groove.mp3" {
		t.Fatalf("unexpected record %+v", rec)
	}
	input := filepath.Join(cfg.Paths.JobsDir, rec.JobID, jobs.InputObjectName)
	if _, err := os.Stat(input); err != nil {
		t.Fatalf("expected input copied to %s: %v", input, err)
	}
}

func TestStatusCommandReportsAPIDown(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := writeTestConfig(t, cfg)

	_, err := runCLI(t, path, "status", "some-id")
	if err == nil {
		t.Fatal("expected status against stopped daemon to fail")
	}
}
