package logging

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"groovesheet/internal/services"
)

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	logger, err := New(Options{Format: "json", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Info("hello", String("key", "value"))
	// File creation is the contract here; contents are exercised below via buffer.
}

func TestConsoleHandlerOutput(t *testing.T) {
	var buf bytes.Buffer
	handler := newConsoleHandler(&buf, slog.LevelInfo)
	logger := slog.New(handler)

	logger.Info("stage started", String(FieldStage, "separating"), Int("progress", 10))
	line := buf.String()
	if !strings.Contains(line, "INFO") {
		t.Fatalf("expected level tag in %q", line)
	}
	if !strings.Contains(line, "stage=separating") || !strings.Contains(line, "progress=10") {
		t.Fatalf("expected attrs in %q", line)
	}
	if strings.Contains(line, "\x1b[") {
		t.Fatalf("expected no color codes for non-tty writer: %q", line)
	}
}

func TestConsoleHandlerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	handler := newConsoleHandler(&buf, slog.LevelWarn)
	logger := slog.New(handler)

	logger.Info("dropped")
	logger.Warn("kept")
	if strings.Contains(buf.String(), "dropped") {
		t.Fatal("expected info record to be filtered")
	}
	if !strings.Contains(buf.String(), "kept") {
		t.Fatal("expected warn record to pass")
	}
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	ctx := services.WithJobID(context.Background(), "job-123")
	ctx = services.WithStage(ctx, "transcribing")
	ctx = services.WithAdapter(ctx, "broker")

	WithContext(ctx, logger).Info("processing")
	out := buf.String()
	for _, want := range []string{`"job_id":"job-123"`, `"stage":"transcribing"`, `"adapter":"broker"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in %q", want, out)
		}
	}
}

func TestWithContextNilLogger(t *testing.T) {
	logger := WithContext(context.Background(), nil)
	// Must not panic and must be safe to use.
	logger.Info("noop")
}
