// Package pipeline drives job records through the three processing stages
// under a bounded worker pool.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"groovesheet/internal/jobs"
	"groovesheet/internal/jobstore"
	"groovesheet/internal/logging"
	"groovesheet/internal/notifications"
	"groovesheet/internal/objectstore"
	"groovesheet/internal/services"
)

// Separator isolates the drum track from a mixed audio input.
type Separator interface {
	Separate(ctx context.Context, inputRef string) (string, error)
}

// Transcriber converts isolated drum audio into a symbolic transcription.
type Transcriber interface {
	Transcribe(ctx context.Context, isolatedRef string) (string, error)
}

// SheetRenderer turns a symbolic transcription into a notation artifact.
type SheetRenderer interface {
	Render(ctx context.Context, symbolicRef string) (string, error)
}

// Executor runs one job through separation, transcription, and sheet
// generation, persisting the record before and after each external call.
// Collaborator failures are absorbed into a terminal failed record; the
// returned error is non-nil only when state could not be persisted.
type Executor struct {
	store         jobstore.Store
	objects       objectstore.Store
	separator     Separator
	transcriber   Transcriber
	sheet         SheetRenderer
	cleanupInputs bool
	notifier      notifications.Service
	logger        *slog.Logger
}

// NewExecutor wires the executor. objects may be nil when input cleanup is
// disabled; logger may be nil.
func NewExecutor(
	store jobstore.Store,
	objects objectstore.Store,
	sep Separator,
	tr Transcriber,
	sheet SheetRenderer,
	cleanupInputs bool,
	logger *slog.Logger,
) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Executor{
		store:         store,
		objects:       objects,
		separator:     sep,
		transcriber:   tr,
		sheet:         sheet,
		cleanupInputs: cleanupInputs,
		logger:        logging.NewComponentLogger(logger, "executor"),
	}
}

// SetNotifier attaches an outcome notifier. Notifications are best effort and
// never affect the job result.
func (e *Executor) SetNotifier(n notifications.Service) {
	e.notifier = n
}

// Process drives the job with the given id to a terminal state. It is safe to
// call with ids that are already terminal; those return immediately without
// touching the record or any collaborator.
func (e *Executor) Process(ctx context.Context, jobID string) error {
	ctx = services.WithJobID(ctx, jobID)
	log := logging.WithContext(ctx, e.logger)

	rec, err := e.store.Load(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if rec == nil {
		return services.Wrap(services.ErrNotFound, "", "load job", fmt.Sprintf("no descriptor for %s", jobID), nil)
	}
	if rec.IsTerminal() {
		log.Info("job already terminal, skipping", logging.String("status", string(rec.Status)))
		return nil
	}

	start := time.Now()
	log.Info("processing job", logging.String("filename", rec.Filename))

	isolatedRef, err := e.runStage(ctx, rec, jobs.StatusSeparating,
		10, "Separating drum track from audio...",
		40, "Drum track separated successfully",
		func(stageCtx context.Context) (string, error) {
			return e.separator.Separate(stageCtx, rec.InputRef)
		},
		func(ref string) { rec.IsolatedAudioRef = ref },
	)
	if err != nil {
		return e.finishFailed(ctx, rec, err)
	}

	transcriptionRef, err := e.runStage(ctx, rec, jobs.StatusTranscribing,
		50, "Transcribing drum notation...",
		70, "Drum transcription complete",
		func(stageCtx context.Context) (string, error) {
			return e.transcriber.Transcribe(stageCtx, isolatedRef)
		},
		func(ref string) { rec.TranscriptionRef = ref },
	)
	if err != nil {
		return e.finishFailed(ctx, rec, err)
	}

	notationRef, err := e.runStage(ctx, rec, jobs.StatusGeneratingSheet,
		80, "Generating MusicXML notation...",
		95, "MusicXML notation generated",
		func(stageCtx context.Context) (string, error) {
			return e.sheet.Render(stageCtx, transcriptionRef)
		},
		nil,
	)
	if err != nil {
		return e.finishFailed(ctx, rec, err)
	}

	elapsed := time.Since(start)
	rec.SetCompleted(&jobs.Result{
		IsolatedAudioRef:  isolatedRef,
		TranscriptionRef:  transcriptionRef,
		NotationRef:       notationRef,
		ProcessingSeconds: elapsed.Seconds(),
	}, fmt.Sprintf("Processing completed in %s", elapsed.Round(time.Millisecond)))
	if err := e.persist(ctx, rec); err != nil {
		return err
	}
	e.cleanupInput(ctx, rec)
	if e.notifier != nil {
		if err := e.notifier.NotifyJobCompleted(ctx, rec.Filename, rec.JobID, elapsed); err != nil {
			log.Warn("completion notification failed", logging.Error(err))
		}
	}
	log.Info("job completed", logging.Duration("elapsed", elapsed))
	return nil
}

// runStage persists the stage transition, makes the collaborator call, then
// persists the post-call checkpoint. A persistence failure aborts the stage
// before the collaborator is invoked; the record is not mutated past the last
// persisted checkpoint.
func (e *Executor) runStage(
	ctx context.Context,
	rec *jobs.Record,
	status jobs.Status,
	startProgress int, startMessage string,
	doneProgress int, doneMessage string,
	call func(context.Context) (string, error),
	keepRef func(string),
) (string, error) {
	stageCtx := services.WithStage(ctx, string(status))
	log := logging.WithContext(stageCtx, e.logger)

	rec.Advance(status, startProgress, startMessage)
	if err := e.persist(stageCtx, rec); err != nil {
		return "", err
	}
	log.Info("stage started")

	ref, err := call(stageCtx)
	if err != nil {
		return "", err
	}
	if keepRef != nil {
		keepRef(ref)
	}
	rec.SetProgress(doneProgress, doneMessage)
	if err := e.persist(stageCtx, rec); err != nil {
		return "", err
	}
	log.Info("stage finished", logging.String("output_ref", ref))
	return ref, nil
}

// finishFailed converts a stage error into a terminal failed record. The
// original error is absorbed; only a persistence failure propagates, so the
// caller can distinguish "job failed" (nil) from "state unknown" (error).
func (e *Executor) finishFailed(ctx context.Context, rec *jobs.Record, cause error) error {
	log := logging.WithContext(ctx, e.logger)
	log.Error("job failed", logging.Error(cause))

	rec.SetFailed(cause.Error())
	if err := e.persist(ctx, rec); err != nil {
		log.Error("failed to persist terminal state", logging.Error(err))
		return err
	}
	e.cleanupInput(ctx, rec)
	if e.notifier != nil {
		if nerr := e.notifier.NotifyJobFailed(ctx, rec.Filename, rec.JobID, rec.Error); nerr != nil {
			log.Warn("failure notification failed", logging.Error(nerr))
		}
	}
	return nil
}

func (e *Executor) persist(ctx context.Context, rec *jobs.Record) error {
	if err := e.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("persist job %s: %w", rec.JobID, err)
	}
	return nil
}

// cleanupInput deletes the original input object once the job is terminal.
// Best effort: a cleanup failure is logged and never affects the job outcome.
func (e *Executor) cleanupInput(ctx context.Context, rec *jobs.Record) {
	if !e.cleanupInputs || e.objects == nil || rec.InputRef == "" {
		return
	}
	if err := e.objects.Delete(ctx, rec.InputRef); err != nil {
		logging.WithContext(ctx, e.logger).Warn("input cleanup failed",
			logging.String("input_ref", rec.InputRef), logging.Error(err))
		return
	}
	logging.WithContext(ctx, e.logger).Debug("input removed", logging.String("input_ref", rec.InputRef))
}
