package jobs_test

import (
	"testing"

	"groovesheet/internal/jobs"
)

func TestNewRecordDefaults(t *testing.T) {
	rec := jobs.New("track.mp3", "jobs/abc/input.mp3")
	if rec.JobID == "" {
		t.Fatal("expected job id to be assigned")
	}
	if rec.Status != jobs.StatusPending {
		t.Fatalf("expected pending status, got %s", rec.Status)
	}
	if rec.Progress != 0 {
		t.Fatalf("expected zero progress, got %d", rec.Progress)
	}
	if rec.CreatedAt.IsZero() || rec.UpdatedAt.IsZero() {
		t.Fatal("expected timestamps to be set")
	}

	other := jobs.New("track.mp3", "jobs/def/input.mp3")
	if other.JobID == rec.JobID {
		t.Fatal("expected unique job ids per record")
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from    jobs.Status
		to      jobs.Status
		allowed bool
	}{
		{jobs.StatusPending, jobs.StatusSeparating, true},
		{jobs.StatusSeparating, jobs.StatusTranscribing, true},
		{jobs.StatusTranscribing, jobs.StatusGeneratingSheet, true},
		{jobs.StatusGeneratingSheet, jobs.StatusCompleted, true},
		{jobs.StatusPending, jobs.StatusFailed, true},
		{jobs.StatusSeparating, jobs.StatusFailed, true},
		{jobs.StatusGeneratingSheet, jobs.StatusFailed, true},
		{jobs.StatusPending, jobs.StatusTranscribing, false},
		{jobs.StatusSeparating, jobs.StatusGeneratingSheet, false},
		{jobs.StatusTranscribing, jobs.StatusSeparating, false},
		{jobs.StatusCompleted, jobs.StatusFailed, false},
		{jobs.StatusCompleted, jobs.StatusSeparating, false},
		{jobs.StatusFailed, jobs.StatusPending, false},
		{jobs.StatusFailed, jobs.StatusFailed, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.allowed {
			t.Errorf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.allowed, got)
		}
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := jobs.ParseStatus(" Generating_Sheet "); !ok || status != jobs.StatusGeneratingSheet {
		t.Fatalf("unexpected parse result: %s %v", status, ok)
	}
	if _, ok := jobs.ParseStatus("encoding"); ok {
		t.Fatal("expected unknown status to be rejected")
	}
	if _, ok := jobs.ParseStatus(""); ok {
		t.Fatal("expected empty status to be rejected")
	}
}

func TestProgressNeverDecreases(t *testing.T) {
	rec := jobs.New("track.mp3", "input")
	rec.Advance(jobs.StatusSeparating, 10, "Separating drum track from audio...")
	rec.SetProgress(40, "Drum track separated successfully")
	rec.Advance(jobs.StatusTranscribing, 50, "Transcribing drum notation...")

	rec.SetProgress(20, "stale update")
	if rec.Progress != 50 {
		t.Fatalf("expected progress to stay at 50, got %d", rec.Progress)
	}

	rec.SetFailed("transcription model unavailable")
	if rec.Progress != 50 {
		t.Fatalf("expected failure to preserve progress, got %d", rec.Progress)
	}
	if rec.Error == "" || rec.Result != nil {
		t.Fatalf("expected error populated and result absent: %#v", rec)
	}
}

func TestSetCompleted(t *testing.T) {
	rec := jobs.New("track.mp3", "input")
	rec.SetCompleted(&jobs.Result{
		IsolatedAudioRef: "jobs/x/drums.wav",
		TranscriptionRef: "jobs/x/transcription.mid",
		NotationRef:      "jobs/x/output.musicxml",
	}, "Processing completed in 2.00s")

	if rec.Progress != 100 {
		t.Fatalf("expected progress 100, got %d", rec.Progress)
	}
	if rec.Result == nil || rec.Error != "" {
		t.Fatalf("expected result populated and error absent: %#v", rec)
	}
}

func TestSummarize(t *testing.T) {
	records := []*jobs.Record{
		{Status: jobs.StatusPending},
		{Status: jobs.StatusSeparating},
		{Status: jobs.StatusGeneratingSheet},
		{Status: jobs.StatusCompleted},
		{Status: jobs.StatusFailed},
	}
	summary := jobs.Summarize(records)
	if summary.Total != 5 || summary.Pending != 1 || summary.Processing != 2 || summary.Completed != 1 || summary.Failed != 1 {
		t.Fatalf("unexpected summary: %#v", summary)
	}
}
