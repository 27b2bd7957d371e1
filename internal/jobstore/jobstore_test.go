package jobstore_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"groovesheet/internal/jobs"
	"groovesheet/internal/jobstore"
	"groovesheet/internal/objectstore"
)

func openBackends(t *testing.T) map[string]jobstore.Store {
	t.Helper()
	dir := t.TempDir()

	fileStore, err := jobstore.NewFileStore(filepath.Join(dir, "jobs"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	sqliteStore, err := jobstore.OpenSQLite(filepath.Join(dir, "jobs.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	objects, err := objectstore.NewLocal(filepath.Join(dir, "objects"))
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	objStore, err := jobstore.NewObjectStore(objects, "jobs")
	if err != nil {
		t.Fatalf("NewObjectStore: %v", err)
	}

	stores := map[string]jobstore.Store{
		"file":   fileStore,
		"sqlite": sqliteStore,
		"object": objStore,
	}
	t.Cleanup(func() {
		for _, store := range stores {
			_ = store.Close()
		}
	})
	return stores
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	ctx := context.Background()
	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			rec := jobs.New("track.mp3", "jobs/abc/input.mp3")
			rec.Status = jobs.StatusTranscribing
			rec.Progress = 55
			rec.Message = "Transcribing drum notation..."
			rec.IsolatedAudioRef = "jobs/abc/drums.wav"

			if err := store.Save(ctx, rec); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err := store.Load(ctx, rec.JobID)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if got == nil {
				t.Fatal("Load returned nil for saved record")
			}
			if got.JobID != rec.JobID || got.Filename != rec.Filename || got.InputRef != rec.InputRef {
				t.Fatalf("identity fields differ: got %+v want %+v", got, rec)
			}
			if got.Status != rec.Status || got.Progress != rec.Progress || got.Message != rec.Message {
				t.Fatalf("progress fields differ: got %+v want %+v", got, rec)
			}
			if got.IsolatedAudioRef != rec.IsolatedAudioRef {
				t.Fatalf("isolated ref = %q, want %q", got.IsolatedAudioRef, rec.IsolatedAudioRef)
			}
			if !got.CreatedAt.Equal(rec.CreatedAt) {
				t.Fatalf("created_at = %v, want %v", got.CreatedAt, rec.CreatedAt)
			}
		})
	}
}

func TestSaveStampsUpdatedAt(t *testing.T) {
	ctx := context.Background()
	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			rec := jobs.New("track.mp3", "jobs/x/input.mp3")
			before := time.Now().UTC().Add(-time.Second)
			rec.UpdatedAt = time.Time{}

			if err := store.Save(ctx, rec); err != nil {
				t.Fatalf("Save: %v", err)
			}
			if rec.UpdatedAt.Before(before) {
				t.Fatalf("updated_at not stamped: %v", rec.UpdatedAt)
			}
		})
	}
}

func TestLoadAbsentReturnsNilNil(t *testing.T) {
	ctx := context.Background()
	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			got, err := store.Load(ctx, "0e0f4f9a-missing")
			if err != nil {
				t.Fatalf("Load absent: %v", err)
			}
			if got != nil {
				t.Fatalf("Load absent = %+v, want nil", got)
			}
			exists, err := store.Exists(ctx, "0e0f4f9a-missing")
			if err != nil {
				t.Fatalf("Exists absent: %v", err)
			}
			if exists {
				t.Fatal("Exists reported true for absent record")
			}
		})
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			rec := jobs.New("track.mp3", "jobs/y/input.mp3")
			if err := store.Save(ctx, rec); err != nil {
				t.Fatalf("Save: %v", err)
			}
			if err := store.Delete(ctx, rec.JobID); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if err := store.Delete(ctx, rec.JobID); err != nil {
				t.Fatalf("second Delete: %v", err)
			}
			exists, err := store.Exists(ctx, rec.JobID)
			if err != nil {
				t.Fatalf("Exists: %v", err)
			}
			if exists {
				t.Fatal("record still exists after delete")
			}
		})
	}
}

func TestListReturnsRecordsOldestFirst(t *testing.T) {
	ctx := context.Background()
	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			first := jobs.New("a.mp3", "jobs/a/input.mp3")
			first.CreatedAt = time.Now().UTC().Add(-time.Hour)
			second := jobs.New("b.mp3", "jobs/b/input.mp3")

			if err := store.Save(ctx, second); err != nil {
				t.Fatalf("Save second: %v", err)
			}
			if err := store.Save(ctx, first); err != nil {
				t.Fatalf("Save first: %v", err)
			}

			records, err := store.List(ctx)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(records) != 2 {
				t.Fatalf("List returned %d records, want 2", len(records))
			}
			if records[0].JobID != first.JobID || records[1].JobID != second.JobID {
				t.Fatalf("List order = [%s %s], want [%s %s]",
					records[0].JobID, records[1].JobID, first.JobID, second.JobID)
			}
		})
	}
}

func TestSaveOverwritesExisting(t *testing.T) {
	ctx := context.Background()
	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			rec := jobs.New("track.mp3", "jobs/z/input.mp3")
			if err := store.Save(ctx, rec); err != nil {
				t.Fatalf("Save: %v", err)
			}
			rec.SetFailed("separator unreachable")
			if err := store.Save(ctx, rec); err != nil {
				t.Fatalf("second Save: %v", err)
			}

			got, err := store.Load(ctx, rec.JobID)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if got.Status != jobs.StatusFailed {
				t.Fatalf("status = %s, want %s", got.Status, jobs.StatusFailed)
			}
			if got.Error == "" {
				t.Fatal("error detail lost on overwrite")
			}
		})
	}
}

func TestRejectsPathTraversalJobIDs(t *testing.T) {
	ctx := context.Background()
	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"", "..", "a/b", `a\b`} {
				if _, err := store.Load(ctx, id); err == nil {
					t.Fatalf("Load accepted job id %q", id)
				}
			}
		})
	}
}
