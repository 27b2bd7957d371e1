package testsupport

import (
	"context"
	"testing"

	"groovesheet/internal/config"
	"groovesheet/internal/jobs"
	"groovesheet/internal/jobstore"
	"groovesheet/internal/objectstore"
)

// MustOpenObjects opens the configured object store for tests and registers
// cleanup.
func MustOpenObjects(t testing.TB, cfg *config.Config) objectstore.Store {
	t.Helper()

	objects, err := objectstore.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("objectstore.Open: %v", err)
	}
	t.Cleanup(func() {
		objects.Close()
	})
	return objects
}

// MustOpenStore opens the configured job store for tests and registers
// cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config, objects objectstore.Store) jobstore.Store {
	t.Helper()

	store, err := jobstore.Open(cfg, objects)
	if err != nil {
		t.Fatalf("jobstore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob persists a fresh pending record with its input object in place and
// returns it.
func NewJob(t testing.TB, cfg *config.Config, store jobstore.Store, objects objectstore.Store, filename string) *jobs.Record {
	t.Helper()

	rec := jobs.New(filename, "")
	rec.InputRef = jobs.InputKey(cfg.ObjectPrefix(), rec.JobID)
	if err := objects.Put(context.Background(), rec.InputRef, []byte("audio bytes")); err != nil {
		t.Fatalf("objects.Put: %v", err)
	}
	if err := store.Save(context.Background(), rec); err != nil {
		t.Fatalf("store.Save: %v", err)
	}
	return rec
}
