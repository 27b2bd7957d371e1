// Package jobstore persists job records. Backends are interchangeable behind
// the Store interface: one JSON file per job, a JSON blob per job in an
// object store, or a SQLite table. All backends are last-write-wins; there is
// no locking and no compare-and-swap. At most one active writer per job id is
// assumed, enforced by the worker pool rather than the store.
package jobstore

import (
	"context"
	"fmt"

	"groovesheet/internal/config"
	"groovesheet/internal/jobs"
	"groovesheet/internal/objectstore"
)

// Store is the durable persistence surface for job records.
//
// Save stamps UpdatedAt before persisting and flushes durably before
// returning; a non-nil error means the record was not persisted and the
// pipeline must not advance past that point. Load returns (nil, nil) when no
// record exists for the id.
type Store interface {
	Save(ctx context.Context, rec *jobs.Record) error
	Load(ctx context.Context, jobID string) (*jobs.Record, error)
	Delete(ctx context.Context, jobID string) error
	Exists(ctx context.Context, jobID string) (bool, error)
	List(ctx context.Context) ([]*jobs.Record, error)
	Close() error
}

// Open constructs the job store selected by configuration. The objects store
// is only consulted for the "object" backend.
func Open(cfg *config.Config, objects objectstore.Store) (Store, error) {
	switch cfg.Store.Backend {
	case "file":
		return NewFileStore(cfg.Paths.JobsDir)
	case "sqlite":
		return OpenSQLite(cfg.Store.SQLitePath)
	case "object":
		if objects == nil {
			return nil, fmt.Errorf("store.backend %q requires an object store", cfg.Store.Backend)
		}
		return NewObjectStore(objects, cfg.ObjectPrefix())
	default:
		return nil, fmt.Errorf("store.backend: unsupported value %q", cfg.Store.Backend)
	}
}
