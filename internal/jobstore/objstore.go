package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"groovesheet/internal/jobs"
	"groovesheet/internal/objectstore"
)

// ObjectStore persists descriptors as objects at <prefix>/<job_id>/metadata.json,
// next to the job's audio and notation objects.
type ObjectStore struct {
	objects objectstore.Store
	prefix  string
}

// NewObjectStore wraps an object store backend as a job store.
func NewObjectStore(objects objectstore.Store, prefix string) (*ObjectStore, error) {
	if objects == nil {
		return nil, errors.New("object backend is nil")
	}
	return &ObjectStore{objects: objects, prefix: prefix}, nil
}

func (s *ObjectStore) Save(ctx context.Context, rec *jobs.Record) error {
	if rec == nil {
		return errors.New("record is nil")
	}
	if err := validateJobID(rec.JobID); err != nil {
		return err
	}
	rec.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return s.objects.Put(ctx, jobs.MetadataKey(s.prefix, rec.JobID), data)
}

func (s *ObjectStore) Load(ctx context.Context, jobID string) (*jobs.Record, error) {
	if err := validateJobID(jobID); err != nil {
		return nil, err
	}
	data, err := s.objects.Get(ctx, jobs.MetadataKey(s.prefix, jobID))
	if errors.Is(err, objectstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec jobs.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode descriptor for %s: %w", jobID, err)
	}
	return &rec, nil
}

func (s *ObjectStore) Delete(ctx context.Context, jobID string) error {
	if err := validateJobID(jobID); err != nil {
		return err
	}
	return s.objects.Delete(ctx, jobs.MetadataKey(s.prefix, jobID))
}

func (s *ObjectStore) Exists(ctx context.Context, jobID string) (bool, error) {
	if err := validateJobID(jobID); err != nil {
		return false, err
	}
	return s.objects.Exists(ctx, jobs.MetadataKey(s.prefix, jobID))
}

func (s *ObjectStore) List(ctx context.Context) ([]*jobs.Record, error) {
	keys, err := s.objects.List(ctx, s.prefix)
	if err != nil {
		return nil, err
	}
	var records []*jobs.Record
	for _, key := range keys {
		if !strings.HasSuffix(key, "/"+jobs.MetadataObjectName) {
			continue
		}
		data, err := s.objects.Get(ctx, key)
		if errors.Is(err, objectstore.ErrNotFound) {
			// Deleted between list and read.
			continue
		}
		if err != nil {
			return nil, err
		}
		var rec jobs.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		records = append(records, &rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

func (s *ObjectStore) Close() error {
	return nil
}
