package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"groovesheet/internal/jobs"
)

// FileStore keeps one descriptor file per job at <root>/<job_id>/metadata.json,
// the same layout the poller scans and the HTTP layer reads.
type FileStore struct {
	root string
}

// NewFileStore creates a file-backed job store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("file store root must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create job store root %q: %w", dir, err)
	}
	return &FileStore{root: dir}, nil
}

// Root returns the directory the store writes under.
func (s *FileStore) Root() string {
	return s.root
}

func (s *FileStore) descriptorPath(jobID string) (string, error) {
	if err := validateJobID(jobID); err != nil {
		return "", err
	}
	return filepath.Join(s.root, jobID, jobs.MetadataObjectName), nil
}

func (s *FileStore) Save(_ context.Context, rec *jobs.Record) error {
	if rec == nil {
		return errors.New("record is nil")
	}
	path, err := s.descriptorPath(rec.JobID)
	if err != nil {
		return err
	}
	rec.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create job directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".metadata-*")
	if err != nil {
		return fmt.Errorf("create temp descriptor: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write descriptor: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync descriptor: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close descriptor: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("publish descriptor: %w", err)
	}
	return nil
}

func (s *FileStore) Load(_ context.Context, jobID string) (*jobs.Record, error) {
	path, err := s.descriptorPath(jobID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read descriptor: %w", err)
	}
	var rec jobs.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode descriptor for %s: %w", jobID, err)
	}
	return &rec, nil
}

func (s *FileStore) Delete(_ context.Context, jobID string) error {
	path, err := s.descriptorPath(jobID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete descriptor: %w", err)
	}
	return nil
}

func (s *FileStore) Exists(_ context.Context, jobID string) (bool, error) {
	path, err := s.descriptorPath(jobID)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat descriptor: %w", err)
	}
	return true, nil
}

func (s *FileStore) List(ctx context.Context) ([]*jobs.Record, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("scan job store root: %w", err)
	}
	var records []*jobs.Record
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		rec, err := s.Load(ctx, entry.Name())
		if err != nil || rec == nil {
			// Directories without a readable descriptor are not jobs.
			continue
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

func (s *FileStore) Close() error {
	return nil
}

func validateJobID(jobID string) error {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return errors.New("job id must not be empty")
	}
	if strings.ContainsAny(jobID, "/\\") || jobID == "." || jobID == ".." {
		return fmt.Errorf("invalid job id %q", jobID)
	}
	return nil
}
