package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"groovesheet/internal/jobs"
)

// SQLiteStore keeps descriptors in a single SQLite table. The record body is
// stored as JSON so schema churn in jobs.Record never needs a migration;
// status and timestamps are broken out as columns for list queries.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite initializes or connects to the job database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	const schema = `CREATE TABLE IF NOT EXISTS job_records (
        job_id     TEXT PRIMARY KEY,
        status     TEXT NOT NULL,
        created_at TEXT NOT NULL,
        updated_at TEXT NOT NULL,
        record     TEXT NOT NULL
    )`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, rec *jobs.Record) error {
	if rec == nil {
		return errors.New("record is nil")
	}
	if err := validateJobID(rec.JobID); err != nil {
		return err
	}
	rec.UpdatedAt = time.Now().UTC()

	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO job_records (job_id, status, created_at, updated_at, record)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(job_id) DO UPDATE SET
             status = excluded.status,
             updated_at = excluded.updated_at,
             record = excluded.record`,
		rec.JobID,
		string(rec.Status),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		rec.UpdatedAt.Format(time.RFC3339Nano),
		string(body),
	)
	if err != nil {
		return fmt.Errorf("save record %s: %w", rec.JobID, err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, jobID string) (*jobs.Record, error) {
	if err := validateJobID(jobID); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT record FROM job_records WHERE job_id = ?`, jobID)

	var body string
	if err := row.Scan(&body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load record %s: %w", jobID, err)
	}
	var rec jobs.Record
	if err := json.Unmarshal([]byte(body), &rec); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", jobID, err)
	}
	return &rec, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, jobID string) error {
	if err := validateJobID(jobID); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM job_records WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("delete record %s: %w", jobID, err)
	}
	return nil
}

func (s *SQLiteStore) Exists(ctx context.Context, jobID string) (bool, error) {
	if err := validateJobID(jobID); err != nil {
		return false, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT 1 FROM job_records WHERE job_id = ?`, jobID)

	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check record %s: %w", jobID, err)
	}
	return true, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]*jobs.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record FROM job_records ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []*jobs.Record
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		var rec jobs.Record
		if err := json.Unmarshal([]byte(body), &rec); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
