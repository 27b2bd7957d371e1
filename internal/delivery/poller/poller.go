// Package poller discovers jobs by scanning a directory tree on a timer, for
// deployments without a message broker.
package poller

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"groovesheet/internal/delivery"
	"groovesheet/internal/jobs"
	"groovesheet/internal/jobstore"
	"groovesheet/internal/logging"
	"groovesheet/internal/services"
)

// Poller scans jobsDir every interval for job subdirectories that still need
// processing and enqueues their ids. An in-process dispatched set suppresses
// resubmission between scans; the store's terminal check is the authoritative
// guard across restarts.
type Poller struct {
	store      jobstore.Store
	pool       delivery.Enqueuer
	jobsDir    string
	interval   time.Duration
	staleAfter time.Duration
	logger     *slog.Logger

	mu         sync.Mutex
	dispatched map[string]struct{}
}

// New wires a poller. staleAfter of 0 disables stale-job re-dispatch.
func New(store jobstore.Store, pool delivery.Enqueuer, jobsDir string, interval, staleAfter time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = logging.NewNop()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{
		store:      store,
		pool:       pool,
		jobsDir:    jobsDir,
		interval:   interval,
		staleAfter: staleAfter,
		logger:     logging.NewComponentLogger(logger, "poller"),
		dispatched: make(map[string]struct{}),
	}
}

// Run scans immediately, then on every tick, until ctx is canceled.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.ScanOnce(ctx); err != nil {
		p.logger.Error("scan failed", logging.Error(err))
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.ScanOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				p.logger.Error("scan failed", logging.Error(err))
			}
		}
	}
}

// ScanOnce walks the job tree once and enqueues every job that needs work.
// Exported for tests and for the daemon's startup sweep.
func (p *Poller) ScanOnce(ctx context.Context) error {
	entries, err := os.ReadDir(p.jobsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !entry.IsDir() {
			continue
		}
		p.considerJob(ctx, entry.Name())
	}
	return nil
}

func (p *Poller) considerJob(ctx context.Context, jobID string) {
	log := logging.WithContext(services.WithJobID(ctx, jobID), p.logger)
	jobDir := filepath.Join(p.jobsDir, jobID)

	// Cheapest check first: a finished job leaves its artifact on disk.
	if fileExists(filepath.Join(jobDir, jobs.OutputObjectName)) {
		return
	}
	if !fileExists(filepath.Join(jobDir, jobs.MetadataObjectName)) {
		return
	}
	if !fileExists(filepath.Join(jobDir, jobs.InputObjectName)) {
		return
	}

	rec, err := p.store.Load(ctx, jobID)
	if err != nil {
		log.Warn("descriptor unreadable, skipping", logging.Error(err))
		return
	}
	if rec == nil || rec.IsTerminal() {
		return
	}
	if !p.claim(jobID, rec) {
		return
	}

	log.Info("dispatching job", logging.String("status", string(rec.Status)))
	err = p.pool.Enqueue(ctx, jobID, func(err error) {
		if err != nil {
			log.Error("job processing error", logging.Error(err))
		}
		p.release(jobID)
	})
	if err != nil {
		p.release(jobID)
		log.Warn("enqueue failed", logging.Error(err))
	}
}

// claim reserves the id for dispatch. A job already dispatched is claimed
// again only when stale re-dispatch is enabled and its record has not been
// touched within the threshold, which covers jobs orphaned mid-stage by a
// crash of a previous process.
func (p *Poller) claim(jobID string, rec *jobs.Record) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.dispatched[jobID]; busy {
		return false
	}
	if rec.Status != jobs.StatusPending {
		// Mid-flight in some process. Only take it over once it goes stale.
		if p.staleAfter <= 0 || time.Since(rec.UpdatedAt) < p.staleAfter {
			return false
		}
	}
	p.dispatched[jobID] = struct{}{}
	return true
}

func (p *Poller) release(jobID string) {
	p.mu.Lock()
	delete(p.dispatched, jobID)
	p.mu.Unlock()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
