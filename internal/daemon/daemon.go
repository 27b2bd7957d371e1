package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"groovesheet/internal/config"
	"groovesheet/internal/delivery"
	"groovesheet/internal/delivery/broker"
	"groovesheet/internal/delivery/poller"
	"groovesheet/internal/jobs"
	"groovesheet/internal/jobstore"
	"groovesheet/internal/logging"
	"groovesheet/internal/notifications"
	"groovesheet/internal/objectstore"
	"groovesheet/internal/pipeline"
	"groovesheet/internal/services/separator"
	"groovesheet/internal/services/sheet"
	"groovesheet/internal/services/transcriber"
)

// Daemon coordinates the delivery adapter, worker pool, and HTTP API, and
// enforces single-instance execution through a lock file.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   jobstore.Store
	objects objectstore.Store
	pool    *pipeline.Pool
	adapter delivery.Adapter
	api     *apiServer

	lockPath string
	lock     *flock.Flock
	closers  []io.Closer

	running     atomic.Bool
	cancel      context.CancelFunc
	adapterDone chan struct{}
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	DeliveryMode string
	StoreBackend string
	LockFilePath string
	Jobs         jobs.HealthSummary
}

// New constructs a daemon from prebuilt components. adapter may be nil, in
// which case jobs only arrive through the HTTP API.
func New(cfg *config.Config, store jobstore.Store, objects objectstore.Store, pool *pipeline.Pool, adapter delivery.Adapter, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || pool == nil {
		return nil, errors.New("daemon requires config, store, and worker pool")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := filepath.Join(cfg.Paths.LogDir, "groovesheetd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		objects:  objects,
		pool:     pool,
		adapter:  adapter,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Build wires a daemon entirely from configuration: object store, job store,
// collaborator clients, executor, pool, and the configured delivery adapter.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	objects, err := objectstore.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open object store: %w", err)
	}
	store, err := jobstore.Open(cfg, objects)
	if err != nil {
		_ = objects.Close()
		return nil, fmt.Errorf("open job store: %w", err)
	}

	executor := pipeline.NewExecutor(
		store,
		objects,
		separator.New(cfg),
		transcriber.New(cfg),
		sheet.New(cfg),
		cfg.Workflow.CleanupInputs,
		logger,
	)
	executor.SetNotifier(notifications.NewService(cfg))
	pool := pipeline.NewPool(executor, cfg.Workflow.MaxConcurrentJobs, logger)

	var (
		adapter   delivery.Adapter
		transport broker.Transport
	)
	switch cfg.Delivery.Mode {
	case "broker":
		transport, err = openTransport(ctx, cfg)
		if err != nil {
			_ = store.Close()
			_ = objects.Close()
			return nil, err
		}
		adapter = broker.New(transport, pool, store, cfg.DeadlineExtensionInterval(), cfg.DeadlineExtension(), logger)
	case "poller":
		adapter = poller.New(store, pool, cfg.Paths.JobsDir, cfg.PollInterval(), cfg.StaleJobTimeout(), logger)
	default:
		_ = store.Close()
		_ = objects.Close()
		return nil, fmt.Errorf("delivery.mode: unsupported value %q", cfg.Delivery.Mode)
	}

	d, err := New(cfg, store, objects, pool, adapter, logger)
	if err != nil {
		if transport != nil {
			_ = transport.Close()
		}
		_ = store.Close()
		_ = objects.Close()
		return nil, err
	}
	d.closers = append(d.closers, store, objects)
	if transport != nil {
		d.closers = append(d.closers, transport)
	}
	return d, nil
}

func openTransport(ctx context.Context, cfg *config.Config) (broker.Transport, error) {
	switch cfg.Broker.Transport {
	case "pubsub":
		return broker.NewPubSubTransport(ctx, cfg.Broker.Project, cfg.Broker.Subscription)
	case "amqp":
		return broker.NewAMQPTransport(cfg.Broker.AMQPURL, cfg.Broker.AMQPQueue)
	default:
		return nil, fmt.Errorf("broker.transport: unsupported value %q", cfg.Broker.Transport)
	}
}

// Start acquires the daemon lock and launches the pool, the delivery
// adapter, and the API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another groovesheet daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.pool.Start(runCtx)

	d.adapterDone = make(chan struct{})
	go func() {
		defer close(d.adapterDone)
		if d.adapter == nil {
			return
		}
		if err := d.adapter.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("delivery adapter stopped", logging.Error(err))
		}
	}()

	if err := d.api.start(runCtx); err != nil {
		cancel()
		<-d.adapterDone
		d.pool.Stop()
		_ = d.lock.Unlock()
		return err
	}

	d.running.Store(true)
	d.logger.Info("groovesheet daemon started",
		logging.String("lock", d.lockPath),
		logging.String("delivery", d.cfg.Delivery.Mode),
		logging.Int("workers", d.cfg.Workflow.MaxConcurrentJobs))
	return nil
}

// Stop halts background processing and releases the daemon lock. Workers
// finish the job in hand before exiting.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.adapterDone != nil {
		<-d.adapterDone
		d.adapterDone = nil
	}
	d.pool.Stop()
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("groovesheet daemon stopped")
}

// Close stops the daemon and closes the stores and transport.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	for _, closer := range d.closers {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Running reports whether Start has succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Status summarizes the daemon and its job backlog.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		DeliveryMode: d.cfg.Delivery.Mode,
		StoreBackend: d.cfg.Store.Backend,
		LockFilePath: d.lockPath,
	}
	if records, err := d.store.List(ctx); err == nil {
		status.Jobs = jobs.Summarize(records)
	} else {
		d.logger.Warn("job listing failed", logging.Error(err))
	}
	return status
}

// dispatch hands an API-submitted job to the pool. In poller mode the scan
// loop discovers the descriptor on its own; enqueueing here as well would
// race it for the same id.
func (d *Daemon) dispatch(jobID string) {
	if d.cfg.Delivery.Mode == "poller" && d.adapter != nil {
		return
	}
	go func() {
		if err := d.pool.Enqueue(context.Background(), jobID, nil); err != nil {
			d.logger.Warn("dispatch failed", logging.String(logging.FieldJobID, jobID), logging.Error(err))
		}
	}()
}
