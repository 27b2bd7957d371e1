package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"groovesheet/internal/logging"
)

// Processor handles one job id to completion. Satisfied by *Executor.
type Processor interface {
	Process(ctx context.Context, jobID string) error
}

// ErrPoolClosed is returned when work is submitted after Stop.
var ErrPoolClosed = errors.New("worker pool closed")

type request struct {
	jobID string
	done  chan error
}

// Pool runs a fixed number of workers over a bounded queue of job ids. Queue
// capacity equals the worker count, so enqueueing blocks once every worker is
// busy and the queue is full. That backpressure is the only admission control.
type Pool struct {
	processor Processor
	logger    *slog.Logger
	workers   int

	queue    chan request
	quit     chan struct{}
	quitOnce sync.Once
	wg       sync.WaitGroup
}

// NewPool creates a pool with the given concurrency. workers below 1 is
// treated as 1.
func NewPool(processor Processor, workers int, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pool{
		processor: processor,
		logger:    logging.NewComponentLogger(logger, "workerpool"),
		workers:   workers,
		queue:     make(chan request, workers),
		quit:      make(chan struct{}),
	}
}

// Start launches the workers. Workers finish the job in hand before exiting
// (stages are non-cancelable mid-call); Stop does not preempt a running stage.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.logger.With(logging.Int("worker", id))
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.quit:
			return
		case req := <-p.queue:
			err := p.runOne(ctx, req.jobID)
			if err != nil {
				log.Error("job processing error", logging.String(logging.FieldJobID, req.jobID), logging.Error(err))
			}
			if req.done != nil {
				req.done <- err
			}
		}
	}
}

// runOne invokes the processor and converts a panic into an error so a single
// job can never take a worker down.
func (p *Pool) runOne(ctx context.Context, jobID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing job %s: %v", jobID, r)
		}
	}()
	return p.processor.Process(ctx, jobID)
}

// Process enqueues the job and waits for its outcome. It blocks while the
// queue is full. Used by the broker adapter, which needs the result to decide
// between ack and nack.
func (p *Pool) Process(ctx context.Context, jobID string) error {
	req := request{jobID: jobID, done: make(chan error, 1)}
	if err := p.submit(ctx, req); err != nil {
		return err
	}
	select {
	case err := <-req.done:
		return err
	case <-p.quit:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueue submits the job without waiting for the outcome, invoking onDone
// (if non-nil) from a helper goroutine when the job finishes. It blocks while
// the queue is full. Used by the poller.
func (p *Pool) Enqueue(ctx context.Context, jobID string, onDone func(error)) error {
	req := request{jobID: jobID}
	if onDone != nil {
		req.done = make(chan error, 1)
		go func() {
			select {
			case err := <-req.done:
				onDone(err)
			case <-p.quit:
			}
		}()
	}
	return p.submit(ctx, req)
}

func (p *Pool) submit(ctx context.Context, req request) error {
	select {
	case <-p.quit:
		return ErrPoolClosed
	default:
	}
	select {
	case p.queue <- req:
		return nil
	case <-p.quit:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop signals the workers and waits for them to finish their current jobs.
// Queued but unstarted requests are dropped; the delivery adapters re-discover
// those jobs on the next run.
func (p *Pool) Stop() {
	p.quitOnce.Do(func() { close(p.quit) })
	p.wg.Wait()
}
