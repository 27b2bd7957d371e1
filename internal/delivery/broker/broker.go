// Package broker bridges an at-least-once push message channel to the worker
// pool, with duplicate suppression and ack-deadline safety for long jobs.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"groovesheet/internal/delivery"
	"groovesheet/internal/jobstore"
	"groovesheet/internal/logging"
	"groovesheet/internal/services"
)

// Message is one delivery from the transport. The handle carries whatever the
// transport needs to ack, nack, or extend this specific delivery.
type Message struct {
	Body   []byte
	handle any
}

// Transport is the broker-specific half of the adapter. Receive blocks until
// a message arrives; implementations deliver at most one un-acked message at
// a time (flow control of 1).
type Transport interface {
	Receive(ctx context.Context) (*Message, error)
	Ack(ctx context.Context, msg *Message) error
	Nack(ctx context.Context, msg *Message) error
	ExtendDeadline(ctx context.Context, msg *Message, d time.Duration) error
	Close() error
}

type payload struct {
	JobID  string `json:"job_id"`
	Bucket string `json:"bucket"`
}

// Adapter consumes messages one at a time and drives each through the worker
// pool. Duplicate deliveries of an in-flight job are dropped; messages for
// already terminal jobs are acked without reprocessing; malformed messages
// are acked immediately so a poison payload cannot redeliver forever.
type Adapter struct {
	transport Transport
	pool      delivery.Processor
	store     jobstore.Store
	logger    *slog.Logger

	extendEvery time.Duration
	extendBy    time.Duration

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New wires a broker adapter. extendEvery of 0 disables deadline extension.
func New(transport Transport, pool delivery.Processor, store jobstore.Store, extendEvery, extendBy time.Duration, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Adapter{
		transport:   transport,
		pool:        pool,
		store:       store,
		logger:      logging.NewComponentLogger(logger, "broker"),
		extendEvery: extendEvery,
		extendBy:    extendBy,
		inFlight:    make(map[string]struct{}),
	}
}

// Run receives messages until ctx is canceled. Transport receive errors other
// than cancellation are returned to the caller.
func (a *Adapter) Run(ctx context.Context) error {
	for {
		msg, err := a.transport.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("receive message: %w", err)
		}
		if msg == nil {
			continue
		}
		a.HandleMessage(ctx, msg)
	}
}

// HandleMessage processes one delivery end to end, including the ack or nack
// decision. Exported for tests; Run is the production entry point.
func (a *Adapter) HandleMessage(ctx context.Context, msg *Message) {
	var p payload
	if err := json.Unmarshal(msg.Body, &p); err != nil {
		a.logger.Warn("acking undecodable message", logging.Error(err))
		a.ack(ctx, msg)
		return
	}
	jobID := strings.TrimSpace(p.JobID)
	if jobID == "" {
		a.logger.Warn("acking message without job id")
		a.ack(ctx, msg)
		return
	}

	ctx = services.WithJobID(ctx, jobID)
	log := logging.WithContext(ctx, a.logger)

	if !a.claim(jobID) {
		// A prior delivery of this job is still being processed; its own
		// ack/nack settles the message. Dropping here leaves this duplicate
		// to the broker's redelivery timer.
		log.Debug("dropping duplicate delivery")
		return
	}
	defer a.release(jobID)

	rec, err := a.store.Load(ctx, jobID)
	if err != nil {
		log.Error("job lookup failed, nacking for redelivery", logging.Error(err))
		a.nack(ctx, msg)
		return
	}
	if rec != nil && rec.IsTerminal() {
		log.Info("acking message for terminal job", logging.String("status", string(rec.Status)))
		a.ack(ctx, msg)
		return
	}

	stopExtending := a.extendWhileProcessing(ctx, msg, log)
	err = a.pool.Process(ctx, jobID)
	stopExtending()

	switch {
	case err == nil:
		a.ack(ctx, msg)
	case errors.Is(err, services.ErrNotFound):
		// No descriptor will ever appear for this id; redelivery cannot help.
		log.Warn("acking message without descriptor", logging.Error(err))
		a.ack(ctx, msg)
	default:
		log.Error("processing error, nacking for redelivery", logging.Error(err))
		a.nack(ctx, msg)
	}
}

// extendWhileProcessing keeps pushing the message's ack deadline out while the
// job runs. The returned func stops the ticker; it is safe to call twice.
func (a *Adapter) extendWhileProcessing(ctx context.Context, msg *Message, log *slog.Logger) func() {
	if a.extendEvery <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	var once sync.Once
	go func() {
		ticker := time.NewTicker(a.extendEvery)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := a.transport.ExtendDeadline(ctx, msg, a.extendBy); err != nil {
					log.Warn("deadline extension failed", logging.Error(err))
				} else {
					log.Debug("extended message deadline", logging.Duration("by", a.extendBy))
				}
			}
		}
	}()
	return func() { once.Do(func() { close(done) }) }
}

func (a *Adapter) claim(jobID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, busy := a.inFlight[jobID]; busy {
		return false
	}
	a.inFlight[jobID] = struct{}{}
	return true
}

func (a *Adapter) release(jobID string) {
	a.mu.Lock()
	delete(a.inFlight, jobID)
	a.mu.Unlock()
}

func (a *Adapter) ack(ctx context.Context, msg *Message) {
	if err := a.transport.Ack(ctx, msg); err != nil {
		a.logger.Warn("ack failed", logging.Error(err))
	}
}

func (a *Adapter) nack(ctx context.Context, msg *Message) {
	if err := a.transport.Nack(ctx, msg); err != nil {
		a.logger.Warn("nack failed", logging.Error(err))
	}
}
