package broker_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"groovesheet/internal/delivery/broker"
	"groovesheet/internal/jobs"
	"groovesheet/internal/jobstore"
	"groovesheet/internal/services"
)

type fakeTransport struct {
	mu      sync.Mutex
	acks    int
	nacks   int
	extends int
}

func (t *fakeTransport) Receive(ctx context.Context) (*broker.Message, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (t *fakeTransport) Ack(context.Context, *broker.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.acks++
	return nil
}

func (t *fakeTransport) Nack(context.Context, *broker.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nacks++
	return nil
}

func (t *fakeTransport) ExtendDeadline(context.Context, *broker.Message, time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.extends++
	return nil
}

func (t *fakeTransport) Close() error { return nil }

func (t *fakeTransport) counts() (acks, nacks, extends int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.acks, t.nacks, t.extends
}

type fakePool struct {
	calls atomic.Int32
	err   error
	block chan struct{}
}

func (p *fakePool) Process(ctx context.Context, jobID string) error {
	p.calls.Add(1)
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return p.err
}

func newTestStore(t *testing.T) jobstore.Store {
	t.Helper()
	store, err := jobstore.NewFileStore(filepath.Join(t.TempDir(), "jobs"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func message(body string) *broker.Message {
	return &broker.Message{Body: []byte(body)}
}

func TestPoisonMessageIsAcked(t *testing.T) {
	transport := &fakeTransport{}
	pool := &fakePool{}
	adapter := broker.New(transport, pool, newTestStore(t), 0, 0, nil)

	adapter.HandleMessage(context.Background(), message("{not json"))
	adapter.HandleMessage(context.Background(), message(`{"bucket":"b"}`))

	acks, nacks, _ := transport.counts()
	if acks != 2 || nacks != 0 {
		t.Fatalf("acks=%d nacks=%d, want 2/0", acks, nacks)
	}
	if pool.calls.Load() != 0 {
		t.Fatal("poison messages must never reach the pool")
	}
}

func TestTerminalJobAckedWithoutProcessing(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	rec := jobs.New("track.mp3", "jobs/x/input.mp3")
	rec.SetCompleted(&jobs.Result{NotationRef: "jobs/x/output.musicxml"}, "done")
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	transport := &fakeTransport{}
	pool := &fakePool{}
	adapter := broker.New(transport, pool, store, 0, 0, nil)

	adapter.HandleMessage(ctx, message(`{"job_id":"`+rec.JobID+`","bucket":"transcriptions"}`))

	acks, nacks, _ := transport.counts()
	if acks != 1 || nacks != 0 {
		t.Fatalf("acks=%d nacks=%d, want 1/0", acks, nacks)
	}
	if pool.calls.Load() != 0 {
		t.Fatal("terminal job must not be reprocessed")
	}
}

func TestSuccessfulProcessingAcks(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	rec := jobs.New("track.mp3", "jobs/y/input.mp3")
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	transport := &fakeTransport{}
	pool := &fakePool{}
	adapter := broker.New(transport, pool, store, 0, 0, nil)

	adapter.HandleMessage(ctx, message(`{"job_id":"`+rec.JobID+`","bucket":"transcriptions"}`))

	acks, nacks, _ := transport.counts()
	if acks != 1 || nacks != 0 {
		t.Fatalf("acks=%d nacks=%d, want 1/0", acks, nacks)
	}
	if pool.calls.Load() != 1 {
		t.Fatalf("pool calls = %d, want 1", pool.calls.Load())
	}
}

func TestProcessingErrorNacksForRedelivery(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	rec := jobs.New("track.mp3", "jobs/z/input.mp3")
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	transport := &fakeTransport{}
	pool := &fakePool{err: errors.New("store write failed")}
	adapter := broker.New(transport, pool, store, 0, 0, nil)

	adapter.HandleMessage(ctx, message(`{"job_id":"`+rec.JobID+`","bucket":"transcriptions"}`))

	acks, nacks, _ := transport.counts()
	if acks != 0 || nacks != 1 {
		t.Fatalf("acks=%d nacks=%d, want 0/1", acks, nacks)
	}
}

func TestMissingDescriptorAckedNotNacked(t *testing.T) {
	transport := &fakeTransport{}
	pool := &fakePool{err: services.Wrap(services.ErrNotFound, "", "load job", "no descriptor", nil)}
	adapter := broker.New(transport, pool, newTestStore(t), 0, 0, nil)

	adapter.HandleMessage(context.Background(), message(`{"job_id":"ghost","bucket":"transcriptions"}`))

	acks, nacks, _ := transport.counts()
	if acks != 1 || nacks != 0 {
		t.Fatalf("acks=%d nacks=%d, want 1/0", acks, nacks)
	}
}

func TestDuplicateDeliveryWhileInFlight(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	rec := jobs.New("track.mp3", "jobs/d/input.mp3")
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	transport := &fakeTransport{}
	pool := &fakePool{block: make(chan struct{})}
	adapter := broker.New(transport, pool, store, 0, 0, nil)
	body := `{"job_id":"` + rec.JobID + `","bucket":"transcriptions"}`

	first := make(chan struct{})
	go func() {
		adapter.HandleMessage(ctx, message(body))
		close(first)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for pool.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first delivery never reached the pool")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// The second delivery must be dropped unsettled while the first runs.
	adapter.HandleMessage(ctx, message(body))
	if acks, nacks, _ := transport.counts(); acks != 0 || nacks != 0 {
		t.Fatalf("duplicate settled the message: acks=%d nacks=%d", acks, nacks)
	}

	close(pool.block)
	<-first

	if pool.calls.Load() != 1 {
		t.Fatalf("pool calls = %d, want exactly 1", pool.calls.Load())
	}
	if acks, _, _ := transport.counts(); acks != 1 {
		t.Fatalf("first delivery acks = %d, want 1", acks)
	}
}

func TestDeadlineExtendedWhileProcessing(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	rec := jobs.New("track.mp3", "jobs/e/input.mp3")
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	transport := &fakeTransport{}
	pool := &fakePool{block: make(chan struct{})}
	adapter := broker.New(transport, pool, store, 10*time.Millisecond, time.Minute, nil)

	done := make(chan struct{})
	go func() {
		adapter.HandleMessage(ctx, message(`{"job_id":"`+rec.JobID+`","bucket":"transcriptions"}`))
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, _, extends := transport.counts(); extends >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("deadline never extended while job in flight")
		}
		time.Sleep(5 * time.Millisecond)
	}
	close(pool.block)
	<-done

	_, _, afterStop := transport.counts()
	time.Sleep(50 * time.Millisecond)
	if _, _, final := transport.counts(); final != afterStop {
		t.Fatalf("extensions continued after terminal state: %d -> %d", afterStop, final)
	}
}
