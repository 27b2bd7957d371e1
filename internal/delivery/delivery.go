// Package delivery defines the adapter contract shared by the broker and
// poller job sources.
package delivery

import "context"

// Adapter discovers jobs and feeds their ids into the worker pool. Run blocks
// until ctx is canceled or the adapter hits an unrecoverable transport error.
type Adapter interface {
	Run(ctx context.Context) error
}

// Processor is the slice of the worker pool the broker adapter needs: submit
// one job id and block until its outcome is known.
type Processor interface {
	Process(ctx context.Context, jobID string) error
}

// Enqueuer is the slice of the worker pool the poller needs: submit a job id
// without waiting, with an optional completion callback.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobID string, onDone func(error)) error
}
