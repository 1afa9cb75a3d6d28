package async

import (
	"context"
	"errors"
	"time"
)

// ErrQueueClosed is returned by Enqueue once Shutdown has begun; callers
// must not report the job as accepted.
var ErrQueueClosed = errors.New("queue is closed")

// Job is one queued invoice document awaiting a pipeline run.
type Job struct {
	InvoiceID   int64
	Filename    string
	Content     []byte
	SubmittedAt time.Time
	TraceID     string
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
