package async

import (
	"context"
	"io"
	"testing"
	"time"

	"log/slog"

	"github.com/stretchr/testify/assert"
)

func TestEnqueueAfterShutdownReturnsError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	q := NewPipelineQueue(nil, logger, WithWorkers(1), WithQueueSize(1))
	q.Shutdown(context.Background())

	err := q.Enqueue(context.Background(), Job{
		InvoiceID:   42,
		Filename:    "invoice.pdf",
		SubmittedAt: time.Now(),
	})
	assert.ErrorIs(t, err, ErrQueueClosed, "a closed queue must refuse jobs instead of dropping them")
}

func TestShutdownIsIdempotent(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	q := NewPipelineQueue(nil, logger, WithWorkers(1))

	q.Shutdown(context.Background())
	q.Shutdown(context.Background())
}
