package pipeline

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
)

// Observer receives stage lifecycle callbacks during a pipeline run. StageStart
// may derive a new context (e.g. to carry a span) which is used for the stage
// and handed back to StageEnd.
type Observer interface {
	StageStart(ctx context.Context, invoiceID int64, stage constants.Stage) context.Context
	StageEnd(ctx context.Context, invoiceID int64, stage constants.Stage, err error)
}

// NopObserver ignores all callbacks.
type NopObserver struct{}

func (NopObserver) StageStart(ctx context.Context, _ int64, _ constants.Stage) context.Context {
	return ctx
}

func (NopObserver) StageEnd(context.Context, int64, constants.Stage, error) {}

// LogObserver mirrors stage transitions to a structured logger.
type LogObserver struct {
	Logger *slog.Logger
}

func (o LogObserver) StageStart(ctx context.Context, invoiceID int64, stage constants.Stage) context.Context {
	o.Logger.Debug("pipeline.stage.start", "invoice_id", invoiceID, "stage", stage)
	return ctx
}

func (o LogObserver) StageEnd(_ context.Context, invoiceID int64, stage constants.Stage, err error) {
	if err != nil {
		o.Logger.Error("pipeline.stage.failed", "invoice_id", invoiceID, "stage", stage, "error", err)
		return
	}
	o.Logger.Debug("pipeline.stage.ok", "invoice_id", invoiceID, "stage", stage)
}

// TracingObserver opens one span per stage.
type TracingObserver struct{}

func (TracingObserver) StageStart(ctx context.Context, invoiceID int64, stage constants.Stage) context.Context {
	ctx, span := otel.Tracer("invoice-pipeline").Start(ctx, "pipeline."+string(stage))
	span.SetAttributes(attribute.Int64("invoice.id", invoiceID))
	return ctx
}

func (TracingObserver) StageEnd(ctx context.Context, _ int64, _ constants.Stage, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
