package projection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/inkwell-app/inkwell/internal/organizer/storage"
)

const catchUpPageSize = 200

// Orchestrator advances projections through the journal. CatchUp is safe to
// call from multiple goroutines; runs are serialized.
type Orchestrator struct {
	events  storage.EventStore
	applier Applier
	logger  *slog.Logger
	tracer  trace.Tracer

	mu sync.Mutex
}

// NewOrchestrator builds an orchestrator over the given stores. logger may
// be nil to use the default.
func NewOrchestrator(events storage.EventStore, projections storage.ProjectionStore, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		events:  events,
		applier: Applier{Projections: projections},
		logger:  logger,
		tracer:  otel.Tracer("organizer/projection"),
	}
}

// CatchUp applies every journal event past the checkpoint, in global order,
// and advances the checkpoint. An event whose handler fails is logged and
// skipped so one bad event cannot wedge the projections; the checkpoint
// still advances past it.
func (o *Orchestrator) CatchUp(ctx context.Context) error {
	if o == nil || o.events == nil {
		return fmt.Errorf("orchestrator is not configured")
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	ctx, span := o.tracer.Start(ctx, "projection.catch_up")
	defer span.End()

	checkpoint, err := o.applier.Projections.GetCheckpoint(ctx)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	start := checkpoint

	for {
		events, err := o.events.ListEventsAfter(ctx, checkpoint, catchUpPageSize)
		if err != nil {
			return fmt.Errorf("list events after %d: %w", checkpoint, err)
		}
		if len(events) == 0 {
			break
		}
		for _, evt := range events {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := o.applier.Apply(ctx, evt); err != nil {
				o.logger.Warn("projection apply failed, skipping event",
					"global_seq", evt.GlobalSeq,
					"type", string(evt.Type),
					"aggregate_id", evt.AggregateID,
					"error", err)
			}
			checkpoint = evt.GlobalSeq
		}
		if err := o.applier.Projections.SaveCheckpoint(ctx, checkpoint); err != nil {
			return fmt.Errorf("save checkpoint: %w", err)
		}
		if len(events) < catchUpPageSize {
			break
		}
	}

	span.SetAttributes(
		attribute.Int64("projection.checkpoint.start", int64(start)),
		attribute.Int64("projection.checkpoint.end", int64(checkpoint)),
	)
	if checkpoint > start {
		o.logger.Debug("projections caught up", "from", start, "to", checkpoint)
	}
	return nil
}
