package projection

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/inkwell-app/inkwell/internal/organizer/domain/category"
	"github.com/inkwell-app/inkwell/internal/organizer/domain/event"
	"github.com/inkwell-app/inkwell/internal/organizer/domain/note"
)

const maxCategoryDepth = 20

// RebuildAll drops every projection and replays the whole journal in a
// deterministic order: categories shallowest first, then notes, then tasks.
// Rebuilding the same journal twice produces identical projections. Unlike
// CatchUp, any apply failure aborts the rebuild so a half-built read side
// is never left behind.
func (o *Orchestrator) RebuildAll(ctx context.Context) error {
	if o == nil || o.events == nil {
		return fmt.Errorf("orchestrator is not configured")
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	ctx, span := o.tracer.Start(ctx, "projection.rebuild_all")
	defer span.End()

	head, err := o.events.LatestGlobalSeq(ctx)
	if err != nil {
		return fmt.Errorf("read journal head: %w", err)
	}

	if err := o.applier.Projections.ResetProjections(ctx); err != nil {
		return fmt.Errorf("reset projections: %w", err)
	}

	if err := o.rebuildCategories(ctx); err != nil {
		return err
	}
	deletedNotes, err := o.rebuildNotes(ctx)
	if err != nil {
		return err
	}
	if err := o.rebuildTasks(ctx); err != nil {
		return err
	}
	// Deleted-note orphan flags are applied last: during a linear replay
	// the tasks exist before their source note's deletion, but the rebuild
	// projects tasks after notes.
	for _, id := range sortedKeys(deletedNotes) {
		if err := o.applier.Projections.MarkTasksOrphanedBySourceNote(ctx, id, deletedNotes[id].OccurredAt); err != nil {
			return fmt.Errorf("mark tasks orphaned for note %s: %w", id, err)
		}
	}

	if err := o.applier.Projections.SaveCheckpoint(ctx, head); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	span.SetAttributes(attribute.Int64("projection.rebuild.head", int64(head)))
	o.logger.Info("projections rebuilt", "head", head)
	return nil
}

// rebuildCategories replays category streams shallowest first so every
// parent's canonical path exists before its children need it.
func (o *Orchestrator) rebuildCategories(ctx context.Context) error {
	ids, err := o.events.ListAggregateIDs(ctx, event.AggregateCategory)
	if err != nil {
		return fmt.Errorf("list categories: %w", err)
	}

	streams := make(map[string][]event.Event, len(ids))
	parents := make(map[string]string, len(ids))
	for _, id := range ids {
		events, err := o.events.ListEvents(ctx, id)
		if err != nil {
			return fmt.Errorf("load category %s: %w", id, err)
		}
		streams[id] = events
		parents[id] = category.Replay(id, events).State().ParentID
	}

	depth := func(id string) int {
		d := 0
		for current := parents[id]; current != "" && d < maxCategoryDepth; current = parents[current] {
			d++
		}
		return d
	}
	sort.SliceStable(ids, func(i, j int) bool {
		di, dj := depth(ids[i]), depth(ids[j])
		if di != dj {
			return di < dj
		}
		return ids[i] < ids[j]
	})

	for _, id := range ids {
		if err := o.applyStream(ctx, streams[id]); err != nil {
			return fmt.Errorf("rebuild category %s: %w", id, err)
		}
	}
	return nil
}

// noteDeletion records when a deleted note went away.
type noteDeletion struct {
	OccurredAt time.Time
}

func (o *Orchestrator) rebuildNotes(ctx context.Context) (map[string]noteDeletion, error) {
	ids, err := o.events.ListAggregateIDs(ctx, event.AggregateNote)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	sort.Strings(ids)

	deleted := make(map[string]noteDeletion)
	for _, id := range ids {
		events, err := o.events.ListEvents(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load note %s: %w", id, err)
		}
		if err := o.applyStream(ctx, events); err != nil {
			return nil, fmt.Errorf("rebuild note %s: %w", id, err)
		}
		state := note.Replay(id, events).State()
		if state.Deleted {
			deleted[id] = noteDeletion{OccurredAt: time.UnixMilli(state.ModifiedAt).UTC()}
		}
	}
	return deleted, nil
}

func (o *Orchestrator) rebuildTasks(ctx context.Context) error {
	ids, err := o.events.ListAggregateIDs(ctx, event.AggregateTask)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	sort.Strings(ids)

	for _, id := range ids {
		events, err := o.events.ListEvents(ctx, id)
		if err != nil {
			return fmt.Errorf("load task %s: %w", id, err)
		}
		if err := o.applyStream(ctx, events); err != nil {
			return fmt.Errorf("rebuild task %s: %w", id, err)
		}
	}
	return nil
}

func (o *Orchestrator) applyStream(ctx context.Context, events []event.Event) error {
	for _, evt := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.applier.Apply(ctx, evt); err != nil {
			return fmt.Errorf("apply %s seq %d: %w", evt.Type, evt.Seq, err)
		}
	}
	return nil
}

func sortedKeys(m map[string]noteDeletion) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
