// Package repository loads aggregates by replaying their event streams and
// saves their uncommitted events with optimistic concurrency.
package repository

import (
	"context"
	"fmt"

	"github.com/inkwell-app/inkwell/internal/organizer/domain/category"
	"github.com/inkwell-app/inkwell/internal/organizer/domain/event"
	"github.com/inkwell-app/inkwell/internal/organizer/domain/note"
	"github.com/inkwell-app/inkwell/internal/organizer/domain/task"
	"github.com/inkwell-app/inkwell/internal/organizer/storage"
)

// Aggregate is the surface repositories need from an aggregate root.
type Aggregate interface {
	ID() string
	Version() uint64
	Uncommitted() []event.Event
	MarkCommitted()
}

// Repository mediates between aggregates and the event store.
type Repository struct {
	events storage.EventStore
}

// New returns a repository backed by the given event store.
func New(events storage.EventStore) *Repository {
	return &Repository{events: events}
}

// LoadCategory replays a category's stream. Returns ErrNotFound when the
// stream is empty.
func (r *Repository) LoadCategory(ctx context.Context, id string) (*category.Category, error) {
	events, err := r.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return category.Replay(id, events), nil
}

// LoadNote replays a note's stream.
func (r *Repository) LoadNote(ctx context.Context, id string) (*note.Note, error) {
	events, err := r.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return note.Replay(id, events), nil
}

// LoadTask replays a task's stream.
func (r *Repository) LoadTask(ctx context.Context, id string) (*task.Task, error) {
	events, err := r.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return task.Replay(id, events), nil
}

// Save appends an aggregate's uncommitted events using its committed
// version as the expected stream version. A concurrent writer surfaces as
// storage.ErrConcurrencyConflict and leaves the aggregate unchanged. On
// success the aggregate is marked committed and the stored events, with
// global sequence and hashes assigned, are returned.
func (r *Repository) Save(ctx context.Context, agg Aggregate) ([]event.Event, error) {
	if r == nil || r.events == nil {
		return nil, fmt.Errorf("event store is not configured")
	}
	uncommitted := agg.Uncommitted()
	if len(uncommitted) == 0 {
		return nil, nil
	}

	appended, err := r.events.AppendEvents(ctx, agg.Version(), uncommitted)
	if err != nil {
		return nil, fmt.Errorf("save %s: %w", agg.ID(), err)
	}
	agg.MarkCommitted()
	return appended, nil
}

// Events returns an aggregate's full stream.
func (r *Repository) Events(ctx context.Context, id string) ([]event.Event, error) {
	if r == nil || r.events == nil {
		return nil, fmt.Errorf("event store is not configured")
	}
	return r.events.ListEvents(ctx, id)
}

func (r *Repository) load(ctx context.Context, id string) ([]event.Event, error) {
	if r == nil || r.events == nil {
		return nil, fmt.Errorf("event store is not configured")
	}
	events, err := r.events.ListEvents(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", id, err)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("aggregate %s: %w", id, storage.ErrNotFound)
	}
	return events, nil
}
