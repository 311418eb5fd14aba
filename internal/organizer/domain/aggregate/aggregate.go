// Package aggregate provides the base type shared by event-sourced
// aggregates: identity, committed version, and the uncommitted events
// recorded since the last save.
package aggregate

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/inkwell-app/inkwell/internal/organizer/domain/event"
)

// Root is embedded by aggregate types. The zero value is not usable; build
// roots with New or restore them with Restore after replay.
type Root struct {
	id          string
	version     uint64
	uncommitted []event.Event
}

// New returns a root for a fresh aggregate with no history.
func New(id string) Root {
	return Root{id: id}
}

// ID returns the aggregate identifier.
func (r *Root) ID() string { return r.id }

// Version returns the number of committed events in the aggregate's stream.
// It is the expected version to pass when appending the uncommitted events.
func (r *Root) Version() uint64 { return r.version }

// Uncommitted returns the events recorded since the last commit, in order.
func (r *Root) Uncommitted() []event.Event { return r.uncommitted }

// MarkCommitted advances the committed version past the uncommitted events
// and clears them. Call after the events have been durably appended.
func (r *Root) MarkCommitted() {
	r.version += uint64(len(r.uncommitted))
	r.uncommitted = nil
}

// Restore sets the committed version after replaying history.
func (r *Root) Restore(version uint64) {
	r.version = version
	r.uncommitted = nil
}

// Record marshals payload and appends a new uncommitted event. The event's
// sequence continues the stream from the committed version.
func (r *Root) Record(aggregateType string, typ event.Type, occurredAt time.Time, payload any) (event.Event, error) {
	if r.id == "" {
		return event.Event{}, fmt.Errorf("aggregate id is empty")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return event.Event{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	evt := event.Event{
		AggregateID:   r.id,
		AggregateType: aggregateType,
		Seq:           r.version + uint64(len(r.uncommitted)) + 1,
		OccurredAt:    occurredAt.UTC(),
		Type:          typ,
		PayloadJSON:   data,
	}
	r.uncommitted = append(r.uncommitted, evt)
	return evt, nil
}
