// Package event defines the immutable domain events of the organizer journal.
//
// Events are facts that have occurred, never commands or requests. Once
// appended to the store they are never mutated or deleted.
package event

import (
	"strings"
	"time"
)

// Type identifies the type of an organizer event.
type Type string

// Category lifecycle events.
const (
	// TypeCategoryCreated records the creation of a category.
	TypeCategoryCreated Type = "category.created"
	// TypeCategoryRenamed records a category name change.
	TypeCategoryRenamed Type = "category.renamed"
	// TypeCategoryMoved records a category parent change.
	TypeCategoryMoved Type = "category.moved"
	// TypeCategoryReordered records a category sort-order change.
	TypeCategoryReordered Type = "category.reordered"
	// TypeCategoryTagsSet records a replacement of a category's tag set.
	TypeCategoryTagsSet Type = "category.tags_set"
	// TypeCategoryDeleted records the removal of a category.
	TypeCategoryDeleted Type = "category.deleted"
)

// Note lifecycle events.
const (
	// TypeNoteCreated records the creation of a note.
	TypeNoteCreated Type = "note.created"
	// TypeNoteRenamed records a note title change.
	TypeNoteRenamed Type = "note.renamed"
	// TypeNoteMoved records a note category change.
	TypeNoteMoved Type = "note.moved"
	// TypeNotePinned records a note pin state change.
	TypeNotePinned Type = "note.pinned"
	// TypeNoteTagsSet records a replacement of a note's tag set.
	TypeNoteTagsSet Type = "note.tags_set"
	// TypeNoteDeleted records the removal of a note.
	TypeNoteDeleted Type = "note.deleted"
)

// Task lifecycle events.
const (
	// TypeTaskCreated records the creation of a task.
	TypeTaskCreated Type = "task.created"
	// TypeTaskEdited records a task text change.
	TypeTaskEdited Type = "task.edited"
	// TypeTaskCompleted records a task completion.
	TypeTaskCompleted Type = "task.completed"
	// TypeTaskReopened records a completed task being reopened.
	TypeTaskReopened Type = "task.reopened"
	// TypeTaskMoved records a task category or parent change.
	TypeTaskMoved Type = "task.moved"
	// TypeTaskRescheduled records a task due-date change.
	TypeTaskRescheduled Type = "task.rescheduled"
	// TypeTaskReprioritized records a task priority change.
	TypeTaskReprioritized Type = "task.reprioritized"
	// TypeTaskTagsSet records a replacement of a task's tag set.
	TypeTaskTagsSet Type = "task.tags_set"
	// TypeTaskDeleted records the removal of a task.
	TypeTaskDeleted Type = "task.deleted"
)

// Aggregate type names used in the journal.
const (
	AggregateCategory = "category"
	AggregateNote     = "note"
	AggregateTask     = "task"
)

// Event represents an immutable entry in the organizer event journal.
type Event struct {
	// AggregateID is the aggregate this event belongs to.
	AggregateID string
	// AggregateType names the aggregate kind (category, note, task).
	AggregateType string
	// Seq is the event sequence number within the aggregate's stream
	// (starts at 1, contiguous). Assigned by storage on append.
	Seq uint64
	// GlobalSeq orders events across all aggregates for projection
	// catch-up. Assigned by storage on append.
	GlobalSeq uint64
	// OccurredAt is when the event occurred.
	OccurredAt time.Time
	// Type identifies the kind of event.
	Type Type
	// PayloadJSON holds event-specific data as JSON.
	PayloadJSON []byte
	// Hash is the content hash of the event envelope. Assigned on append.
	Hash string
	// PrevHash is the chain hash of the previous event in the same stream,
	// empty for the first event. Assigned on append.
	PrevHash string
	// ChainHash links this event to its predecessor. Assigned on append.
	ChainHash string
}

// IsValid reports whether the event type is usable.
func (t Type) IsValid() bool {
	return strings.TrimSpace(string(t)) != ""
}

// Domain returns the domain prefix of the event type (e.g. "category").
func (t Type) Domain() string {
	for i, c := range t {
		if c == '.' {
			return string(t[:i])
		}
	}
	return string(t)
}
