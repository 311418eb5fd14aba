// Package storage defines the persistence interfaces of the organizer: the
// append-only event store and the rebuildable projection stores.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/inkwell-app/inkwell/internal/organizer/domain/event"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConcurrencyConflict indicates an append raced with another writer:
	// the stream's latest sequence did not match the expected version.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrIntegrity indicates a stored event fails hash verification.
	ErrIntegrity = errors.New("event integrity violation")
)

// EventStore is the append-only journal of domain events.
type EventStore interface {
	// AppendEvents atomically appends events to a single aggregate's stream.
	// expectedVersion is the stream's latest sequence as seen by the caller;
	// a mismatch returns ErrConcurrencyConflict and appends nothing. The
	// returned events carry their assigned global sequence and hashes.
	AppendEvents(ctx context.Context, expectedVersion uint64, events []event.Event) ([]event.Event, error)
	// ListEvents returns an aggregate's events ordered by sequence.
	ListEvents(ctx context.Context, aggregateID string) ([]event.Event, error)
	// ListEventsAfter returns up to limit events with a global sequence
	// greater than afterGlobalSeq, ordered by global sequence.
	ListEventsAfter(ctx context.Context, afterGlobalSeq uint64, limit int) ([]event.Event, error)
	// LatestSeq returns the latest sequence of an aggregate's stream, zero
	// when the stream is empty.
	LatestSeq(ctx context.Context, aggregateID string) (uint64, error)
	// LatestGlobalSeq returns the journal's head global sequence, zero when
	// the journal is empty.
	LatestGlobalSeq(ctx context.Context) (uint64, error)
	// ListAggregateIDs returns the distinct aggregate ids of a type, in the
	// order their first event was appended.
	ListAggregateIDs(ctx context.Context, aggregateType string) ([]string, error)
	// VerifyIntegrity recomputes content and chain hashes for an aggregate's
	// stream and returns ErrIntegrity on the first mismatch.
	VerifyIntegrity(ctx context.Context, aggregateID string) error
}

// Node types stored in the tree view.
const (
	NodeCategory = "category"
	NodeNote     = "note"
)

// EntityTask is the tag-owner type for tasks, which live in the task view
// rather than the tree.
const EntityTask = "task"

// TreeNode is one row of the tree projection: a category or a note placed
// in the folder hierarchy.
type TreeNode struct {
	ID            string
	ParentID      string
	NodeType      string
	Name          string
	CanonicalPath string
	IsPinned      bool
	SortOrder     int
	CreatedAt     time.Time
	ModifiedAt    time.Time
}

// TaskRow is one row of the task projection.
type TaskRow struct {
	ID               string
	Text             string
	IsCompleted      bool
	CategoryID       string
	ParentID         string
	Priority         int
	DueDate          *time.Time
	SourceNoteID     string
	SourceFilePath   string
	SourceLineNumber int
	IsOrphaned       bool
	CreatedAt        time.Time
	ModifiedAt       time.Time
}

// TagRow is one row of the tag projection. Key is the case-folded identity;
// DisplayText preserves the casing the tag was first seen with.
type TagRow struct {
	EntityID    string
	EntityType  string
	Key         string
	DisplayText string
	Source      string
	CreatedAt   time.Time
}

// TreeStore holds the tree projection.
type TreeStore interface {
	// PutTreeNode inserts or replaces a node. Reapplying the same event
	// produces the same row.
	PutTreeNode(ctx context.Context, node TreeNode) error
	// GetTreeNode returns a node by id, ErrNotFound when absent.
	GetTreeNode(ctx context.Context, id string) (TreeNode, error)
	// ListChildren returns the direct children of a parent ordered by sort
	// order then name. An empty parentID lists root nodes.
	ListChildren(ctx context.Context, parentID string) ([]TreeNode, error)
	// ListTreeNodes returns every node ordered by canonical path.
	ListTreeNodes(ctx context.Context) ([]TreeNode, error)
	// DeleteTreeNode removes a node. Deleting an absent node is not an error.
	DeleteTreeNode(ctx context.Context, id string) error
}

// TaskViewStore holds the task projection.
type TaskViewStore interface {
	// PutTaskRow inserts or replaces a task row.
	PutTaskRow(ctx context.Context, row TaskRow) error
	// GetTaskRow returns a task row by id, ErrNotFound when absent.
	GetTaskRow(ctx context.Context, id string) (TaskRow, error)
	// ListTasksByCategory returns a category's tasks ordered by priority
	// descending then creation time.
	ListTasksByCategory(ctx context.Context, categoryID string) ([]TaskRow, error)
	// ListTasksBySourceNote returns the tasks extracted from a note.
	ListTasksBySourceNote(ctx context.Context, noteID string) ([]TaskRow, error)
	// MarkTasksOrphanedBySourceNote flags every task extracted from a note
	// as orphaned. Orphaned tasks stay visible.
	MarkTasksOrphanedBySourceNote(ctx context.Context, noteID string, at time.Time) error
	// DeleteTaskRow removes a task row. Deleting an absent row is not an
	// error.
	DeleteTaskRow(ctx context.Context, id string) error
}

// TagStore holds the tag projection.
type TagStore interface {
	// ReplaceEntityTags replaces an entity's tag rows in one transaction.
	ReplaceEntityTags(ctx context.Context, entityID, entityType string, rows []TagRow) error
	// ListEntityTags returns an entity's tags ordered by key.
	ListEntityTags(ctx context.Context, entityID string) ([]TagRow, error)
	// ListEntitiesByTag returns the ids of entities of a type carrying the
	// tag key, ordered by id.
	ListEntitiesByTag(ctx context.Context, entityType, key string) ([]string, error)
	// DeleteEntityTags removes every tag row of an entity.
	DeleteEntityTags(ctx context.Context, entityID string) error
}

// CheckpointStore tracks projection progress through the journal.
type CheckpointStore interface {
	// GetCheckpoint returns the last applied global sequence, zero when no
	// checkpoint has been saved.
	GetCheckpoint(ctx context.Context) (uint64, error)
	// SaveCheckpoint records progress. The checkpoint never moves backward;
	// saving a smaller value is a no-op.
	SaveCheckpoint(ctx context.Context, globalSeq uint64) error
}

// ProjectionStore groups the rebuildable read-side stores.
type ProjectionStore interface {
	TreeStore
	TaskViewStore
	TagStore
	CheckpointStore

	// ResetProjections clears every projection table and the checkpoint so
	// a rebuild can start from an empty read side.
	ResetProjections(ctx context.Context) error
}
