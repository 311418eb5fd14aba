// Package projection derives the read-side views from the event journal:
// the folder tree, the task list, and the tag index. Projections are
// disposable; RebuildAll reproduces them from the journal alone.
package projection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/inkwell-app/inkwell/internal/organizer/domain/event"
	"github.com/inkwell-app/inkwell/internal/organizer/domain/tag"
	"github.com/inkwell-app/inkwell/internal/organizer/storage"
)

// Applier applies event journal entries to the projection stores. Handlers
// are idempotent: reapplying an already applied event produces the same
// rows.
type Applier struct {
	Projections storage.ProjectionStore
}

// Apply routes one event to its projection handler.
func (a Applier) Apply(ctx context.Context, evt event.Event) error {
	if a.Projections == nil {
		return fmt.Errorf("projection store is not configured")
	}
	switch evt.Type {
	case event.TypeCategoryCreated:
		return a.applyCategoryCreated(ctx, evt)
	case event.TypeCategoryRenamed:
		return a.applyCategoryRenamed(ctx, evt)
	case event.TypeCategoryMoved:
		return a.applyCategoryMoved(ctx, evt)
	case event.TypeCategoryReordered:
		return a.applyCategoryReordered(ctx, evt)
	case event.TypeCategoryTagsSet:
		return a.applyCategoryTagsSet(ctx, evt)
	case event.TypeCategoryDeleted:
		return a.applyCategoryDeleted(ctx, evt)
	case event.TypeNoteCreated:
		return a.applyNoteCreated(ctx, evt)
	case event.TypeNoteRenamed:
		return a.applyNoteRenamed(ctx, evt)
	case event.TypeNoteMoved:
		return a.applyNoteMoved(ctx, evt)
	case event.TypeNotePinned:
		return a.applyNotePinned(ctx, evt)
	case event.TypeNoteTagsSet:
		return a.applyNoteTagsSet(ctx, evt)
	case event.TypeNoteDeleted:
		return a.applyNoteDeleted(ctx, evt)
	case event.TypeTaskCreated:
		return a.applyTaskCreated(ctx, evt)
	case event.TypeTaskEdited, event.TypeTaskCompleted, event.TypeTaskReopened,
		event.TypeTaskMoved, event.TypeTaskRescheduled, event.TypeTaskReprioritized:
		return a.applyTaskUpdated(ctx, evt)
	case event.TypeTaskTagsSet:
		return a.applyTaskTagsSet(ctx, evt)
	case event.TypeTaskDeleted:
		return a.applyTaskDeleted(ctx, evt)
	}
	return fmt.Errorf("unhandled projection event type: %s", evt.Type)
}

func (a Applier) applyCategoryCreated(ctx context.Context, evt event.Event) error {
	var p event.CategoryCreatedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &p); err != nil {
		return fmt.Errorf("decode %s payload: %w", evt.Type, err)
	}
	parentPath, err := a.nodePath(ctx, p.ParentID)
	if err != nil {
		return err
	}
	at := evt.OccurredAt.UTC()
	return a.Projections.PutTreeNode(ctx, storage.TreeNode{
		ID:            evt.AggregateID,
		ParentID:      p.ParentID,
		NodeType:      storage.NodeCategory,
		Name:          p.Name,
		CanonicalPath: parentPath + "/" + p.Name,
		CreatedAt:     at,
		ModifiedAt:    at,
	})
}

func (a Applier) applyCategoryRenamed(ctx context.Context, evt event.Event) error {
	var p event.CategoryRenamedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &p); err != nil {
		return fmt.Errorf("decode %s payload: %w", evt.Type, err)
	}
	node, err := a.Projections.GetTreeNode(ctx, evt.AggregateID)
	if err != nil {
		return err
	}
	parentPath, err := a.nodePath(ctx, node.ParentID)
	if err != nil {
		return err
	}
	node.Name = p.Name
	node.CanonicalPath = parentPath + "/" + p.Name
	node.ModifiedAt = evt.OccurredAt.UTC()
	if err := a.Projections.PutTreeNode(ctx, node); err != nil {
		return err
	}
	return a.refreshSubtree(ctx, node, evt.OccurredAt)
}

func (a Applier) applyCategoryMoved(ctx context.Context, evt event.Event) error {
	var p event.CategoryMovedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &p); err != nil {
		return fmt.Errorf("decode %s payload: %w", evt.Type, err)
	}
	node, err := a.Projections.GetTreeNode(ctx, evt.AggregateID)
	if err != nil {
		return err
	}
	parentPath, err := a.nodePath(ctx, p.ParentID)
	if err != nil {
		return err
	}
	node.ParentID = p.ParentID
	node.CanonicalPath = parentPath + "/" + node.Name
	node.ModifiedAt = evt.OccurredAt.UTC()
	if err := a.Projections.PutTreeNode(ctx, node); err != nil {
		return err
	}
	return a.refreshSubtree(ctx, node, evt.OccurredAt)
}

func (a Applier) applyCategoryReordered(ctx context.Context, evt event.Event) error {
	var p event.CategoryReorderedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &p); err != nil {
		return fmt.Errorf("decode %s payload: %w", evt.Type, err)
	}
	node, err := a.Projections.GetTreeNode(ctx, evt.AggregateID)
	if err != nil {
		return err
	}
	node.SortOrder = p.SortOrder
	node.ModifiedAt = evt.OccurredAt.UTC()
	return a.Projections.PutTreeNode(ctx, node)
}

func (a Applier) applyCategoryTagsSet(ctx context.Context, evt event.Event) error {
	var p event.CategoryTagsSetPayload
	if err := json.Unmarshal(evt.PayloadJSON, &p); err != nil {
		return fmt.Errorf("decode %s payload: %w", evt.Type, err)
	}
	rows := tagRows(evt.AggregateID, storage.NodeCategory, tag.Normalize(p.Tags), evt.OccurredAt)
	return a.Projections.ReplaceEntityTags(ctx, evt.AggregateID, storage.NodeCategory, rows)
}

func (a Applier) applyCategoryDeleted(ctx context.Context, evt event.Event) error {
	if err := a.Projections.DeleteEntityTags(ctx, evt.AggregateID); err != nil {
		return err
	}
	return a.Projections.DeleteTreeNode(ctx, evt.AggregateID)
}

func (a Applier) applyNoteCreated(ctx context.Context, evt event.Event) error {
	var p event.NoteCreatedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &p); err != nil {
		return fmt.Errorf("decode %s payload: %w", evt.Type, err)
	}
	parentPath, err := a.nodePath(ctx, p.CategoryID)
	if err != nil {
		return err
	}
	at := evt.OccurredAt.UTC()
	if err := a.Projections.PutTreeNode(ctx, storage.TreeNode{
		ID:            evt.AggregateID,
		ParentID:      p.CategoryID,
		NodeType:      storage.NodeNote,
		Name:          p.Title,
		CanonicalPath: parentPath + "/" + p.Title,
		CreatedAt:     at,
		ModifiedAt:    at,
	}); err != nil {
		return err
	}
	return a.replaceNoteTags(ctx, evt.AggregateID, nil, parentPath, evt.OccurredAt)
}

func (a Applier) applyNoteRenamed(ctx context.Context, evt event.Event) error {
	var p event.NoteRenamedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &p); err != nil {
		return fmt.Errorf("decode %s payload: %w", evt.Type, err)
	}
	node, err := a.Projections.GetTreeNode(ctx, evt.AggregateID)
	if err != nil {
		return err
	}
	parentPath, err := a.nodePath(ctx, node.ParentID)
	if err != nil {
		return err
	}
	node.Name = p.Title
	node.CanonicalPath = parentPath + "/" + p.Title
	node.ModifiedAt = evt.OccurredAt.UTC()
	return a.Projections.PutTreeNode(ctx, node)
}

func (a Applier) applyNoteMoved(ctx context.Context, evt event.Event) error {
	var p event.NoteMovedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &p); err != nil {
		return fmt.Errorf("decode %s payload: %w", evt.Type, err)
	}
	node, err := a.Projections.GetTreeNode(ctx, evt.AggregateID)
	if err != nil {
		return err
	}
	parentPath, err := a.nodePath(ctx, p.CategoryID)
	if err != nil {
		return err
	}
	node.ParentID = p.CategoryID
	node.CanonicalPath = parentPath + "/" + node.Name
	node.ModifiedAt = evt.OccurredAt.UTC()
	if err := a.Projections.PutTreeNode(ctx, node); err != nil {
		return err
	}
	// The note's path tags follow its new location; manual and inherited
	// tags stay as they are.
	return a.replaceNoteTags(ctx, evt.AggregateID, a.keptNoteTags(ctx, evt.AggregateID), parentPath, evt.OccurredAt)
}

func (a Applier) applyNotePinned(ctx context.Context, evt event.Event) error {
	var p event.NotePinnedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &p); err != nil {
		return fmt.Errorf("decode %s payload: %w", evt.Type, err)
	}
	node, err := a.Projections.GetTreeNode(ctx, evt.AggregateID)
	if err != nil {
		return err
	}
	node.IsPinned = p.Pinned
	node.ModifiedAt = evt.OccurredAt.UTC()
	return a.Projections.PutTreeNode(ctx, node)
}

func (a Applier) applyNoteTagsSet(ctx context.Context, evt event.Event) error {
	var p event.NoteTagsSetPayload
	if err := json.Unmarshal(evt.PayloadJSON, &p); err != nil {
		return fmt.Errorf("decode %s payload: %w", evt.Type, err)
	}
	node, err := a.Projections.GetTreeNode(ctx, evt.AggregateID)
	if err != nil {
		return err
	}
	parentPath, err := a.nodePath(ctx, node.ParentID)
	if err != nil {
		return err
	}
	return a.replaceNoteTags(ctx, evt.AggregateID, tag.Normalize(p.Tags), parentPath, evt.OccurredAt)
}

func (a Applier) applyNoteDeleted(ctx context.Context, evt event.Event) error {
	if err := a.Projections.DeleteEntityTags(ctx, evt.AggregateID); err != nil {
		return err
	}
	if err := a.Projections.DeleteTreeNode(ctx, evt.AggregateID); err != nil {
		return err
	}
	// Tasks extracted from the note survive its deletion, flagged so the
	// UI can show where they came from.
	return a.Projections.MarkTasksOrphanedBySourceNote(ctx, evt.AggregateID, evt.OccurredAt.UTC())
}

func (a Applier) applyTaskCreated(ctx context.Context, evt event.Event) error {
	var p event.TaskCreatedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &p); err != nil {
		return fmt.Errorf("decode %s payload: %w", evt.Type, err)
	}
	at := evt.OccurredAt.UTC()
	return a.Projections.PutTaskRow(ctx, storage.TaskRow{
		ID:               evt.AggregateID,
		Text:             p.Text,
		CategoryID:       p.CategoryID,
		ParentID:         p.ParentID,
		Priority:         p.Priority,
		DueDate:          p.DueDate,
		SourceNoteID:     p.SourceNoteID,
		SourceFilePath:   p.SourceFilePath,
		SourceLineNumber: p.SourceLineNumber,
		CreatedAt:        at,
		ModifiedAt:       at,
	})
}

func (a Applier) applyTaskUpdated(ctx context.Context, evt event.Event) error {
	row, err := a.Projections.GetTaskRow(ctx, evt.AggregateID)
	if err != nil {
		return err
	}
	switch evt.Type {
	case event.TypeTaskEdited:
		var p event.TaskEditedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &p); err != nil {
			return fmt.Errorf("decode %s payload: %w", evt.Type, err)
		}
		row.Text = p.Text
	case event.TypeTaskCompleted:
		row.IsCompleted = true
	case event.TypeTaskReopened:
		row.IsCompleted = false
	case event.TypeTaskMoved:
		var p event.TaskMovedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &p); err != nil {
			return fmt.Errorf("decode %s payload: %w", evt.Type, err)
		}
		row.CategoryID = p.CategoryID
		row.ParentID = p.ParentID
	case event.TypeTaskRescheduled:
		var p event.TaskRescheduledPayload
		if err := json.Unmarshal(evt.PayloadJSON, &p); err != nil {
			return fmt.Errorf("decode %s payload: %w", evt.Type, err)
		}
		row.DueDate = p.DueDate
	case event.TypeTaskReprioritized:
		var p event.TaskReprioritizedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &p); err != nil {
			return fmt.Errorf("decode %s payload: %w", evt.Type, err)
		}
		row.Priority = p.Priority
	}
	row.ModifiedAt = evt.OccurredAt.UTC()
	return a.Projections.PutTaskRow(ctx, row)
}

func (a Applier) applyTaskTagsSet(ctx context.Context, evt event.Event) error {
	var p event.TaskTagsSetPayload
	if err := json.Unmarshal(evt.PayloadJSON, &p); err != nil {
		return fmt.Errorf("decode %s payload: %w", evt.Type, err)
	}
	rows := tagRows(evt.AggregateID, storage.EntityTask, tag.Normalize(p.Tags), evt.OccurredAt)
	return a.Projections.ReplaceEntityTags(ctx, evt.AggregateID, storage.EntityTask, rows)
}

func (a Applier) applyTaskDeleted(ctx context.Context, evt event.Event) error {
	if err := a.Projections.DeleteEntityTags(ctx, evt.AggregateID); err != nil {
		return err
	}
	return a.Projections.DeleteTaskRow(ctx, evt.AggregateID)
}

// nodePath returns a node's canonical path, or "" for the tree root and for
// parents the projection has not seen yet.
func (a Applier) nodePath(ctx context.Context, id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", nil
	}
	node, err := a.Projections.GetTreeNode(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return node.CanonicalPath, nil
}

// refreshSubtree rewrites the canonical paths of a node's descendants after
// a rename or move, and refreshes the path tags of descendant notes. The
// walk is breadth-first over an explicit queue with a visited set and a
// hard depth cap, so a damaged tree with parent cycles still terminates.
func (a Applier) refreshSubtree(ctx context.Context, node storage.TreeNode, at time.Time) error {
	type frontier struct {
		node  storage.TreeNode
		depth int
	}
	visited := map[string]bool{node.ID: true}
	pending := []frontier{{node: node}}
	for len(pending) > 0 {
		current := pending[0]
		pending = pending[1:]
		if current.depth >= maxCategoryDepth {
			continue
		}
		children, err := a.Projections.ListChildren(ctx, current.node.ID)
		if err != nil {
			return err
		}
		for _, child := range children {
			if visited[child.ID] {
				continue
			}
			visited[child.ID] = true
			child.CanonicalPath = current.node.CanonicalPath + "/" + child.Name
			child.ModifiedAt = at.UTC()
			if err := a.Projections.PutTreeNode(ctx, child); err != nil {
				return err
			}
			if child.NodeType == storage.NodeNote {
				if err := a.replaceNoteTags(ctx, child.ID, a.keptNoteTags(ctx, child.ID), current.node.CanonicalPath, at); err != nil {
					return err
				}
				continue
			}
			pending = append(pending, frontier{node: child, depth: current.depth + 1})
		}
	}
	return nil
}

// keptNoteTags returns a note's current non-path tags, the ones that must
// survive a path recomputation. Read failures yield nil so the path tags
// are still written.
func (a Applier) keptNoteTags(ctx context.Context, noteID string) []tag.Tag {
	rows, err := a.Projections.ListEntityTags(ctx, noteID)
	if err != nil {
		return nil
	}
	var kept []tag.Tag
	for _, row := range rows {
		if row.Source == string(tag.SourceAutoPath) {
			continue
		}
		kept = append(kept, tag.Tag{Text: row.DisplayText, Source: tag.Source(row.Source)})
	}
	return kept
}

// replaceNoteTags writes a note's tag rows as the union of its kept tags
// and the path tags derived from its parent category's canonical path.
// Kept tags win key collisions, so a manual tag is never downgraded to a
// path tag.
func (a Applier) replaceNoteTags(ctx context.Context, noteID string, kept []tag.Tag, parentPath string, at time.Time) error {
	combined := tag.Union(kept, pathTags(parentPath))
	rows := tagRows(noteID, storage.NodeNote, combined, at)
	return a.Projections.ReplaceEntityTags(ctx, noteID, storage.NodeNote, rows)
}

// pathTags derives auto-path tags from a canonical category path: one tag
// per path segment.
func pathTags(canonicalPath string) []tag.Tag {
	segments := strings.Split(canonicalPath, "/")
	var tags []tag.Tag
	for _, segment := range segments {
		if strings.TrimSpace(segment) == "" {
			continue
		}
		tags = append(tags, tag.Tag{Text: segment, Source: tag.SourceAutoPath})
	}
	return tags
}

func tagRows(entityID, entityType string, tags []tag.Tag, at time.Time) []storage.TagRow {
	rows := make([]storage.TagRow, 0, len(tags))
	for _, t := range tags {
		rows = append(rows, storage.TagRow{
			EntityID:    entityID,
			EntityType:  entityType,
			Key:         tag.Key(t.Text),
			DisplayText: t.Text,
			Source:      string(t.Source),
			CreatedAt:   at.UTC(),
		})
	}
	return rows
}
