// Package tagging answers tag queries across the folder hierarchy and runs
// the asynchronous propagation of inherited tags.
package tagging

import (
	"context"
	"log/slog"

	"github.com/inkwell-app/inkwell/internal/organizer/domain/tag"
	"github.com/inkwell-app/inkwell/internal/organizer/storage"
)

// maxInheritDepth bounds the ancestor walk so a corrupted parent chain can
// never loop forever.
const maxInheritDepth = 20

// Query answers effective-tag questions from the projections.
type Query struct {
	Projections storage.ProjectionStore
	Logger      *slog.Logger
}

// EffectiveTags returns the tags an entity carries once inheritance is
// resolved: its own stored tags plus the tags of every ancestor category,
// and for extracted tasks the tags of the source note. The entity's own
// tags win key collisions. Read failures are logged and yield an empty
// set rather than an error, so a broken projection degrades to "untagged"
// instead of failing the caller.
func (q Query) EffectiveTags(ctx context.Context, entityID, entityType string) []tag.Tag {
	if q.Projections == nil {
		return nil
	}
	logger := q.Logger
	if logger == nil {
		logger = slog.Default()
	}

	own, err := q.Projections.ListEntityTags(ctx, entityID)
	if err != nil {
		logger.Warn("effective tags lookup failed", "entity_id", entityID, "error", err)
		return []tag.Tag{}
	}

	sets := [][]tag.Tag{tagsFromRows(own, "")}

	switch entityType {
	case storage.NodeCategory, storage.NodeNote:
		node, err := q.Projections.GetTreeNode(ctx, entityID)
		if err != nil {
			logger.Warn("effective tags lookup failed", "entity_id", entityID, "error", err)
			return []tag.Tag{}
		}
		ancestors, ok := q.ancestorTags(ctx, node.ParentID, logger)
		if !ok {
			return []tag.Tag{}
		}
		sets = append(sets, ancestors...)
	case storage.EntityTask:
		row, err := q.Projections.GetTaskRow(ctx, entityID)
		if err != nil {
			logger.Warn("effective tags lookup failed", "entity_id", entityID, "error", err)
			return []tag.Tag{}
		}
		if row.SourceNoteID != "" {
			noteRows, err := q.Projections.ListEntityTags(ctx, row.SourceNoteID)
			if err != nil {
				logger.Warn("effective tags lookup failed", "entity_id", entityID, "error", err)
				return []tag.Tag{}
			}
			sets = append(sets, tagsFromRows(noteRows, tag.SourceAutoInherit))
		}
		ancestors, ok := q.ancestorTags(ctx, row.CategoryID, logger)
		if !ok {
			return []tag.Tag{}
		}
		sets = append(sets, ancestors...)
	}

	return tag.Union(sets...)
}

// ancestorTags collects the tag sets of a parent chain, nearest ancestor
// first. The visited set guards against parent cycles in a damaged tree.
func (q Query) ancestorTags(ctx context.Context, parentID string, logger *slog.Logger) ([][]tag.Tag, bool) {
	var sets [][]tag.Tag
	visited := make(map[string]bool)
	for current := parentID; current != "" && len(visited) < maxInheritDepth; {
		if visited[current] {
			break
		}
		visited[current] = true

		rows, err := q.Projections.ListEntityTags(ctx, current)
		if err != nil {
			logger.Warn("ancestor tags lookup failed", "category_id", current, "error", err)
			return nil, false
		}
		sets = append(sets, tagsFromRows(rows, tag.SourceAutoInherit))

		node, err := q.Projections.GetTreeNode(ctx, current)
		if err != nil {
			// A missing ancestor ends the walk; what was collected so far
			// still applies.
			break
		}
		current = node.ParentID
	}
	return sets, true
}

// tagsFromRows converts stored tag rows back to domain tags. A non-empty
// override rewrites each tag's source, used when ancestor tags arrive as
// inherited.
func tagsFromRows(rows []storage.TagRow, override tag.Source) []tag.Tag {
	tags := make([]tag.Tag, 0, len(rows))
	for _, row := range rows {
		source := tag.Source(row.Source)
		if override != "" {
			source = override
		}
		tags = append(tags, tag.Tag{Text: row.DisplayText, Source: source})
	}
	return tags
}
