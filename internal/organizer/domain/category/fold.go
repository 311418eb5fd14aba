package category

import (
	"encoding/json"

	"github.com/inkwell-app/inkwell/internal/organizer/domain/event"
	"github.com/inkwell-app/inkwell/internal/organizer/domain/tag"
)

// State is the replayed state of a category aggregate.
type State struct {
	ID          string
	Name        string
	ParentID    string
	SortOrder   int
	Tags        []tag.Tag
	InheritTags bool
	Deleted     bool
	CreatedAt   int64
	ModifiedAt  int64
}

// Fold applies evt to s and returns the next state. Fold is pure: the same
// state and event always produce the same result. Events of unknown type,
// events for other aggregates, and events with unreadable payloads leave the
// state unchanged.
func Fold(s State, evt event.Event) State {
	if s.ID != "" && evt.AggregateID != s.ID {
		return s
	}
	at := evt.OccurredAt.UTC().UnixMilli()
	switch evt.Type {
	case event.TypeCategoryCreated:
		var p event.CategoryCreatedPayload
		if json.Unmarshal(evt.PayloadJSON, &p) != nil {
			return s
		}
		s.ID = evt.AggregateID
		s.Name = p.Name
		s.ParentID = p.ParentID
		s.CreatedAt = at
		s.ModifiedAt = at
	case event.TypeCategoryRenamed:
		var p event.CategoryRenamedPayload
		if json.Unmarshal(evt.PayloadJSON, &p) != nil {
			return s
		}
		s.Name = p.Name
		s.ModifiedAt = at
	case event.TypeCategoryMoved:
		var p event.CategoryMovedPayload
		if json.Unmarshal(evt.PayloadJSON, &p) != nil {
			return s
		}
		s.ParentID = p.ParentID
		s.ModifiedAt = at
	case event.TypeCategoryReordered:
		var p event.CategoryReorderedPayload
		if json.Unmarshal(evt.PayloadJSON, &p) != nil {
			return s
		}
		s.SortOrder = p.SortOrder
		s.ModifiedAt = at
	case event.TypeCategoryTagsSet:
		var p event.CategoryTagsSetPayload
		if json.Unmarshal(evt.PayloadJSON, &p) != nil {
			return s
		}
		s.Tags = tag.Normalize(p.Tags)
		s.InheritTags = p.InheritToChildren
		s.ModifiedAt = at
	case event.TypeCategoryDeleted:
		s.Deleted = true
		s.ModifiedAt = at
	}
	return s
}
