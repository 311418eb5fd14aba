package note

import (
	"encoding/json"

	"github.com/inkwell-app/inkwell/internal/organizer/domain/event"
	"github.com/inkwell-app/inkwell/internal/organizer/domain/tag"
)

// State is the replayed state of a note aggregate.
type State struct {
	ID         string
	Title      string
	CategoryID string
	FilePath   string
	Pinned     bool
	Tags       []tag.Tag
	Deleted    bool
	CreatedAt  int64
	ModifiedAt int64
}

// Fold applies evt to s and returns the next state. Fold is pure; events of
// unknown type or with unreadable payloads leave the state unchanged.
func Fold(s State, evt event.Event) State {
	if s.ID != "" && evt.AggregateID != s.ID {
		return s
	}
	at := evt.OccurredAt.UTC().UnixMilli()
	switch evt.Type {
	case event.TypeNoteCreated:
		var p event.NoteCreatedPayload
		if json.Unmarshal(evt.PayloadJSON, &p) != nil {
			return s
		}
		s.ID = evt.AggregateID
		s.Title = p.Title
		s.CategoryID = p.CategoryID
		s.FilePath = p.FilePath
		s.CreatedAt = at
		s.ModifiedAt = at
	case event.TypeNoteRenamed:
		var p event.NoteRenamedPayload
		if json.Unmarshal(evt.PayloadJSON, &p) != nil {
			return s
		}
		s.Title = p.Title
		s.ModifiedAt = at
	case event.TypeNoteMoved:
		var p event.NoteMovedPayload
		if json.Unmarshal(evt.PayloadJSON, &p) != nil {
			return s
		}
		s.CategoryID = p.CategoryID
		s.ModifiedAt = at
	case event.TypeNotePinned:
		var p event.NotePinnedPayload
		if json.Unmarshal(evt.PayloadJSON, &p) != nil {
			return s
		}
		s.Pinned = p.Pinned
		s.ModifiedAt = at
	case event.TypeNoteTagsSet:
		var p event.NoteTagsSetPayload
		if json.Unmarshal(evt.PayloadJSON, &p) != nil {
			return s
		}
		s.Tags = tag.Normalize(p.Tags)
		s.ModifiedAt = at
	case event.TypeNoteDeleted:
		s.Deleted = true
		s.ModifiedAt = at
	}
	return s
}
