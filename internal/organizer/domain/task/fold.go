package task

import (
	"encoding/json"
	"time"

	"github.com/inkwell-app/inkwell/internal/organizer/domain/event"
	"github.com/inkwell-app/inkwell/internal/organizer/domain/tag"
)

// State is the replayed state of a task aggregate.
type State struct {
	ID               string
	Text             string
	Completed        bool
	CategoryID       string
	ParentID         string
	Priority         int
	DueDate          *time.Time
	SourceNoteID     string
	SourceFilePath   string
	SourceLineNumber int
	Tags             []tag.Tag
	Deleted          bool
	CreatedAt        int64
	ModifiedAt       int64
}

// Fold applies evt to s and returns the next state. Fold is pure; events of
// unknown type or with unreadable payloads leave the state unchanged.
func Fold(s State, evt event.Event) State {
	if s.ID != "" && evt.AggregateID != s.ID {
		return s
	}
	at := evt.OccurredAt.UTC().UnixMilli()
	switch evt.Type {
	case event.TypeTaskCreated:
		var p event.TaskCreatedPayload
		if json.Unmarshal(evt.PayloadJSON, &p) != nil {
			return s
		}
		s.ID = evt.AggregateID
		s.Text = p.Text
		s.CategoryID = p.CategoryID
		s.ParentID = p.ParentID
		s.Priority = p.Priority
		s.DueDate = p.DueDate
		s.SourceNoteID = p.SourceNoteID
		s.SourceFilePath = p.SourceFilePath
		s.SourceLineNumber = p.SourceLineNumber
		s.CreatedAt = at
		s.ModifiedAt = at
	case event.TypeTaskEdited:
		var p event.TaskEditedPayload
		if json.Unmarshal(evt.PayloadJSON, &p) != nil {
			return s
		}
		s.Text = p.Text
		s.ModifiedAt = at
	case event.TypeTaskCompleted:
		s.Completed = true
		s.ModifiedAt = at
	case event.TypeTaskReopened:
		s.Completed = false
		s.ModifiedAt = at
	case event.TypeTaskMoved:
		var p event.TaskMovedPayload
		if json.Unmarshal(evt.PayloadJSON, &p) != nil {
			return s
		}
		s.CategoryID = p.CategoryID
		s.ParentID = p.ParentID
		s.ModifiedAt = at
	case event.TypeTaskRescheduled:
		var p event.TaskRescheduledPayload
		if json.Unmarshal(evt.PayloadJSON, &p) != nil {
			return s
		}
		s.DueDate = p.DueDate
		s.ModifiedAt = at
	case event.TypeTaskReprioritized:
		var p event.TaskReprioritizedPayload
		if json.Unmarshal(evt.PayloadJSON, &p) != nil {
			return s
		}
		s.Priority = p.Priority
		s.ModifiedAt = at
	case event.TypeTaskTagsSet:
		var p event.TaskTagsSetPayload
		if json.Unmarshal(evt.PayloadJSON, &p) != nil {
			return s
		}
		s.Tags = tag.Normalize(p.Tags)
		s.ModifiedAt = at
	case event.TypeTaskDeleted:
		s.Deleted = true
		s.ModifiedAt = at
	}
	return s
}
