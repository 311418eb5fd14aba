package event

import (
	"time"

	"github.com/inkwell-app/inkwell/internal/organizer/domain/tag"
)

// CategoryCreatedPayload carries initial category fields.
type CategoryCreatedPayload struct {
	Name     string `json:"name"`
	ParentID string `json:"parent_id,omitempty"`
}

// CategoryRenamedPayload carries the new category name.
type CategoryRenamedPayload struct {
	Name string `json:"name"`
}

// CategoryMovedPayload carries the new parent category.
type CategoryMovedPayload struct {
	ParentID string `json:"parent_id"`
}

// CategoryReorderedPayload carries the new sort order.
type CategoryReorderedPayload struct {
	SortOrder int `json:"sort_order"`
}

// CategoryTagsSetPayload carries the replacement tag set for a category.
// InheritToChildren requests downward propagation into descendant notes.
type CategoryTagsSetPayload struct {
	Tags              []tag.Tag `json:"tags"`
	InheritToChildren bool      `json:"inherit_to_children,omitempty"`
}

// NoteCreatedPayload carries initial note fields.
type NoteCreatedPayload struct {
	Title      string `json:"title"`
	CategoryID string `json:"category_id,omitempty"`
	FilePath   string `json:"file_path,omitempty"`
}

// NoteRenamedPayload carries the new note title.
type NoteRenamedPayload struct {
	Title string `json:"title"`
}

// NoteMovedPayload carries the new owning category.
type NoteMovedPayload struct {
	CategoryID string `json:"category_id"`
}

// NotePinnedPayload carries the new pin state.
type NotePinnedPayload struct {
	Pinned bool `json:"pinned"`
}

// NoteTagsSetPayload carries the replacement tag set for a note.
type NoteTagsSetPayload struct {
	Tags []tag.Tag `json:"tags"`
}

// TaskCreatedPayload carries initial task fields, including the source note
// marker reference when the task was extracted from note text.
type TaskCreatedPayload struct {
	Text             string     `json:"text"`
	CategoryID       string     `json:"category_id,omitempty"`
	ParentID         string     `json:"parent_id,omitempty"`
	Priority         int        `json:"priority,omitempty"`
	DueDate          *time.Time `json:"due_date,omitempty"`
	SourceNoteID     string     `json:"source_note_id,omitempty"`
	SourceFilePath   string     `json:"source_file_path,omitempty"`
	SourceLineNumber int        `json:"source_line_number,omitempty"`
}

// TaskEditedPayload carries the new task text.
type TaskEditedPayload struct {
	Text string `json:"text"`
}

// TaskMovedPayload carries the new category and parent task.
type TaskMovedPayload struct {
	CategoryID string `json:"category_id"`
	ParentID   string `json:"parent_id,omitempty"`
}

// TaskRescheduledPayload carries the new due date, nil to clear it.
type TaskRescheduledPayload struct {
	DueDate *time.Time `json:"due_date"`
}

// TaskReprioritizedPayload carries the new priority.
type TaskReprioritizedPayload struct {
	Priority int `json:"priority"`
}

// TaskTagsSetPayload carries the replacement tag set for a task.
type TaskTagsSetPayload struct {
	Tags []tag.Tag `json:"tags"`
}
