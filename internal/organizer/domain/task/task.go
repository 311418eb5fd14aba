// Package task models the task aggregate: a completable item that lives in
// a category, may nest under a parent task, and may have been extracted
// from a line of note text.
package task

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/inkwell-app/inkwell/internal/organizer/domain/aggregate"
	"github.com/inkwell-app/inkwell/internal/organizer/domain/event"
	"github.com/inkwell-app/inkwell/internal/organizer/domain/tag"
)

var (
	// ErrDeleted is returned when a command targets a deleted task.
	ErrDeleted = errors.New("task is deleted")
	// ErrAlreadyCompleted is returned when completing a completed task.
	ErrAlreadyCompleted = errors.New("task is already completed")
	// ErrNotCompleted is returned when reopening a task that is open.
	ErrNotCompleted = errors.New("task is not completed")
)

// Source identifies where an extracted task came from in a note.
type Source struct {
	NoteID     string
	FilePath   string
	LineNumber int
}

// Task is the event-sourced task aggregate.
type Task struct {
	aggregate.Root
	state State
}

// New returns a task aggregate with no history.
func New(id string) *Task {
	return &Task{Root: aggregate.New(id)}
}

// Replay rebuilds a task from its event stream.
func Replay(id string, events []event.Event) *Task {
	t := New(id)
	for _, evt := range events {
		t.state = Fold(t.state, evt)
	}
	t.Restore(uint64(len(events)))
	return t
}

// State returns a copy of the current state.
func (t *Task) State() State { return t.state }

// Create records the creation of the task. source is zero for tasks created
// directly rather than extracted from a note.
func (t *Task) Create(text, categoryID, parentID string, priority int, dueDate *time.Time, source Source, at time.Time) error {
	if t.state.ID != "" {
		return fmt.Errorf("task %s already exists", t.ID())
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("task text is required")
	}
	return t.emit(event.TypeTaskCreated, at, event.TaskCreatedPayload{
		Text:             text,
		CategoryID:       categoryID,
		ParentID:         parentID,
		Priority:         priority,
		DueDate:          dueDate,
		SourceNoteID:     source.NoteID,
		SourceFilePath:   source.FilePath,
		SourceLineNumber: source.LineNumber,
	})
}

// Edit records a text change. Editing to the current text is a no-op.
func (t *Task) Edit(text string, at time.Time) error {
	if err := t.exists(); err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("task text is required")
	}
	if text == t.state.Text {
		return nil
	}
	return t.emit(event.TypeTaskEdited, at, event.TaskEditedPayload{Text: text})
}

// Complete records the task's completion.
func (t *Task) Complete(at time.Time) error {
	if err := t.exists(); err != nil {
		return err
	}
	if t.state.Completed {
		return ErrAlreadyCompleted
	}
	return t.emit(event.TypeTaskCompleted, at, struct{}{})
}

// Reopen records a completed task being reopened.
func (t *Task) Reopen(at time.Time) error {
	if err := t.exists(); err != nil {
		return err
	}
	if !t.state.Completed {
		return ErrNotCompleted
	}
	return t.emit(event.TypeTaskReopened, at, struct{}{})
}

// Move records a category or parent change.
func (t *Task) Move(categoryID, parentID string, at time.Time) error {
	if err := t.exists(); err != nil {
		return err
	}
	if parentID == t.ID() {
		return fmt.Errorf("task cannot be its own parent")
	}
	if categoryID == t.state.CategoryID && parentID == t.state.ParentID {
		return nil
	}
	return t.emit(event.TypeTaskMoved, at, event.TaskMovedPayload{
		CategoryID: categoryID,
		ParentID:   parentID,
	})
}

// Reschedule records a due-date change, nil to clear it.
func (t *Task) Reschedule(dueDate *time.Time, at time.Time) error {
	if err := t.exists(); err != nil {
		return err
	}
	if equalDue(dueDate, t.state.DueDate) {
		return nil
	}
	return t.emit(event.TypeTaskRescheduled, at, event.TaskRescheduledPayload{DueDate: dueDate})
}

// Reprioritize records a priority change.
func (t *Task) Reprioritize(priority int, at time.Time) error {
	if err := t.exists(); err != nil {
		return err
	}
	if priority == t.state.Priority {
		return nil
	}
	return t.emit(event.TypeTaskReprioritized, at, event.TaskReprioritizedPayload{Priority: priority})
}

// SetTags records a replacement of the task's tag set. Setting a set equal
// to the current one records nothing.
func (t *Task) SetTags(tags []tag.Tag, at time.Time) error {
	if err := t.exists(); err != nil {
		return err
	}
	normalized := tag.Normalize(tags)
	if tag.Equal(normalized, t.state.Tags) {
		return nil
	}
	return t.emit(event.TypeTaskTagsSet, at, event.TaskTagsSetPayload{Tags: normalized})
}

// Delete records the removal of the task. Deleting twice is a no-op.
func (t *Task) Delete(at time.Time) error {
	if t.state.ID == "" {
		return fmt.Errorf("task %s does not exist", t.ID())
	}
	if t.state.Deleted {
		return nil
	}
	return t.emit(event.TypeTaskDeleted, at, struct{}{})
}

func (t *Task) exists() error {
	if t.state.ID == "" {
		return fmt.Errorf("task %s does not exist", t.ID())
	}
	if t.state.Deleted {
		return ErrDeleted
	}
	return nil
}

func (t *Task) emit(typ event.Type, at time.Time, payload any) error {
	evt, err := t.Record(event.AggregateTask, typ, at, payload)
	if err != nil {
		return err
	}
	t.state = Fold(t.state, evt)
	return nil
}

func equalDue(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
