// Package note models the note aggregate: a document that lives in a
// category, may be pinned, and carries manual and inherited tags.
package note

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/inkwell-app/inkwell/internal/organizer/domain/aggregate"
	"github.com/inkwell-app/inkwell/internal/organizer/domain/event"
	"github.com/inkwell-app/inkwell/internal/organizer/domain/tag"
)

// ErrDeleted is returned when a command targets a deleted note.
var ErrDeleted = errors.New("note is deleted")

// Note is the event-sourced note aggregate.
type Note struct {
	aggregate.Root
	state State
}

// New returns a note aggregate with no history.
func New(id string) *Note {
	return &Note{Root: aggregate.New(id)}
}

// Replay rebuilds a note from its event stream.
func Replay(id string, events []event.Event) *Note {
	n := New(id)
	for _, evt := range events {
		n.state = Fold(n.state, evt)
	}
	n.Restore(uint64(len(events)))
	return n
}

// State returns a copy of the current state.
func (n *Note) State() State { return n.state }

// Create records the creation of the note.
func (n *Note) Create(title, categoryID, filePath string, at time.Time) error {
	if n.state.ID != "" {
		return fmt.Errorf("note %s already exists", n.ID())
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("note title is required")
	}
	return n.emit(event.TypeNoteCreated, at, event.NoteCreatedPayload{
		Title:      title,
		CategoryID: categoryID,
		FilePath:   filePath,
	})
}

// Rename records a title change. Renaming to the current title is a no-op.
func (n *Note) Rename(title string, at time.Time) error {
	if err := n.exists(); err != nil {
		return err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("note title is required")
	}
	if title == n.state.Title {
		return nil
	}
	return n.emit(event.TypeNoteRenamed, at, event.NoteRenamedPayload{Title: title})
}

// Move records a category change.
func (n *Note) Move(categoryID string, at time.Time) error {
	if err := n.exists(); err != nil {
		return err
	}
	if categoryID == n.state.CategoryID {
		return nil
	}
	return n.emit(event.TypeNoteMoved, at, event.NoteMovedPayload{CategoryID: categoryID})
}

// Pin records a pin state change. Setting the current state is a no-op.
func (n *Note) Pin(pinned bool, at time.Time) error {
	if err := n.exists(); err != nil {
		return err
	}
	if pinned == n.state.Pinned {
		return nil
	}
	return n.emit(event.TypeNotePinned, at, event.NotePinnedPayload{Pinned: pinned})
}

// SetTags records a replacement of the note's tag set. Setting a set equal
// to the current one records nothing, which keeps repeated propagation runs
// from growing the journal.
func (n *Note) SetTags(tags []tag.Tag, at time.Time) error {
	if err := n.exists(); err != nil {
		return err
	}
	normalized := tag.Normalize(tags)
	if tag.Equal(normalized, n.state.Tags) {
		return nil
	}
	return n.emit(event.TypeNoteTagsSet, at, event.NoteTagsSetPayload{Tags: normalized})
}

// Delete records the removal of the note. Deleting twice is a no-op.
func (n *Note) Delete(at time.Time) error {
	if n.state.ID == "" {
		return fmt.Errorf("note %s does not exist", n.ID())
	}
	if n.state.Deleted {
		return nil
	}
	return n.emit(event.TypeNoteDeleted, at, struct{}{})
}

func (n *Note) exists() error {
	if n.state.ID == "" {
		return fmt.Errorf("note %s does not exist", n.ID())
	}
	if n.state.Deleted {
		return ErrDeleted
	}
	return nil
}

func (n *Note) emit(typ event.Type, at time.Time, payload any) error {
	evt, err := n.Record(event.AggregateNote, typ, at, payload)
	if err != nil {
		return err
	}
	n.state = Fold(n.state, evt)
	return nil
}
