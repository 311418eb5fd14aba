// Package category models the category aggregate: a node in the folder tree
// that owns notes and tasks and may carry tags that propagate downward.
package category

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/inkwell-app/inkwell/internal/organizer/domain/aggregate"
	"github.com/inkwell-app/inkwell/internal/organizer/domain/event"
	"github.com/inkwell-app/inkwell/internal/organizer/domain/tag"
)

// ErrDeleted is returned when a command targets a deleted category.
var ErrDeleted = errors.New("category is deleted")

// Category is the event-sourced category aggregate.
type Category struct {
	aggregate.Root
	state State
}

// New returns a category aggregate with no history.
func New(id string) *Category {
	return &Category{Root: aggregate.New(id)}
}

// Replay rebuilds a category from its event stream.
func Replay(id string, events []event.Event) *Category {
	c := New(id)
	for _, evt := range events {
		c.state = Fold(c.state, evt)
	}
	c.Restore(uint64(len(events)))
	return c
}

// State returns a copy of the current state.
func (c *Category) State() State { return c.state }

// Create records the creation of the category. parentID is empty for a root
// category.
func (c *Category) Create(name, parentID string, at time.Time) error {
	if c.state.ID != "" {
		return fmt.Errorf("category %s already exists", c.ID())
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("category name is required")
	}
	return c.emit(event.TypeCategoryCreated, at, event.CategoryCreatedPayload{
		Name:     name,
		ParentID: parentID,
	})
}

// Rename records a name change. Renaming to the current name is a no-op.
func (c *Category) Rename(name string, at time.Time) error {
	if err := c.exists(); err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("category name is required")
	}
	if name == c.state.Name {
		return nil
	}
	return c.emit(event.TypeCategoryRenamed, at, event.CategoryRenamedPayload{Name: name})
}

// Move records a parent change. The caller is responsible for rejecting
// moves that would place the category under its own subtree.
func (c *Category) Move(parentID string, at time.Time) error {
	if err := c.exists(); err != nil {
		return err
	}
	if parentID == c.ID() {
		return fmt.Errorf("category cannot be its own parent")
	}
	if parentID == c.state.ParentID {
		return nil
	}
	return c.emit(event.TypeCategoryMoved, at, event.CategoryMovedPayload{ParentID: parentID})
}

// Reorder records a sort-order change among siblings.
func (c *Category) Reorder(sortOrder int, at time.Time) error {
	if err := c.exists(); err != nil {
		return err
	}
	if sortOrder == c.state.SortOrder {
		return nil
	}
	return c.emit(event.TypeCategoryReordered, at, event.CategoryReorderedPayload{SortOrder: sortOrder})
}

// SetTags records a replacement of the category's tag set. Setting a set
// equal to the current one with the same inherit flag records nothing.
func (c *Category) SetTags(tags []tag.Tag, inheritToChildren bool, at time.Time) error {
	if err := c.exists(); err != nil {
		return err
	}
	normalized := tag.Normalize(tags)
	if inheritToChildren == c.state.InheritTags && tag.Equal(normalized, c.state.Tags) {
		return nil
	}
	return c.emit(event.TypeCategoryTagsSet, at, event.CategoryTagsSetPayload{
		Tags:              normalized,
		InheritToChildren: inheritToChildren,
	})
}

// Delete records the removal of the category. Deleting twice is a no-op.
func (c *Category) Delete(at time.Time) error {
	if c.state.ID == "" {
		return fmt.Errorf("category %s does not exist", c.ID())
	}
	if c.state.Deleted {
		return nil
	}
	return c.emit(event.TypeCategoryDeleted, at, struct{}{})
}

func (c *Category) exists() error {
	if c.state.ID == "" {
		return fmt.Errorf("category %s does not exist", c.ID())
	}
	if c.state.Deleted {
		return ErrDeleted
	}
	return nil
}

func (c *Category) emit(typ event.Type, at time.Time, payload any) error {
	evt, err := c.Record(event.AggregateCategory, typ, at, payload)
	if err != nil {
		return err
	}
	c.state = Fold(c.state, evt)
	return nil
}
