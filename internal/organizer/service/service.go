// Package service is the command surface of the organizer. Every command
// loads an aggregate, applies a domain behavior, appends the resulting
// events, and brings the projections up to date before returning, so a
// caller reads its own writes.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/inkwell-app/inkwell/internal/organizer/domain/category"
	"github.com/inkwell-app/inkwell/internal/organizer/domain/note"
	"github.com/inkwell-app/inkwell/internal/organizer/domain/tag"
	"github.com/inkwell-app/inkwell/internal/organizer/domain/task"
	"github.com/inkwell-app/inkwell/internal/organizer/projection"
	"github.com/inkwell-app/inkwell/internal/organizer/repository"
	"github.com/inkwell-app/inkwell/internal/organizer/storage"
	"github.com/inkwell-app/inkwell/internal/organizer/tagging"
	"github.com/inkwell-app/inkwell/internal/platform/id"
)

// maxTreeDepth bounds ancestor walks during cycle checks.
const maxTreeDepth = 20

// Service executes organizer commands against the event store.
type Service struct {
	repo         *repository.Repository
	projections  storage.ProjectionStore
	orchestrator *projection.Orchestrator
	propagator   *tagging.Propagator
	query        tagging.Query
	logger       *slog.Logger
	now          func() time.Time
}

// New builds a command service. logger may be nil.
func New(repo *repository.Repository, projections storage.ProjectionStore, orchestrator *projection.Orchestrator, propagator *tagging.Propagator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:         repo,
		projections:  projections,
		orchestrator: orchestrator,
		propagator:   propagator,
		query:        tagging.Query{Projections: projections, Logger: logger},
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// CreateCategory creates a category and returns its id. parentID is empty
// for a root category.
func (s *Service) CreateCategory(ctx context.Context, name, parentID string) (string, error) {
	categoryID, err := id.NewID()
	if err != nil {
		return "", fmt.Errorf("generate category id: %w", err)
	}
	c := category.New(categoryID)
	if err := c.Create(name, parentID, s.now()); err != nil {
		return "", err
	}
	if err := s.commit(ctx, c); err != nil {
		return "", err
	}
	return categoryID, nil
}

// RenameCategory changes a category's name.
func (s *Service) RenameCategory(ctx context.Context, categoryID, name string) error {
	c, err := s.repo.LoadCategory(ctx, categoryID)
	if err != nil {
		return err
	}
	if err := c.Rename(name, s.now()); err != nil {
		return err
	}
	return s.commit(ctx, c)
}

// MoveCategory reparents a category. Moving a category into its own
// subtree is rejected.
func (s *Service) MoveCategory(ctx context.Context, categoryID, newParentID string) error {
	if err := s.checkNoCycle(ctx, categoryID, newParentID); err != nil {
		return err
	}
	c, err := s.repo.LoadCategory(ctx, categoryID)
	if err != nil {
		return err
	}
	if err := c.Move(newParentID, s.now()); err != nil {
		return err
	}
	return s.commit(ctx, c)
}

// ReorderCategory changes a category's position among its siblings.
func (s *Service) ReorderCategory(ctx context.Context, categoryID string, sortOrder int) error {
	c, err := s.repo.LoadCategory(ctx, categoryID)
	if err != nil {
		return err
	}
	if err := c.Reorder(sortOrder, s.now()); err != nil {
		return err
	}
	return s.commit(ctx, c)
}

// SetCategoryTags replaces a category's tags. With inheritToChildren set, a
// background propagation run pushes the tags into descendant notes and its
// run id is returned. The tag change itself is committed even when the
// propagation queue is full.
func (s *Service) SetCategoryTags(ctx context.Context, categoryID string, texts []string, inheritToChildren bool) (string, error) {
	c, err := s.repo.LoadCategory(ctx, categoryID)
	if err != nil {
		return "", err
	}
	tags := tag.FromTexts(texts, tag.SourceManual)
	if err := c.SetTags(tags, inheritToChildren, s.now()); err != nil {
		return "", err
	}
	if err := s.commit(ctx, c); err != nil {
		return "", err
	}
	if !inheritToChildren {
		return "", nil
	}
	runID, err := s.propagator.Enqueue(ctx, categoryID, tags)
	if err != nil {
		return "", fmt.Errorf("tags saved, propagation not scheduled: %w", err)
	}
	return runID, nil
}

// DeleteCategory removes an empty category.
func (s *Service) DeleteCategory(ctx context.Context, categoryID string) error {
	children, err := s.projections.ListChildren(ctx, categoryID)
	if err != nil {
		return err
	}
	if len(children) > 0 {
		return fmt.Errorf("category %s is not empty", categoryID)
	}
	c, err := s.repo.LoadCategory(ctx, categoryID)
	if err != nil {
		return err
	}
	if err := c.Delete(s.now()); err != nil {
		return err
	}
	return s.commit(ctx, c)
}

// CreateNote creates a note in a category and returns its id.
func (s *Service) CreateNote(ctx context.Context, title, categoryID, filePath string) (string, error) {
	noteID, err := id.NewID()
	if err != nil {
		return "", fmt.Errorf("generate note id: %w", err)
	}
	n := note.New(noteID)
	if err := n.Create(title, categoryID, filePath, s.now()); err != nil {
		return "", err
	}
	if err := s.commit(ctx, n); err != nil {
		return "", err
	}
	return noteID, nil
}

// RenameNote changes a note's title.
func (s *Service) RenameNote(ctx context.Context, noteID, title string) error {
	n, err := s.repo.LoadNote(ctx, noteID)
	if err != nil {
		return err
	}
	if err := n.Rename(title, s.now()); err != nil {
		return err
	}
	return s.commit(ctx, n)
}

// MoveNote moves a note to another category.
func (s *Service) MoveNote(ctx context.Context, noteID, categoryID string) error {
	n, err := s.repo.LoadNote(ctx, noteID)
	if err != nil {
		return err
	}
	if err := n.Move(categoryID, s.now()); err != nil {
		return err
	}
	return s.commit(ctx, n)
}

// PinNote sets a note's pin state.
func (s *Service) PinNote(ctx context.Context, noteID string, pinned bool) error {
	n, err := s.repo.LoadNote(ctx, noteID)
	if err != nil {
		return err
	}
	if err := n.Pin(pinned, s.now()); err != nil {
		return err
	}
	return s.commit(ctx, n)
}

// SetNoteTags replaces a note's manual tags. Inherited and path tags the
// note already carries are preserved.
func (s *Service) SetNoteTags(ctx context.Context, noteID string, texts []string) error {
	n, err := s.repo.LoadNote(ctx, noteID)
	if err != nil {
		return err
	}
	manual := tag.FromTexts(texts, tag.SourceManual)
	kept := tag.FilterSource(n.State().Tags, tag.SourceAutoInherit)
	if err := n.SetTags(tag.Union(manual, kept), s.now()); err != nil {
		return err
	}
	return s.commit(ctx, n)
}

// DeleteNote removes a note. Tasks extracted from it remain, marked
// orphaned.
func (s *Service) DeleteNote(ctx context.Context, noteID string) error {
	n, err := s.repo.LoadNote(ctx, noteID)
	if err != nil {
		return err
	}
	if err := n.Delete(s.now()); err != nil {
		return err
	}
	return s.commit(ctx, n)
}

// CreateTask creates a task and returns its id. source identifies the note
// line the task was extracted from, zero for tasks created directly.
func (s *Service) CreateTask(ctx context.Context, text, categoryID, parentID string, priority int, dueDate *time.Time, source task.Source) (string, error) {
	taskID, err := id.NewID()
	if err != nil {
		return "", fmt.Errorf("generate task id: %w", err)
	}
	t := task.New(taskID)
	if err := t.Create(text, categoryID, parentID, priority, dueDate, source, s.now()); err != nil {
		return "", err
	}
	if err := s.commit(ctx, t); err != nil {
		return "", err
	}
	return taskID, nil
}

// EditTask changes a task's text.
func (s *Service) EditTask(ctx context.Context, taskID, text string) error {
	t, err := s.repo.LoadTask(ctx, taskID)
	if err != nil {
		return err
	}
	if err := t.Edit(text, s.now()); err != nil {
		return err
	}
	return s.commit(ctx, t)
}

// CompleteTask marks a task done.
func (s *Service) CompleteTask(ctx context.Context, taskID string) error {
	t, err := s.repo.LoadTask(ctx, taskID)
	if err != nil {
		return err
	}
	if err := t.Complete(s.now()); err != nil {
		return err
	}
	return s.commit(ctx, t)
}

// ReopenTask reopens a completed task.
func (s *Service) ReopenTask(ctx context.Context, taskID string) error {
	t, err := s.repo.LoadTask(ctx, taskID)
	if err != nil {
		return err
	}
	if err := t.Reopen(s.now()); err != nil {
		return err
	}
	return s.commit(ctx, t)
}

// MoveTask moves a task to another category or parent task.
func (s *Service) MoveTask(ctx context.Context, taskID, categoryID, parentID string) error {
	t, err := s.repo.LoadTask(ctx, taskID)
	if err != nil {
		return err
	}
	if err := t.Move(categoryID, parentID, s.now()); err != nil {
		return err
	}
	return s.commit(ctx, t)
}

// RescheduleTask changes a task's due date, nil to clear it.
func (s *Service) RescheduleTask(ctx context.Context, taskID string, dueDate *time.Time) error {
	t, err := s.repo.LoadTask(ctx, taskID)
	if err != nil {
		return err
	}
	if err := t.Reschedule(dueDate, s.now()); err != nil {
		return err
	}
	return s.commit(ctx, t)
}

// ReprioritizeTask changes a task's priority.
func (s *Service) ReprioritizeTask(ctx context.Context, taskID string, priority int) error {
	t, err := s.repo.LoadTask(ctx, taskID)
	if err != nil {
		return err
	}
	if err := t.Reprioritize(priority, s.now()); err != nil {
		return err
	}
	return s.commit(ctx, t)
}

// SetTaskTags replaces a task's manual tags.
func (s *Service) SetTaskTags(ctx context.Context, taskID string, texts []string) error {
	t, err := s.repo.LoadTask(ctx, taskID)
	if err != nil {
		return err
	}
	if err := t.SetTags(tag.FromTexts(texts, tag.SourceManual), s.now()); err != nil {
		return err
	}
	return s.commit(ctx, t)
}

// DeleteTask removes a task.
func (s *Service) DeleteTask(ctx context.Context, taskID string) error {
	t, err := s.repo.LoadTask(ctx, taskID)
	if err != nil {
		return err
	}
	if err := t.Delete(s.now()); err != nil {
		return err
	}
	return s.commit(ctx, t)
}

// EffectiveTags resolves an entity's tags including inheritance.
func (s *Service) EffectiveTags(ctx context.Context, entityID, entityType string) []tag.Tag {
	return s.query.EffectiveTags(ctx, entityID, entityType)
}

// PropagationStatus reports a background propagation run.
func (s *Service) PropagationStatus(runID string) (tagging.RunInfo, error) {
	return s.propagator.Status(runID)
}

// CancelPropagation requests a propagation run to stop at its next batch
// boundary.
func (s *Service) CancelPropagation(runID string) error {
	return s.propagator.Cancel(runID)
}

// ListChildren returns the projected children of a tree node.
func (s *Service) ListChildren(ctx context.Context, parentID string) ([]storage.TreeNode, error) {
	return s.projections.ListChildren(ctx, parentID)
}

// ListTasks returns a category's projected tasks.
func (s *Service) ListTasks(ctx context.Context, categoryID string) ([]storage.TaskRow, error) {
	return s.projections.ListTasksByCategory(ctx, categoryID)
}

// commit appends an aggregate's events and catches the projections up so
// the write is immediately visible. Concurrency conflicts surface to the
// caller untouched; command handlers never retry on the user's behalf.
func (s *Service) commit(ctx context.Context, agg repository.Aggregate) error {
	appended, err := s.repo.Save(ctx, agg)
	if err != nil {
		return err
	}
	if len(appended) == 0 {
		return nil
	}
	if err := s.orchestrator.CatchUp(ctx); err != nil {
		s.logger.Warn("projection catch-up failed after commit", "error", err)
	}
	return nil
}

// checkNoCycle rejects moving a category under itself or any of its
// descendants, using the projected tree.
func (s *Service) checkNoCycle(ctx context.Context, categoryID, newParentID string) error {
	current := newParentID
	for depth := 0; current != "" && depth < maxTreeDepth; depth++ {
		if current == categoryID {
			return fmt.Errorf("cannot move category %s into its own subtree", categoryID)
		}
		node, err := s.projections.GetTreeNode(ctx, current)
		if err != nil {
			return err
		}
		current = node.ParentID
	}
	return nil
}
