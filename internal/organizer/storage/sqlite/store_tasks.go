package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/inkwell-app/inkwell/internal/organizer/storage"
)

// PutTaskRow inserts or replaces a task projection row.
func (s *Store) PutTaskRow(ctx context.Context, row storage.TaskRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	row.ID = strings.TrimSpace(row.ID)
	if row.ID == "" {
		return fmt.Errorf("task id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO task_view (
	id, text, is_completed, category_id, parent_id, priority, due_date,
	source_note_id, source_file_path, source_line_number, is_orphaned,
	created_at, modified_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	text = excluded.text,
	is_completed = excluded.is_completed,
	category_id = excluded.category_id,
	parent_id = excluded.parent_id,
	priority = excluded.priority,
	due_date = excluded.due_date,
	source_note_id = excluded.source_note_id,
	source_file_path = excluded.source_file_path,
	source_line_number = excluded.source_line_number,
	is_orphaned = excluded.is_orphaned,
	created_at = excluded.created_at,
	modified_at = excluded.modified_at
`,
		row.ID,
		row.Text,
		boolToInt(row.IsCompleted),
		row.CategoryID,
		row.ParentID,
		row.Priority,
		toNullMillis(row.DueDate),
		row.SourceNoteID,
		row.SourceFilePath,
		row.SourceLineNumber,
		boolToInt(row.IsOrphaned),
		toMillis(row.CreatedAt),
		toMillis(row.ModifiedAt),
	)
	if err != nil {
		return fmt.Errorf("put task row: %w", err)
	}
	return nil
}

// GetTaskRow returns a task row by id.
func (s *Store) GetTaskRow(ctx context.Context, id string) (storage.TaskRow, error) {
	if err := ctx.Err(); err != nil {
		return storage.TaskRow{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.TaskRow{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, text, is_completed, category_id, parent_id, priority, due_date,
	source_note_id, source_file_path, source_line_number, is_orphaned,
	created_at, modified_at
FROM task_view
WHERE id = ?
`, id)
	task, err := scanTaskRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.TaskRow{}, fmt.Errorf("task %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return storage.TaskRow{}, fmt.Errorf("get task row: %w", err)
	}
	return task, nil
}

// ListTasksByCategory returns a category's tasks ordered by priority
// descending then creation time.
func (s *Store) ListTasksByCategory(ctx context.Context, categoryID string) ([]storage.TaskRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, text, is_completed, category_id, parent_id, priority, due_date,
	source_note_id, source_file_path, source_line_number, is_orphaned,
	created_at, modified_at
FROM task_view
WHERE category_id = ?
ORDER BY priority DESC, created_at ASC, id ASC
`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list tasks by category: %w", err)
	}
	defer rows.Close()
	return scanTaskRows(rows)
}

// ListTasksBySourceNote returns the tasks extracted from a note.
func (s *Store) ListTasksBySourceNote(ctx context.Context, noteID string) ([]storage.TaskRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, text, is_completed, category_id, parent_id, priority, due_date,
	source_note_id, source_file_path, source_line_number, is_orphaned,
	created_at, modified_at
FROM task_view
WHERE source_note_id = ?
ORDER BY source_line_number ASC, id ASC
`, noteID)
	if err != nil {
		return nil, fmt.Errorf("list tasks by source note: %w", err)
	}
	defer rows.Close()
	return scanTaskRows(rows)
}

// MarkTasksOrphanedBySourceNote flags a deleted note's extracted tasks.
func (s *Store) MarkTasksOrphanedBySourceNote(ctx context.Context, noteID string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(noteID) == "" {
		return fmt.Errorf("note id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
UPDATE task_view
SET is_orphaned = 1, modified_at = ?
WHERE source_note_id = ? AND is_orphaned = 0
`, toMillis(at), noteID)
	if err != nil {
		return fmt.Errorf("mark tasks orphaned: %w", err)
	}
	return nil
}

// DeleteTaskRow removes a task row.
func (s *Store) DeleteTaskRow(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM task_view WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete task row: %w", err)
	}
	return nil
}

func scanTaskRow(row rowScanner) (storage.TaskRow, error) {
	var (
		task        storage.TaskRow
		isCompleted int
		dueDate     sql.NullInt64
		isOrphaned  int
		createdAt   int64
		modifiedAt  int64
	)
	if err := row.Scan(
		&task.ID,
		&task.Text,
		&isCompleted,
		&task.CategoryID,
		&task.ParentID,
		&task.Priority,
		&dueDate,
		&task.SourceNoteID,
		&task.SourceFilePath,
		&task.SourceLineNumber,
		&isOrphaned,
		&createdAt,
		&modifiedAt,
	); err != nil {
		return storage.TaskRow{}, err
	}
	task.IsCompleted = isCompleted != 0
	task.DueDate = fromNullMillis(dueDate)
	task.IsOrphaned = isOrphaned != 0
	task.CreatedAt = fromMillis(createdAt)
	task.ModifiedAt = fromMillis(modifiedAt)
	return task, nil
}

func scanTaskRows(rows *sql.Rows) ([]storage.TaskRow, error) {
	var tasks []storage.TaskRow
	for rows.Next() {
		task, err := scanTaskRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task rows: %w", err)
	}
	return tasks, nil
}
