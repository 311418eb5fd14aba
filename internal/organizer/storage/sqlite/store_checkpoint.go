package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetCheckpoint returns the last applied global sequence.
func (s *Store) GetCheckpoint(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	var seq uint64
	row := s.sqlDB.QueryRowContext(ctx, `SELECT last_global_seq FROM projection_checkpoint WHERE id = 1`)
	if err := row.Scan(&seq); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("get checkpoint: %w", err)
	}
	return seq, nil
}

// SaveCheckpoint records projection progress. The guard in the upsert keeps
// the checkpoint from ever moving backward.
func (s *Store) SaveCheckpoint(ctx context.Context, globalSeq uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO projection_checkpoint (id, last_global_seq, updated_at)
VALUES (1, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	last_global_seq = excluded.last_global_seq,
	updated_at = excluded.updated_at
WHERE excluded.last_global_seq > projection_checkpoint.last_global_seq
`, globalSeq, toMillis(time.Now()))
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// ResetProjections clears every projection table and the checkpoint.
func (s *Store) ResetProjections(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"tree_view", "task_view", "entity_tags", "projection_checkpoint"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reset: %w", err)
	}
	return nil
}
