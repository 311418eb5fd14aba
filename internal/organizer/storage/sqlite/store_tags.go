package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/inkwell-app/inkwell/internal/organizer/storage"
)

// ReplaceEntityTags replaces an entity's tag rows in one transaction so
// readers never observe a partially written set.
func (s *Store) ReplaceEntityTags(ctx context.Context, entityID, entityType string, rows []storage.TagRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	entityID = strings.TrimSpace(entityID)
	entityType = strings.TrimSpace(entityType)
	if entityID == "" {
		return fmt.Errorf("entity id is required")
	}
	if entityType == "" {
		return fmt.Errorf("entity type is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entity_tags WHERE entity_id = ?`, entityID); err != nil {
		return fmt.Errorf("clear entity tags: %w", err)
	}
	for _, row := range rows {
		if strings.TrimSpace(row.Key) == "" {
			return fmt.Errorf("tag key is required")
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO entity_tags (entity_id, entity_type, tag_key, display_text, source, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (entity_id, tag_key) DO UPDATE SET
	display_text = excluded.display_text,
	source = excluded.source,
	created_at = excluded.created_at
`,
			entityID,
			entityType,
			row.Key,
			row.DisplayText,
			row.Source,
			toMillis(row.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert entity tag: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit entity tags: %w", err)
	}
	return nil
}

// ListEntityTags returns an entity's tags ordered by key.
func (s *Store) ListEntityTags(ctx context.Context, entityID string) ([]storage.TagRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT entity_id, entity_type, tag_key, display_text, source, created_at
FROM entity_tags
WHERE entity_id = ?
ORDER BY tag_key ASC
`, entityID)
	if err != nil {
		return nil, fmt.Errorf("list entity tags: %w", err)
	}
	defer rows.Close()

	var tags []storage.TagRow
	for rows.Next() {
		var (
			row       storage.TagRow
			createdAt int64
		)
		if err := rows.Scan(
			&row.EntityID,
			&row.EntityType,
			&row.Key,
			&row.DisplayText,
			&row.Source,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan entity tag: %w", err)
		}
		row.CreatedAt = fromMillis(createdAt)
		tags = append(tags, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entity tags: %w", err)
	}
	return tags, nil
}

// ListEntitiesByTag returns the ids of entities of a type carrying a tag.
func (s *Store) ListEntitiesByTag(ctx context.Context, entityType, key string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT entity_id FROM entity_tags
WHERE entity_type = ? AND tag_key = ?
ORDER BY entity_id ASC
`, entityType, key)
	if err != nil {
		return nil, fmt.Errorf("list entities by tag: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan entity id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entity ids: %w", err)
	}
	return ids, nil
}

// DeleteEntityTags removes every tag row of an entity.
func (s *Store) DeleteEntityTags(ctx context.Context, entityID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM entity_tags WHERE entity_id = ?`, entityID); err != nil {
		return fmt.Errorf("delete entity tags: %w", err)
	}
	return nil
}
