package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/inkwell-app/inkwell/internal/organizer/storage"
)

// PutTreeNode inserts or replaces a tree projection row.
func (s *Store) PutTreeNode(ctx context.Context, node storage.TreeNode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	node.ID = strings.TrimSpace(node.ID)
	if node.ID == "" {
		return fmt.Errorf("node id is required")
	}
	if node.NodeType != storage.NodeCategory && node.NodeType != storage.NodeNote {
		return fmt.Errorf("unknown node type %q", node.NodeType)
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO tree_view (
	id, parent_id, node_type, name, canonical_path,
	is_pinned, sort_order, created_at, modified_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	parent_id = excluded.parent_id,
	node_type = excluded.node_type,
	name = excluded.name,
	canonical_path = excluded.canonical_path,
	is_pinned = excluded.is_pinned,
	sort_order = excluded.sort_order,
	created_at = excluded.created_at,
	modified_at = excluded.modified_at
`,
		node.ID,
		node.ParentID,
		node.NodeType,
		node.Name,
		node.CanonicalPath,
		boolToInt(node.IsPinned),
		node.SortOrder,
		toMillis(node.CreatedAt),
		toMillis(node.ModifiedAt),
	)
	if err != nil {
		return fmt.Errorf("put tree node: %w", err)
	}
	return nil
}

// GetTreeNode returns a tree node by id.
func (s *Store) GetTreeNode(ctx context.Context, id string) (storage.TreeNode, error) {
	if err := ctx.Err(); err != nil {
		return storage.TreeNode{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.TreeNode{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, parent_id, node_type, name, canonical_path,
	is_pinned, sort_order, created_at, modified_at
FROM tree_view
WHERE id = ?
`, id)
	node, err := scanTreeNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.TreeNode{}, fmt.Errorf("tree node %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return storage.TreeNode{}, fmt.Errorf("get tree node: %w", err)
	}
	return node, nil
}

// ListChildren returns a parent's direct children ordered for display.
func (s *Store) ListChildren(ctx context.Context, parentID string) ([]storage.TreeNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, parent_id, node_type, name, canonical_path,
	is_pinned, sort_order, created_at, modified_at
FROM tree_view
WHERE parent_id = ?
ORDER BY sort_order ASC, name ASC
`, parentID)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()
	return scanTreeNodes(rows)
}

// ListTreeNodes returns every node ordered by canonical path.
func (s *Store) ListTreeNodes(ctx context.Context) ([]storage.TreeNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, parent_id, node_type, name, canonical_path,
	is_pinned, sort_order, created_at, modified_at
FROM tree_view
ORDER BY canonical_path ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list tree nodes: %w", err)
	}
	defer rows.Close()
	return scanTreeNodes(rows)
}

// DeleteTreeNode removes a tree node row.
func (s *Store) DeleteTreeNode(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM tree_view WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete tree node: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTreeNode(row rowScanner) (storage.TreeNode, error) {
	var (
		node       storage.TreeNode
		isPinned   int
		createdAt  int64
		modifiedAt int64
	)
	if err := row.Scan(
		&node.ID,
		&node.ParentID,
		&node.NodeType,
		&node.Name,
		&node.CanonicalPath,
		&isPinned,
		&node.SortOrder,
		&createdAt,
		&modifiedAt,
	); err != nil {
		return storage.TreeNode{}, err
	}
	node.IsPinned = isPinned != 0
	node.CreatedAt = fromMillis(createdAt)
	node.ModifiedAt = fromMillis(modifiedAt)
	return node, nil
}

func scanTreeNodes(rows *sql.Rows) ([]storage.TreeNode, error) {
	var nodes []storage.TreeNode
	for rows.Next() {
		node, err := scanTreeNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tree node: %w", err)
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tree nodes: %w", err)
	}
	return nodes, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
