package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/inkwell-app/inkwell/internal/organizer/domain/event"
	"github.com/inkwell-app/inkwell/internal/organizer/storage"
)

// AppendEvents atomically appends events to one aggregate's stream. The
// expected version is re-checked inside the transaction so concurrent
// writers cannot both succeed.
func (s *Store) AppendEvents(ctx context.Context, expectedVersion uint64, events []event.Event) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("no events to append")
	}

	aggregateID := strings.TrimSpace(events[0].AggregateID)
	aggregateType := strings.TrimSpace(events[0].AggregateType)
	if aggregateID == "" {
		return nil, fmt.Errorf("aggregate id is required")
	}
	if aggregateType == "" {
		return nil, fmt.Errorf("aggregate type is required")
	}
	for _, evt := range events {
		if evt.AggregateID != aggregateID {
			return nil, fmt.Errorf("events span multiple aggregates: %s and %s", aggregateID, evt.AggregateID)
		}
		if !evt.Type.IsValid() {
			return nil, fmt.Errorf("event type is required")
		}
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var latestSeq uint64
	var prevChainHash string
	row := tx.QueryRowContext(ctx, `
SELECT seq, chain_hash FROM events
WHERE aggregate_id = ?
ORDER BY seq DESC
LIMIT 1
`, aggregateID)
	if err := row.Scan(&latestSeq, &prevChainHash); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load stream head: %w", err)
	}
	if latestSeq != expectedVersion {
		return nil, fmt.Errorf("stream %s at seq %d, expected %d: %w",
			aggregateID, latestSeq, expectedVersion, storage.ErrConcurrencyConflict)
	}

	appended := make([]event.Event, 0, len(events))
	for i, evt := range events {
		evt.Seq = expectedVersion + uint64(i) + 1
		if evt.OccurredAt.IsZero() {
			evt.OccurredAt = time.Now().UTC()
		}
		evt.OccurredAt = evt.OccurredAt.UTC().Truncate(time.Millisecond)
		if len(evt.PayloadJSON) == 0 {
			evt.PayloadJSON = []byte("{}")
		}

		hash, err := event.ContentHash(evt)
		if err != nil {
			return nil, fmt.Errorf("compute event hash: %w", err)
		}
		evt.Hash = hash
		evt.PrevHash = prevChainHash
		chainHash, err := event.ChainHash(evt, prevChainHash)
		if err != nil {
			return nil, fmt.Errorf("compute chain hash: %w", err)
		}
		evt.ChainHash = chainHash

		result, err := tx.ExecContext(ctx, `
INSERT INTO events (
	aggregate_id,
	aggregate_type,
	seq,
	event_type,
	occurred_at,
	payload_json,
	event_hash,
	prev_event_hash,
	chain_hash
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
			aggregateID,
			aggregateType,
			evt.Seq,
			string(evt.Type),
			toMillis(evt.OccurredAt),
			string(evt.PayloadJSON),
			evt.Hash,
			evt.PrevHash,
			evt.ChainHash,
		)
		if err != nil {
			return nil, fmt.Errorf("insert event: %w", err)
		}
		globalSeq, err := result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("read global seq: %w", err)
		}
		evt.GlobalSeq = uint64(globalSeq)

		prevChainHash = evt.ChainHash
		appended = append(appended, evt)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append: %w", err)
	}
	return appended, nil
}

// ListEvents returns an aggregate's events ordered by sequence.
func (s *Store) ListEvents(ctx context.Context, aggregateID string) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(aggregateID) == "" {
		return nil, fmt.Errorf("aggregate id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT global_seq, aggregate_id, aggregate_type, seq, event_type, occurred_at,
	payload_json, event_hash, prev_event_hash, chain_hash
FROM events
WHERE aggregate_id = ?
ORDER BY seq ASC
`, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListEventsAfter returns up to limit events past the given global sequence.
func (s *Store) ListEventsAfter(ctx context.Context, afterGlobalSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT global_seq, aggregate_id, aggregate_type, seq, event_type, occurred_at,
	payload_json, event_hash, prev_event_hash, chain_hash
FROM events
WHERE global_seq > ?
ORDER BY global_seq ASC
LIMIT ?
`, afterGlobalSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("list events after: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// LatestSeq returns the latest sequence of an aggregate's stream.
func (s *Store) LatestSeq(ctx context.Context, aggregateID string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	var seq uint64
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT COALESCE(MAX(seq), 0) FROM events WHERE aggregate_id = ?
`, aggregateID)
	if err := row.Scan(&seq); err != nil {
		return 0, fmt.Errorf("latest seq: %w", err)
	}
	return seq, nil
}

// LatestGlobalSeq returns the journal's head global sequence.
func (s *Store) LatestGlobalSeq(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	var seq uint64
	row := s.sqlDB.QueryRowContext(ctx, `SELECT COALESCE(MAX(global_seq), 0) FROM events`)
	if err := row.Scan(&seq); err != nil {
		return 0, fmt.Errorf("latest global seq: %w", err)
	}
	return seq, nil
}

// ListAggregateIDs returns distinct aggregate ids of a type in first-append
// order.
func (s *Store) ListAggregateIDs(ctx context.Context, aggregateType string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT aggregate_id FROM events
WHERE aggregate_type = ?
GROUP BY aggregate_id
ORDER BY MIN(global_seq) ASC
`, aggregateType)
	if err != nil {
		return nil, fmt.Errorf("list aggregate ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan aggregate id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregate ids: %w", err)
	}
	return ids, nil
}

// VerifyIntegrity recomputes content and chain hashes for a stream.
func (s *Store) VerifyIntegrity(ctx context.Context, aggregateID string) error {
	events, err := s.ListEvents(ctx, aggregateID)
	if err != nil {
		return err
	}

	prevChainHash := ""
	for _, evt := range events {
		hash, err := event.ContentHash(evt)
		if err != nil {
			return fmt.Errorf("recompute hash for seq %d: %w", evt.Seq, err)
		}
		if hash != evt.Hash {
			return fmt.Errorf("stream %s seq %d content hash mismatch: %w",
				aggregateID, evt.Seq, storage.ErrIntegrity)
		}
		if evt.PrevHash != prevChainHash {
			return fmt.Errorf("stream %s seq %d prev hash mismatch: %w",
				aggregateID, evt.Seq, storage.ErrIntegrity)
		}
		chainHash, err := event.ChainHash(evt, prevChainHash)
		if err != nil {
			return fmt.Errorf("recompute chain hash for seq %d: %w", evt.Seq, err)
		}
		if chainHash != evt.ChainHash {
			return fmt.Errorf("stream %s seq %d chain hash mismatch: %w",
				aggregateID, evt.Seq, storage.ErrIntegrity)
		}
		prevChainHash = evt.ChainHash
	}
	return nil
}

func scanEvents(rows *sql.Rows) ([]event.Event, error) {
	var events []event.Event
	for rows.Next() {
		var (
			evt        event.Event
			eventType  string
			occurredAt int64
			payload    string
		)
		if err := rows.Scan(
			&evt.GlobalSeq,
			&evt.AggregateID,
			&evt.AggregateType,
			&evt.Seq,
			&eventType,
			&occurredAt,
			&payload,
			&evt.Hash,
			&evt.PrevHash,
			&evt.ChainHash,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		evt.Type = event.Type(eventType)
		evt.OccurredAt = fromMillis(occurredAt)
		evt.PayloadJSON = []byte(payload)
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
