package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/cipherpoll/server/internal/db"

	"github.com/cipherpoll/server/internal/cipherpoll/store"
)

type EventStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewEventStore(conn *sql.DB, writer *dbpkg.Worker) *EventStore {
	return &EventStore{db: conn, writer: writer}
}

func (s *EventStore) Append(ctx context.Context, rec store.EventRecord) error {
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = time.Now().UTC()
	}

	var batchID any
	if rec.BatchID != 0 {
		batchID = rec.BatchID
	}
	var principal any
	if rec.Principal != "" {
		principal = rec.Principal
	}
	var requestID any
	if rec.RequestID != "" {
		requestID = rec.RequestID
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO ledger_events(kind, principal, batch_id, request_id, payload, occurred_at_ms)
VALUES (?, ?, ?, ?, ?, ?);`,
			rec.Kind, principal, batchID, requestID, rec.Payload,
			rec.OccurredAt.UTC().UnixMilli()); err != nil {
			return fmt.Errorf("Append event: %w", err)
		}
		return nil
	})
}

// PruneOlderThan deletes audit events recorded before cutoff and returns the
// number of rows removed. Uses idx_ledger_events_time for the range scan.
func (s *EventStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffMs := cutoff.UTC().UnixMilli()

	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM ledger_events WHERE occurred_at_ms < ?;`, cutoffMs)
		if err != nil {
			return fmt.Errorf("PruneOlderThan: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}
