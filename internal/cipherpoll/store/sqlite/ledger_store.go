package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/cipherpoll/server/internal/db"

	"github.com/cipherpoll/server/internal/cipherpoll/store"
)

// Ledger is the persistent LedgerStore. Reads go straight to the database;
// every mutation is one transaction on the single-writer worker, so ledger
// operations commit fully or not at all and never interleave.
type Ledger struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewLedger(conn *sql.DB, writer *dbpkg.Worker) *Ledger {
	return &Ledger{db: conn, writer: writer}
}

func (s *Ledger) Config(ctx context.Context) (store.ConfigRecord, error) {
	var paused int
	var cooldownS int64

	err := s.db.QueryRowContext(ctx, `
SELECT paused, cooldown_s FROM ledger_config WHERE id = 1;`).Scan(&paused, &cooldownS)
	if err == sql.ErrNoRows {
		return store.ConfigRecord{}, nil
	}
	if err != nil {
		return store.ConfigRecord{}, fmt.Errorf("config query: %w", err)
	}

	return store.ConfigRecord{
		Paused:   paused == 1,
		Cooldown: time.Duration(cooldownS) * time.Second,
	}, nil
}

// ensureConfig guarantees the single config row exists. Must run inside a
// transaction.
func ensureConfig(ctx context.Context, tx *sql.Tx, nowMs int64) error {
	if _, err := tx.ExecContext(ctx, `
INSERT INTO ledger_config(id, paused, cooldown_s, created_at_ms, updated_at_ms)
VALUES (1, 0, 0, ?, ?)
ON CONFLICT(id) DO NOTHING;`, nowMs, nowMs); err != nil {
		return fmt.Errorf("ensure ledger_config: %w", err)
	}
	return nil
}

func (s *Ledger) SetPaused(ctx context.Context, paused bool, at time.Time) error {
	nowMs := at.UTC().UnixMilli()
	val := 0
	if paused {
		val = 1
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := ensureConfig(ctx, tx, nowMs); err != nil {
			return err
		}

		var cur int
		if err := tx.QueryRowContext(ctx,
			`SELECT paused FROM ledger_config WHERE id = 1;`).Scan(&cur); err != nil {
			return fmt.Errorf("SetPaused read: %w", err)
		}
		if cur == val {
			return store.ErrNoChange
		}

		if _, err := tx.ExecContext(ctx, `
UPDATE ledger_config SET paused = ?, updated_at_ms = ? WHERE id = 1;`, val, nowMs); err != nil {
			return fmt.Errorf("SetPaused update: %w", err)
		}
		return nil
	})
}

func (s *Ledger) SetCooldown(ctx context.Context, cooldown time.Duration, at time.Time) error {
	nowMs := at.UTC().UnixMilli()
	secs := int64(cooldown / time.Second)

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := ensureConfig(ctx, tx, nowMs); err != nil {
			return err
		}

		var cur int64
		if err := tx.QueryRowContext(ctx,
			`SELECT cooldown_s FROM ledger_config WHERE id = 1;`).Scan(&cur); err != nil {
			return fmt.Errorf("SetCooldown read: %w", err)
		}
		if cur == secs {
			return store.ErrNoChange
		}

		if _, err := tx.ExecContext(ctx, `
UPDATE ledger_config SET cooldown_s = ?, updated_at_ms = ? WHERE id = 1;`, secs, nowMs); err != nil {
			return fmt.Errorf("SetCooldown update: %w", err)
		}
		return nil
	})
}

func (s *Ledger) IsProvider(ctx context.Context, principal string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM providers WHERE principal = ?;`, principal).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("IsProvider query: %w", err)
	}
	return true, nil
}

func (s *Ledger) AddProvider(ctx context.Context, principal string, at time.Time) error {
	nowMs := at.UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO providers(principal, added_at_ms) VALUES (?, ?);`, principal, nowMs)
		if err != nil {
			return fmt.Errorf("AddProvider insert: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrNoChange
		}
		return nil
	})
}

func (s *Ledger) RemoveProvider(ctx context.Context, principal string) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM providers WHERE principal = ?;`, principal)
		if err != nil {
			return fmt.Errorf("RemoveProvider delete: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrNoChange
		}
		return nil
	})
}

func (s *Ledger) LastAction(ctx context.Context, principal, action string) (time.Time, error) {
	var ms int64
	err := s.db.QueryRowContext(ctx, `
SELECT last_at_ms FROM principal_actions WHERE principal = ? AND action_kind = ?;`,
		principal, action).Scan(&ms)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("LastAction query: %w", err)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// touchAction upserts the caller's cooldown timestamp. Must run inside the
// enclosing operation's transaction so a failed operation leaves the
// timestamp untouched.
func touchAction(ctx context.Context, tx *sql.Tx, t store.TouchRecord) error {
	if t.Principal == "" {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO principal_actions(principal, action_kind, last_at_ms)
VALUES (?, ?, ?)
ON CONFLICT(principal, action_kind) DO UPDATE SET last_at_ms = excluded.last_at_ms;`,
		t.Principal, t.Action, t.At.UTC().UnixMilli()); err != nil {
		return fmt.Errorf("touch action: %w", err)
	}
	return nil
}

func (s *Ledger) CreateBatch(ctx context.Context, at time.Time) (uint64, error) {
	nowMs := at.UTC().UnixMilli()

	var id uint64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO batches(open, submission_count, opened_at_ms) VALUES (1, 0, ?);`, nowMs)
		if err != nil {
			return fmt.Errorf("CreateBatch insert: %w", err)
		}
		last, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("CreateBatch id: %w", err)
		}
		id = uint64(last)
		return nil
	})
	return id, err
}

func (s *Ledger) Batch(ctx context.Context, id uint64) (store.BatchRecord, error) {
	var (
		open     int
		count    uint64
		yes, no  []byte
		openedMs int64
		closedMs sql.NullInt64
	)

	err := s.db.QueryRowContext(ctx, `
SELECT open, submission_count, yes_ciphertext, no_ciphertext, opened_at_ms, closed_at_ms
FROM batches WHERE batch_id = ?;`, id).Scan(&open, &count, &yes, &no, &openedMs, &closedMs)
	if err == sql.ErrNoRows {
		return store.BatchRecord{}, store.ErrBatchNotFound
	}
	if err != nil {
		return store.BatchRecord{}, fmt.Errorf("Batch query: %w", err)
	}

	rec := store.BatchRecord{
		ID:              id,
		Open:            open == 1,
		SubmissionCount: count,
		YesCiphertext:   yes,
		NoCiphertext:    no,
		OpenedAt:        time.UnixMilli(openedMs).UTC(),
	}
	if closedMs.Valid {
		t := time.UnixMilli(closedMs.Int64).UTC()
		rec.ClosedAt = &t
	}
	return rec, nil
}

func (s *Ledger) CloseBatch(ctx context.Context, id uint64, at time.Time) error {
	nowMs := at.UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var open int
		err := tx.QueryRowContext(ctx,
			`SELECT open FROM batches WHERE batch_id = ?;`, id).Scan(&open)
		if err == sql.ErrNoRows {
			return store.ErrBatchNotFound
		}
		if err != nil {
			return fmt.Errorf("CloseBatch read: %w", err)
		}
		if open != 1 {
			return store.ErrBatchNotOpen
		}

		if _, err := tx.ExecContext(ctx, `
UPDATE batches SET open = 0, closed_at_ms = ? WHERE batch_id = ?;`, nowMs, id); err != nil {
			return fmt.Errorf("CloseBatch update: %w", err)
		}
		return nil
	})
}

func (s *Ledger) ApplySubmission(ctx context.Context, batchID uint64, yes, no []byte, touch store.TouchRecord) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var open int
		err := tx.QueryRowContext(ctx,
			`SELECT open FROM batches WHERE batch_id = ?;`, batchID).Scan(&open)
		if err == sql.ErrNoRows {
			return store.ErrBatchNotFound
		}
		if err != nil {
			return fmt.Errorf("ApplySubmission read: %w", err)
		}
		if open != 1 {
			return store.ErrBatchNotOpen
		}

		if _, err := tx.ExecContext(ctx, `
UPDATE batches
SET yes_ciphertext = ?, no_ciphertext = ?, submission_count = submission_count + 1
WHERE batch_id = ?;`, yes, no, batchID); err != nil {
			return fmt.Errorf("ApplySubmission update: %w", err)
		}

		return touchAction(ctx, tx, touch)
	})
}

func (s *Ledger) CreateRequest(ctx context.Context, rec store.RequestRecord, touch store.TouchRecord) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM decryption_requests WHERE request_id = ?;`, rec.RequestID).Scan(&one)
		if err == nil {
			return store.ErrRequestExists
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("CreateRequest read: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO decryption_requests(request_id, batch_id, state_commitment, finalized, requested_at_ms)
VALUES (?, ?, ?, 0, ?);`,
			rec.RequestID, rec.BatchID, rec.StateCommitment,
			rec.RequestedAt.UTC().UnixMilli()); err != nil {
			return fmt.Errorf("CreateRequest insert: %w", err)
		}

		return touchAction(ctx, tx, touch)
	})
}

func (s *Ledger) Request(ctx context.Context, requestID string) (store.RequestRecord, error) {
	var (
		batchID     uint64
		commitment  []byte
		finalized   int
		yesN, noN   sql.NullInt64
		requestedMs int64
		finalizedMs sql.NullInt64
	)

	err := s.db.QueryRowContext(ctx, `
SELECT batch_id, state_commitment, finalized, yes_count, no_count, requested_at_ms, finalized_at_ms
FROM decryption_requests WHERE request_id = ?;`, requestID).Scan(
		&batchID, &commitment, &finalized, &yesN, &noN, &requestedMs, &finalizedMs)
	if err == sql.ErrNoRows {
		return store.RequestRecord{}, store.ErrRequestNotFound
	}
	if err != nil {
		return store.RequestRecord{}, fmt.Errorf("Request query: %w", err)
	}

	rec := store.RequestRecord{
		RequestID:       requestID,
		BatchID:         batchID,
		StateCommitment: commitment,
		Finalized:       finalized == 1,
		RequestedAt:     time.UnixMilli(requestedMs).UTC(),
	}
	if yesN.Valid {
		rec.YesCount = uint32(yesN.Int64)
	}
	if noN.Valid {
		rec.NoCount = uint32(noN.Int64)
	}
	if finalizedMs.Valid {
		t := time.UnixMilli(finalizedMs.Int64).UTC()
		rec.FinalizedAt = &t
	}
	return rec, nil
}

func (s *Ledger) FinalizeRequest(ctx context.Context, requestID string, yesCount, noCount uint32, at time.Time) error {
	nowMs := at.UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var finalized int
		err := tx.QueryRowContext(ctx,
			`SELECT finalized FROM decryption_requests WHERE request_id = ?;`, requestID).Scan(&finalized)
		if err == sql.ErrNoRows {
			return store.ErrRequestNotFound
		}
		if err != nil {
			return fmt.Errorf("FinalizeRequest read: %w", err)
		}
		if finalized == 1 {
			return store.ErrAlreadyFinalized
		}

		if _, err := tx.ExecContext(ctx, `
UPDATE decryption_requests
SET finalized = 1, yes_count = ?, no_count = ?, finalized_at_ms = ?
WHERE request_id = ?;`, yesCount, noCount, nowMs, requestID); err != nil {
			return fmt.Errorf("FinalizeRequest update: %w", err)
		}
		return nil
	})
}
