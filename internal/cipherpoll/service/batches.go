package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cipherpoll/server/internal/cipherpoll/store"
)

// BatchLedger owns the batch lifecycle: Unopened → Open → Closed, terminal.
// Ids are dense, start at 1, and are never reused.
type BatchLedger struct {
	ledger store.LedgerStore
	guard  *AccessGuard
	events store.EventStore
	logger *slog.Logger
}

func NewBatchLedger(ledger store.LedgerStore, guard *AccessGuard, events store.EventStore, logger *slog.Logger) *BatchLedger {
	return &BatchLedger{ledger: ledger, guard: guard, events: events, logger: logger}
}

func (b *BatchLedger) Open(ctx context.Context, caller string) (uint64, error) {
	if err := b.guard.RequireAdmin(caller); err != nil {
		return 0, err
	}
	if err := b.guard.RequireNotPaused(ctx); err != nil {
		return 0, err
	}

	id, err := b.ledger.CreateBatch(ctx, b.guard.now())
	if err != nil {
		return 0, err
	}

	emit(ctx, b.events, b.logger, store.EventRecord{
		Kind:    EventBatchOpened,
		BatchID: id,
	})
	return id, nil
}

// Close rejects closing an unopened or already-closed batch. A second close
// is an error, not a no-op.
func (b *BatchLedger) Close(ctx context.Context, caller string, id uint64) error {
	if err := b.guard.RequireAdmin(caller); err != nil {
		return err
	}

	if err := b.ledger.CloseBatch(ctx, id, b.guard.now()); err != nil {
		switch {
		case errors.Is(err, store.ErrBatchNotFound), errors.Is(err, store.ErrBatchNotOpen):
			return ErrBatchNotOpen
		}
		return err
	}

	emit(ctx, b.events, b.logger, store.EventRecord{
		Kind:    EventBatchClosed,
		BatchID: id,
	})
	return nil
}

func (b *BatchLedger) Get(ctx context.Context, id uint64) (store.BatchRecord, error) {
	rec, err := b.ledger.Batch(ctx, id)
	if errors.Is(err, store.ErrBatchNotFound) {
		return store.BatchRecord{}, ErrBatchNotFound
	}
	return rec, err
}
