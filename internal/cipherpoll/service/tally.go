package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cipherpoll/server/internal/cipherpoll/fhe"
	"github.com/cipherpoll/server/internal/cipherpoll/metrics"
	"github.com/cipherpoll/server/internal/cipherpoll/store"
)

// EncryptedTally folds provider submissions into a batch's homomorphic
// counters. Each submission is an encrypted value; values >= 1 count as yes,
// 0 counts as no, and the split happens entirely under encryption.
type EncryptedTally struct {
	ledger  store.LedgerStore
	guard   *AccessGuard
	scheme  fhe.Scheme
	events  store.EventStore
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewEncryptedTally(ledger store.LedgerStore, guard *AccessGuard, scheme fhe.Scheme, events store.EventStore, m *metrics.Metrics, logger *slog.Logger) *EncryptedTally {
	return &EncryptedTally{ledger: ledger, guard: guard, scheme: scheme, events: events, metrics: m, logger: logger}
}

// RecordSubmission validates the caller and the target batch, classifies the
// encrypted submission, and commits both updated counters plus the caller's
// cooldown touch in one store transaction. Any failure leaves the batch
// exactly as it was, cooldown included.
func (t *EncryptedTally) RecordSubmission(ctx context.Context, caller string, batchID uint64, rawCiphertext []byte) error {
	if err := t.guard.RequireProvider(ctx, caller); err != nil {
		return err
	}
	if err := t.guard.RequireNotPaused(ctx); err != nil {
		return err
	}
	now, err := t.guard.CooldownElapsed(ctx, caller, ActionSubmit)
	if err != nil {
		return err
	}

	batch, err := t.ledger.Batch(ctx, batchID)
	if err != nil {
		if errors.Is(err, store.ErrBatchNotFound) {
			return ErrBatchNotFound
		}
		return err
	}
	if !batch.Open {
		return ErrBatchNotOpen
	}

	if len(rawCiphertext) == 0 {
		return fmt.Errorf("%w: empty ciphertext", ErrInvalidInput)
	}
	submission, err := t.scheme.Deserialize(rawCiphertext)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	yes, no, err := t.loadCounters(batch)
	if err != nil {
		return err
	}

	yes, no, err = t.accumulate(yes, no, submission)
	if err != nil {
		return err
	}

	yesRaw, err := t.scheme.Serialize(yes)
	if err != nil {
		return err
	}
	noRaw, err := t.scheme.Serialize(no)
	if err != nil {
		return err
	}

	err = t.ledger.ApplySubmission(ctx, batchID, yesRaw, noRaw, store.TouchRecord{
		Principal: caller,
		Action:    ActionSubmit,
		At:        now,
	})
	if err != nil {
		if errors.Is(err, store.ErrBatchNotOpen) || errors.Is(err, store.ErrBatchNotFound) {
			return ErrBatchNotOpen
		}
		return err
	}

	t.metrics.IncSubmissions()
	emit(ctx, t.events, t.logger, store.EventRecord{
		Kind:      EventSubmissionRecorded,
		Principal: caller,
		BatchID:   batchID,
		Payload:   fmt.Sprintf(`{"ciphertext":"%s"}`, hex.EncodeToString(rawCiphertext)),
	})
	return nil
}

// loadCounters materializes the batch's counter handles, starting both from
// an encryption of zero on the batch's first submission.
func (t *EncryptedTally) loadCounters(batch store.BatchRecord) (yes, no fhe.Ciphertext, err error) {
	if batch.YesCiphertext == nil {
		if yes, err = t.scheme.Zero(); err != nil {
			return nil, nil, err
		}
		if no, err = t.scheme.Zero(); err != nil {
			return nil, nil, err
		}
		return yes, no, nil
	}
	if yes, err = t.scheme.Deserialize(batch.YesCiphertext); err != nil {
		return nil, nil, err
	}
	if no, err = t.scheme.Deserialize(batch.NoCiphertext); err != nil {
		return nil, nil, err
	}
	return yes, no, nil
}

// accumulate adds exactly one to exactly one counter: the yes counter when
// the encrypted submission is >= 1, the no counter otherwise.
func (t *EncryptedTally) accumulate(yes, no, submission fhe.Ciphertext) (fhe.Ciphertext, fhe.Ciphertext, error) {
	isYes, err := t.scheme.CompareAtLeast(submission, 1)
	if err != nil {
		return nil, nil, err
	}
	one, err := t.scheme.Constant(1)
	if err != nil {
		return nil, nil, err
	}
	zero, err := t.scheme.Zero()
	if err != nil {
		return nil, nil, err
	}

	yesDelta, err := t.scheme.Select(isYes, one, zero)
	if err != nil {
		return nil, nil, err
	}
	noDelta, err := t.scheme.Select(isYes, zero, one)
	if err != nil {
		return nil, nil, err
	}

	if yes, err = t.scheme.Add(yes, yesDelta); err != nil {
		return nil, nil, err
	}
	if no, err = t.scheme.Add(no, noDelta); err != nil {
		return nil, nil, err
	}
	return yes, no, nil
}
