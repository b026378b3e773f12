package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cipherpoll/server/internal/cipherpoll/metrics"
	"github.com/cipherpoll/server/internal/cipherpoll/oracle"
	"github.com/cipherpoll/server/internal/cipherpoll/store"
)

// cleartextLen is the callback wire format: uint32 big-endian yes count
// followed by uint32 big-endian no count.
const cleartextLen = 8

// DecryptionBridge runs the two-phase oracle protocol. Phase one submits a
// closed batch's counters to the Decryptor and pins a commitment over the
// exact ciphertext bytes sent. Phase two accepts the asynchronous callback
// and finalizes the request only after every integrity guard passes, in
// order: replay, then state drift, then proof authenticity, then decoding.
type DecryptionBridge struct {
	ledger    store.LedgerStore
	guard     *AccessGuard
	decryptor oracle.Decryptor
	verifier  oracle.Verifier
	ledgerID  string
	events    store.EventStore
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewDecryptionBridge(ledger store.LedgerStore, guard *AccessGuard, decryptor oracle.Decryptor, verifier oracle.Verifier, ledgerID string, events store.EventStore, m *metrics.Metrics, logger *slog.Logger) *DecryptionBridge {
	return &DecryptionBridge{
		ledger:    ledger,
		guard:     guard,
		decryptor: decryptor,
		verifier:  verifier,
		ledgerID:  ledgerID,
		events:    events,
		metrics:   m,
		logger:    logger,
	}
}

// commitment binds the serialized counters to this ledger instance.
// Length-prefixing each field keeps distinct (yes, no) pairs from hashing
// identically under concatenation.
func (d *DecryptionBridge) commitment(yes, no []byte) []byte {
	h := sha256.New()
	var n [4]byte
	for _, field := range [][]byte{yes, no, []byte(d.ledgerID)} {
		binary.BigEndian.PutUint32(n[:], uint32(len(field)))
		h.Write(n[:])
		h.Write(field)
	}
	return h.Sum(nil)
}

// RequestDecryption is phase one. The batch must be closed and must have at
// least one submission; the commitment is derived from the exact bytes handed
// to the oracle so the callback can prove the state did not drift.
func (d *DecryptionBridge) RequestDecryption(ctx context.Context, caller string, batchID uint64) (string, error) {
	if d.decryptor == nil {
		return "", ErrOracleUnavailable
	}
	if err := d.guard.RequireProvider(ctx, caller); err != nil {
		return "", err
	}
	if err := d.guard.RequireNotPaused(ctx); err != nil {
		return "", err
	}
	now, err := d.guard.CooldownElapsed(ctx, caller, ActionRequestDecryption)
	if err != nil {
		return "", err
	}

	batch, err := d.ledger.Batch(ctx, batchID)
	if err != nil {
		if errors.Is(err, store.ErrBatchNotFound) {
			return "", ErrBatchNotFound
		}
		return "", err
	}
	if batch.Open {
		return "", ErrBatchStillOpen
	}
	if batch.SubmissionCount == 0 || batch.YesCiphertext == nil || batch.NoCiphertext == nil {
		return "", fmt.Errorf("%w: batch has no submissions", ErrInvalidInput)
	}

	requestID, err := d.decryptor.RequestDecryption(ctx, [][]byte{batch.YesCiphertext, batch.NoCiphertext})
	if err != nil {
		return "", err
	}

	err = d.ledger.CreateRequest(ctx, store.RequestRecord{
		RequestID:       requestID,
		BatchID:         batchID,
		StateCommitment: d.commitment(batch.YesCiphertext, batch.NoCiphertext),
		RequestedAt:     now,
	}, store.TouchRecord{
		Principal: caller,
		Action:    ActionRequestDecryption,
		At:        now,
	})
	if err != nil {
		if errors.Is(err, store.ErrRequestExists) {
			return "", fmt.Errorf("%w: %s", ErrRequestExists, requestID)
		}
		return "", err
	}

	d.metrics.IncDecryptionRequests()
	emit(ctx, d.events, d.logger, store.EventRecord{
		Kind:      EventDecryptionRequested,
		Principal: caller,
		BatchID:   batchID,
		RequestID: requestID,
	})
	return requestID, nil
}

// OnDecryptionResult is phase two, invoked when the oracle's callback
// arrives. Finalization happens at most once per request; every rejected
// callback leaves the request untouched and awaitable.
func (d *DecryptionBridge) OnDecryptionResult(ctx context.Context, requestID string, cleartext, proof []byte) error {
	req, err := d.ledger.Request(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrRequestNotFound) {
			return ErrRequestNotFound
		}
		return err
	}

	if req.Finalized {
		d.metrics.IncIntegrityFailure("replay")
		return fmt.Errorf("%w: %s", ErrReplayDetected, requestID)
	}

	batch, err := d.ledger.Batch(ctx, req.BatchID)
	if err != nil {
		return err
	}
	// Re-derive from current counters on every callback; never trust the
	// stored commitment alone.
	if !bytes.Equal(d.commitment(batch.YesCiphertext, batch.NoCiphertext), req.StateCommitment) {
		d.metrics.IncIntegrityFailure("state_mismatch")
		return fmt.Errorf("%w: batch %d", ErrStateMismatch, req.BatchID)
	}

	if err := d.verifier.Verify(requestID, cleartext, proof); err != nil {
		d.metrics.IncIntegrityFailure("bad_proof")
		return fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	if len(cleartext) != cleartextLen {
		d.metrics.IncIntegrityFailure("bad_cleartext")
		return fmt.Errorf("%w: cleartext is %d bytes, want %d", ErrDecryptionFailed, len(cleartext), cleartextLen)
	}
	yesCount := binary.BigEndian.Uint32(cleartext[0:4])
	noCount := binary.BigEndian.Uint32(cleartext[4:8])

	now := d.guard.now()
	if err := d.ledger.FinalizeRequest(ctx, requestID, yesCount, noCount, now); err != nil {
		if errors.Is(err, store.ErrAlreadyFinalized) {
			d.metrics.IncIntegrityFailure("replay")
			return fmt.Errorf("%w: %s", ErrReplayDetected, requestID)
		}
		return err
	}

	d.metrics.IncDecryptionsCompleted()
	emit(ctx, d.events, d.logger, store.EventRecord{
		Kind:      EventDecryptionCompleted,
		BatchID:   req.BatchID,
		RequestID: requestID,
		Payload:   fmt.Sprintf(`{"yes":%d,"no":%d}`, yesCount, noCount),
	})
	if d.logger != nil {
		d.logger.Info("decryption finalized",
			"request_id", requestID, "batch_id", req.BatchID,
			"yes", yesCount, "no", noCount)
	}
	return nil
}

// Request exposes a decryption request's current state, including decoded
// counts once finalized.
func (d *DecryptionBridge) Request(ctx context.Context, requestID string) (store.RequestRecord, error) {
	req, err := d.ledger.Request(ctx, requestID)
	if errors.Is(err, store.ErrRequestNotFound) {
		return store.RequestRecord{}, ErrRequestNotFound
	}
	return req, err
}
