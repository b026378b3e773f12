package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cipherpoll/server/internal/cipherpoll/store"
	"github.com/cipherpoll/server/internal/cipherpoll/store/sqlite"
)

func newLedger(t *testing.T) *sqlite.Ledger {
	t.Helper()
	conn := openTestDB(t)
	return sqlite.NewLedger(conn, newTestWriter(t, conn))
}

func TestConfigDefaultsAndUpdates(t *testing.T) {
	s := newLedger(t)
	ctx := context.Background()
	now := time.Now().UTC()

	cfg, err := s.Config(ctx)
	require.NoError(t, err)
	assert.False(t, cfg.Paused)
	assert.Zero(t, cfg.Cooldown)

	require.NoError(t, s.SetPaused(ctx, true, now))
	assert.ErrorIs(t, s.SetPaused(ctx, true, now), store.ErrNoChange)

	require.NoError(t, s.SetCooldown(ctx, 30*time.Second, now))
	assert.ErrorIs(t, s.SetCooldown(ctx, 30*time.Second, now), store.ErrNoChange)

	cfg, err = s.Config(ctx)
	require.NoError(t, err)
	assert.True(t, cfg.Paused)
	assert.Equal(t, 30*time.Second, cfg.Cooldown)
}

func TestProviderMembership(t *testing.T) {
	s := newLedger(t)
	ctx := context.Background()
	now := time.Now().UTC()

	ok, err := s.IsProvider(ctx, "clinic-a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.AddProvider(ctx, "clinic-a", now))
	assert.ErrorIs(t, s.AddProvider(ctx, "clinic-a", now), store.ErrNoChange)

	ok, err = s.IsProvider(ctx, "clinic-a")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.RemoveProvider(ctx, "clinic-a"))
	assert.ErrorIs(t, s.RemoveProvider(ctx, "clinic-a"), store.ErrNoChange)
}

func TestBatchLifecycle(t *testing.T) {
	s := newLedger(t)
	ctx := context.Background()
	now := time.Now().UTC()

	id, err := s.CreateBatch(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)

	second, err := s.CreateBatch(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second)

	rec, err := s.Batch(ctx, id)
	require.NoError(t, err)
	assert.True(t, rec.Open)
	assert.Zero(t, rec.SubmissionCount)
	assert.Nil(t, rec.YesCiphertext)
	assert.Nil(t, rec.ClosedAt)

	require.NoError(t, s.CloseBatch(ctx, id, now))
	assert.ErrorIs(t, s.CloseBatch(ctx, id, now), store.ErrBatchNotOpen)
	assert.ErrorIs(t, s.CloseBatch(ctx, 99, now), store.ErrBatchNotFound)

	rec, err = s.Batch(ctx, id)
	require.NoError(t, err)
	assert.False(t, rec.Open)
	require.NotNil(t, rec.ClosedAt)

	_, err = s.Batch(ctx, 99)
	assert.ErrorIs(t, err, store.ErrBatchNotFound)
}

func TestApplySubmission(t *testing.T) {
	s := newLedger(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	id, err := s.CreateBatch(ctx, now)
	require.NoError(t, err)

	touch := store.TouchRecord{Principal: "clinic-a", Action: "submit", At: now}
	require.NoError(t, s.ApplySubmission(ctx, id, []byte("yes-1"), []byte("no-1"), touch))

	rec, err := s.Batch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rec.SubmissionCount)
	assert.Equal(t, []byte("yes-1"), rec.YesCiphertext)
	assert.Equal(t, []byte("no-1"), rec.NoCiphertext)

	// The cooldown touch landed in the same transaction.
	last, err := s.LastAction(ctx, "clinic-a", "submit")
	require.NoError(t, err)
	assert.Equal(t, now, last)

	require.NoError(t, s.CloseBatch(ctx, id, now))
	err = s.ApplySubmission(ctx, id, []byte("yes-2"), []byte("no-2"), touch)
	assert.ErrorIs(t, err, store.ErrBatchNotOpen)

	// Counters did not move.
	rec, err = s.Batch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("yes-1"), rec.YesCiphertext)

	err = s.ApplySubmission(ctx, 99, []byte("y"), []byte("n"), touch)
	assert.ErrorIs(t, err, store.ErrBatchNotFound)
}

func TestLastActionZeroWhenNever(t *testing.T) {
	s := newLedger(t)

	last, err := s.LastAction(context.Background(), "nobody", "submit")
	require.NoError(t, err)
	assert.True(t, last.IsZero())
}

func TestDecryptionRequestLifecycle(t *testing.T) {
	s := newLedger(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	id, err := s.CreateBatch(ctx, now)
	require.NoError(t, err)

	rec := store.RequestRecord{
		RequestID:       "req-1",
		BatchID:         id,
		StateCommitment: []byte("commitment"),
		RequestedAt:     now,
	}
	touch := store.TouchRecord{Principal: "clinic-a", Action: "request_decryption", At: now}

	require.NoError(t, s.CreateRequest(ctx, rec, touch))
	assert.ErrorIs(t, s.CreateRequest(ctx, rec, touch), store.ErrRequestExists)

	got, err := s.Request(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, id, got.BatchID)
	assert.Equal(t, []byte("commitment"), got.StateCommitment)
	assert.False(t, got.Finalized)
	assert.Nil(t, got.FinalizedAt)

	_, err = s.Request(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrRequestNotFound)

	require.NoError(t, s.FinalizeRequest(ctx, "req-1", 2, 1, now))
	assert.ErrorIs(t, s.FinalizeRequest(ctx, "req-1", 9, 9, now), store.ErrAlreadyFinalized)
	assert.ErrorIs(t, s.FinalizeRequest(ctx, "missing", 0, 0, now), store.ErrRequestNotFound)

	got, err = s.Request(ctx, "req-1")
	require.NoError(t, err)
	assert.True(t, got.Finalized)
	assert.Equal(t, uint32(2), got.YesCount)
	assert.Equal(t, uint32(1), got.NoCount)
	require.NotNil(t, got.FinalizedAt)
	assert.Equal(t, now, *got.FinalizedAt)
}
