package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cipherpoll/server/internal/cipherpoll/service"
)

func TestBatchOpenClose(t *testing.T) {
	env := newTestEnv(0)
	ctx := context.Background()

	first, err := env.batches.Open(ctx, testAdmin)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first)

	second, err := env.batches.Open(ctx, testAdmin)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second)

	rec, err := env.batches.Get(ctx, first)
	require.NoError(t, err)
	assert.True(t, rec.Open)
	assert.Zero(t, rec.SubmissionCount)
	assert.Nil(t, rec.YesCiphertext)

	require.NoError(t, env.batches.Close(ctx, testAdmin, first))

	rec, err = env.batches.Get(ctx, first)
	require.NoError(t, err)
	assert.False(t, rec.Open)
	require.NotNil(t, rec.ClosedAt)
}

func TestBatchCloseIsTerminal(t *testing.T) {
	env := newTestEnv(0)
	ctx := context.Background()

	id, err := env.batches.Open(ctx, testAdmin)
	require.NoError(t, err)
	require.NoError(t, env.batches.Close(ctx, testAdmin, id))

	assert.ErrorIs(t, env.batches.Close(ctx, testAdmin, id), service.ErrBatchNotOpen)
}

func TestBatchCloseUnknown(t *testing.T) {
	env := newTestEnv(0)

	err := env.batches.Close(context.Background(), testAdmin, 99)
	assert.ErrorIs(t, err, service.ErrBatchNotOpen)
}

func TestBatchOpsRequireAdmin(t *testing.T) {
	env := newTestEnv(0)
	ctx := context.Background()

	_, err := env.batches.Open(ctx, testProvider)
	assert.ErrorIs(t, err, service.ErrAccessDenied)

	id, err := env.batches.Open(ctx, testAdmin)
	require.NoError(t, err)
	assert.ErrorIs(t, env.batches.Close(ctx, testProvider, id), service.ErrAccessDenied)
}

func TestBatchOpenBlockedWhilePaused(t *testing.T) {
	env := newTestEnv(0)
	ctx := context.Background()

	require.NoError(t, env.guard.SetPaused(ctx, testAdmin, true))

	_, err := env.batches.Open(ctx, testAdmin)
	assert.ErrorIs(t, err, service.ErrPaused)
}

func TestBatchGetUnknown(t *testing.T) {
	env := newTestEnv(0)

	_, err := env.batches.Get(context.Background(), 42)
	assert.ErrorIs(t, err, service.ErrBatchNotFound)
}
