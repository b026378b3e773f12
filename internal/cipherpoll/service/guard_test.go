package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cipherpoll/server/internal/cipherpoll/service"
)

func TestRequireAdmin(t *testing.T) {
	env := newTestEnv(0)

	assert.NoError(t, env.guard.RequireAdmin(testAdmin))
	assert.ErrorIs(t, env.guard.RequireAdmin(testProvider), service.ErrAccessDenied)
	assert.ErrorIs(t, env.guard.RequireAdmin(""), service.ErrAccessDenied)
}

func TestRequireProvider(t *testing.T) {
	env := newTestEnv(0)
	ctx := context.Background()

	assert.NoError(t, env.guard.RequireProvider(ctx, testProvider))
	assert.ErrorIs(t, env.guard.RequireProvider(ctx, "stranger"), service.ErrAccessDenied)
	// The administrator does not implicitly hold the provider role.
	assert.ErrorIs(t, env.guard.RequireProvider(ctx, testAdmin), service.ErrAccessDenied)
}

func TestAddRemoveProvider(t *testing.T) {
	env := newTestEnv(0)
	ctx := context.Background()

	require.NoError(t, env.guard.AddProvider(ctx, testAdmin, "clinic-b"))
	assert.NoError(t, env.guard.RequireProvider(ctx, "clinic-b"))

	// Adding twice is an error, not a silent no-op.
	assert.ErrorIs(t, env.guard.AddProvider(ctx, testAdmin, "clinic-b"), service.ErrInvalidInput)

	require.NoError(t, env.guard.RemoveProvider(ctx, testAdmin, "clinic-b"))
	assert.ErrorIs(t, env.guard.RequireProvider(ctx, "clinic-b"), service.ErrAccessDenied)
	assert.ErrorIs(t, env.guard.RemoveProvider(ctx, testAdmin, "clinic-b"), service.ErrInvalidInput)
}

func TestProviderChangesRequireAdmin(t *testing.T) {
	env := newTestEnv(0)
	ctx := context.Background()

	assert.ErrorIs(t, env.guard.AddProvider(ctx, testProvider, "clinic-b"), service.ErrAccessDenied)
	assert.ErrorIs(t, env.guard.RemoveProvider(ctx, testProvider, testProvider), service.ErrAccessDenied)
	assert.ErrorIs(t, env.guard.AddProvider(ctx, testAdmin, "  "), service.ErrInvalidInput)
}

func TestSetPaused(t *testing.T) {
	env := newTestEnv(0)
	ctx := context.Background()

	require.NoError(t, env.guard.SetPaused(ctx, testAdmin, true))
	assert.ErrorIs(t, env.guard.RequireNotPaused(ctx), service.ErrPaused)

	// Writing the current value is rejected.
	assert.ErrorIs(t, env.guard.SetPaused(ctx, testAdmin, true), service.ErrInvalidInput)

	require.NoError(t, env.guard.SetPaused(ctx, testAdmin, false))
	assert.NoError(t, env.guard.RequireNotPaused(ctx))
}

func TestAdminActsWhilePaused(t *testing.T) {
	env := newTestEnv(0)
	ctx := context.Background()

	require.NoError(t, env.guard.SetPaused(ctx, testAdmin, true))

	// Admin checks ignore the pause flag; otherwise nobody could unpause.
	assert.NoError(t, env.guard.RequireAdmin(testAdmin))
	assert.NoError(t, env.guard.AddProvider(ctx, testAdmin, "clinic-b"))
	assert.NoError(t, env.guard.SetPaused(ctx, testAdmin, false))
}

func TestSetCooldown(t *testing.T) {
	env := newTestEnv(0)
	ctx := context.Background()

	require.NoError(t, env.guard.SetCooldown(ctx, testAdmin, 10*time.Second))
	assert.ErrorIs(t, env.guard.SetCooldown(ctx, testAdmin, 10*time.Second), service.ErrInvalidInput)
	assert.ErrorIs(t, env.guard.SetCooldown(ctx, testAdmin, -time.Second), service.ErrInvalidInput)
	assert.ErrorIs(t, env.guard.SetCooldown(ctx, testProvider, time.Second), service.ErrAccessDenied)
}

func TestCooldownElapsed(t *testing.T) {
	env := newTestEnv(10 * time.Second)
	ctx := context.Background()

	// No prior action: passes.
	_, err := env.guard.CooldownElapsed(ctx, testProvider, service.ActionSubmit)
	require.NoError(t, err)

	// Record an action at the current instant, then check again immediately.
	openAndSubmit(t, env, 1)

	_, err = env.guard.CooldownElapsed(ctx, testProvider, service.ActionSubmit)
	assert.ErrorIs(t, err, service.ErrCooldownActive)

	// Separate action kinds have separate cooldowns.
	_, err = env.guard.CooldownElapsed(ctx, testProvider, service.ActionRequestDecryption)
	assert.NoError(t, err)

	env.clock.Advance(10 * time.Second)
	_, err = env.guard.CooldownElapsed(ctx, testProvider, service.ActionSubmit)
	assert.NoError(t, err)
}

func TestCooldownZeroDisablesChecks(t *testing.T) {
	env := newTestEnv(0)
	ctx := context.Background()

	openAndSubmit(t, env, 1)

	// With cooldown 0 back-to-back actions are fine.
	_, err := env.guard.CooldownElapsed(ctx, testProvider, service.ActionSubmit)
	assert.NoError(t, err)
}

// openAndSubmit opens a batch and records one submission with value v.
func openAndSubmit(t *testing.T, env *testEnv, v uint32) uint64 {
	t.Helper()
	ctx := context.Background()

	id, err := env.batches.Open(ctx, testAdmin)
	require.NoError(t, err)
	require.NoError(t, env.tally.RecordSubmission(ctx, testProvider, id, env.encrypt(v)))
	return id
}
