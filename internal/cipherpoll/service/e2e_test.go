package service_test

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cipherpoll/server/internal/cipherpoll/fhe/plain"
	"github.com/cipherpoll/server/internal/cipherpoll/oracle"
	"github.com/cipherpoll/server/internal/cipherpoll/service"
	"github.com/cipherpoll/server/internal/cipherpoll/store/memory"
)

// TestEndToEndWithSimulatorOracle runs the whole protocol through the real
// asynchronous oracle: open, submit, close, request, then wait for the
// simulator's signed callback to finalize the counts.
func TestEndToEndWithSimulatorOracle(t *testing.T) {
	ctx := context.Background()
	logger := silentLogger()

	ledger := memory.NewLedger(0)
	events := memory.NewEventStore()
	backend := plain.New([]byte("e2e-secret"))

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	guard := service.NewAccessGuard(testAdmin, ledger, events, logger)
	batches := service.NewBatchLedger(ledger, guard, events, logger)
	tally := service.NewEncryptedTally(ledger, guard, backend, events, nil, logger)

	var bridge *service.DecryptionBridge
	cb := func(ctx context.Context, requestID string, cleartext, proof []byte) error {
		return bridge.OnDecryptionResult(ctx, requestID, cleartext, proof)
	}
	sim := oracle.NewSimulator(backend, priv, cb, 0, logger)
	defer sim.Close()

	bridge = service.NewDecryptionBridge(ledger, guard, sim, oracle.NewEd25519Verifier(pub), testLedgerID, events, nil, logger)

	require.NoError(t, ledger.AddProvider(ctx, testProvider, time.Now().UTC()))

	id, err := batches.Open(ctx, testAdmin)
	require.NoError(t, err)

	submit := func(v uint32) {
		ct, err := backend.Encrypt(v)
		require.NoError(t, err)
		raw, err := backend.Serialize(ct)
		require.NoError(t, err)
		require.NoError(t, tally.RecordSubmission(ctx, testProvider, id, raw))
	}
	submit(1)
	submit(1)
	submit(0)

	require.NoError(t, batches.Close(ctx, testAdmin, id))

	requestID, err := bridge.RequestDecryption(ctx, testProvider, id)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		req, err := bridge.Request(ctx, requestID)
		return err == nil && req.Finalized
	}, 5*time.Second, 10*time.Millisecond, "callback never finalized the request")

	req, err := bridge.Request(ctx, requestID)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), req.YesCount)
	assert.Equal(t, uint32(1), req.NoCount)
}
