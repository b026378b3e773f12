package service_test

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cipherpoll/server/internal/cipherpoll/fhe/plain"
	"github.com/cipherpoll/server/internal/cipherpoll/oracle"
	"github.com/cipherpoll/server/internal/cipherpoll/service"
	"github.com/cipherpoll/server/internal/cipherpoll/store/memory"
)

const (
	testAdmin    = "admin"
	testProvider = "clinic-a"
	testLedgerID = "cipherpoll:test"
)

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is a settable time source for cooldown tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// captureDecryptor records submitted ciphertexts and hands out sequential
// request ids, so tests drive the callback leg themselves.
type captureDecryptor struct {
	mu    sync.Mutex
	n     int
	calls [][][]byte
	err   error
}

func (d *captureDecryptor) RequestDecryption(_ context.Context, ciphertexts [][]byte) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return "", d.err
	}
	d.n++
	d.calls = append(d.calls, ciphertexts)
	return fmt.Sprintf("req-%d", d.n), nil
}

func (d *captureDecryptor) last() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.calls) == 0 {
		return nil
	}
	return d.calls[len(d.calls)-1]
}

// testEnv wires the full service stack over memory stores and the plain
// scheme backend.
type testEnv struct {
	ledger  *memory.Ledger
	events  *memory.EventStore
	clock   *fakeClock
	backend *plain.Backend

	guard   *service.AccessGuard
	batches *service.BatchLedger
	tally   *service.EncryptedTally
	bridge  *service.DecryptionBridge

	decryptor *captureDecryptor
	oraclePub ed25519.PublicKey
	oracleKey ed25519.PrivateKey
}

func newTestEnv(cooldown time.Duration) *testEnv {
	ledger := memory.NewLedger(cooldown)
	events := memory.NewEventStore()
	clock := newFakeClock()
	backend := plain.New([]byte("test-secret"))
	logger := silentLogger()

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		panic(err)
	}

	guard := service.NewAccessGuard(testAdmin, ledger, events, logger, service.WithClock(clock.Now))
	decryptor := &captureDecryptor{}

	env := &testEnv{
		ledger:    ledger,
		events:    events,
		clock:     clock,
		backend:   backend,
		guard:     guard,
		batches:   service.NewBatchLedger(ledger, guard, events, logger),
		tally:     service.NewEncryptedTally(ledger, guard, backend, events, nil, logger),
		bridge:    service.NewDecryptionBridge(ledger, guard, decryptor, oracle.NewEd25519Verifier(pub), testLedgerID, events, nil, logger),
		decryptor: decryptor,
		oraclePub: pub,
		oracleKey: priv,
	}

	if err := ledger.AddProvider(context.Background(), testProvider, clock.Now()); err != nil {
		panic(err)
	}
	return env
}

// encrypt produces a client submission ciphertext in serialized form.
func (e *testEnv) encrypt(v uint32) []byte {
	ct, err := e.backend.Encrypt(v)
	if err != nil {
		panic(err)
	}
	raw, err := e.backend.Serialize(ct)
	if err != nil {
		panic(err)
	}
	return raw
}

// signedResult builds a valid callback (cleartext, proof) pair for a request.
func (e *testEnv) signedResult(requestID string, yes, no uint32) ([]byte, []byte) {
	cleartext := []byte{
		byte(yes >> 24), byte(yes >> 16), byte(yes >> 8), byte(yes),
		byte(no >> 24), byte(no >> 16), byte(no >> 8), byte(no),
	}
	return cleartext, oracle.SignResult(e.oracleKey, requestID, cleartext)
}
