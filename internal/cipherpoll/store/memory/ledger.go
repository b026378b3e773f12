package memory

import (
	"context"
	"sync"
	"time"

	"github.com/cipherpoll/server/internal/cipherpoll/store"
)

type actionKey struct {
	principal string
	action    string
}

// Ledger is the in-memory LedgerStore used by tests and dev environments.
// A single mutex serializes every operation, mirroring the one-writer
// transaction model of the sqlite store.
type Ledger struct {
	mu sync.Mutex

	paused   bool
	cooldown time.Duration

	providers map[string]time.Time
	actions   map[actionKey]time.Time

	batches  []*store.BatchRecord // index i holds batch id i+1
	requests map[string]*store.RequestRecord
}

func NewLedger(cooldown time.Duration) *Ledger {
	return &Ledger{
		cooldown:  cooldown,
		providers: make(map[string]time.Time),
		actions:   make(map[actionKey]time.Time),
		requests:  make(map[string]*store.RequestRecord),
	}
}

func (l *Ledger) Config(_ context.Context) (store.ConfigRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return store.ConfigRecord{Paused: l.paused, Cooldown: l.cooldown}, nil
}

func (l *Ledger) SetPaused(_ context.Context, paused bool, _ time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.paused == paused {
		return store.ErrNoChange
	}
	l.paused = paused
	return nil
}

func (l *Ledger) SetCooldown(_ context.Context, cooldown time.Duration, _ time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cooldown == cooldown {
		return store.ErrNoChange
	}
	l.cooldown = cooldown
	return nil
}

func (l *Ledger) IsProvider(_ context.Context, principal string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.providers[principal]
	return ok, nil
}

func (l *Ledger) AddProvider(_ context.Context, principal string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.providers[principal]; ok {
		return store.ErrNoChange
	}
	l.providers[principal] = at
	return nil
}

func (l *Ledger) RemoveProvider(_ context.Context, principal string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.providers[principal]; !ok {
		return store.ErrNoChange
	}
	delete(l.providers, principal)
	return nil
}

func (l *Ledger) LastAction(_ context.Context, principal, action string) (time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.actions[actionKey{principal, action}], nil
}

func (l *Ledger) CreateBatch(_ context.Context, at time.Time) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := uint64(len(l.batches)) + 1
	l.batches = append(l.batches, &store.BatchRecord{
		ID:       id,
		Open:     true,
		OpenedAt: at,
	})
	return id, nil
}

func (l *Ledger) Batch(_ context.Context, id uint64) (store.BatchRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, err := l.batch(id)
	if err != nil {
		return store.BatchRecord{}, err
	}
	return cloneBatch(b), nil
}

func (l *Ledger) CloseBatch(_ context.Context, id uint64, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, err := l.batch(id)
	if err != nil {
		return err
	}
	if !b.Open {
		return store.ErrBatchNotOpen
	}
	b.Open = false
	t := at
	b.ClosedAt = &t
	return nil
}

func (l *Ledger) ApplySubmission(_ context.Context, batchID uint64, yes, no []byte, touch store.TouchRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, err := l.batch(batchID)
	if err != nil {
		return err
	}
	if !b.Open {
		return store.ErrBatchNotOpen
	}
	b.YesCiphertext = cloneBytes(yes)
	b.NoCiphertext = cloneBytes(no)
	b.SubmissionCount++
	l.touch(touch)
	return nil
}

func (l *Ledger) CreateRequest(_ context.Context, rec store.RequestRecord, touch store.TouchRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.requests[rec.RequestID]; ok {
		return store.ErrRequestExists
	}
	cp := rec
	cp.StateCommitment = cloneBytes(rec.StateCommitment)
	l.requests[rec.RequestID] = &cp
	l.touch(touch)
	return nil
}

func (l *Ledger) Request(_ context.Context, requestID string) (store.RequestRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.requests[requestID]
	if !ok {
		return store.RequestRecord{}, store.ErrRequestNotFound
	}
	cp := *r
	cp.StateCommitment = cloneBytes(r.StateCommitment)
	return cp, nil
}

func (l *Ledger) FinalizeRequest(_ context.Context, requestID string, yesCount, noCount uint32, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.requests[requestID]
	if !ok {
		return store.ErrRequestNotFound
	}
	if r.Finalized {
		return store.ErrAlreadyFinalized
	}
	r.Finalized = true
	r.YesCount = yesCount
	r.NoCount = noCount
	t := at
	r.FinalizedAt = &t
	return nil
}

// SetCounters overwrites a batch's stored ciphertexts without any lifecycle
// checks. Test-only helper for exercising the state-drift guard.
func (l *Ledger) SetCounters(id uint64, yes, no []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, err := l.batch(id); err == nil {
		b.YesCiphertext = cloneBytes(yes)
		b.NoCiphertext = cloneBytes(no)
	}
}

func (l *Ledger) batch(id uint64) (*store.BatchRecord, error) {
	if id == 0 || id > uint64(len(l.batches)) {
		return nil, store.ErrBatchNotFound
	}
	return l.batches[id-1], nil
}

func (l *Ledger) touch(t store.TouchRecord) {
	if t.Principal == "" {
		return
	}
	l.actions[actionKey{t.Principal, t.Action}] = t.At
}

func cloneBatch(b *store.BatchRecord) store.BatchRecord {
	cp := *b
	cp.YesCiphertext = cloneBytes(b.YesCiphertext)
	cp.NoCiphertext = cloneBytes(b.NoCiphertext)
	return cp
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
