package store

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by store implementations. Services translate them
// into the protocol error taxonomy; keeping them here lets both backends
// signal the same conditions.
var (
	ErrBatchNotFound    = errors.New("batch not found")
	ErrBatchNotOpen     = errors.New("batch not open")
	ErrRequestNotFound  = errors.New("decryption request not found")
	ErrRequestExists    = errors.New("decryption request already exists")
	ErrAlreadyFinalized = errors.New("decryption request already finalized")
	ErrNoChange         = errors.New("requested state equals current state")
)

// ConfigRecord is the mutable global configuration (the administrator
// principal is process configuration, not store state).
type ConfigRecord struct {
	Paused   bool
	Cooldown time.Duration
}

type BatchRecord struct {
	ID              uint64
	Open            bool
	SubmissionCount uint64

	// Serialized homomorphic counters; both nil until the first submission,
	// then both set, never reset.
	YesCiphertext []byte
	NoCiphertext  []byte

	OpenedAt time.Time
	ClosedAt *time.Time
}

type RequestRecord struct {
	RequestID       string
	BatchID         uint64
	StateCommitment []byte
	Finalized       bool

	// Populated on finalization only.
	YesCount uint32
	NoCount  uint32

	RequestedAt time.Time
	FinalizedAt *time.Time
}

// TouchRecord carries a cooldown-timestamp update that must land atomically
// with the enclosing operation's writes, so a failed operation never burns
// the caller's cooldown.
type TouchRecord struct {
	Principal string
	Action    string
	At        time.Time
}

// LedgerStore is operation-grained: each mutating method is one atomic
// ledger transition. Implementations re-check transition invariants inside
// their own transaction (batch still open, request not yet finalized) so the
// guarantees hold even if callers interleave between check and write.
type LedgerStore interface {
	Config(ctx context.Context) (ConfigRecord, error)
	// SetPaused and SetCooldown reject a no-op write with ErrNoChange.
	SetPaused(ctx context.Context, paused bool, at time.Time) error
	SetCooldown(ctx context.Context, cooldown time.Duration, at time.Time) error

	IsProvider(ctx context.Context, principal string) (bool, error)
	// AddProvider/RemoveProvider reject membership no-ops with ErrNoChange.
	AddProvider(ctx context.Context, principal string, at time.Time) error
	RemoveProvider(ctx context.Context, principal string) error

	// LastAction returns the zero time if the principal has never performed
	// the action.
	LastAction(ctx context.Context, principal, action string) (time.Time, error)

	// CreateBatch allocates the next dense batch id, starting at 1.
	CreateBatch(ctx context.Context, at time.Time) (uint64, error)
	Batch(ctx context.Context, id uint64) (BatchRecord, error)
	// CloseBatch fails with ErrBatchNotOpen on unopened or already-closed
	// batches; closing is never a silent no-op.
	CloseBatch(ctx context.Context, id uint64, at time.Time) error

	// ApplySubmission stores the new counter pair, increments the submission
	// count, and applies the cooldown touch in one transaction. Fails with
	// ErrBatchNotOpen if the batch closed since the caller's checks.
	ApplySubmission(ctx context.Context, batchID uint64, yes, no []byte, touch TouchRecord) error

	// CreateRequest fails with ErrRequestExists on a request-id collision.
	CreateRequest(ctx context.Context, rec RequestRecord, touch TouchRecord) error
	Request(ctx context.Context, requestID string) (RequestRecord, error)
	// FinalizeRequest flips finalized false→true exactly once, recording the
	// decoded counts; a second call fails with ErrAlreadyFinalized.
	FinalizeRequest(ctx context.Context, requestID string, yesCount, noCount uint32, at time.Time) error
}

// EventRecord is one entry in the append-only audit log. Payload carries
// only opaque material (hex/base64 of serialized ciphertexts, counts after
// finalization), never plaintext ballot values.
type EventRecord struct {
	Kind       string
	Principal  string
	BatchID    uint64 // 0 = not batch-scoped
	RequestID  string
	Payload    string
	OccurredAt time.Time
}

type EventStore interface {
	Append(ctx context.Context, rec EventRecord) error
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
