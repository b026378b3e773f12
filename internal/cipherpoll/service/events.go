package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/cipherpoll/server/internal/cipherpoll/store"
)

// Audit event kinds, one per boundary operation.
const (
	EventProviderAdded       = "ProviderAdded"
	EventProviderRemoved     = "ProviderRemoved"
	EventPausedSet           = "PausedSet"
	EventCooldownSet         = "CooldownSet"
	EventBatchOpened         = "BatchOpened"
	EventBatchClosed         = "BatchClosed"
	EventSubmissionRecorded  = "SubmissionRecorded"
	EventDecryptionRequested = "DecryptionRequested"
	EventDecryptionCompleted = "DecryptionCompleted"
)

// emit appends an audit event. Errors are intentionally not returned to the
// caller: a failed audit write should not undo an operation that already
// committed. Payloads carry only opaque serialized material, never
// plaintext ballot values.
func emit(ctx context.Context, events store.EventStore, logger *slog.Logger, rec store.EventRecord) {
	if events == nil {
		return
	}
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = time.Now().UTC()
	}
	if err := events.Append(ctx, rec); err != nil && logger != nil {
		logger.Warn("audit event append failed", "kind", rec.Kind, "error", err)
	}
}
