package service

import "errors"

// Protocol error taxonomy. Every guard failure aborts the whole operation
// with no partial state change; handlers map these to HTTP statuses with
// errors.Is.
var (
	// Access
	ErrAccessDenied = errors.New("caller lacks the required role")

	// Lifecycle
	ErrPaused         = errors.New("ledger is paused")
	ErrCooldownActive = errors.New("cooldown has not elapsed")
	ErrBatchNotFound  = errors.New("batch does not exist")
	ErrBatchNotOpen   = errors.New("batch is not open")
	ErrBatchStillOpen = errors.New("batch is still open")

	// Validation
	ErrInvalidInput = errors.New("invalid input")

	// Integrity. Never downgraded to success.
	ErrReplayDetected   = errors.New("decryption request already finalized")
	ErrStateMismatch    = errors.New("encrypted state drifted since request")
	ErrDecryptionFailed = errors.New("decryption result failed verification")
	ErrRequestExists    = errors.New("request id collision")

	ErrRequestNotFound = errors.New("decryption request not found")

	// Deployment has no outbound oracle wired; callbacks still work.
	ErrOracleUnavailable = errors.New("no decryption oracle configured")
)
