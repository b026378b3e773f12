package types

// BatchOpenRequest and friends carry the caller principal explicitly; the
// server has no session layer.
type BatchOpenRequest struct {
	Principal string `json:"principal"`
}

type BatchOpenResponse struct {
	BatchID uint64 `json:"batch_id"`
}

type BatchCloseRequest struct {
	Principal string `json:"principal"`
	BatchID   uint64 `json:"batch_id"`
}

type BatchStatusResponse struct {
	BatchID         uint64 `json:"batch_id"`
	Open            bool   `json:"open"`
	SubmissionCount uint64 `json:"submission_count"`
	OpenedAt        string `json:"opened_at"`
	ClosedAt        string `json:"closed_at,omitempty"`
}

// SubmissionRequest carries one encrypted value, base64 of the scheme's
// serialized ciphertext.
type SubmissionRequest struct {
	Principal  string `json:"principal"`
	BatchID    uint64 `json:"batch_id"`
	Ciphertext string `json:"ciphertext"`
}

type DecryptionRequest struct {
	Principal string `json:"principal"`
	BatchID   uint64 `json:"batch_id"`
}

type DecryptionResponse struct {
	RequestID string `json:"request_id"`
}

// DecryptionCallback is the oracle's phase-two payload. Cleartext is base64
// of exactly 8 bytes (uint32 BE yes count, uint32 BE no count); proof is
// base64 of the oracle's signature over the result.
type DecryptionCallback struct {
	RequestID string `json:"request_id"`
	Cleartext string `json:"cleartext"`
	Proof     string `json:"proof"`
}

type DecryptionStatusResponse struct {
	RequestID   string  `json:"request_id"`
	BatchID     uint64  `json:"batch_id"`
	Finalized   bool    `json:"finalized"`
	YesCount    *uint32 `json:"yes_count,omitempty"`
	NoCount     *uint32 `json:"no_count,omitempty"`
	RequestedAt string  `json:"requested_at"`
	FinalizedAt string  `json:"finalized_at,omitempty"`
}

type HealthResponse struct {
	OK         bool   `json:"ok"`
	ServerTime string `json:"server_time"`
}
