package oracle

import (
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cipherpoll/server/internal/cipherpoll/fhe/plain"
)

// CallbackFunc delivers a decryption result back into the ledger. In-process
// wiring points it at the bridge's callback operation; a networked oracle
// would POST the same triple to the callback endpoint instead.
type CallbackFunc func(ctx context.Context, requestID string, cleartext, proof []byte) error

// Simulator is a local stand-in oracle. It decrypts with the plain backend's
// secret, signs results with its ed25519 key, and delivers each callback
// asynchronously on its own goroutine, preserving the protocol's real
// shape: request and callback are separate invocations with no latency bound.
type Simulator struct {
	backend  *plain.Backend
	priv     ed25519.PrivateKey
	callback CallbackFunc
	delay    time.Duration
	logger   *slog.Logger

	jobs chan simJob
	done chan struct{}
}

type simJob struct {
	requestID   string
	ciphertexts [][]byte
}

func NewSimulator(backend *plain.Backend, priv ed25519.PrivateKey, cb CallbackFunc, delay time.Duration, logger *slog.Logger) *Simulator {
	s := &Simulator{
		backend:  backend,
		priv:     priv,
		callback: cb,
		delay:    delay,
		logger:   logger,
		jobs:     make(chan simJob, 64),
		done:     make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *Simulator) Close() {
	close(s.jobs)
	<-s.done
}

func (s *Simulator) RequestDecryption(ctx context.Context, ciphertexts [][]byte) (string, error) {
	if len(ciphertexts) != 2 {
		return "", fmt.Errorf("expected 2 ciphertexts, got %d", len(ciphertexts))
	}

	// Validate up front so a malformed job fails the requester, not the
	// asynchronous leg.
	for i, raw := range ciphertexts {
		if _, err := s.backend.Deserialize(raw); err != nil {
			return "", fmt.Errorf("ciphertext %d: %w", i, err)
		}
	}

	requestID := uuid.NewString()

	job := simJob{requestID: requestID, ciphertexts: ciphertexts}
	select {
	case s.jobs <- job:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	return requestID, nil
}

func (s *Simulator) loop() {
	defer close(s.done)

	for j := range s.jobs {
		if s.delay > 0 {
			time.Sleep(s.delay)
		}
		s.deliver(j)
	}
}

func (s *Simulator) deliver(j simJob) {
	cleartext := make([]byte, 8)
	for i, raw := range j.ciphertexts {
		ct, err := s.backend.Deserialize(raw)
		if err != nil {
			s.logger.Error("sim oracle: undecodable ciphertext", "request_id", j.requestID, "error", err)
			return
		}
		v, err := s.backend.Decrypt(ct)
		if err != nil {
			s.logger.Error("sim oracle: decrypt failed", "request_id", j.requestID, "error", err)
			return
		}
		binary.BigEndian.PutUint32(cleartext[i*4:], v)
	}

	proof := SignResult(s.priv, j.requestID, cleartext)

	if err := s.callback(context.Background(), j.requestID, cleartext, proof); err != nil {
		s.logger.Error("sim oracle: callback rejected", "request_id", j.requestID, "error", err)
		return
	}
	s.logger.Info("sim oracle: delivered result", "request_id", j.requestID)
}
