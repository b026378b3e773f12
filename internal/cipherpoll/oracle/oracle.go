// Package oracle models the external decryption service the bridge talks to.
// Phase 1 hands serialized ciphertexts to a Decryptor and receives an
// oracle-assigned request id; phase 2 arrives later as an independent
// callback whose authenticity is checked by a Verifier. The oracle is
// untrusted until its proof verifies.
package oracle

import (
	"context"
	"crypto/ed25519"
	"errors"
)

var ErrBadProof = errors.New("proof verification failed")

// Decryptor submits a decryption job. The returned request id is assigned by
// the oracle and is the correlation key for the eventual callback.
type Decryptor interface {
	RequestDecryption(ctx context.Context, ciphertexts [][]byte) (requestID string, err error)
}

// Verifier authenticates a callback payload against its request id.
type Verifier interface {
	Verify(requestID string, cleartext, proof []byte) error
}

// resultMessage is the canonical byte string a proof signs. Binding the
// request id into the message stops a valid proof for one request being
// presented for another.
func resultMessage(requestID string, cleartext []byte) []byte {
	msg := make([]byte, 0, len(requestID)+len(cleartext)+32)
	msg = append(msg, "cipherpoll.decryption.v1\x00"...)
	msg = append(msg, requestID...)
	msg = append(msg, 0)
	msg = append(msg, cleartext...)
	return msg
}

// SignResult produces a proof for a decryption result. Used by the simulator
// oracle and by tests; a production oracle implements the same construction
// on its side.
func SignResult(priv ed25519.PrivateKey, requestID string, cleartext []byte) []byte {
	return ed25519.Sign(priv, resultMessage(requestID, cleartext))
}

// Ed25519Verifier checks callback proofs against the oracle's public key.
type Ed25519Verifier struct {
	pub ed25519.PublicKey
}

func NewEd25519Verifier(pub ed25519.PublicKey) *Ed25519Verifier {
	return &Ed25519Verifier{pub: pub}
}

func (v *Ed25519Verifier) Verify(requestID string, cleartext, proof []byte) error {
	if len(v.pub) != ed25519.PublicKeySize || len(proof) != ed25519.SignatureSize {
		return ErrBadProof
	}
	if !ed25519.Verify(v.pub, resultMessage(requestID, cleartext), proof) {
		return ErrBadProof
	}
	return nil
}
