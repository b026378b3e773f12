// Package fhe defines the homomorphic-arithmetic capability the tally
// protocol is written against. The protocol never inspects plaintext: it
// combines opaque ciphertext handles through a Scheme and ships their
// serialized forms to an external decryption oracle.
package fhe

import "errors"

var ErrInvalidCiphertext = errors.New("invalid ciphertext")

// Ciphertext is an opaque handle to an encrypted value. Handles are only
// meaningful to the Scheme that produced them. Backend handle types opt in
// by embedding Handle.
type Ciphertext interface {
	isCiphertext()
}

// Handle marks a backend's handle type as a Ciphertext. Embedding it is the
// only way to satisfy the interface from another package.
type Handle struct{}

func (Handle) isCiphertext() {}

// Scheme is the set of homomorphic operations the tally needs. Concrete
// backends (a real FHE library, or the masked plain backend used in dev and
// tests) are swapped without touching protocol logic.
type Scheme interface {
	// Zero returns a fresh encryption of 0.
	Zero() (Ciphertext, error)

	// Constant returns a fresh encryption of v.
	Constant(v uint32) (Ciphertext, error)

	// Add returns an encryption of a + b.
	Add(a, b Ciphertext) (Ciphertext, error)

	// CompareAtLeast returns an encrypted boolean: 1 if v >= threshold,
	// else 0.
	CompareAtLeast(v Ciphertext, threshold uint32) (Ciphertext, error)

	// Select returns a if the encrypted boolean cond is 1, else b.
	Select(cond, a, b Ciphertext) (Ciphertext, error)

	// Serialize returns the canonical byte form of a handle. Serializing the
	// same handle twice yields identical bytes; state commitments depend on
	// this.
	Serialize(v Ciphertext) ([]byte, error)

	// Deserialize reconstructs a handle from its serialized form, rejecting
	// bytes that are not a valid ciphertext with ErrInvalidCiphertext.
	Deserialize(raw []byte) (Ciphertext, error)
}
