// Package plain is a masked-plaintext stand-in for a real homomorphic
// backend. Values are XOR-masked and authenticated with HMAC-SHA256 under a
// backend secret, so ciphertext bytes are opaque and tamper-evident to
// everything that does not hold the secret, but this is NOT encryption
// suitable for adversarial deployments. It exists so the protocol, stores,
// oracle round-trip, and tests run without linking an FHE library.
package plain

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/cipherpoll/server/internal/cipherpoll/fhe"
)

const (
	nonceLen = 8
	valueLen = 4
	tagLen   = 8

	// nonce ∥ masked value ∥ tag
	ciphertextLen = nonceLen + valueLen + tagLen
)

type Backend struct {
	secret []byte
}

func New(secret []byte) *Backend {
	// Stretch whatever the caller provides into a fixed-size key.
	sum := sha256.Sum256(secret)
	return &Backend{secret: sum[:]}
}

type ciphertext struct {
	fhe.Handle

	value uint32
	raw   []byte // canonical serialized form, fixed at construction
}

var (
	_ fhe.Scheme     = (*Backend)(nil)
	_ fhe.Ciphertext = (*ciphertext)(nil)
)

func (b *Backend) seal(v uint32) (*ciphertext, error) {
	raw := make([]byte, ciphertextLen)
	if _, err := rand.Read(raw[:nonceLen]); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}

	mask := b.keystream(raw[:nonceLen])
	binary.BigEndian.PutUint32(raw[nonceLen:nonceLen+valueLen], v^mask)

	tag := b.tag(raw[:nonceLen+valueLen])
	copy(raw[nonceLen+valueLen:], tag)

	return &ciphertext{value: v, raw: raw}, nil
}

func (b *Backend) Zero() (fhe.Ciphertext, error)             { return b.seal(0) }
func (b *Backend) Constant(v uint32) (fhe.Ciphertext, error) { return b.seal(v) }

// Encrypt is the client-side entry point used by dev tooling and tests to
// produce submission ciphertexts. It is identical to Constant but named for
// intent.
func (b *Backend) Encrypt(v uint32) (fhe.Ciphertext, error) { return b.seal(v) }

func (b *Backend) Add(a, c fhe.Ciphertext) (fhe.Ciphertext, error) {
	x, err := b.own(a)
	if err != nil {
		return nil, err
	}
	y, err := b.own(c)
	if err != nil {
		return nil, err
	}
	return b.seal(x.value + y.value)
}

func (b *Backend) CompareAtLeast(v fhe.Ciphertext, threshold uint32) (fhe.Ciphertext, error) {
	x, err := b.own(v)
	if err != nil {
		return nil, err
	}
	if x.value >= threshold {
		return b.seal(1)
	}
	return b.seal(0)
}

func (b *Backend) Select(cond, a, c fhe.Ciphertext) (fhe.Ciphertext, error) {
	k, err := b.own(cond)
	if err != nil {
		return nil, err
	}
	x, err := b.own(a)
	if err != nil {
		return nil, err
	}
	y, err := b.own(c)
	if err != nil {
		return nil, err
	}
	if k.value != 0 {
		return b.seal(x.value)
	}
	return b.seal(y.value)
}

func (b *Backend) Serialize(v fhe.Ciphertext) ([]byte, error) {
	x, err := b.own(v)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(x.raw))
	copy(out, x.raw)
	return out, nil
}

func (b *Backend) Deserialize(raw []byte) (fhe.Ciphertext, error) {
	if len(raw) != ciphertextLen {
		return nil, fmt.Errorf("%w: length %d", fhe.ErrInvalidCiphertext, len(raw))
	}
	if !hmac.Equal(b.tag(raw[:nonceLen+valueLen]), raw[nonceLen+valueLen:]) {
		return nil, fmt.Errorf("%w: bad tag", fhe.ErrInvalidCiphertext)
	}

	mask := b.keystream(raw[:nonceLen])
	v := binary.BigEndian.Uint32(raw[nonceLen:nonceLen+valueLen]) ^ mask

	cp := make([]byte, len(raw))
	copy(cp, raw)
	return &ciphertext{value: v, raw: cp}, nil
}

// Decrypt exposes the plaintext and is deliberately NOT part of fhe.Scheme.
// Only the simulator oracle, holding the backend, calls it.
func (b *Backend) Decrypt(v fhe.Ciphertext) (uint32, error) {
	x, err := b.own(v)
	if err != nil {
		return 0, err
	}
	return x.value, nil
}

func (b *Backend) own(v fhe.Ciphertext) (*ciphertext, error) {
	x, ok := v.(*ciphertext)
	if !ok || x == nil {
		return nil, fhe.ErrInvalidCiphertext
	}
	return x, nil
}

func (b *Backend) keystream(nonce []byte) uint32 {
	mac := hmac.New(sha256.New, b.secret)
	mac.Write([]byte("mask"))
	mac.Write(nonce)
	return binary.BigEndian.Uint32(mac.Sum(nil)[:valueLen])
}

func (b *Backend) tag(prefix []byte) []byte {
	mac := hmac.New(sha256.New, b.secret)
	mac.Write([]byte("tag"))
	mac.Write(prefix)
	return mac.Sum(nil)[:tagLen]
}
