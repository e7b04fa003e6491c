// Package ledger implements the tamper-evident append-only ledger core: the
// digest and signature primitives (C1), the MetaBlock algebra (C2), receipt
// verification (C3), and the endorser state machine (C4).
package ledger

import (
	"crypto/sha256"
	"errors"

	"github.com/fxamacker/cbor/v2"
)

// ErrIncorrectLength is returned whenever a digest, nonce, or serialized
// MetaBlock is reconstructed from a byte slice of the wrong length.
var ErrIncorrectLength = errors.New("ledger: incorrect byte length")

// DigestSize is the fixed width, in bytes, of every Digest.
const DigestSize = sha256.Size

// Digest is an opaque 32-byte SHA-256 value. The zero Digest denotes
// "none/genesis-prev".
type Digest [DigestSize]byte

// ZeroDigest is the all-zero digest used as the prev pointer of a genesis
// MetaBlock.
var ZeroDigest = Digest{}

// DigestBytes computes the SHA-256 digest of b.
func DigestBytes(b []byte) Digest {
	return Digest(sha256.Sum256(b))
}

// DigestWith computes SHA-256(a||b), the two-input chained-hash primitive.
func DigestWith(a, b []byte) Digest {
	h := sha256.New()
	h.Write(a)
	h.Write(b)
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// DigestFromBytes reconstructs a Digest from exactly DigestSize bytes.
func DigestFromBytes(b []byte) (Digest, error) {
	var d Digest
	if len(b) != DigestSize {
		return d, ErrIncorrectLength
	}
	copy(d[:], b)
	return d, nil
}

// Bytes returns the digest as a byte slice.
func (d Digest) Bytes() []byte {
	out := make([]byte, DigestSize)
	copy(out, d[:])
	return out
}

// IsZero reports whether d is the all-zero digest.
func (d Digest) IsZero() bool {
	return d == ZeroDigest
}

// MarshalCBOR encodes d as a 32-byte CBOR byte string, so a Digest field
// round-trips identically regardless of how a cbor library might otherwise
// choose to represent a fixed-size byte array.
func (d Digest) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(d[:])
}

// UnmarshalCBOR decodes a 32-byte CBOR byte string into d.
func (d *Digest) UnmarshalCBOR(data []byte) error {
	var b []byte
	if err := cbor.Unmarshal(data, &b); err != nil {
		return err
	}
	got, err := DigestFromBytes(b)
	if err != nil {
		return err
	}
	*d = got
	return nil
}

// NonceSize is the fixed width, in bytes, of a Nonce.
const NonceSize = 16

// Nonce is a 16-byte value used to bind a signature to a fresh challenge
// (reads) or to seed a genesis block (writes).
type Nonce [NonceSize]byte

// NonceFromBytes reconstructs a Nonce from exactly NonceSize bytes, rejecting
// any other length.
func NonceFromBytes(b []byte) (Nonce, error) {
	var n Nonce
	if len(b) != NonceSize {
		return n, ErrIncorrectLength
	}
	copy(n[:], b)
	return n, nil
}

// Bytes returns the nonce as a byte slice.
func (n Nonce) Bytes() []byte {
	out := make([]byte, NonceSize)
	copy(out, n[:])
	return out
}
