package ledger

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"errors"

	"github.com/fxamacker/cbor/v2"
)

// ErrInvalidPublicKeyBytes is returned when a public key cannot be parsed
// from its DER encoding.
var ErrInvalidPublicKeyBytes = errors.New("ledger: invalid public key encoding")

// PublicKey is an opaque, byte-equal-comparable verification key. Signatures
// are produced over arbitrary byte strings; verification returns a plain
// success/failure.
type PublicKey struct {
	key *ecdsa.PublicKey
	der []byte
}

// Bytes returns the DER (SubjectPublicKeyInfo) encoding of the key. Two
// PublicKeys are equal iff their Bytes() are equal.
func (p PublicKey) Bytes() []byte {
	out := make([]byte, len(p.der))
	copy(out, p.der)
	return out
}

// Equal reports whether p and other encode the same key material.
func (p PublicKey) Equal(other PublicKey) bool {
	return bytes.Equal(p.der, other.der)
}

// PublicKeyFromBytes parses a PublicKey from its DER encoding.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(b)
	if err != nil {
		return PublicKey{}, ErrInvalidPublicKeyBytes
	}
	ecpub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return PublicKey{}, ErrInvalidPublicKeyBytes
	}
	der := make([]byte, len(b))
	copy(der, b)
	return PublicKey{key: ecpub, der: der}, nil
}

// MarshalCBOR encodes the key as its DER byte string, so a Receipt
// persisted through the CBOR codec round-trips its signer identities.
func (p PublicKey) MarshalCBOR() ([]byte, error) {
	return cborEncMode.Marshal(p.der)
}

// UnmarshalCBOR decodes a DER byte string and reparses the public key.
func (p *PublicKey) UnmarshalCBOR(b []byte) error {
	var der []byte
	if err := cborDecMode.Unmarshal(b, &der); err != nil {
		return err
	}
	parsed, err := PublicKeyFromBytes(der)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

var _ cbor.Marshaler = PublicKey{}
var _ cbor.Unmarshaler = (*PublicKey)(nil)

// Verify reports whether sig is a valid signature over msg by this key.
func (p PublicKey) Verify(msg, sig []byte) bool {
	if p.key == nil {
		return false
	}
	return ecdsa.VerifyASN1(p.key, digestForSigning(msg), sig)
}

// Signer holds an endorser's keypair and signs arbitrary byte strings. Each
// endorser generates a fresh Signer at process start; there is no keypair
// persistence across restarts (recovery is via view change, per §9).
type Signer struct {
	private *ecdsa.PrivateKey
	public  PublicKey
}

// NewSigner generates a fresh P-256 keypair.
func NewSigner() (*Signer, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, err
	}
	return &Signer{
		private: priv,
		public:  PublicKey{key: &priv.PublicKey, der: der},
	}, nil
}

// PublicKey returns the signer's public key.
func (s *Signer) PublicKey() PublicKey {
	return s.public
}

// Sign produces an ASN.1 DER-encoded ECDSA signature over msg.
func (s *Signer) Sign(msg []byte) ([]byte, error) {
	return ecdsa.SignASN1(rand.Reader, s.private, digestForSigning(msg))
}

// digestForSigning is the fixed-size hash ECDSA signs over; msg is a digest,
// a digest||nonce, or a nonce||LedgerView payload depending on the caller, so
// it is always re-hashed and Sign/Verify never depend on the caller having
// pre-hashed to exactly 32 bytes.
func digestForSigning(msg []byte) []byte {
	d := DigestBytes(msg)
	return d[:]
}
