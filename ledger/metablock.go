package ledger

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrLedgerHeightOverflow is returned when incrementing a ledger height
// would wrap past the maximum representable uint64.
var ErrLedgerHeightOverflow = errors.New("ledger: height overflow")

// metaBlockSize is the canonical wire size of a MetaBlock: three 32-byte
// digests plus an 8-byte little-endian height.
const metaBlockSize = 3*DigestSize + 8

// MetaBlock is the signed commitment (view, prev, block_hash, height). Its
// canonical serialization concatenates the four fields in that order, with
// height in little-endian fixed 8-byte form.
type MetaBlock struct {
	View      Digest
	Prev      Digest
	BlockHash Digest
	Height    uint64
}

// NewMetaBlock constructs a MetaBlock from its four fields.
func NewMetaBlock(view, prev, blockHash Digest, height uint64) MetaBlock {
	return MetaBlock{View: view, Prev: prev, BlockHash: blockHash, Height: height}
}

// GenesisMetaBlock builds the genesis form of a MetaBlock: prev is the zero
// digest and height is zero.
func GenesisMetaBlock(view, blockHash Digest) MetaBlock {
	return MetaBlock{View: view, Prev: ZeroDigest, BlockHash: blockHash, Height: 0}
}

// Serialize produces the 104-byte canonical wire encoding.
func (m MetaBlock) Serialize() []byte {
	out := make([]byte, 0, metaBlockSize)
	out = append(out, m.View[:]...)
	out = append(out, m.Prev[:]...)
	out = append(out, m.BlockHash[:]...)
	var heightBytes [8]byte
	binary.LittleEndian.PutUint64(heightBytes[:], m.Height)
	out = append(out, heightBytes[:]...)
	return out
}

// DeserializeMetaBlock reconstructs a MetaBlock from its canonical encoding,
// failing with ErrIncorrectLength if b is not exactly metaBlockSize bytes.
func DeserializeMetaBlock(b []byte) (MetaBlock, error) {
	var m MetaBlock
	if len(b) != metaBlockSize {
		return m, ErrIncorrectLength
	}
	copy(m.View[:], b[0:DigestSize])
	copy(m.Prev[:], b[DigestSize:2*DigestSize])
	copy(m.BlockHash[:], b[2*DigestSize:3*DigestSize])
	m.Height = binary.LittleEndian.Uint64(b[3*DigestSize:])
	return m, nil
}

// Hash returns SHA-256(Serialize(m)).
func (m MetaBlock) Hash() Digest {
	return DigestBytes(m.Serialize())
}

// NextHeight returns h+1, failing with ErrLedgerHeightOverflow if h is already
// math.MaxUint64.
func NextHeight(h uint64) (uint64, error) {
	if h == math.MaxUint64 {
		return 0, ErrLedgerHeightOverflow
	}
	return h + 1, nil
}

// GenesisBlock concatenates the service nonce, client nonce, and
// application bytes that make up a data ledger's genesis block.
func GenesisBlock(serviceNonce, clientNonce Nonce, appBytes []byte) []byte {
	out := make([]byte, 0, 2*NonceSize+len(appBytes))
	out = append(out, serviceNonce[:]...)
	out = append(out, clientNonce[:]...)
	out = append(out, appBytes...)
	return out
}

// BlockHash computes hash(B) = SHA-256(bytes) for an uninterpreted block.
func BlockHash(block []byte) Digest {
	return DigestBytes(block)
}

// GenesisViewMetaBlock builds the self-referential genesis view MetaBlock
// (§9): a draft with View set to the zero digest is hashed once, and that
// hash is patched back into the View field. The returned tail digest is the
// hash of the zero-view draft, not a re-hash of the patched struct — the
// patched struct's own Hash() would differ and must never be used as the
// tail.
func GenesisViewMetaBlock(blockHash Digest) (MetaBlock, Digest) {
	draft := MetaBlock{View: ZeroDigest, Prev: ZeroDigest, BlockHash: blockHash, Height: 0}
	tail := draft.Hash()
	draft.View = tail
	return draft, tail
}

// NextViewMetaBlock builds the MetaBlock for the next view-ledger height
// given the current view tail digest. The view ledger's prev and view
// fields both equal the previous tail hash by construction (§4.4).
func NextViewMetaBlock(viewTailHash, blockHash Digest, nextHeight uint64) (MetaBlock, Digest) {
	m := NewMetaBlock(viewTailHash, viewTailHash, blockHash, nextHeight)
	return m, m.Hash()
}
