package ledger

// LedgerTail is the per-handle authoritative tail state: the hash of the
// latest MetaBlock and its height.
type LedgerTail struct {
	TailHash Digest `cbor:"1,keyasint"`
	Height   uint64 `cbor:"2,keyasint"`
}

// LedgerTailEntry pairs a ledger handle with its tail, the wire shape used
// both on the ReadLatestState RPC and inside a LedgerView snapshot.
type LedgerTailEntry struct {
	Handle Digest `cbor:"1,keyasint"`
	Tail   LedgerTail `cbor:"2,keyasint"`
}

// LedgerView is the snapshot an endorser hands back during view-change
// preparation: every ledger's tail plus the current view-ledger tail
// MetaBlock.
type LedgerView struct {
	LedgerTailMap     []LedgerTailEntry `cbor:"1,keyasint"`
	ViewTailMetaBlock MetaBlock         `cbor:"2,keyasint"`
}

var ledgerViewCodec = NewCBORCodec()

// Serialize deterministically encodes the LedgerView for inclusion in a
// ReadLatestState signature payload (nonce || serialize(LedgerView)).
func (v LedgerView) Serialize() ([]byte, error) {
	return ledgerViewCodec.MarshalCBOR(v)
}
