package ledger

// IDSig is a single (public_key, signature) pair in a Receipt.
type IDSig struct {
	ID  PublicKey
	Sig []byte
}

// Receipt is an ordered sequence of (public_key, signature) pairs with the
// invariant that no two entries share a public key.
type Receipt struct {
	IDSigs []IDSig
}

// Add appends an (id, sig) pair to the receipt. The caller is responsible
// for ensuring it does not introduce a duplicate id; Verify rejects
// duplicates regardless.
func (r *Receipt) Add(id PublicKey, sig []byte) {
	r.IDSigs = append(r.IDSigs, IDSig{ID: id, Sig: sig})
}

// Len reports the number of (id, sig) pairs in the receipt.
func (r Receipt) Len() int {
	return len(r.IDSigs)
}

func hasDuplicateIDs(idSigs []IDSig) bool {
	seen := make(map[string]struct{}, len(idSigs))
	for _, e := range idSigs {
		key := string(e.ID.Bytes())
		if _, ok := seen[key]; ok {
			return true
		}
		seen[key] = struct{}{}
	}
	return false
}

func isMember(id PublicKey, allowed []PublicKey) bool {
	for _, pk := range allowed {
		if pk.Equal(id) {
			return true
		}
	}
	return false
}

// quorumThreshold is ⌊n/2⌋ + 1, the simple-majority threshold over n
// participants.
func quorumThreshold(n int) int {
	return n/2 + 1
}

// Verify checks a plain Receipt over msg against the allowed signer set
// allowed (§4.3):
//  1. signer ids are pairwise distinct,
//  2. the receipt meets quorum (⌊|allowed|/2⌋+1 entries),
//  3. every signer id is a member of allowed,
//  4. every signature verifies against its id on msg.
//
// Checks run in that order so the first violated precondition determines
// the returned error.
func (r Receipt) Verify(msg []byte, allowed []PublicKey) error {
	if hasDuplicateIDs(r.IDSigs) {
		return ErrDuplicateIDs
	}
	if len(r.IDSigs) < quorumThreshold(len(allowed)) {
		return ErrInsufficientQuorum
	}
	for _, e := range r.IDSigs {
		if !isMember(e.ID, allowed) {
			return ErrInvalidPublicKey
		}
	}
	for _, e := range r.IDSigs {
		if !e.ID.Verify(msg, e.Sig) {
			return ErrInvalidSignature
		}
	}
	return nil
}

// ViewChangeReceipt witnesses both majority consent of the outgoing
// endorser set and full consent of the newly added (incoming-only) set.
type ViewChangeReceipt struct {
	IDSigs []IDSig
}

// Add appends an (id, sig) pair to the receipt.
func (r *ViewChangeReceipt) Add(id PublicKey, sig []byte) {
	r.IDSigs = append(r.IDSigs, IDSig{ID: id, Sig: sig})
}

// Len reports the number of (id, sig) pairs in the receipt.
func (r ViewChangeReceipt) Len() int {
	return len(r.IDSigs)
}

// Verify checks a ViewChangeReceipt over msg against the outgoing set
// outgoing and the incoming set incoming (§4.3):
//  1. signer ids are pairwise distinct,
//  2. the count of receipt ids that are members of outgoing meets
//     ⌊|outgoing|/2⌋+1,
//  3. every key in incoming\outgoing has a corresponding signature,
//  4. every signature verifies on msg.
func (r ViewChangeReceipt) Verify(msg []byte, outgoing, incoming []PublicKey) error {
	if hasDuplicateIDs(r.IDSigs) {
		return ErrDuplicateIDs
	}

	// A bootstrap view change has no outgoing set at all (§4.5 Bootstrap);
	// the majority-of-outgoing requirement is then vacuously satisfied and
	// every member is judged solely by the incoming\outgoing check below.
	if len(outgoing) > 0 {
		outgoingSigned := 0
		for _, pk := range outgoing {
			if receiptHasSigner(r.IDSigs, pk) {
				outgoingSigned++
			}
		}
		if outgoingSigned < quorumThreshold(len(outgoing)) {
			return ErrInsufficientQuorum
		}
	}

	for _, pk := range incomingOnly(outgoing, incoming) {
		if !receiptHasSigner(r.IDSigs, pk) {
			return ErrInsufficientQuorum
		}
	}

	for _, e := range r.IDSigs {
		if !e.ID.Verify(msg, e.Sig) {
			return ErrInvalidSignature
		}
	}
	return nil
}

func receiptHasSigner(idSigs []IDSig, pk PublicKey) bool {
	for _, e := range idSigs {
		if e.ID.Equal(pk) {
			return true
		}
	}
	return false
}

// incomingOnly computes incoming \ outgoing (the ΔI set of §4.3).
func incomingOnly(outgoing, incoming []PublicKey) []PublicKey {
	var delta []PublicKey
	for _, pk := range incoming {
		if !isMember(pk, outgoing) {
			delta = append(delta, pk)
		}
	}
	return delta
}
