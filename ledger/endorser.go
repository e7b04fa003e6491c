package ledger

import (
	"bytes"
	"sort"
	"sync"

	"github.com/datatrails/go-datatrails-common/logger"
)

// Endorser is the per-endorser authoritative in-memory state machine (C4).
// All mutation is serialized through a single exclusive lock; reads take a
// shared lock except ReadLatestState, which may atomically flip the lock
// flag and therefore takes the exclusive lock too.
type Endorser struct {
	mu  sync.RWMutex
	log logger.Logger

	signer *Signer

	ledgers map[Digest]LedgerTail

	// viewBlock is the last view-ledger MetaBlock this endorser produced (or
	// was seeded with). viewTailHash is the authoritative "current view
	// digest" used both to bind data-ledger signatures (V, §4.4) and to
	// check cond_view_tail; for every view-ledger append after the genesis
	// one, viewTailHash == viewBlock.Hash(), but the genesis view block is a
	// one-time fixpoint (§9) where the two are related but not
	// interchangeable — see appendViewLedgerLocked.
	viewBlock       MetaBlock
	viewTailHash    Digest
	viewGenesisDone bool

	initialized bool
	locked      bool
}

// NewEndorser creates a fresh endorser with a newly generated keypair. log
// may be nil, in which case the package-level logger.Sugar is used.
func NewEndorser(log logger.Logger) (*Endorser, error) {
	signer, err := NewSigner()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Sugar
	}
	return &Endorser{
		signer:  signer,
		log:     log,
		ledgers: make(map[Digest]LedgerTail),
	}, nil
}

// GetPublicKey returns the endorser's public key. Pure.
func (e *Endorser) GetPublicKey() PublicKey {
	return e.signer.PublicKey()
}

// InitializeState replaces ledgers with tailMap, seeds the view tail, and
// performs the internal append_view_ledger that becomes the signed
// acknowledgement returned. It may be called exactly once per endorser
// lifetime; a second call fails with ErrAlreadyInitialized.
func (e *Endorser) InitializeState(tailMap []LedgerTailEntry, viewTailIn LedgerTail, blockHash, condViewTail Digest) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return nil, ErrAlreadyInitialized
	}

	ledgers := make(map[Digest]LedgerTail, len(tailMap))
	for _, entry := range tailMap {
		ledgers[entry.Handle] = entry.Tail
	}
	e.ledgers = ledgers
	e.viewTailHash = viewTailIn.TailHash
	e.viewBlock = MetaBlock{Height: viewTailIn.Height}
	// A seed of (zero digest, height 0) is the bootstrap contract value
	// (§4.5 Bootstrap); any other seed means this endorser is joining an
	// already-running view, so its first AppendViewLedger call takes the
	// ordinary increment path rather than the genesis fixpoint.
	e.viewGenesisDone = !(viewTailIn.TailHash.IsZero() && viewTailIn.Height == 0)
	e.initialized = true

	sig, err := e.appendViewLedgerLocked(blockHash, condViewTail)
	if err != nil {
		e.log.Infof("initialize_state: append_view_ledger failed: %v", err)
		return nil, err
	}
	return sig, nil
}

// NewLedger creates a new ledger named handle and returns a signature over
// its genesis MetaBlock's hash.
func (e *Endorser) NewLedger(handle Digest) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.locked {
		return nil, ErrLocked
	}
	if _, exists := e.ledgers[handle]; exists {
		return nil, ErrLedgerAlreadyExists
	}

	m := GenesisMetaBlock(e.viewTailHash, handle)
	h := m.Hash()
	e.ledgers[handle] = LedgerTail{TailHash: h, Height: 0}

	return e.signer.Sign(h[:])
}

// Append extends handle's ledger with a new MetaBlock, subject to the
// preconditions of §4.4: not locked, handle known, conditional tail match,
// conditional height match (or opt-out), and no height overflow.
func (e *Endorser) Append(handle, blockHash, condTail Digest, condHeight uint64) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.locked {
		return nil, ErrLocked
	}

	tail, ok := e.ledgers[handle]
	if !ok {
		return nil, ErrInvalidLedgerName
	}

	if condHeight != 0 && condTail != tail.TailHash {
		return nil, ErrInvalidConditionalTail
	}

	if condHeight != 0 {
		if condHeight <= tail.Height {
			return nil, ErrOutOfOrderAppend
		}
		if condHeight != tail.Height+1 {
			return nil, ErrInvalidTailHeight
		}
	}

	newHeight, err := NextHeight(tail.Height)
	if err != nil {
		return nil, err
	}

	m := NewMetaBlock(e.viewTailHash, tail.TailHash, blockHash, newHeight)
	h := m.Hash()
	e.ledgers[handle] = LedgerTail{TailHash: h, Height: newHeight}

	return e.signer.Sign(h[:])
}

// ReadLatest returns a signature over tail_hash||nonce for handle, binding
// the signature to a fresh challenge so replays of an old read are
// detectable. No mutation.
func (e *Endorser) ReadLatest(handle Digest, nonce Nonce) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	tail, ok := e.ledgers[handle]
	if !ok {
		return nil, ErrInvalidLedgerName
	}

	msg := append(tail.TailHash.Bytes(), nonce.Bytes()...)
	return e.signer.Sign(msg)
}

// AppendViewLedger extends the view ledger with a block enumerating the
// (possibly new) endorser set, subject to not-locked and conditional-tail
// preconditions.
func (e *Endorser) AppendViewLedger(blockHash, condViewTail Digest) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.appendViewLedgerLocked(blockHash, condViewTail)
}

// appendViewLedgerLocked must be called with e.mu held for writing.
func (e *Endorser) appendViewLedgerLocked(blockHash, condViewTail Digest) ([]byte, error) {
	if e.locked {
		return nil, ErrLocked
	}
	if condViewTail != e.viewTailHash {
		return nil, ErrInvalidConditionalTail
	}

	var m MetaBlock
	var h Digest
	if !e.viewGenesisDone {
		m, h = GenesisViewMetaBlock(blockHash)
		e.viewGenesisDone = true
	} else {
		m, h = NextViewMetaBlock(e.viewTailHash, blockHash, e.viewBlock.Height+1)
	}

	e.viewBlock = m
	e.viewTailHash = h

	return e.signer.Sign(h[:])
}

// SignViewChange signs tailHash, the new view ledger's tail digest, as this
// endorser's consent to a reconfiguration. Unlike AppendViewLedger it does
// not touch viewBlock/viewTailHash and is not rejected by a prior lock: it
// is the attestation a locked, retiring endorser gives the incoming fleet
// instead of appending the new view block itself (§4.5 view change).
func (e *Endorser) SignViewChange(tailHash Digest) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.signer.Sign(tailHash.Bytes())
}

// ReadLatestState returns a snapshot of the whole endorser state plus a
// signature over nonce||serialize(LedgerView). If toLock is true and
// viewLedgerHeight equals the endorser's current view-tail height, the
// endorser atomically locks after snapshotting. A to_lock request against
// an already-advanced view is silently ignored so a recovered-but-migrated
// endorser is not frozen by a stale view-change attempt.
func (e *Endorser) ReadLatestState(nonce Nonce, viewLedgerHeight uint64, toLock bool) (LedgerView, []byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	view := e.snapshotLocked()

	if toLock && viewLedgerHeight == e.viewBlock.Height {
		e.locked = true
		e.log.Infof("endorser locked at view height %d", viewLedgerHeight)
	}

	payload, err := view.Serialize()
	if err != nil {
		return LedgerView{}, nil, err
	}
	msg := append(nonce.Bytes(), payload...)
	sig, err := e.signer.Sign(msg)
	if err != nil {
		return LedgerView{}, nil, err
	}
	return view, sig, nil
}

// IsLocked reports whether the endorser is currently locked.
func (e *Endorser) IsLocked() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.locked
}

func (e *Endorser) snapshotLocked() LedgerView {
	entries := make([]LedgerTailEntry, 0, len(e.ledgers))
	for h, t := range e.ledgers {
		entries = append(entries, LedgerTailEntry{Handle: h, Tail: t})
	}
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].Handle[:], entries[j].Handle[:]) < 0
	})
	return LedgerView{LedgerTailMap: entries, ViewTailMetaBlock: e.viewBlock}
}
