// Package coordinator implements the orchestrator (C5): it fans append and
// read operations out to an endorser quorum, persists results through a
// store.Store adapter, and assembles the receipts that make each result
// verifiable without trusting the coordinator itself.
package coordinator

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/google/uuid"

	"github.com/datatrails/go-verifiedledger/ledger"
	"github.com/datatrails/go-verifiedledger/store"
)

// Coordinator is the single-writer orchestrator for one ledger service
// view. It holds no ledger state of its own beyond the current view's
// membership and tail digest; all durable state lives in the store and
// endorsers.
type Coordinator struct {
	log logger.Logger

	st store.Store

	// mu guards every field below, including during ChangeView, so an
	// Append or ReadLatest in flight always sees a consistent
	// (endorsers, allowed, viewTail) triple for one view.
	mu           sync.RWMutex
	endorsers    []EndorserClient
	allowed      []ledger.PublicKey
	viewTail     ledger.Digest
	bootstrapped bool
	changingView bool
}

// New constructs a Coordinator bound to st and the given endorser fleet. It
// must be bootstrapped via Bootstrap before any other operation.
func New(log logger.Logger, st store.Store, endorsers []EndorserClient) (*Coordinator, error) {
	if len(endorsers) == 0 {
		return nil, ErrNoEndorsers
	}
	if log == nil {
		log = logger.Sugar
	}
	return &Coordinator{log: log, st: st, endorsers: endorsers}, nil
}

// Bootstrap builds the genesis view block from the fleet's public keys,
// persists it, and has every endorser initialize its state against it
// (§4.5 Bootstrap). It is a one-time operation for the life of the service.
func (c *Coordinator) Bootstrap(ctx context.Context) error {
	c.mu.Lock()
	if c.bootstrapped {
		c.mu.Unlock()
		return ErrAlreadyBootstrapped
	}
	endorsers := c.endorsers
	c.mu.Unlock()

	keys := make([]ledger.PublicKey, len(endorsers))
	for i, e := range endorsers {
		key, err := e.PublicKey(ctx)
		if err != nil {
			return err
		}
		keys[i] = key
	}
	sortPublicKeys(keys)

	block := encodeMemberList(keys)
	mb, tail, err := c.st.AppendViewLedger(ctx, block, ledger.ZeroDigest)
	if err != nil {
		return err
	}

	results := fanout(ctx, endorsers, func(ctx context.Context, ec EndorserClient) ([]byte, error) {
		return ec.InitializeState(ctx, nil, ledger.LedgerTail{}, mb.BlockHash, ledger.ZeroDigest)
	})

	receipt := collectViewChangeReceipt(results)
	if err := receipt.Verify(tail.Bytes(), nil, keys); err != nil {
		return err
	}
	if err := c.st.AttachViewLedgerReceipt(ctx, mb, receipt); err != nil {
		return err
	}

	c.mu.Lock()
	c.allowed = keys
	c.viewTail = tail
	c.bootstrapped = true
	c.mu.Unlock()
	return nil
}

// snapshot returns a consistent (endorsers, allowed, viewTail) triple for
// the current view, and whether the coordinator has been bootstrapped.
func (c *Coordinator) snapshot() ([]EndorserClient, []ledger.PublicKey, ledger.Digest, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.endorsers, c.allowed, c.viewTail, c.bootstrapped
}

// NewLedger creates a fresh ledger whose genesis block commits to a random
// service nonce, the caller's clientNonce, and appBytes (§4.2, Scenario 6).
func (c *Coordinator) NewLedger(ctx context.Context, clientNonce ledger.Nonce, appBytes []byte) (ledger.Digest, ledger.MetaBlock, ledger.Receipt, error) {
	endorsers, allowed, viewTail, bootstrapped := c.snapshot()
	if !bootstrapped {
		return ledger.Digest{}, ledger.MetaBlock{}, ledger.Receipt{}, ErrNotBootstrapped
	}

	id := uuid.New()
	serviceNonce, err := ledger.NonceFromBytes(id[:])
	if err != nil {
		return ledger.Digest{}, ledger.MetaBlock{}, ledger.Receipt{}, err
	}

	genesisBlock := ledger.GenesisBlock(serviceNonce, clientNonce, appBytes)
	handle, mb, err := c.st.CreateLedger(ctx, viewTail, genesisBlock)
	if err != nil {
		return ledger.Digest{}, ledger.MetaBlock{}, ledger.Receipt{}, err
	}

	results := fanout(ctx, endorsers, func(ctx context.Context, ec EndorserClient) ([]byte, error) {
		return ec.NewLedger(ctx, handle)
	})
	receipt := collectReceipt(results)
	hash := mb.Hash()
	if err := receipt.Verify(hash.Bytes(), allowed); err != nil {
		return ledger.Digest{}, ledger.MetaBlock{}, ledger.Receipt{}, err
	}
	if err := c.st.AttachLedgerReceipt(ctx, handle, mb, receipt); err != nil {
		return ledger.Digest{}, ledger.MetaBlock{}, ledger.Receipt{}, err
	}

	return handle, mb, receipt, nil
}

// Append extends handle's ledger with block, persists it conditionally on
// condTailHash, and has the fleet endorse the resulting MetaBlock (§4.2).
func (c *Coordinator) Append(ctx context.Context, handle ledger.Digest, block []byte, condTailHash ledger.Digest) (ledger.MetaBlock, ledger.Receipt, error) {
	endorsers, allowed, viewTail, bootstrapped := c.snapshot()
	if !bootstrapped {
		return ledger.MetaBlock{}, ledger.Receipt{}, ErrNotBootstrapped
	}

	mb, err := c.st.AppendLedger(ctx, handle, viewTail, block, condTailHash)
	if err != nil {
		return ledger.MetaBlock{}, ledger.Receipt{}, err
	}

	blockHash := ledger.BlockHash(block)
	results := fanout(ctx, endorsers, func(ctx context.Context, ec EndorserClient) ([]byte, error) {
		return ec.Append(ctx, handle, blockHash, condTailHash, mb.Height)
	})
	receipt := collectReceipt(results)
	hash := mb.Hash()
	if err := receipt.Verify(hash.Bytes(), allowed); err != nil {
		return ledger.MetaBlock{}, ledger.Receipt{}, err
	}
	if err := c.st.AttachLedgerReceipt(ctx, handle, mb, receipt); err != nil {
		return ledger.MetaBlock{}, ledger.Receipt{}, err
	}

	return mb, receipt, nil
}

// ReadLatest returns handle's most recent entry together with a freshly
// nonce-bound quorum receipt over its tail hash (§4.2, P8).
func (c *Coordinator) ReadLatest(ctx context.Context, handle ledger.Digest, nonce ledger.Nonce) (store.LedgerEntry, ledger.Receipt, error) {
	endorsers, allowed, _, bootstrapped := c.snapshot()
	if !bootstrapped {
		return store.LedgerEntry{}, ledger.Receipt{}, ErrNotBootstrapped
	}

	entry, err := c.st.ReadLedgerTail(ctx, handle)
	if err != nil {
		return store.LedgerEntry{}, ledger.Receipt{}, err
	}

	results := fanout(ctx, endorsers, func(ctx context.Context, ec EndorserClient) ([]byte, error) {
		return ec.ReadLatest(ctx, handle, nonce)
	})
	receipt := collectReceipt(results)
	tailHash := entry.MetaBlock.Hash()
	msg := append(append([]byte{}, tailHash.Bytes()...), nonce.Bytes()...)
	if err := receipt.Verify(msg, allowed); err != nil {
		return store.LedgerEntry{}, ledger.Receipt{}, err
	}

	return entry, receipt, nil
}

// ReadByIndex returns the historical entry at height, as already persisted
// (no new endorser round-trip: the receipt attached at append time is
// returned as-is).
func (c *Coordinator) ReadByIndex(ctx context.Context, handle ledger.Digest, height uint64) (store.LedgerEntry, error) {
	_, _, _, bootstrapped := c.snapshot()
	if !bootstrapped {
		return store.LedgerEntry{}, ErrNotBootstrapped
	}
	return c.st.ReadLedgerByIndex(ctx, handle, height)
}

// ReadViewByIndex returns the historical view-ledger entry at height.
func (c *Coordinator) ReadViewByIndex(ctx context.Context, height uint64) (store.ViewLedgerEntry, error) {
	_, _, _, bootstrapped := c.snapshot()
	if !bootstrapped {
		return store.ViewLedgerEntry{}, ErrNotBootstrapped
	}
	return c.st.ReadViewLedgerByIndex(ctx, height)
}

// ChangeView reconfigures the endorser fleet to newEndorsers (§4.5 view
// change): it locks the outgoing fleet at the current view height, merges
// every outgoing endorser's per-ledger state into one tail map (taking the
// highest height seen for each handle, since a lagging endorser's view is
// stale rather than authoritative), seeds every new endorser with that
// merged state, appends the new membership to the view ledger, and retires
// the outgoing fleet only once a ViewChangeReceipt proves the new view has
// enough consent.
func (c *Coordinator) ChangeView(ctx context.Context, newEndorsers []EndorserClient) error {
	c.mu.Lock()
	if !c.bootstrapped {
		c.mu.Unlock()
		return ErrNotBootstrapped
	}
	if c.changingView {
		c.mu.Unlock()
		return ErrViewChangeInProgress
	}
	c.changingView = true
	outgoing, allowed, viewTail := c.endorsers, c.allowed, c.viewTail
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.changingView = false
		c.mu.Unlock()
	}()

	lockHeight, err := c.currentViewHeight(ctx, outgoing)
	if err != nil {
		return err
	}

	merged := c.lockAndMergeTailMaps(ctx, outgoing, lockHeight)

	newKeys := make([]ledger.PublicKey, len(newEndorsers))
	for i, e := range newEndorsers {
		key, err := e.PublicKey(ctx)
		if err != nil {
			return err
		}
		newKeys[i] = key
	}
	sortPublicKeys(newKeys)

	block := encodeMemberList(newKeys)
	mb, tail, err := c.st.AppendViewLedger(ctx, block, viewTail)
	if err != nil {
		return err
	}

	// The outgoing fleet is already locked (lockAndMergeTailMaps) and so
	// can no longer append the new view block itself; each reachable
	// member instead attests its consent by signing the tail the store
	// just computed. The incoming fleet signs the same tail as a
	// byproduct of InitializeState's internal AppendViewLedger, since it
	// is seeded with the same (viewTail, lockHeight, blockHash) inputs.
	outgoingResults := fanout(ctx, outgoing, func(ctx context.Context, ec EndorserClient) ([]byte, error) {
		return ec.SignViewChange(ctx, tail)
	})
	incomingResults := fanout(ctx, newEndorsers, func(ctx context.Context, ec EndorserClient) ([]byte, error) {
		return ec.InitializeState(ctx, merged, ledger.LedgerTail{TailHash: viewTail, Height: lockHeight}, mb.BlockHash, viewTail)
	})
	receipt := collectViewChangeReceipt(append(outgoingResults, incomingResults...))
	if err := receipt.Verify(tail.Bytes(), allowed, newKeys); err != nil {
		return err
	}
	if err := c.st.AttachViewLedgerReceipt(ctx, mb, receipt); err != nil {
		return err
	}

	c.mu.Lock()
	c.endorsers = newEndorsers
	c.allowed = newKeys
	c.viewTail = tail
	c.mu.Unlock()
	return nil
}

// currentViewHeight asks the first reachable outgoing endorser for its view
// height, the value every lock request must target (§4.4: a to_lock
// request against any other height is silently ignored).
func (c *Coordinator) currentViewHeight(ctx context.Context, outgoing []EndorserClient) (uint64, error) {
	for _, e := range outgoing {
		view, _, err := e.ReadLatestState(ctx, ledger.Nonce{}, 0, false)
		if err != nil {
			continue
		}
		return view.ViewTailMetaBlock.Height, nil
	}
	return 0, ErrQuorumUnreachable
}

// lockAndMergeTailMaps locks every reachable outgoing endorser at
// lockHeight and merges their per-ledger tails, keeping the highest height
// seen for each handle since a lagging endorser's recollection is stale
// rather than authoritative.
func (c *Coordinator) lockAndMergeTailMaps(ctx context.Context, outgoing []EndorserClient, lockHeight uint64) []ledger.LedgerTailEntry {
	type fetched struct {
		view ledger.LedgerView
		err  error
	}
	out := make(chan fetched, len(outgoing))
	var wg sync.WaitGroup
	for _, e := range outgoing {
		wg.Add(1)
		go func(e EndorserClient) {
			defer wg.Done()
			view, _, err := e.ReadLatestState(ctx, ledger.Nonce{}, lockHeight, true)
			out <- fetched{view: view, err: err}
		}(e)
	}
	wg.Wait()
	close(out)

	merged := make(map[ledger.Digest]ledger.LedgerTail)
	for f := range out {
		if f.err != nil {
			c.log.Infof("change_view: endorser lock failed: %v", f.err)
			continue
		}
		for _, entry := range f.view.LedgerTailMap {
			if cur, ok := merged[entry.Handle]; !ok || entry.Tail.Height > cur.Height {
				merged[entry.Handle] = entry.Tail
			}
		}
	}

	entries := make([]ledger.LedgerTailEntry, 0, len(merged))
	for h, t := range merged {
		entries = append(entries, ledger.LedgerTailEntry{Handle: h, Tail: t})
	}
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].Handle[:], entries[j].Handle[:]) < 0
	})
	return entries
}

func sortPublicKeys(keys []ledger.PublicKey) {
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i].Bytes(), keys[j].Bytes()) < 0
	})
}

// encodeMemberList concatenates a length-prefixed DER public key per member,
// giving the view ledger's genesis and subsequent blocks a deterministic
// byte layout regardless of map or slice ordering upstream.
func encodeMemberList(keys []ledger.PublicKey) []byte {
	var out []byte
	for _, k := range keys {
		b := k.Bytes()
		var lenBytes [2]byte
		lenBytes[0] = byte(len(b) >> 8)
		lenBytes[1] = byte(len(b))
		out = append(out, lenBytes[0], lenBytes[1])
		out = append(out, b...)
	}
	return out
}
