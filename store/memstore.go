package store

import (
	"context"
	"sync"

	"github.com/datatrails/go-verifiedledger/ledger"
)

// MemStore is an in-memory Store backed by plain maps guarded by a single
// RWMutex. It is the default adapter for the "memory" CLI store kind and
// for ledgertesting fleets.
type MemStore struct {
	mu sync.RWMutex

	ledgers map[ledger.Digest][]LedgerEntry

	view     []ViewLedgerEntry
	viewTail ledger.Digest
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		ledgers: make(map[ledger.Digest][]LedgerEntry),
	}
}

func (m *MemStore) CreateLedger(_ context.Context, view ledger.Digest, genesisBlock []byte) (ledger.Digest, ledger.MetaBlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	handle := ledger.BlockHash(genesisBlock)
	if _, exists := m.ledgers[handle]; exists {
		return ledger.Digest{}, ledger.MetaBlock{}, ErrAlreadyExists
	}

	mb := ledger.GenesisMetaBlock(view, handle)
	m.ledgers[handle] = []LedgerEntry{{Block: genesisBlock, MetaBlock: mb}}
	return handle, mb, nil
}

func (m *MemStore) AppendLedger(_ context.Context, handle ledger.Digest, view ledger.Digest, block []byte, condTailHash ledger.Digest) (ledger.MetaBlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, ok := m.ledgers[handle]
	if !ok {
		return ledger.MetaBlock{}, ErrHandleNotFound
	}

	tail := entries[len(entries)-1]
	tailHash := tail.MetaBlock.Hash()
	if tailHash != condTailHash {
		return ledger.MetaBlock{}, ErrConditionalWrite
	}

	height, err := ledger.NextHeight(tail.MetaBlock.Height)
	if err != nil {
		return ledger.MetaBlock{}, err
	}
	mb := ledger.NewMetaBlock(view, tailHash, ledger.BlockHash(block), height)
	m.ledgers[handle] = append(entries, LedgerEntry{Block: block, MetaBlock: mb})
	return mb, nil
}

func (m *MemStore) ReadLedgerTail(_ context.Context, handle ledger.Digest) (LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries, ok := m.ledgers[handle]
	if !ok || len(entries) == 0 {
		return LedgerEntry{}, ErrHandleNotFound
	}
	return entries[len(entries)-1], nil
}

func (m *MemStore) ReadLedgerByIndex(_ context.Context, handle ledger.Digest, height uint64) (LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries, ok := m.ledgers[handle]
	if !ok {
		return LedgerEntry{}, ErrHandleNotFound
	}
	if height >= uint64(len(entries)) {
		return LedgerEntry{}, ErrIndexNotFound
	}
	return entries[height], nil
}

func (m *MemStore) AttachLedgerReceipt(_ context.Context, handle ledger.Digest, mb ledger.MetaBlock, receipt ledger.Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, ok := m.ledgers[handle]
	if !ok {
		return ErrHandleNotFound
	}
	for i := range entries {
		if entries[i].MetaBlock.Height == mb.Height {
			r := receipt
			entries[i].Receipt = &r
			return nil
		}
	}
	return ErrIndexNotFound
}

func (m *MemStore) AppendViewLedger(_ context.Context, block []byte, condTailHash ledger.Digest) (ledger.MetaBlock, ledger.Digest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if condTailHash != m.viewTail {
		return ledger.MetaBlock{}, ledger.Digest{}, ErrConditionalWrite
	}

	var mb ledger.MetaBlock
	var tail ledger.Digest
	if len(m.view) == 0 {
		mb, tail = ledger.GenesisViewMetaBlock(ledger.BlockHash(block))
	} else {
		prevHeight := m.view[len(m.view)-1].MetaBlock.Height
		mb, tail = ledger.NextViewMetaBlock(m.viewTail, ledger.BlockHash(block), prevHeight+1)
	}
	m.view = append(m.view, ViewLedgerEntry{Block: block, MetaBlock: mb})
	m.viewTail = tail
	return mb, tail, nil
}

func (m *MemStore) ReadViewLedgerByIndex(_ context.Context, height uint64) (ViewLedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if height >= uint64(len(m.view)) {
		return ViewLedgerEntry{}, ErrIndexNotFound
	}
	return m.view[height], nil
}

func (m *MemStore) AttachViewLedgerReceipt(_ context.Context, mb ledger.MetaBlock, receipt ledger.ViewChangeReceipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.view {
		if m.view[i].MetaBlock.Height == mb.Height {
			r := receipt
			m.view[i].Receipt = &r
			return nil
		}
	}
	return ErrIndexNotFound
}
