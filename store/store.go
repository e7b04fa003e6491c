// Package store defines the coordinator's persistence adapter interface
// (§4.5, §6) and two implementations: an in-memory map-backed store for
// tests and the memory CLI mode, and a Cosmos DB (Mongo API) store for the
// mongodb_cosmos CLI mode.
package store

import (
	"context"
	"errors"

	"github.com/datatrails/go-verifiedledger/ledger"
)

// Errors surfaced by the persistence adapters (§7: "invariants violated by
// the store ... are fatal to that request and returned as is").
var (
	ErrHandleNotFound   = errors.New("store: ledger handle not found")
	ErrIndexNotFound    = errors.New("store: no MetaBlock at that index")
	ErrConditionalWrite = errors.New("store: conditional tail did not match")
	ErrAlreadyExists    = errors.New("store: ledger handle already exists")
)

// LedgerEntry is a persisted (block, MetaBlock, receipt) triple at one
// height of one ledger.
type LedgerEntry struct {
	Block     []byte
	MetaBlock ledger.MetaBlock
	Receipt   *ledger.Receipt
}

// ViewLedgerEntry is a persisted (block, MetaBlock, receipt) triple at one
// height of the view ledger.
type ViewLedgerEntry struct {
	Block     []byte
	MetaBlock ledger.MetaBlock
	Receipt   *ledger.ViewChangeReceipt
}

// Store is the coordinator's persistence adapter contract (§4.5 state,
// §6 RPC surface). Implementations must be internally concurrency-safe;
// per-ledger append serialization is enforced here via the conditional
// tail hash, not by the coordinator.
type Store interface {
	// CreateLedger persists a brand-new ledger's genesis block and
	// returns its handle (hash of genesisBlock) and genesis MetaBlock.
	CreateLedger(ctx context.Context, view ledger.Digest, genesisBlock []byte) (handle ledger.Digest, mb ledger.MetaBlock, err error)

	// AppendLedger conditionally appends block to handle's ledger: the
	// write only succeeds if the ledger's current tail hash equals
	// condTailHash, giving the adapter an atomic compare-and-swap.
	AppendLedger(ctx context.Context, handle ledger.Digest, view ledger.Digest, block []byte, condTailHash ledger.Digest) (mb ledger.MetaBlock, err error)

	// ReadLedgerTail returns the most recently persisted entry for handle.
	ReadLedgerTail(ctx context.Context, handle ledger.Digest) (LedgerEntry, error)

	// ReadLedgerByIndex returns the entry at the given height.
	ReadLedgerByIndex(ctx context.Context, handle ledger.Digest, height uint64) (LedgerEntry, error)

	// AttachLedgerReceipt persists the receipt co-signing mb for handle.
	AttachLedgerReceipt(ctx context.Context, handle ledger.Digest, mb ledger.MetaBlock, receipt ledger.Receipt) error

	// AppendViewLedger conditionally appends a view-ledger block
	// enumerating the endorser set, under the same compare-and-swap
	// contract as AppendLedger. The returned tail is the digest endorsers
	// sign and the next call's condTailHash must match: mb.View for the
	// genesis fixpoint (§9), mb.Hash() for every subsequent height.
	AppendViewLedger(ctx context.Context, block []byte, condTailHash ledger.Digest) (mb ledger.MetaBlock, tail ledger.Digest, err error)

	// ReadViewLedgerByIndex returns the view-ledger entry at the given
	// height.
	ReadViewLedgerByIndex(ctx context.Context, height uint64) (ViewLedgerEntry, error)

	// AttachViewLedgerReceipt persists the ViewChangeReceipt co-signing
	// mb.
	AttachViewLedgerReceipt(ctx context.Context, mb ledger.MetaBlock, receipt ledger.ViewChangeReceipt) error
}
