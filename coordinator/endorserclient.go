package coordinator

import (
	"context"

	"github.com/datatrails/go-verifiedledger/ledger"
)

// EndorserClient is the coordinator's view of a single endorser. It mirrors
// Endorser's exported methods (§4.4) but returns errors through the same
// context-carrying shape an RPC transport would use, so a gRPC or in-process
// implementation are interchangeable (§6: transport framing is an external
// collaborator, out of scope here).
type EndorserClient interface {
	PublicKey(ctx context.Context) (ledger.PublicKey, error)
	InitializeState(ctx context.Context, tailMap []ledger.LedgerTailEntry, viewTail ledger.LedgerTail, blockHash, condViewTail ledger.Digest) ([]byte, error)
	NewLedger(ctx context.Context, handle ledger.Digest) ([]byte, error)
	Append(ctx context.Context, handle, blockHash, condTail ledger.Digest, condHeight uint64) ([]byte, error)
	ReadLatest(ctx context.Context, handle ledger.Digest, nonce ledger.Nonce) ([]byte, error)
	AppendViewLedger(ctx context.Context, blockHash, condViewTail ledger.Digest) ([]byte, error)
	ReadLatestState(ctx context.Context, nonce ledger.Nonce, viewLedgerHeight uint64, toLock bool) (ledger.LedgerView, []byte, error)
	SignViewChange(ctx context.Context, tailHash ledger.Digest) ([]byte, error)
}

// LocalEndorserClient adapts an in-process *ledger.Endorser to
// EndorserClient. It is the reference transport used by ledgertesting
// fleets and the single-process CLI mode; a networked client (gRPC or
// otherwise) would implement the same interface against a wire stub.
type LocalEndorserClient struct {
	endorser *ledger.Endorser
}

// NewLocalEndorserClient wraps e for in-process dispatch.
func NewLocalEndorserClient(e *ledger.Endorser) *LocalEndorserClient {
	return &LocalEndorserClient{endorser: e}
}

func (c *LocalEndorserClient) PublicKey(_ context.Context) (ledger.PublicKey, error) {
	return c.endorser.GetPublicKey(), nil
}

func (c *LocalEndorserClient) InitializeState(_ context.Context, tailMap []ledger.LedgerTailEntry, viewTail ledger.LedgerTail, blockHash, condViewTail ledger.Digest) ([]byte, error) {
	return c.endorser.InitializeState(tailMap, viewTail, blockHash, condViewTail)
}

func (c *LocalEndorserClient) NewLedger(_ context.Context, handle ledger.Digest) ([]byte, error) {
	return c.endorser.NewLedger(handle)
}

func (c *LocalEndorserClient) Append(_ context.Context, handle, blockHash, condTail ledger.Digest, condHeight uint64) ([]byte, error) {
	return c.endorser.Append(handle, blockHash, condTail, condHeight)
}

func (c *LocalEndorserClient) ReadLatest(_ context.Context, handle ledger.Digest, nonce ledger.Nonce) ([]byte, error) {
	return c.endorser.ReadLatest(handle, nonce)
}

func (c *LocalEndorserClient) AppendViewLedger(_ context.Context, blockHash, condViewTail ledger.Digest) ([]byte, error) {
	return c.endorser.AppendViewLedger(blockHash, condViewTail)
}

func (c *LocalEndorserClient) ReadLatestState(_ context.Context, nonce ledger.Nonce, viewLedgerHeight uint64, toLock bool) (ledger.LedgerView, []byte, error) {
	return c.endorser.ReadLatestState(nonce, viewLedgerHeight, toLock)
}

func (c *LocalEndorserClient) SignViewChange(_ context.Context, tailHash ledger.Digest) ([]byte, error) {
	return c.endorser.SignViewChange(tailHash)
}
