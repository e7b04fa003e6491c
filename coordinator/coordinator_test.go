package coordinator

import (
	"context"
	"testing"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/stretchr/testify/require"

	"github.com/datatrails/go-verifiedledger/ledger"
	"github.com/datatrails/go-verifiedledger/store"
)

func newTestFleet(t *testing.T, n int) ([]EndorserClient, *store.MemStore) {
	t.Helper()
	clients := make([]EndorserClient, n)
	for i := 0; i < n; i++ {
		e, err := ledger.NewEndorser(logger.Sugar)
		require.NoError(t, err)
		clients[i] = NewLocalEndorserClient(e)
	}
	return clients, store.NewMemStore()
}

func TestCoordinatorBootstrap(t *testing.T) {
	clients, st := newTestFleet(t, 3)
	c, err := New(logger.Sugar, st, clients)
	require.NoError(t, err)
	require.NoError(t, c.Bootstrap(context.Background()))

	err = c.Bootstrap(context.Background())
	require.ErrorIs(t, err, ErrAlreadyBootstrapped)
}

func TestCoordinatorNewLedgerAppendReadLatest(t *testing.T) {
	clients, st := newTestFleet(t, 3)
	c, err := New(logger.Sugar, st, clients)
	require.NoError(t, err)
	require.NoError(t, c.Bootstrap(context.Background()))

	clientNonce, err := ledger.NonceFromBytes(make([]byte, 16))
	require.NoError(t, err)

	handle, mb0, receipt0, err := c.NewLedger(context.Background(), clientNonce, []byte("app state"))
	require.NoError(t, err)
	require.Equal(t, uint64(0), mb0.Height)
	require.True(t, receipt0.Len() >= 2)

	mb1, receipt1, err := c.Append(context.Background(), handle, []byte("block 1"), mb0.Hash())
	require.NoError(t, err)
	require.Equal(t, uint64(1), mb1.Height)
	require.True(t, receipt1.Len() >= 2)

	nonce, err := ledger.NonceFromBytes(append([]byte{9}, make([]byte, 15)...))
	require.NoError(t, err)
	entry, readReceipt, err := c.ReadLatest(context.Background(), handle, nonce)
	require.NoError(t, err)
	require.Equal(t, mb1.Height, entry.MetaBlock.Height)
	require.True(t, readReceipt.Len() >= 2)
}

func TestCoordinatorAppendRejectsStaleConditionalTail(t *testing.T) {
	clients, st := newTestFleet(t, 3)
	c, err := New(logger.Sugar, st, clients)
	require.NoError(t, err)
	require.NoError(t, c.Bootstrap(context.Background()))

	clientNonce, err := ledger.NonceFromBytes(make([]byte, 16))
	require.NoError(t, err)
	handle, mb0, _, err := c.NewLedger(context.Background(), clientNonce, []byte("app"))
	require.NoError(t, err)

	_, err = c.Append(context.Background(), handle, []byte("b1"), mb0.Hash())
	require.NoError(t, err)

	_, err = c.Append(context.Background(), handle, []byte("b2"), mb0.Hash())
	require.ErrorIs(t, err, store.ErrConditionalWrite)
}

func TestCoordinatorReadByIndex(t *testing.T) {
	clients, st := newTestFleet(t, 3)
	c, err := New(logger.Sugar, st, clients)
	require.NoError(t, err)
	require.NoError(t, c.Bootstrap(context.Background()))

	clientNonce, err := ledger.NonceFromBytes(make([]byte, 16))
	require.NoError(t, err)
	handle, mb0, _, err := c.NewLedger(context.Background(), clientNonce, []byte("app"))
	require.NoError(t, err)
	_, err = c.Append(context.Background(), handle, []byte("b1"), mb0.Hash())
	require.NoError(t, err)

	entry0, err := c.ReadByIndex(context.Background(), handle, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(0), entry0.MetaBlock.Height)

	entry1, err := c.ReadByIndex(context.Background(), handle, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(1), entry1.MetaBlock.Height)

	_, err = c.ReadByIndex(context.Background(), handle, 2)
	require.ErrorIs(t, err, store.ErrIndexNotFound)
}

func TestCoordinatorChangeView(t *testing.T) {
	clients, st := newTestFleet(t, 3)
	c, err := New(logger.Sugar, st, clients)
	require.NoError(t, err)
	require.NoError(t, c.Bootstrap(context.Background()))

	clientNonce, err := ledger.NonceFromBytes(make([]byte, 16))
	require.NoError(t, err)
	handle, _, _, err := c.NewLedger(context.Background(), clientNonce, []byte("app"))
	require.NoError(t, err)

	newClients, _ := newTestFleet(t, 3)
	require.NoError(t, c.ChangeView(context.Background(), newClients))

	// The reconfigured fleet inherits the ledger created under the old view.
	nonce, err := ledger.NonceFromBytes(make([]byte, 16))
	require.NoError(t, err)
	_, _, err = c.ReadLatest(context.Background(), handle, nonce)
	require.NoError(t, err)
}
