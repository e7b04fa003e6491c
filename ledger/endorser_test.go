package ledger

import (
	"testing"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/stretchr/testify/require"
)

func newTestEndorser(t *testing.T) *Endorser {
	t.Helper()
	e, err := NewEndorser(logger.Sugar)
	require.NoError(t, err)
	_, err = e.InitializeState(nil, LedgerTail{}, DigestBytes([]byte("genesis view block")), ZeroDigest)
	require.NoError(t, err)
	return e
}

func TestEndorserSecondInitializeRejected(t *testing.T) {
	e := newTestEndorser(t)
	_, err := e.InitializeState(nil, LedgerTail{}, DigestBytes([]byte("x")), ZeroDigest)
	require.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestEndorserNewLedgerAndAppend(t *testing.T) {
	e := newTestEndorser(t)
	handle := DigestBytes([]byte("handle"))

	sig, err := e.NewLedger(handle)
	require.NoError(t, err)
	require.True(t, e.GetPublicKey().Verify(genesisHash(t, e, handle).Bytes(), sig))

	tail0 := genesisHash(t, e, handle)
	blockHash := BlockHash([]byte("x"))
	sig, err = e.Append(handle, blockHash, tail0, 1)
	require.NoError(t, err)

	m1 := NewMetaBlock(viewDigest(t, e), tail0, blockHash, 1)
	require.True(t, e.GetPublicKey().Verify(m1.Hash().Bytes(), sig))
	// P3: chain integrity.
	require.Equal(t, tail0, m1.Prev)
}

// genesisHash recomputes the genesis MetaBlock hash for assertions; it
// mirrors NewLedger's own construction.
func genesisHash(t *testing.T, e *Endorser, handle Digest) Digest {
	t.Helper()
	return GenesisMetaBlock(viewDigest(t, e), handle).Hash()
}

func viewDigest(t *testing.T, e *Endorser) Digest {
	t.Helper()
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.viewTailHash
}

func TestEndorserNewLedgerDuplicateHandle(t *testing.T) {
	e := newTestEndorser(t)
	handle := DigestBytes([]byte("handle"))
	_, err := e.NewLedger(handle)
	require.NoError(t, err)
	_, err = e.NewLedger(handle)
	require.ErrorIs(t, err, ErrLedgerAlreadyExists)
}

func TestEndorserAppendUnknownLedger(t *testing.T) {
	e := newTestEndorser(t)
	_, err := e.Append(DigestBytes([]byte("nope")), DigestBytes([]byte("b")), ZeroDigest, 1)
	require.ErrorIs(t, err, ErrInvalidLedgerName)
}

// Scenario 2: out-of-order / replayed append.
func TestEndorserAppendOutOfOrderReplay(t *testing.T) {
	e := newTestEndorser(t)
	handle := DigestBytes([]byte("handle"))
	_, err := e.NewLedger(handle)
	require.NoError(t, err)

	tail0 := genesisHash(t, e, handle)
	blockHash := BlockHash([]byte("x"))
	_, err = e.Append(handle, blockHash, tail0, 1)
	require.NoError(t, err)

	// Replay height 1 against the current tail: cond_height=1 is now <=
	// current height 1. (A replay that also carries the stale tail0 fails the
	// earlier conditional-tail check with ErrInvalidConditionalTail instead.)
	tail1 := NewMetaBlock(viewDigest(t, e), tail0, blockHash, 1).Hash()
	_, err = e.Append(handle, blockHash, tail1, 1)
	require.ErrorIs(t, err, ErrOutOfOrderAppend)
}

func TestEndorserAppendInvalidConditionalTail(t *testing.T) {
	e := newTestEndorser(t)
	handle := DigestBytes([]byte("handle"))
	_, err := e.NewLedger(handle)
	require.NoError(t, err)

	wrongTail := DigestBytes([]byte("wrong"))
	_, err = e.Append(handle, BlockHash([]byte("x")), wrongTail, 1)
	require.ErrorIs(t, err, ErrInvalidConditionalTail)
}

func TestEndorserAppendInvalidTailHeight(t *testing.T) {
	e := newTestEndorser(t)
	handle := DigestBytes([]byte("handle"))
	_, err := e.NewLedger(handle)
	require.NoError(t, err)

	tail0 := genesisHash(t, e, handle)
	_, err = e.Append(handle, BlockHash([]byte("x")), tail0, 5)
	require.ErrorIs(t, err, ErrInvalidTailHeight)
}

func TestEndorserAppendHeightOverflow(t *testing.T) {
	e := newTestEndorser(t)
	handle := DigestBytes([]byte("handle"))
	_, err := e.NewLedger(handle)
	require.NoError(t, err)

	e.mu.Lock()
	e.ledgers[handle] = LedgerTail{TailHash: DigestBytes([]byte("tail")), Height: ^uint64(0)}
	tail := e.ledgers[handle]
	e.mu.Unlock()

	_, err = e.Append(handle, BlockHash([]byte("x")), tail.TailHash, 0)
	require.ErrorIs(t, err, ErrLedgerHeightOverflow)
}

// P4: an endorser never signs two distinct MetaBlocks for the same
// (handle, height); conditional-height opt-out (cond_height=0) still only
// ever advances the stored height by exactly one.
func TestEndorserMonotonicity(t *testing.T) {
	e := newTestEndorser(t)
	handle := DigestBytes([]byte("handle"))
	_, err := e.NewLedger(handle)
	require.NoError(t, err)

	_, err = e.Append(handle, BlockHash([]byte("x")), ZeroDigest, 0)
	require.NoError(t, err)
	e.mu.RLock()
	h1 := e.ledgers[handle].Height
	e.mu.RUnlock()
	require.Equal(t, uint64(1), h1)

	_, err = e.Append(handle, BlockHash([]byte("y")), ZeroDigest, 0)
	require.NoError(t, err)
	e.mu.RLock()
	h2 := e.ledgers[handle].Height
	e.mu.RUnlock()
	require.Equal(t, uint64(2), h2)
}

// P8: read-nonce freshness.
func TestEndorserReadLatestNonceFreshness(t *testing.T) {
	e := newTestEndorser(t)
	handle := DigestBytes([]byte("handle"))
	_, err := e.NewLedger(handle)
	require.NoError(t, err)

	n1, _ := NonceFromBytes(make([]byte, 16))
	n2 := n1
	n2[0] = 1

	sig1, err := e.ReadLatest(handle, n1)
	require.NoError(t, err)
	sig2, err := e.ReadLatest(handle, n2)
	require.NoError(t, err)
	require.NotEqual(t, sig1, sig2)
}

func TestEndorserReadLatestUnknownHandle(t *testing.T) {
	e := newTestEndorser(t)
	n, _ := NonceFromBytes(make([]byte, 16))
	_, err := e.ReadLatest(DigestBytes([]byte("nope")), n)
	require.ErrorIs(t, err, ErrInvalidLedgerName)
}

// P7: lock safety.
func TestEndorserLockSafety(t *testing.T) {
	e := newTestEndorser(t)
	handle := DigestBytes([]byte("handle"))
	_, err := e.NewLedger(handle)
	require.NoError(t, err)

	n, _ := NonceFromBytes(make([]byte, 16))
	_, _, err = e.ReadLatestState(n, 0, true)
	require.NoError(t, err)
	require.True(t, e.IsLocked())

	_, err = e.Append(handle, BlockHash([]byte("x")), ZeroDigest, 0)
	require.ErrorIs(t, err, ErrLocked)

	_, err = e.AppendViewLedger(DigestBytes([]byte("new view")), e.viewTailHash)
	require.ErrorIs(t, err, ErrLocked)
}

func TestEndorserLockIgnoredForStaleView(t *testing.T) {
	e := newTestEndorser(t)
	n, _ := NonceFromBytes(make([]byte, 16))

	_, err := e.AppendViewLedger(DigestBytes([]byte("members v2")), e.viewTailHash)
	require.NoError(t, err)

	// The endorser's view height is now 1; a lock request pinned at the
	// earlier height 0 is stale and must be silently ignored, not an error.
	_, _, err = e.ReadLatestState(n, 0, true)
	require.NoError(t, err)
	require.False(t, e.IsLocked())
}

func TestEndorserAppendViewLedgerChain(t *testing.T) {
	e := newTestEndorser(t)
	firstViewTail := e.viewTailHash

	sig, err := e.AppendViewLedger(DigestBytes([]byte("members v2")), firstViewTail)
	require.NoError(t, err)
	require.True(t, e.GetPublicKey().Verify(e.viewTailHash.Bytes(), sig))
	require.NotEqual(t, firstViewTail, e.viewTailHash)
}

func TestEndorserAppendViewLedgerWrongCondTail(t *testing.T) {
	e := newTestEndorser(t)
	_, err := e.AppendViewLedger(DigestBytes([]byte("members v2")), DigestBytes([]byte("wrong")))
	require.ErrorIs(t, err, ErrInvalidConditionalTail)
}

// Scenario 6: genesis determinism — same nonce, fresh service nonce each
// time, yields distinct handles but identical genesis block layout.
func TestGenesisDeterminism(t *testing.T) {
	clientNonce, _ := NonceFromBytes(make([]byte, 16))
	service1, _ := NonceFromBytes(append([]byte{1}, make([]byte, 15)...))
	service2, _ := NonceFromBytes(append([]byte{2}, make([]byte, 15)...))

	app := []byte("hello")
	b1 := GenesisBlock(service1, clientNonce, app)
	b2 := GenesisBlock(service2, clientNonce, app)

	require.NotEqual(t, BlockHash(b1), BlockHash(b2))
	require.Equal(t, b1[16:32], clientNonce.Bytes())
	require.Equal(t, b2[16:32], clientNonce.Bytes())
	require.Equal(t, app, b1[32:])
	require.Equal(t, app, b2[32:])
}
