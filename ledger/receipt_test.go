package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func mustSigners(t *testing.T, n int) ([]*Signer, []PublicKey) {
	t.Helper()
	signers := make([]*Signer, n)
	keys := make([]PublicKey, n)
	for i := range signers {
		s, err := NewSigner()
		require.NoError(t, err)
		signers[i] = s
		keys[i] = s.PublicKey()
	}
	return signers, keys
}

// P5: quorum soundness.
func TestReceiptVerifyQuorum(t *testing.T) {
	msg := []byte("msg")
	signers, keys := mustSigners(t, 3)

	var r Receipt
	for _, s := range signers[:2] {
		sig, err := s.Sign(msg)
		require.NoError(t, err)
		r.Add(s.PublicKey(), sig)
	}
	require.NoError(t, r.Verify(msg, keys))
}

func TestReceiptVerifyInsufficientQuorum(t *testing.T) {
	msg := []byte("msg")
	signers, keys := mustSigners(t, 3)

	var r Receipt
	sig, err := signers[0].Sign(msg)
	require.NoError(t, err)
	r.Add(signers[0].PublicKey(), sig)

	require.ErrorIs(t, r.Verify(msg, keys), ErrInsufficientQuorum)
}

func TestReceiptVerifyDuplicateIDs(t *testing.T) {
	msg := []byte("msg")
	signers, keys := mustSigners(t, 3)

	var r Receipt
	sig, err := signers[0].Sign(msg)
	require.NoError(t, err)
	r.Add(signers[0].PublicKey(), sig)
	r.Add(signers[0].PublicKey(), sig)

	require.ErrorIs(t, r.Verify(msg, keys), ErrDuplicateIDs)
}

func TestReceiptVerifyInvalidPublicKey(t *testing.T) {
	msg := []byte("msg")
	signers, keys := mustSigners(t, 3)
	outsider, _ := NewSigner()

	var r Receipt
	for _, s := range signers[:1] {
		sig, err := s.Sign(msg)
		require.NoError(t, err)
		r.Add(s.PublicKey(), sig)
	}
	sig, err := outsider.Sign(msg)
	require.NoError(t, err)
	r.Add(outsider.PublicKey(), sig)

	require.ErrorIs(t, r.Verify(msg, keys), ErrInvalidPublicKey)
}

func TestReceiptVerifyInvalidSignature(t *testing.T) {
	msg := []byte("msg")
	signers, keys := mustSigners(t, 3)

	var r Receipt
	badSig, err := signers[0].Sign([]byte("other message"))
	require.NoError(t, err)
	r.Add(signers[0].PublicKey(), badSig)
	sig, err := signers[1].Sign(msg)
	require.NoError(t, err)
	r.Add(signers[1].PublicKey(), sig)

	require.ErrorIs(t, r.Verify(msg, keys), ErrInvalidSignature)
}

// P6: view-change soundness.
func TestViewChangeReceiptVerify(t *testing.T) {
	msg := []byte("new view")
	outgoingSigners, outgoing := mustSigners(t, 3)
	newSigner, err := NewSigner()
	require.NoError(t, err)
	incoming := append(append([]PublicKey{}, outgoing...), newSigner.PublicKey())

	var r ViewChangeReceipt
	for _, s := range outgoingSigners[:2] {
		sig, serr := s.Sign(msg)
		require.NoError(t, serr)
		r.Add(s.PublicKey(), sig)
	}
	newSig, err := newSigner.Sign(msg)
	require.NoError(t, err)
	r.Add(newSigner.PublicKey(), newSig)

	require.NoError(t, r.Verify(msg, outgoing, incoming))
}

func TestViewChangeReceiptMissingNewMemberFails(t *testing.T) {
	msg := []byte("new view")
	outgoingSigners, outgoing := mustSigners(t, 3)
	newSigner, err := NewSigner()
	require.NoError(t, err)
	incoming := append(append([]PublicKey{}, outgoing...), newSigner.PublicKey())

	var r ViewChangeReceipt
	for _, s := range outgoingSigners[:2] {
		sig, serr := s.Sign(msg)
		require.NoError(t, serr)
		r.Add(s.PublicKey(), sig)
	}
	// omit newSigner's signature

	require.ErrorIs(t, r.Verify(msg, outgoing, incoming), ErrInsufficientQuorum)
}

func TestViewChangeReceiptInsufficientOutgoingQuorum(t *testing.T) {
	msg := []byte("new view")
	outgoingSigners, outgoing := mustSigners(t, 3)
	newSigner, err := NewSigner()
	require.NoError(t, err)
	incoming := append(append([]PublicKey{}, outgoing...), newSigner.PublicKey())

	var r ViewChangeReceipt
	sig, err := outgoingSigners[0].Sign(msg)
	require.NoError(t, err)
	r.Add(outgoingSigners[0].PublicKey(), sig)
	newSig, err := newSigner.Sign(msg)
	require.NoError(t, err)
	r.Add(newSigner.PublicKey(), newSig)

	require.ErrorIs(t, r.Verify(msg, outgoing, incoming), ErrInsufficientQuorum)
}
