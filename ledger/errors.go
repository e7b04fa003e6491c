package ledger

import "errors"

// Endorser precondition errors (§4.4, §7). Each names a single precondition
// failure; callers distinguish them with errors.Is.
var (
	ErrLocked                 = errors.New("ledger: endorser is locked for a view change")
	ErrInvalidLedgerName      = errors.New("ledger: unknown ledger handle")
	ErrLedgerAlreadyExists    = errors.New("ledger: handle already has a ledger")
	ErrInvalidConditionalTail = errors.New("ledger: conditional tail hash does not match current tail")
	ErrInvalidTailHeight      = errors.New("ledger: conditional height is neither 0 nor current+1")
	ErrOutOfOrderAppend       = errors.New("ledger: append height is at or behind the current tail")
	ErrAlreadyInitialized     = errors.New("ledger: endorser has already been initialized")
)

// Receipt verification errors (§4.3, §7).
var (
	ErrDuplicateIDs       = errors.New("ledger: receipt contains duplicate signer ids")
	ErrInsufficientQuorum = errors.New("ledger: receipt does not meet quorum")
	ErrInvalidPublicKey   = errors.New("ledger: signer id is not in the allowed set")
	ErrInvalidSignature   = errors.New("ledger: signature does not verify")
)
