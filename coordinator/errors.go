package coordinator

import "errors"

// Sentinel errors returned by the coordinator orchestrator (§4.5, §7).
var (
	ErrNoEndorsers          = errors.New("coordinator: no endorsers configured")
	ErrAlreadyBootstrapped  = errors.New("coordinator: already bootstrapped")
	ErrNotBootstrapped      = errors.New("coordinator: not yet bootstrapped")
	ErrQuorumUnreachable    = errors.New("coordinator: too few endorsers responded to form a quorum")
	ErrViewChangeInProgress = errors.New("coordinator: a view change is already in progress")
)
