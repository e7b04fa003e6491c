// Package ledgertesting provides an in-process endorser fleet and bootstrapped
// coordinator for exercising the ledger service end to end in tests,
// mirroring mmrtesting's role for the teacher's massif log.
package ledgertesting

import (
	"context"
	"testing"

	"github.com/datatrails/go-datatrails-common/logger"

	"github.com/datatrails/go-verifiedledger/coordinator"
	"github.com/datatrails/go-verifiedledger/ledger"
	"github.com/datatrails/go-verifiedledger/store"
)

// Fleet is a bootstrapped, in-process ledger service: n endorsers, a
// memstore-backed coordinator, and the logger they share.
type Fleet struct {
	Log         logger.Logger
	Coordinator *coordinator.Coordinator
	Endorsers   []*ledger.Endorser
	Store       *store.MemStore
}

// NewFleet spins up n in-process endorsers wired to a fresh MemStore behind
// a single bootstrapped Coordinator. t.Fatal is called on any setup failure
// so callers can treat NewFleet as infallible.
func NewFleet(t *testing.T, n int) *Fleet {
	t.Helper()

	logger.New("TEST")
	log := logger.Sugar.WithServiceName(t.Name())

	endorsers := make([]*ledger.Endorser, n)
	clients := make([]coordinator.EndorserClient, n)
	for i := 0; i < n; i++ {
		e, err := ledger.NewEndorser(log)
		if err != nil {
			t.Fatalf("ledgertesting: failed to create endorser %d: %v", i, err)
		}
		endorsers[i] = e
		clients[i] = coordinator.NewLocalEndorserClient(e)
	}

	st := store.NewMemStore()
	c, err := coordinator.New(log, st, clients)
	if err != nil {
		t.Fatalf("ledgertesting: failed to create coordinator: %v", err)
	}
	if err := c.Bootstrap(context.Background()); err != nil {
		t.Fatalf("ledgertesting: bootstrap failed: %v", err)
	}

	return &Fleet{Log: log, Coordinator: c, Endorsers: endorsers, Store: st}
}
