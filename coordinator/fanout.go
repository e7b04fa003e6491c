package coordinator

import (
	"context"
	"sync"

	"github.com/datatrails/go-verifiedledger/ledger"
)

// endorserResult is one endorser's response to a fanned-out call.
type endorserResult struct {
	key ledger.PublicKey
	sig []byte
	err error
}

// fanout calls call against every member of clients concurrently and
// collects every response, including errors, onto a buffered channel before
// returning. A slow or unreachable endorser never blocks its siblings: each
// call runs on its own goroutine and the WaitGroup only gates the return,
// not endorser-to-endorser ordering (§5).
func fanout(ctx context.Context, clients []EndorserClient, call func(ctx context.Context, c EndorserClient) ([]byte, error)) []endorserResult {
	results := make(chan endorserResult, len(clients))
	var wg sync.WaitGroup

	for _, c := range clients {
		wg.Add(1)
		go func(c EndorserClient) {
			defer wg.Done()
			key, keyErr := c.PublicKey(ctx)
			if keyErr != nil {
				results <- endorserResult{err: keyErr}
				return
			}
			sig, err := call(ctx, c)
			results <- endorserResult{key: key, sig: sig, err: err}
		}(c)
	}

	wg.Wait()
	close(results)

	out := make([]endorserResult, 0, len(clients))
	for r := range results {
		out = append(out, r)
	}
	return out
}

// collectReceipt builds a plain Receipt from the successful fanout results.
// It neither verifies signatures nor checks membership (the caller's
// Receipt.Verify does both); a per-endorser error is not logged and is
// simply excluded from the receipt, since Receipt.Verify's quorum threshold
// already tolerates a minority of failures.
func collectReceipt(results []endorserResult) ledger.Receipt {
	var r ledger.Receipt
	for _, res := range results {
		if res.err != nil || res.sig == nil {
			continue
		}
		r.Add(res.key, res.sig)
	}
	return r
}

func collectViewChangeReceipt(results []endorserResult) ledger.ViewChangeReceipt {
	var r ledger.ViewChangeReceipt
	for _, res := range results {
		if res.err != nil || res.sig == nil {
			continue
		}
		r.Add(res.key, res.sig)
	}
	return r
}
