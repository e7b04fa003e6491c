// Command coordinator runs the orchestrator against a configured endorser
// fleet and storage backend (§4.9). Bootstrap runs before the process binds
// its own listener; either failing is a non-zero exit.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/datatrails/go-datatrails-common/logger"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/datatrails/go-verifiedledger/coordinator"
	"github.com/datatrails/go-verifiedledger/ledger"
	"github.com/datatrails/go-verifiedledger/store"
)

// endorserList accumulates repeated -endorser flag values, the flag.Var
// idiom for a string-slice flag (no CLI framework in the pack reaches for
// this shape of argument list over stdlib flag; see DESIGN.md).
type endorserList []string

func (l *endorserList) String() string { return strings.Join(*l, ",") }
func (l *endorserList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func main() {
	fs := flag.NewFlagSet("coordinator", flag.ExitOnError)
	var endorsers endorserList
	fs.Var(&endorsers, "endorser", "endorser address (repeatable)")

	if len(os.Args) < 4 {
		fmt.Fprintf(os.Stderr, "usage: %s <port> <host> <store: memory|mongodb_cosmos> [-endorser addr]...\n", os.Args[0])
		os.Exit(1)
	}
	port, host, storeKind := os.Args[1], os.Args[2], os.Args[3]
	if err := fs.Parse(os.Args[4:]); err != nil {
		os.Exit(1)
	}
	if len(endorsers) == 0 {
		fmt.Fprintln(os.Stderr, "coordinator: at least one -endorser is required")
		os.Exit(1)
	}

	logger.New("INFO")
	log := logger.Sugar.WithServiceName("coordinator")

	st, err := newStore(storeKind)
	if err != nil {
		log.Infof("coordinator: store init failed: %v", err)
		os.Exit(1)
	}

	// No wire transport is implemented (§6); each configured endorser
	// address names a logical member of this process's in-process fleet,
	// which is the reference EndorserClient implementation the CLI and
	// ledgertesting both use.
	clients := make([]coordinator.EndorserClient, len(endorsers))
	for i, addr := range endorsers {
		e, err := ledger.NewEndorser(log.WithServiceName(addr))
		if err != nil {
			log.Infof("coordinator: failed to start endorser %s: %v", addr, err)
			os.Exit(1)
		}
		clients[i] = coordinator.NewLocalEndorserClient(e)
	}

	c, err := coordinator.New(log, st, clients)
	if err != nil {
		log.Infof("coordinator: init failed: %v", err)
		os.Exit(1)
	}
	if err := c.Bootstrap(context.Background()); err != nil {
		log.Infof("coordinator: bootstrap failed: %v", err)
		os.Exit(1)
	}

	addr := net.JoinHostPort(host, port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Infof("coordinator: failed to bind %s: %v", addr, err)
		os.Exit(1)
	}
	defer lis.Close()

	log.Infof("coordinator listening on %s with %d endorsers, store=%s", addr, len(clients), storeKind)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Infof("coordinator shutting down")
}

func newStore(kind string) (store.Store, error) {
	switch kind {
	case "memory":
		return store.NewMemStore(), nil
	case "mongodb_cosmos":
		uri := os.Getenv("COSMOS_MONGO_URI")
		if uri == "" {
			return nil, fmt.Errorf("COSMOS_MONGO_URI must be set for the mongodb_cosmos store")
		}
		client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(uri))
		if err != nil {
			return nil, err
		}
		return store.NewCosmosStore(client, "verifiedledger"), nil
	default:
		return nil, fmt.Errorf("unknown store kind %q", kind)
	}
}
