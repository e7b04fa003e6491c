// Command endorser runs a single endorser process (§4.9): it binds a
// listener at host:port and blocks until terminated. The wire protocol for
// serving Endorser's RPCs over that listener is the out-of-scope transport
// collaborator (§6); this binary exists to give the endorser process a
// lifecycle (bind, log, wait for signal) independent of that transport.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/datatrails/go-datatrails-common/logger"

	"github.com/datatrails/go-verifiedledger/ledger"
)

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintf(os.Stderr, "usage: %s <port> <host>\n", os.Args[0])
		os.Exit(1)
	}
	port, host := os.Args[1], os.Args[2]

	logger.New("INFO")
	log := logger.Sugar.WithServiceName("endorser")

	e, err := ledger.NewEndorser(log)
	if err != nil {
		log.Infof("endorser: failed to generate keypair: %v", err)
		os.Exit(1)
	}

	addr := net.JoinHostPort(host, port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Infof("endorser: failed to bind %s: %v", addr, err)
		os.Exit(1)
	}
	defer lis.Close()

	log.Infof("endorser listening on %s, public key %x", addr, e.GetPublicKey().Bytes())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Infof("endorser shutting down")
}
