// Command rsapd serves a smart card, local or remote, to RSAP clients over
// QUIC, JSON-RPC and gRPC.
package main

import (
	"flag"
	"fmt"
	"os"
)

func main() {
	configPath := flag.String("config", "rsapd.toml", "path to the TOML configuration")
	flag.Parse()

	d, err := newDaemon(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rsapd: %v\n", err)
		os.Exit(1)
	}
	if err := d.run(); err != nil {
		fmt.Fprintf(os.Stderr, "rsapd: %v\n", err)
		os.Exit(1)
	}
}
