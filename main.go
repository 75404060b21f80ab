// Command erpcache runs the edge cache and sync bus server: it loads
// configuration from the environment, wires the cache/stream/webhook/
// refresh/user core into an HTTP API, and serves until interrupted.
package main

import (
	"log"

	"erpcache.eve.dev/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
