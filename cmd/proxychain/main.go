// Command proxychain runs the multiplexing HTTP proxy front-end as a
// standalone binary, wiring flag/env/file configuration, structured
// logging, and Server lifecycle together.
package main

import (
	"os"

	"github.com/proxychain-go/proxychain/cmd/proxychain/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
