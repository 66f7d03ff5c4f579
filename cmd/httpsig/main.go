// Command httpsig signs and verifies HTTP requests with draft-cavage HTTP
// signatures, and can run a server that only accepts signed requests.
//
// Every flag can also be set in a config file (--config) or through an
// HTTPSIG_ environment variable, e.g. HTTPSIG_KEY_DIR for --key-dir.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
