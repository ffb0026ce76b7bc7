// wg-tunnel brings a WireGuard tunnel up from a YAML config file.
//
// Usage:
//
//	wg-tunnel up [-c config.yaml]   # connect and stay up until interrupted
//	wg-tunnel validate              # check the config's tunnel section
//	wg-tunnel keygen                # print a fresh key pair as JSON
//	wg-tunnel pubkey < private.key  # derive a public key
package main

import (
	"fmt"
	"os"

	"github.com/user/wg-tunnel/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
