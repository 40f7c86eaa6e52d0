// File: cmd/basp-node/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// basp-node runs one actor system node that talks BASP to its peers.

package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
