// File: cmd/basp-node/version.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"fmt"

	"github.com/momentics/hioload-basp/basp"
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags "-X main.version=x.y.z"
var version = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show basp-node and protocol versions",
	// The version needs no configuration.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "basp-node version %s\n", version)
		fmt.Fprintf(cmd.OutOrStdout(), "BASP version: %d\n", basp.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
