// File: cmd/basp-node/root.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"fmt"

	"github.com/momentics/hioload-basp/control"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	nodeID  string

	cfg control.Config
)

var rootCmd = &cobra.Command{
	Use:   "basp-node",
	Short: "Run and inspect a BASP actor system node",
	Long: `basp-node hosts a local actor system and connects it to remote nodes
over stream and datagram sockets using the binary actor system protocol.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = control.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if nodeID != "" {
			cfg.Node.ID = nodeID
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./basp-node.yaml)")
	rootCmd.PersistentFlags().StringVar(&nodeID, "node-id", "", "node identity announced in handshakes")
}
