// File: cmd/basp-node/run.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/momentics/hioload-basp/backend"
	"github.com/momentics/hioload-basp/control"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var shutdownTimeout time.Duration

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the node and serve until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, level, err := control.SetupLogger(cfg.Log)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
		return runNode(cmd.Context(), logger, level)
	},
}

func init() {
	runCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "time allowed for a graceful shutdown")
	rootCmd.AddCommand(runCmd)
}

func runNode(ctx context.Context, logger *zap.Logger, level zap.AtomicLevel) error {
	metrics := control.NewMetricsRegistry()
	node, err := backend.New(cfg, backend.WithLogger(logger), backend.WithMetrics(metrics))
	if err != nil {
		return err
	}

	probes := control.NewDebugProbes()
	control.RegisterPlatformProbes(probes)
	probes.RegisterMetrics(metrics)
	probes.RegisterProbe("peers", func() any { return node.Peers() })
	probes.RegisterProbe("proxies", func() any { return node.Proxies().Len() })

	var reloader control.Reloader
	reloader.RegisterReloadHook(func(c control.Config) {
		level.SetLevel(control.ParseLevel(c.Log.Level))
		logger.Info("configuration reloaded", zap.String("level", c.Log.Level))
	})
	if err := reloader.Watch(cfgFile, func(err error) {
		logger.Warn("ignoring invalid configuration", zap.Error(err))
	}); err != nil {
		logger.Debug("configuration file not watched", zap.Error(err))
	}

	if err := node.Start(); err != nil {
		logger.Error("node started with errors", zap.Error(err))
	}
	logger.Info("node running", zap.String("node", string(node.System().Node())))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	dump := make(chan os.Signal, 1)
	if sigs := dumpSignals(); len(sigs) > 0 {
		signal.Notify(dump, sigs...)
	}
	defer signal.Stop(stop)
	defer signal.Stop(dump)

loop:
	for {
		select {
		case <-dump:
			logger.Info("debug state", probes.Fields()...)
		case sig := <-stop:
			logger.Info("shutting down", zap.Stringer("signal", sig))
			break loop
		case <-node.Done():
			logger.Warn("multiplexer stopped unexpectedly")
			break loop
		case <-ctx.Done():
			break loop
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return node.Shutdown(sctx)
}
