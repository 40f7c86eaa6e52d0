// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, logging, runtime metrics, hot-reload and debug introspection
// for hioload-basp nodes.
//
// Provides:
//   - viper-backed node configuration with env overrides
//   - zap logger construction with lumberjack file rotation
//   - concurrent-safe metrics counters and gauges
//   - debug probes and reload hooks
package control
