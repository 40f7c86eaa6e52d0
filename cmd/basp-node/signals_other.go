//go:build !unix

// File: cmd/basp-node/signals_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import "os"

func dumpSignals() []os.Signal { return nil }
