//go:build linux

// File: internal/concurrency/pin_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"github.com/momentics/hioload-basp/api"
	"golang.org/x/sys/unix"
)

func platformPin(cpu int) error {
	var set unix.CPUSet
	set.Set(cpu)
	// Pid 0 targets the calling thread.
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return api.NewSyscallError("sched_setaffinity", err)
	}
	return nil
}
