//go:build linux

package concurrency

import (
	"runtime"
	"testing"

	"golang.org/x/sys/unix"
)

func TestPinCurrentThread(t *testing.T) {
	done := make(chan error, 1)
	go func() {
		defer runtime.UnlockOSThread()
		var before unix.CPUSet
		if err := unix.SchedGetaffinity(0, &before); err != nil {
			done <- err
			return
		}
		cpu := -1
		for i := 0; i < runtime.NumCPU(); i++ {
			if before.IsSet(i) {
				cpu = i
				break
			}
		}
		if err := PinCurrentThread(cpu); err != nil {
			done <- err
			return
		}
		var after unix.CPUSet
		if err := unix.SchedGetaffinity(0, &after); err != nil {
			done <- err
			return
		}
		if cpu >= 0 && (after.Count() != 1 || !after.IsSet(cpu)) {
			t.Errorf("affinity %d cpus, want only cpu %d", after.Count(), cpu)
		}
		// Restore so the thread is usable once unlocked.
		done <- unix.SchedSetaffinity(0, &before)
	}()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestPinCurrentThreadRejectsOutOfRange(t *testing.T) {
	done := make(chan error, 1)
	go func() {
		defer runtime.UnlockOSThread()
		done <- PinCurrentThread(runtime.NumCPU())
	}()
	if err := <-done; err == nil {
		t.Fatal("expected an error for a cpu beyond NumCPU")
	}
}
