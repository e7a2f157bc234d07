// Licensed under the MIT License. See LICENSE file in the project root for details.

//go:build linux

package affinity

import (
	"golang.org/x/sys/unix"
)

// Pin binds the calling thread to the given logical CPU. The caller must
// already hold the thread via runtime.LockOSThread, otherwise the scheduler
// may migrate the goroutine off the pinned thread.
func Pin(cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	// Thread id 0 means "the calling thread".
	return unix.SchedSetaffinity(0, &set)
}

// Current reports the CPU the calling thread last ran on.
func Current() int {
	cpu, _, err := unix.Getcpu()
	if err != nil {
		return -1
	}
	return cpu
}
