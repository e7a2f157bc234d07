// Licensed under the MIT License. See LICENSE file in the project root for details.

//go:build !linux

package affinity

// Pin is a no-op on platforms without sched_setaffinity. Worker threads
// still run on locked OS threads; they just float across cores.
func Pin(cpu int) error {
	return nil
}

// Current is unsupported off Linux.
func Current() int {
	return -1
}
