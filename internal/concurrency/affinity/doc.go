// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package affinity pins OS threads to logical CPUs so each worker event loop
// and the writer loop own a core. On Linux this uses sched_setaffinity;
// elsewhere it degrades to a no-op.
package affinity
