package platform

import "runtime"

// numCPU is split out so tests can't accidentally depend on the host's
// actual core count mattering to behavior, only to pool sizing.
func numCPU() int {
	return runtime.NumCPU()
}
