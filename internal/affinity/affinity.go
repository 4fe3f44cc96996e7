// File: internal/affinity/affinity.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Platform-neutral API for CPU affinity. The platform implementations
// live in affinity_linux.go and affinity_stub.go behind build tags.

package affinity

// Pin binds the calling OS thread to one logical CPU. The caller must
// hold runtime.LockOSThread for the binding to mean anything. On
// platforms without affinity support this is a no-op.
func Pin(cpuID int) error {
	return pinPlatform(cpuID)
}
