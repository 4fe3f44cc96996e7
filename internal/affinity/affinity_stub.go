//go:build !linux
// +build !linux

// File: internal/affinity/affinity_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package affinity

// pinPlatform is a no-op where thread affinity is unsupported.
func pinPlatform(cpuID int) error {
	return nil
}
