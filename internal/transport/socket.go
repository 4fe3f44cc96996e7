// internal/transport/socket.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import "errors"

// ErrWouldBlock reports that a non-blocking operation found no data to
// read or no room to write. Edge-triggered callers treat it as "stop
// until the next readiness event".
var ErrWouldBlock = errors.New("transport: operation would block")
