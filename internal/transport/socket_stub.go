// internal/transport/socket_stub.go
//go:build !linux
// +build !linux

//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Stub socket layer for unsupported platforms.

package transport

import "github.com/momentics/hioload-chat/api"

func Listen(addr string, backlog int) (int, error)    { return -1, api.ErrNotSupported }
func Accept(listenFd int) (int, string, error)        { return -1, "", api.ErrNotSupported }
func SetNoDelay(fd int) error                         { return api.ErrNotSupported }
func Read(fd int, buf []byte) (int, error)            { return 0, api.ErrNotSupported }
func Write(fd int, buf []byte) (int, error)           { return 0, api.ErrNotSupported }
func CloseFd(fd int) error                            { return api.ErrNotSupported }
func LocalPort(fd int) (int, error)                   { return 0, api.ErrNotSupported }
