// File: server/options.go
// Package server defines functional options for the Server facade.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"go.uber.org/zap"

	"github.com/momentics/hioload-chat/metrics"
)

// Option customizes server initialization.
type Option func(*Server)

// WithLogger replaces the logger built from the config's log section.
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// WithMetrics injects a prepared metrics set, keeping registries
// independent when several servers share a process.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.met = m
	}
}

// WithBuildInfo stamps the service name and version reported in logs
// and the version command.
func WithBuildInfo(name, version string) Option {
	return func(s *Server) {
		s.info.Name = name
		s.info.Version = version
	}
}
