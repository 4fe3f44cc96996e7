// File: server/debug.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Runtime debug probes for internal inspection, served as JSON on the
// metrics listener under /debug/state.

package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"time"
)

// debugProbes holds named probe functions returning live state.
type debugProbes struct {
	mu     sync.RWMutex
	probes map[string]func() any
}

func newDebugProbes() *debugProbes {
	return &debugProbes{probes: make(map[string]func() any)}
}

// register inserts a named probe. Later registrations win.
func (dp *debugProbes) register(name string, fn func() any) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.probes[name] = fn
}

// dump evaluates every probe at one point in time.
func (dp *debugProbes) dump() map[string]any {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	out := make(map[string]any, len(dp.probes))
	for name, fn := range dp.probes {
		out[name] = fn()
	}
	return out
}

func (dp *debugProbes) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.Encode(dp.dump())
	})
}

// RegisterDebugProbe exposes a named state hook on /debug/state,
// alongside the built-in session, queue and runtime probes.
func (s *Server) RegisterDebugProbe(name string, fn func() any) {
	s.probes.register(name, fn)
}

func (s *Server) registerDefaultProbes() {
	s.probes.register("service", func() any {
		return map[string]any{
			"name":     s.info.Name,
			"version":  s.info.Version,
			"instance": s.info.InstanceID,
			"uptime":   time.Since(s.info.StartedAt).String(),
		}
	})
	s.probes.register("sessions", func() any {
		return map[string]any{
			"open":       s.table.Len(),
			"identities": s.registry.Len(),
		}
	})
	s.probes.register("tasks", func() any {
		stats := s.workers.Stats()
		return map[string]any{
			"queued":    s.tasks.Depth(),
			"enqueued":  s.tasks.Enqueued(),
			"dropped":   s.tasks.Dropped(),
			"processed": stats.Processed,
			"panics":    stats.Panics,
		}
	})
	s.probes.register("runtime", func() any {
		return map[string]any{
			"goroutines": runtime.NumGoroutine(),
			"cpus":       runtime.NumCPU(),
		}
	})
}
