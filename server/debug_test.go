// Copyright 2025 momentics@gmail.com
// License: Apache 2.0

// debug_test.go — probe registry and the /debug/state handler.

package server

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
)

func TestDebugProbesDump(t *testing.T) {
	dp := newDebugProbes()
	dp.register("answer", func() any { return 42 })
	dp.register("label", func() any { return "chat" })

	out := dp.dump()
	if out["answer"] != 42 {
		t.Errorf("answer probe = %v, want 42", out["answer"])
	}
	if out["label"] != "chat" {
		t.Errorf("label probe = %v, want chat", out["label"])
	}

	// Later registrations replace earlier ones.
	dp.register("answer", func() any { return 43 })
	if got := dp.dump()["answer"]; got != 43 {
		t.Errorf("answer probe after re-register = %v, want 43", got)
	}
}

func TestDebugStateHandler(t *testing.T) {
	dp := newDebugProbes()
	dp.register("sessions", func() any {
		return map[string]any{"open": 7}
	})

	rec := httptest.NewRecorder()
	dp.handler().ServeHTTP(rec, httptest.NewRequest("GET", "/debug/state", nil))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var state map[string]map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if got := state["sessions"]["open"]; got != float64(7) {
		t.Errorf("sessions.open = %v, want 7", got)
	}
}
