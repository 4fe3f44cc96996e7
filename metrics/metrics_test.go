// Copyright 2025 momentics@gmail.com
// License: Apache 2.0

package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/momentics/hioload-chat/api"
	"github.com/momentics/hioload-chat/protocol"
)

func TestCountersRecord(t *testing.T) {
	m := New("test-instance")

	m.RecordFrameIn(protocol.MsgLogin, 5)
	m.RecordFrameIn(protocol.MsgLogin, 7)
	m.RecordFrameOut(protocol.MsgError, 10)
	m.RecordDisconnect(api.ReasonIdleTimeout)
	m.ActiveConnections.Inc()

	if got := testutil.ToFloat64(m.FramesIn.WithLabelValues("LOGIN")); got != 2 {
		t.Errorf("frames_in{LOGIN} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.BytesIn); got != 12 {
		t.Errorf("bytes_in = %v, want 12", got)
	}
	if got := testutil.ToFloat64(m.Disconnects.WithLabelValues("idle_timeout")); got != 1 {
		t.Errorf("disconnects{idle_timeout} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ActiveConnections); got != 1 {
		t.Errorf("active_connections = %v, want 1", got)
	}
}

func TestHandlerExposesSeries(t *testing.T) {
	m := New("boot-42")
	m.AcceptedTotal.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, "chatd_connections_accepted_total") {
		t.Fatalf("exposition missing counter:\n%s", body)
	}
	if !strings.Contains(body, `instance="boot-42"`) {
		t.Errorf("exposition missing instance label")
	}
}

func TestIndependentRegistries(t *testing.T) {
	a := New("a")
	b := New("b")
	a.AcceptedTotal.Inc()
	if got := testutil.ToFloat64(b.AcceptedTotal); got != 0 {
		t.Fatalf("registries leak between instances: %v", got)
	}
}
