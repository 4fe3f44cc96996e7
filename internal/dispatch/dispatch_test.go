// Copyright 2025 momentics@gmail.com
// License: Apache 2.0

package dispatch

import (
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/momentics/hioload-chat/protocol"
)

func TestDispatchRoutesByType(t *testing.T) {
	d := New(zaptest.NewLogger(t))
	var gotSid uint64
	var gotType protocol.MsgType
	d.Register(protocol.MsgPing, func(sid uint64, f *protocol.Frame) error {
		gotSid, gotType = sid, f.Type
		return nil
	})

	err := d.Dispatch(42, &protocol.Frame{Type: protocol.MsgPing})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if gotSid != 42 || gotType != protocol.MsgPing {
		t.Errorf("handler saw (%d, %v)", gotSid, gotType)
	}
	if !d.Handles(protocol.MsgPing) || d.Handles(protocol.MsgLogin) {
		t.Error("Handles table wrong")
	}
}

// TestDispatchUnknownTypeIsFatal checks the contract that an
// unregistered type is rejected loudly, not dropped.
func TestDispatchUnknownTypeIsFatal(t *testing.T) {
	d := New(zaptest.NewLogger(t))
	err := d.Dispatch(7, &protocol.Frame{Type: protocol.MsgType(0x30)})
	if err == nil {
		t.Fatal("unknown type dispatched without error")
	}
	var we *protocol.WireError
	if !errors.As(err, &we) {
		t.Fatalf("err = %T, want *protocol.WireError", err)
	}
	if we.Code != protocol.CodeUnknownType || !we.Fatal {
		t.Errorf("wire error = %+v, want fatal CodeUnknownType", we)
	}
}

func TestDispatchPropagatesHandlerError(t *testing.T) {
	d := New(zaptest.NewLogger(t))
	sentinel := errors.New("handler failed")
	d.Register(protocol.MsgLogin, func(uint64, *protocol.Frame) error {
		return sentinel
	})
	if err := d.Dispatch(1, &protocol.Frame{Type: protocol.MsgLogin}); !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want sentinel", err)
	}
}
