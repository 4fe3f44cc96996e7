//go:build linux
// +build linux

// Copyright 2025 momentics@gmail.com
// File: reactor/loop_linux_test.go
//
// Loop tests against real sockets: accept, decode, write-back, close
// causes, limits and shutdown phases.

package reactor

import (
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"

	"github.com/momentics/hioload-chat/api"
	"github.com/momentics/hioload-chat/internal/bufpool"
	"github.com/momentics/hioload-chat/internal/queue"
	"github.com/momentics/hioload-chat/internal/session"
	"github.com/momentics/hioload-chat/metrics"
	"github.com/momentics/hioload-chat/protocol"
)

type harness struct {
	loop   *Loop
	tasks  *queue.TaskQueue
	table  *session.Table
	met    *metrics.Metrics
	runErr chan error
}

func startLoop(t *testing.T, cfg Config) *harness {
	t.Helper()
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:0"
	}
	if cfg.SendQueue == 0 {
		cfg.SendQueue = 64
	}
	h := &harness{
		tasks:  queue.New(1, 256, queue.OverflowBlock, nil),
		table:  session.NewTable(8),
		met:    metrics.New("test"),
		runErr: make(chan error, 1),
	}
	loop, err := New(cfg, Deps{
		Log:     zaptest.NewLogger(t),
		Metrics: h.met,
		Table:   h.table,
		Tasks:   h.tasks,
		Buffers: bufpool.New(512, 64*1024),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.loop = loop
	go func() { h.runErr <- loop.Run() }()
	t.Cleanup(func() {
		loop.Kill()
		<-loop.Done()
		if err := <-h.runErr; err != nil {
			t.Errorf("Run returned %v", err)
		}
	})
	return h
}

func (h *harness) dial(t *testing.T) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", h.loop.Port()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// waitTask pulls the next non-tick task off the single test lane.
func (h *harness) waitTask(t *testing.T, kind api.TaskKind) api.Task {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case task := <-h.tasks.Lane(0):
			if task.Kind == api.TaskTick {
				continue
			}
			if task.Kind != kind {
				t.Fatalf("task kind = %v, want %v", task.Kind, kind)
			}
			return task
		case <-deadline:
			t.Fatalf("no %v task within deadline", kind)
		}
	}
}

func mustFrame(t *testing.T, mt protocol.MsgType, payload []byte) []byte {
	t.Helper()
	out, err := protocol.EncodeFrame(mt, payload)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	return out
}

func readFrame(t *testing.T, conn net.Conn) *protocol.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	header := make([]byte, protocol.HeaderSize)
	if _, err := io.ReadFull(conn, header); err != nil {
		t.Fatalf("read header: %v", err)
	}
	payload := make([]byte, int(header[1])<<8|int(header[2]))
	if _, err := io.ReadFull(conn, payload); err != nil {
		t.Fatalf("read payload: %v", err)
	}
	return &protocol.Frame{Type: protocol.MsgType(header[0]), Payload: payload}
}

// login writes a Login frame and returns the session ID the loop
// assigned to this connection.
func (h *harness) login(t *testing.T, conn net.Conn, identity string) uint64 {
	t.Helper()
	if _, err := conn.Write(mustFrame(t, protocol.MsgLogin, []byte(identity))); err != nil {
		t.Fatalf("write login: %v", err)
	}
	task := h.waitTask(t, api.TaskFrame)
	if task.Frame.Type != protocol.MsgLogin {
		t.Fatalf("frame type = %v, want login", task.Frame.Type)
	}
	if string(task.Frame.Payload) != identity {
		t.Fatalf("payload = %q, want %q", task.Frame.Payload, identity)
	}
	return task.SessionID
}

func TestAcceptAndDecode(t *testing.T) {
	h := startLoop(t, Config{})
	conn := h.dial(t)

	sid := h.login(t, conn, "alice")
	if sid == 0 {
		t.Fatal("session ID must be non-zero")
	}
	if _, ok := h.table.Get(sid); !ok {
		t.Fatalf("session %d not in table", sid)
	}
	if got := testutil.ToFloat64(h.met.ActiveConnections); got != 1 {
		t.Fatalf("active connections = %v, want 1", got)
	}
}

func TestFragmentedFrameDecodesOnce(t *testing.T) {
	h := startLoop(t, Config{})
	conn := h.dial(t)

	frame := mustFrame(t, protocol.MsgMessage, []byte("hello fragmented"))
	for _, b := range frame[:protocol.HeaderSize] {
		if _, err := conn.Write([]byte{b}); err != nil {
			t.Fatalf("write: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	rest := frame[protocol.HeaderSize:]
	if _, err := conn.Write(rest[:len(rest)/2]); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := conn.Write(rest[len(rest)/2:]); err != nil {
		t.Fatalf("write: %v", err)
	}

	task := h.waitTask(t, api.TaskFrame)
	if string(task.Frame.Payload) != "hello fragmented" {
		t.Fatalf("payload = %q", task.Frame.Payload)
	}
}

func TestCoalescedFramesSplit(t *testing.T) {
	h := startLoop(t, Config{})
	conn := h.dial(t)

	var burst []byte
	burst = append(burst, mustFrame(t, protocol.MsgPing, nil)...)
	burst = append(burst, mustFrame(t, protocol.MsgMessage, []byte("one"))...)
	burst = append(burst, mustFrame(t, protocol.MsgMessage, []byte("two"))...)
	if _, err := conn.Write(burst); err != nil {
		t.Fatalf("write: %v", err)
	}

	for _, want := range []string{"", "one", "two"} {
		task := h.waitTask(t, api.TaskFrame)
		if string(task.Frame.Payload) != want {
			t.Fatalf("payload = %q, want %q", task.Frame.Payload, want)
		}
	}
}

func TestSenderDeliversToClient(t *testing.T) {
	h := startLoop(t, Config{})
	conn := h.dial(t)
	sid := h.login(t, conn, "alice")

	sender := h.loop.Sender()
	if err := sender.Send(sid, mustFrame(t, protocol.MsgPong, nil)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got := readFrame(t, conn)
	if got.Type != protocol.MsgPong {
		t.Fatalf("frame type = %v, want pong", got.Type)
	}
}

func TestSenderCloseTearsDown(t *testing.T) {
	h := startLoop(t, Config{})
	conn := h.dial(t)
	sid := h.login(t, conn, "alice")

	if err := h.loop.Sender().Close(sid, api.ReasonEvicted); err != nil {
		t.Fatalf("Close: %v", err)
	}
	task := h.waitTask(t, api.TaskDisconnect)
	if task.SessionID != sid || task.Reason != api.ReasonEvicted {
		t.Fatalf("disconnect = %+v", task)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Read(make([]byte, 1)); err != io.EOF {
		t.Fatalf("read after close = %v, want EOF", err)
	}
	waitGone(t, h.table, sid)
}

func TestPeerCloseCleansUp(t *testing.T) {
	h := startLoop(t, Config{})
	conn := h.dial(t)
	sid := h.login(t, conn, "alice")

	conn.Close()
	task := h.waitTask(t, api.TaskDisconnect)
	if task.SessionID != sid || task.Reason != api.ReasonPeerClosed {
		t.Fatalf("disconnect = %+v", task)
	}
	waitGone(t, h.table, sid)
}

func TestOversizedFrameRejected(t *testing.T) {
	h := startLoop(t, Config{MaxPayload: 128})
	conn := h.dial(t)
	sid := h.login(t, conn, "alice")

	// Header declaring 1000 payload bytes, over the 128 limit.
	if _, err := conn.Write([]byte{byte(protocol.MsgMessage), 0x03, 0xE8}); err != nil {
		t.Fatalf("write: %v", err)
	}

	got := readFrame(t, conn)
	if got.Type != protocol.MsgError {
		t.Fatalf("frame type = %v, want error", got.Type)
	}
	code, _, err := protocol.DecodeError(got.Payload)
	if err != nil {
		t.Fatalf("DecodeError: %v", err)
	}
	if code != protocol.CodeFrameTooLarge {
		t.Fatalf("code = %d, want %d", code, protocol.CodeFrameTooLarge)
	}

	task := h.waitTask(t, api.TaskDisconnect)
	if task.SessionID != sid || task.Reason != api.ReasonProtocolError {
		t.Fatalf("disconnect = %+v", task)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Read(make([]byte, 1)); err != io.EOF {
		t.Fatalf("read after reject = %v, want EOF", err)
	}
}

func TestConnectionLimit(t *testing.T) {
	h := startLoop(t, Config{MaxConnections: 1})
	first := h.dial(t)
	h.login(t, first, "alice")

	second := h.dial(t)
	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := second.Read(make([]byte, 1)); err != io.EOF {
		t.Fatalf("read on rejected conn = %v, want EOF", err)
	}
	if got := testutil.ToFloat64(h.met.RejectedTotal); got != 1 {
		t.Fatalf("rejected total = %v, want 1", got)
	}
}

func TestIdleTimeout(t *testing.T) {
	h := startLoop(t, Config{IdleTimeout: 200 * time.Millisecond})
	conn := h.dial(t)
	sid := h.login(t, conn, "alice")

	task := h.waitTask(t, api.TaskDisconnect)
	if task.SessionID != sid || task.Reason != api.ReasonIdleTimeout {
		t.Fatalf("disconnect = %+v", task)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Read(make([]byte, 1)); err != io.EOF {
		t.Fatalf("read after idle close = %v, want EOF", err)
	}
}

func TestDrainThenFlushStopsLoop(t *testing.T) {
	h := startLoop(t, Config{})
	conn := h.dial(t)
	h.login(t, conn, "alice")

	h.loop.BeginDrain()
	if _, err := net.DialTimeout("tcp",
		fmt.Sprintf("127.0.0.1:%d", h.loop.Port()), 500*time.Millisecond); err == nil {
		t.Fatal("dial succeeded after drain began")
	}

	// Once draining, the loop enqueues nothing more: the coordinator can
	// close the queue without racing a producer.
	h.loop.Flush(time.Second)
	select {
	case task := <-h.tasks.Lane(0):
		if task.Kind != api.TaskTick {
			t.Fatalf("unexpected %v task after drain began", task.Kind)
		}
	default:
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Read(make([]byte, 1)); err != io.EOF {
		t.Fatalf("read after flush = %v, want EOF", err)
	}
	select {
	case <-h.loop.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after flush")
	}
}

func TestSendAfterStopFails(t *testing.T) {
	h := startLoop(t, Config{})
	sender := h.loop.Sender()
	h.loop.Kill()
	<-h.loop.Done()

	if err := sender.Send(1, []byte{byte(protocol.MsgPong), 0, 0}); err != api.ErrServerClosed {
		t.Fatalf("Send after stop = %v, want %v", err, api.ErrServerClosed)
	}
	if err := sender.Close(1, api.ReasonNone); err != api.ErrServerClosed {
		t.Fatalf("Close after stop = %v, want %v", err, api.ErrServerClosed)
	}
}

// waitGone polls until the session leaves the table.
func waitGone(t *testing.T, table *session.Table, sid uint64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := table.Get(sid); !ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session %d still in table", sid)
}
