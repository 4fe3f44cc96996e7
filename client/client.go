// File: client/client.go
// Package client provides a blocking TLV chat client for chatd.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The client is deliberately simple: one TCP connection, synchronous
// writes, a blocking Recv. Concurrent senders are serialized by a
// write lock, so the optional heartbeat goroutine can share the
// connection with callers. Login success is silent by protocol;
// failures arrive asynchronously as Error frames through Recv.

package client

import (
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-chat/protocol"
)

// Config holds all configurable parameters for the chat client.
type Config struct {
	Addr         string        // server host:port
	DialTimeout  time.Duration // connect deadline (0 = OS default)
	ReadTimeout  time.Duration // per-Recv deadline (0 = block)
	WriteTimeout time.Duration // per-send deadline (0 = block)
	MaxPayload   int           // inbound payload bound (0 = wire maximum)
	PingInterval time.Duration // automatic Ping cadence (0 = disabled)
}

// Client is a synchronous chat connection.
type Client struct {
	cfg  Config
	conn net.Conn

	wmu sync.Mutex // serializes frame writes
	rmu sync.Mutex // serializes Recv

	closed  atomic.Bool
	closeCh chan struct{}
}

// Dial connects to the server and starts the optional heartbeat. It
// blocks until the TCP connection is established or fails.
func Dial(cfg Config) (*Client, error) {
	if cfg.MaxPayload <= 0 || cfg.MaxPayload > protocol.MaxPayload {
		cfg.MaxPayload = protocol.MaxPayload
	}
	conn, err := net.DialTimeout("tcp", cfg.Addr, cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", cfg.Addr, err)
	}
	c := &Client{
		cfg:     cfg,
		conn:    conn,
		closeCh: make(chan struct{}),
	}
	if cfg.PingInterval > 0 {
		go c.heartbeatLoop()
	}
	return c, nil
}

// Login submits the identity binding. The server stays silent on
// success; a duplicate or invalid identity arrives as an Error frame.
func (c *Client) Login(identity string) error {
	return c.writeFrame(protocol.MsgLogin, []byte(identity))
}

// Send delivers text to one recipient identity.
func (c *Client) Send(recipient string, text []byte) error {
	payload, err := protocol.EncodeDirect(recipient, text)
	if err != nil {
		return err
	}
	return c.writeFrame(protocol.MsgMessage, payload)
}

// Broadcast delivers text to every logged-in identity.
func (c *Client) Broadcast(text []byte) error {
	return c.writeFrame(protocol.MsgBroadcast, text)
}

// Ping sends a liveness probe; the server answers with Pong.
func (c *Client) Ping() error {
	return c.writeFrame(protocol.MsgPing, nil)
}

// Recv blocks for the next server frame, honoring ReadTimeout when
// configured. Relayed messages decode with protocol.DecodeRelay,
// errors with protocol.DecodeError.
func (c *Client) Recv() (*protocol.Frame, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()
	if c.closed.Load() {
		return nil, net.ErrClosed
	}
	if c.cfg.ReadTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
			return nil, err
		}
	}
	var header [protocol.HeaderSize]byte
	if _, err := io.ReadFull(c.conn, header[:]); err != nil {
		return nil, err
	}
	length := int(header[1])<<8 | int(header[2])
	if length > c.cfg.MaxPayload {
		c.Close()
		return nil, fmt.Errorf("client: inbound frame of %d bytes exceeds limit %d",
			length, c.cfg.MaxPayload)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(c.conn, payload); err != nil {
		return nil, err
	}
	return &protocol.Frame{Type: protocol.MsgType(header[0]), Payload: payload}, nil
}

// Close shuts the connection down; idempotent.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.closeCh)
	return c.conn.Close()
}

func (c *Client) writeFrame(t protocol.MsgType, payload []byte) error {
	if c.closed.Load() {
		return net.ErrClosed
	}
	out, err := protocol.EncodeFrame(t, payload)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.cfg.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
			return err
		}
	}
	_, err = c.conn.Write(out)
	return err
}

// heartbeatLoop pings on the configured cadence until Close or a
// failed write.
func (c *Client) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if c.Ping() != nil {
				return
			}
		case <-c.closeCh:
			return
		}
	}
}
