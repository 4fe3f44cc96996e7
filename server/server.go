// File: server/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Server is the facade wiring every subsystem of the chat daemon:
// buffer pool, session table, identity registry, task queue, worker
// pool and the reactor loop. New builds them in dependency order and
// registers the chat handlers; run.go drives the lifecycle.

package server

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/momentics/hioload-chat/api"
	"github.com/momentics/hioload-chat/config"
	"github.com/momentics/hioload-chat/internal/bufpool"
	"github.com/momentics/hioload-chat/internal/dispatch"
	"github.com/momentics/hioload-chat/internal/queue"
	"github.com/momentics/hioload-chat/internal/session"
	"github.com/momentics/hioload-chat/internal/worker"
	"github.com/momentics/hioload-chat/logging"
	"github.com/momentics/hioload-chat/metrics"
	"github.com/momentics/hioload-chat/protocol"
	"github.com/momentics/hioload-chat/reactor"
)

// Server owns the full pipeline of the chat daemon.
type Server struct {
	cfg  config.Config
	log  *zap.Logger
	met  *metrics.Metrics
	info api.ServiceInfo

	buffers  *bufpool.Pool
	table    *session.Table
	registry *session.Registry
	tasks    *queue.TaskQueue
	dispatch *dispatch.Dispatcher
	workers  *worker.Pool
	loop     *reactor.Loop
	sender   api.Sender

	// pong is encoded once; every ping reuses it.
	pong []byte

	probes *debugProbes

	g        *errgroup.Group
	msrv     *http.Server
	draining atomic.Bool
}

// New validates cfg and assembles the server. Nothing runs until
// Start or Run; startup failures (bind, epoll, logger) surface here.
func New(cfg config.Config, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		log, err := logging.New(cfg.Log)
		if err != nil {
			return nil, fmt.Errorf("server: logger: %w", err)
		}
		s.log = log
	}
	if s.info.Name == "" {
		s.info.Name = "chatd"
	}
	if s.info.Version == "" {
		s.info.Version = "dev"
	}
	if s.info.InstanceID == "" {
		s.info.InstanceID = uuid.NewString()
	}
	s.info.StartedAt = time.Now()
	if s.met == nil {
		s.met = metrics.New(s.info.InstanceID)
	}

	s.buffers = bufpool.New(4*1024, 1<<20)
	s.table = session.NewTable(32)
	s.registry = session.NewRegistry(cfg.DuplicatePolicyValue())
	s.tasks = queue.New(cfg.Workers, cfg.QueueDepth, cfg.OverflowPolicyValue(), s.onDropTask)
	s.dispatch = dispatch.New(s.log)

	loop, err := reactor.New(reactor.Config{
		ListenAddr:     cfg.ListenAddr,
		MaxConnections: cfg.MaxConnections,
		MaxPayload:     cfg.MaxPayload,
		ReadBuffer:     cfg.ReadBuffer,
		SendQueue:      cfg.SendQueue,
		IdleTimeout:    cfg.IdleTimeout,
		DrainTimeout:   cfg.DrainTimeout,
		PinLoop:        cfg.PinIOThread,
		LoopCPU:        cfg.IOThreadCPU,
	}, reactor.Deps{
		Log:     s.log,
		Metrics: s.met,
		Table:   s.table,
		Tasks:   s.tasks,
		Buffers: s.buffers,
	})
	if err != nil {
		return nil, err
	}
	s.loop = loop
	s.sender = loop.Sender()
	s.workers = worker.New(s.tasks, s.handleTask, s.sender, s.log)
	s.workers.OnPanic(s.met.HandlerPanics.Inc)

	pong, err := protocol.EncodeFrame(protocol.MsgPong, nil)
	if err != nil {
		return nil, err
	}
	s.pong = pong

	s.dispatch.Register(protocol.MsgLogin, s.handleLogin)
	s.dispatch.Register(protocol.MsgMessage, s.handleDirect)
	s.dispatch.Register(protocol.MsgBroadcast, s.handleBroadcast)
	s.dispatch.Register(protocol.MsgPing, s.handlePing)

	s.probes = newDebugProbes()
	s.registerDefaultProbes()
	return s, nil
}

// Port returns the bound listen port, useful with ":0" configs.
func (s *Server) Port() int { return s.loop.Port() }

// Info describes this server instance.
func (s *Server) Info() api.ServiceInfo { return s.info }

// Stats returns worker pool counters.
func (s *Server) Stats() worker.Stats { return s.workers.Stats() }

func (s *Server) onDropTask(t api.Task) {
	s.met.TasksDropped.Inc()
	s.log.Debug("task dropped: queue full",
		zap.Uint64("session_id", t.SessionID),
		zap.Stringer("kind", t.Kind),
	)
}
