// File: server/run.go
// Package server implements startup, the shutdown coordinator and the
// signal-driven drain sequence for the chat daemon.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Start launches the worker pool, the reactor loop and the optional
// metrics listener. It returns immediately; Wait collects their exit.
func (s *Server) Start() {
	s.workers.Start()
	s.g = &errgroup.Group{}
	s.g.Go(s.loop.Run)
	if s.cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.met.Handler())
		mux.Handle("/debug/state", s.probes.handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok\n"))
		})
		s.msrv = &http.Server{Addr: s.cfg.MetricsAddr, Handler: mux}
		s.g.Go(func() error {
			s.log.Info("metrics listening", zap.String("addr", s.cfg.MetricsAddr))
			if err := s.msrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	s.log.Info("chatd started",
		zap.String("name", s.info.Name),
		zap.String("version", s.info.Version),
		zap.String("instance", s.info.InstanceID),
		zap.String("listen_addr", s.cfg.ListenAddr),
		zap.Int("port", s.loop.Port()),
		zap.Int("workers", s.cfg.Workers),
	)
}

// Wait blocks until the reactor loop and metrics listener have exited.
func (s *Server) Wait() error {
	return s.g.Wait()
}

// Shutdown runs the drain sequence once: stop accepting and reading,
// close the queue after the reactor acknowledged it will enqueue no
// more, let workers finish every queued task, then flush and close all
// sessions bounded by the shutdown timeout.
func (s *Server) Shutdown() {
	if !s.draining.CompareAndSwap(false, true) {
		return
	}
	s.log.Info("draining",
		zap.Int("sessions", s.table.Len()),
		zap.Int("queued_tasks", s.tasks.Depth()),
	)
	s.loop.BeginDrain()
	s.tasks.Close()
	s.workers.Wait()
	s.loop.Flush(s.cfg.ShutdownTimeout)
	<-s.loop.Done()
	s.stopMetrics()
	stats := s.workers.Stats()
	s.log.Info("drained",
		zap.Int64("tasks_processed", stats.Processed),
		zap.Int64("handler_panics", stats.Panics),
	)
}

// Kill aborts without flushing: the reactor dies, lanes close so
// workers run out, the metrics listener stops. Used on the second
// termination signal and after an unexpected reactor exit.
func (s *Server) Kill() {
	s.loop.Kill()
	<-s.loop.Done()
	s.tasks.Close()
	s.stopMetrics()
}

// Run starts the server and blocks until a termination signal has been
// fully handled. The first SIGINT/SIGTERM drains gracefully; a second
// one while draining forces an immediate close.
func (s *Server) Run(ctx context.Context) error {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	s.Start()

	select {
	case sig := <-sigCh:
		s.log.Info("termination signal, draining", zap.String("signal", sig.String()))
		forced := make(chan struct{})
		go func() {
			select {
			case sig := <-sigCh:
				s.log.Warn("second termination signal, forcing shutdown",
					zap.String("signal", sig.String()))
				s.Kill()
			case <-forced:
			}
		}()
		s.Shutdown()
		close(forced)
	case <-ctx.Done():
		s.log.Info("context canceled, draining")
		s.Shutdown()
	case <-s.loop.Done():
		s.log.Warn("reactor exited unexpectedly")
		s.Kill()
	}

	err := s.Wait()
	s.log.Info("chatd stopped")
	return err
}

func (s *Server) stopMetrics() {
	if s.msrv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.msrv.Shutdown(ctx)
}
