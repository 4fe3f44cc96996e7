// File: metrics/metrics.go
// Package metrics exposes chatd's Prometheus instrumentation.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// All collectors live in a private registry so tests can construct
// as many instances as they like. The instance label carries the boot
// UUID, letting dashboards tell restarts apart on one host.

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/momentics/hioload-chat/api"
	"github.com/momentics/hioload-chat/protocol"
)

const namespace = "chatd"

// Metrics bundles every collector the engine updates.
type Metrics struct {
	registry *prometheus.Registry

	ActiveConnections     prometheus.Gauge
	AuthenticatedSessions prometheus.Gauge
	QueueDepth            prometheus.Gauge
	OutboxDepth           prometheus.Gauge

	AcceptedTotal      prometheus.Counter
	RejectedTotal      prometheus.Counter
	FramesIn           *prometheus.CounterVec
	FramesOut          *prometheus.CounterVec
	BytesIn            prometheus.Counter
	BytesOut           prometheus.Counter
	TasksDropped       prometheus.Counter
	Disconnects        *prometheus.CounterVec
	HandlerPanics      prometheus.Counter
	BroadcastFanout    prometheus.Histogram
	DispatchSeconds    prometheus.Histogram
}

// New builds a Metrics set on a fresh registry. instanceID becomes a
// constant label on every series.
func New(instanceID string) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(prometheus.WrapRegistererWith(
		prometheus.Labels{"instance": instanceID}, registry))

	m := &Metrics{registry: registry}

	m.ActiveConnections = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "active_connections",
		Help: "Open client connections.",
	})
	m.AuthenticatedSessions = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "authenticated_sessions",
		Help: "Sessions with a bound identity.",
	})
	m.QueueDepth = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "task_queue_depth",
		Help: "Tasks buffered across worker lanes.",
	})
	m.OutboxDepth = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "outbox_depth",
		Help: "Pending worker-to-reactor submissions.",
	})
	m.AcceptedTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "connections_accepted_total",
		Help: "Connections accepted since boot.",
	})
	m.RejectedTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "connections_rejected_total",
		Help: "Connections turned away by the connection ceiling.",
	})
	m.FramesIn = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "frames_in_total",
		Help: "Inbound frames by type.",
	}, []string{"type"})
	m.FramesOut = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "frames_out_total",
		Help: "Outbound frames by type.",
	}, []string{"type"})
	m.BytesIn = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "bytes_in_total",
		Help: "Payload bytes read from clients.",
	})
	m.BytesOut = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "bytes_out_total",
		Help: "Payload bytes written to clients.",
	})
	m.TasksDropped = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "tasks_dropped_total",
		Help: "Tasks discarded by the overflow policy.",
	})
	m.Disconnects = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "disconnects_total",
		Help: "Closed sessions by reason.",
	}, []string{"reason"})
	m.HandlerPanics = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "handler_panics_total",
		Help: "Recovered panics in task handlers.",
	})
	m.BroadcastFanout = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Name: "broadcast_fanout",
		Help:    "Recipients per broadcast.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
	m.DispatchSeconds = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Name: "dispatch_seconds",
		Help:    "Task handler latency.",
		Buckets: prometheus.ExponentialBuckets(0.000005, 4, 10),
	})

	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordFrameIn counts one inbound frame and its payload bytes.
func (m *Metrics) RecordFrameIn(t protocol.MsgType, payloadLen int) {
	m.FramesIn.WithLabelValues(t.String()).Inc()
	m.BytesIn.Add(float64(payloadLen))
}

// RecordFrameOut counts one outbound frame and its payload bytes.
func (m *Metrics) RecordFrameOut(t protocol.MsgType, payloadLen int) {
	m.FramesOut.WithLabelValues(t.String()).Inc()
	m.BytesOut.Add(float64(payloadLen))
}

// RecordDisconnect counts one session teardown.
func (m *Metrics) RecordDisconnect(reason api.Reason) {
	m.Disconnects.WithLabelValues(reason.String()).Inc()
}
