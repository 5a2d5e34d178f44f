package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for the peer. It satisfies the
// driver's MetricsCollector and adds connection level counters for the
// server.
type Collector struct {
	// Connection metrics
	ConnectionsTotal   prometheus.Gauge
	ConnectionsCreated prometheus.Counter
	ConnectionsClosed  prometheus.Counter
	ConnectionsFailed  prometheus.Counter

	// Frame metrics
	FramesIn  *prometheus.CounterVec
	FramesOut *prometheus.CounterVec
	BytesIn   prometheus.Counter
	BytesOut  prometheus.Counter

	// Endpoint metrics
	SessionsOpen prometheus.Gauge
	LinksOpen    prometheus.Gauge

	// Error metrics
	ProtocolViolations *prometheus.CounterVec
	DecodeErrors       prometheus.Counter
	SASLOutcomes       *prometheus.CounterVec

	// Server metrics
	ServerUptime prometheus.Gauge
}

// NewCollector creates the peer's metrics and registers them on registerer.
// A nil registerer leaves them unregistered.
func NewCollector(namespace string, registerer prometheus.Registerer) *Collector {
	if namespace == "" {
		namespace = "amqp_peer"
	}
	factory := promauto.With(registerer)

	return &Collector{
		// Connection metrics
		ConnectionsTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Current number of active connections",
		}),
		ConnectionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_created_total",
			Help:      "Total number of connections accepted since server start",
		}),
		ConnectionsClosed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_closed_total",
			Help:      "Total number of connections closed since server start",
		}),
		ConnectionsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_failed_total",
			Help:      "Total number of connections whose driver reported a failure",
		}),

		// Frame metrics
		FramesIn: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_in_total",
			Help:      "Frames received by performative",
		}, []string{"performative"}),
		FramesOut: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_out_total",
			Help:      "Frames sent by performative",
		}, []string{"performative"}),
		BytesIn: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_in_total",
			Help:      "Bytes received, headers included",
		}),
		BytesOut: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_out_total",
			Help:      "Bytes sent, headers included",
		}),

		// Endpoint metrics
		SessionsOpen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_open",
			Help:      "Sessions begun by the remote peer and not yet ended",
		}),
		LinksOpen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "links_open",
			Help:      "Links attached by the remote peer and not yet detached",
		}),

		// Error metrics
		ProtocolViolations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_violations_total",
			Help:      "Protocol violations by the remote peer, by error condition",
		}, []string{"condition"}),
		DecodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Inbound bytes that could not be decoded",
		}),
		SASLOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sasl_outcomes_total",
			Help:      "SASL outcomes sent, by mechanism and result",
		}, []string{"mechanism", "result"}),

		// Server metrics
		ServerUptime: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "server_uptime_seconds",
			Help:      "Server uptime in seconds",
		}),
	}
}

// RecordConnectionCreated increments connection creation counter and total
func (c *Collector) RecordConnectionCreated() {
	c.ConnectionsCreated.Inc()
	c.ConnectionsTotal.Inc()
}

// RecordConnectionClosed increments connection close counter and decrements total
func (c *Collector) RecordConnectionClosed() {
	c.ConnectionsClosed.Inc()
	c.ConnectionsTotal.Dec()
}

// RecordConnectionFailed counts a connection torn down by a driver failure
func (c *Collector) RecordConnectionFailed() {
	c.ConnectionsFailed.Inc()
}

func (c *Collector) RecordFrameIn(performative string) {
	c.FramesIn.WithLabelValues(performative).Inc()
}

func (c *Collector) RecordFrameOut(performative string) {
	c.FramesOut.WithLabelValues(performative).Inc()
}

func (c *Collector) RecordBytesIn(n int)  { c.BytesIn.Add(float64(n)) }
func (c *Collector) RecordBytesOut(n int) { c.BytesOut.Add(float64(n)) }

func (c *Collector) RecordSessionOpened() { c.SessionsOpen.Inc() }
func (c *Collector) RecordSessionClosed() { c.SessionsOpen.Dec() }
func (c *Collector) RecordLinkAttached()  { c.LinksOpen.Inc() }
func (c *Collector) RecordLinkDetached()  { c.LinksOpen.Dec() }

// RecordProtocolViolation counts a violation under its error condition
func (c *Collector) RecordProtocolViolation(condition string) {
	c.ProtocolViolations.WithLabelValues(condition).Inc()
}

func (c *Collector) RecordDecodeError() {
	c.DecodeErrors.Inc()
}

// RecordSASLOutcome counts an outcome sent for mechanism
func (c *Collector) RecordSASLOutcome(mechanism string, ok bool) {
	result := "ok"
	if !ok {
		result = "auth"
	}
	c.SASLOutcomes.WithLabelValues(mechanism, result).Inc()
}

// UpdateServerUptime updates the server uptime metric
func (c *Collector) UpdateServerUptime(seconds float64) {
	c.ServerUptime.Set(seconds)
}
