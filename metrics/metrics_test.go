package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxpert/amqp-peer/driver"
	"github.com/maxpert/amqp-peer/interfaces"
	"github.com/maxpert/amqp-peer/protocol"
)

var _ driver.MetricsCollector = (*Collector)(nil)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	return NewCollector("test", registry), registry
}

func TestNewCollector(t *testing.T) {
	collector, registry := newTestCollector(t)
	require.NotNil(t, collector)

	collector.RecordFrameIn("Open")
	count, err := testutil.GatherAndCount(registry, "test_frames_in_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// nil registerer leaves the metrics unregistered
	assert.NotPanics(t, func() {
		NewCollector("", nil).RecordDecodeError()
	})
}

func TestRecordConnectionOperations(t *testing.T) {
	collector, _ := newTestCollector(t)

	collector.RecordConnectionCreated()
	collector.RecordConnectionCreated()
	collector.RecordConnectionClosed()
	collector.RecordConnectionFailed()

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.ConnectionsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.ConnectionsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.ConnectionsClosed))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.ConnectionsFailed))
}

func TestRecordFrameOperations(t *testing.T) {
	collector, _ := newTestCollector(t)

	collector.RecordFrameIn("Begin")
	collector.RecordFrameIn("Begin")
	collector.RecordFrameOut("Attach")
	collector.RecordBytesIn(100)
	collector.RecordBytesOut(64)
	collector.RecordBytesOut(36)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.FramesIn.WithLabelValues("Begin")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.FramesOut.WithLabelValues("Attach")))
	assert.Equal(t, 100.0, testutil.ToFloat64(collector.BytesIn))
	assert.Equal(t, 100.0, testutil.ToFloat64(collector.BytesOut))
}

func TestEndpointGauges(t *testing.T) {
	collector, _ := newTestCollector(t)

	collector.RecordSessionOpened()
	collector.RecordLinkAttached()
	collector.RecordLinkAttached()
	collector.RecordLinkDetached()
	collector.RecordSessionClosed()

	assert.Equal(t, 0.0, testutil.ToFloat64(collector.SessionsOpen))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.LinksOpen))
}

func TestErrorMetrics(t *testing.T) {
	collector, _ := newTestCollector(t)

	collector.RecordProtocolViolation("amqp:session:unattached-handle")
	collector.RecordProtocolViolation("amqp:session:unattached-handle")
	collector.RecordDecodeError()
	collector.RecordSASLOutcome("PLAIN", false)
	collector.RecordSASLOutcome("ANONYMOUS", true)

	assert.Equal(t, 2.0, testutil.ToFloat64(
		collector.ProtocolViolations.WithLabelValues("amqp:session:unattached-handle")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.DecodeErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.SASLOutcomes.WithLabelValues("PLAIN", "auth")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.SASLOutcomes.WithLabelValues("ANONYMOUS", "ok")))
}

func TestDriverFeedsCollector(t *testing.T) {
	collector, _ := newTestCollector(t)
	d := driver.New(interfaces.PeerConfig{}, driver.WithMetrics(collector))
	d.OnOutput(func([]byte) {})

	require.NoError(t, d.SendHeader(protocol.AMQPHeader))
	assert.Greater(t, testutil.ToFloat64(collector.BytesOut), 0.0)
}

func TestMetricsServer(t *testing.T) {
	collector, registry := newTestCollector(t)
	collector.UpdateServerUptime(42)

	server := NewServer("", registry, nil)
	assert.Equal(t, DefaultAddress, server.Address())

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "test_server_uptime_seconds 42"))

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsServerHealth(t *testing.T) {
	_, registry := newTestCollector(t)
	server := NewServer(":0", registry, func() interfaces.HealthStatus {
		return interfaces.HealthStatus{Status: "degraded", Uptime: time.Second, Errors: []string{"listener down"}}
	})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status interfaces.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "degraded", status.Status)
	assert.Equal(t, []string{"listener down"}, status.Errors)
}
