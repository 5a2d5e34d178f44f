package driver

// MetricsCollector receives the driver's frame and tracker counters. The
// metrics package provides a Prometheus implementation.
type MetricsCollector interface {
	RecordFrameIn(performative string)
	RecordFrameOut(performative string)
	RecordBytesIn(n int)
	RecordBytesOut(n int)

	RecordSessionOpened()
	RecordSessionClosed()
	RecordLinkAttached()
	RecordLinkDetached()

	RecordProtocolViolation(condition string)
	RecordDecodeError()
}

// NoOpMetricsCollector is a metrics collector that does nothing
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) RecordFrameIn(performative string)        {}
func (NoOpMetricsCollector) RecordFrameOut(performative string)       {}
func (NoOpMetricsCollector) RecordBytesIn(n int)                      {}
func (NoOpMetricsCollector) RecordBytesOut(n int)                     {}
func (NoOpMetricsCollector) RecordSessionOpened()                     {}
func (NoOpMetricsCollector) RecordSessionClosed()                     {}
func (NoOpMetricsCollector) RecordLinkAttached()                      {}
func (NoOpMetricsCollector) RecordLinkDetached()                      {}
func (NoOpMetricsCollector) RecordProtocolViolation(condition string) {}
func (NoOpMetricsCollector) RecordDecodeError()                       {}
