package transport

import "sync/atomic"

// Metrics tracks per-transport I/O counters. Implementations update via
// Increment* from ReadExact/WriteAll; collectors read via Get*. This is the
// always-on, per-connection counterpart to internal/rpcmetrics's
// process-wide VictoriaMetrics registry (see DESIGN.md).
type Metrics interface {
	IncrementBytesSent(n int64)
	IncrementBytesReceived(n int64)

	GetBytesSent() int64
	GetBytesReceived() int64
}

// DefaultMetrics implements Metrics with atomic counters, mirroring the
// teacher's DefaultMetrics shape.
type DefaultMetrics struct {
	bytesSent     int64
	bytesReceived int64
}

// NewDefaultMetrics creates a zeroed DefaultMetrics.
func NewDefaultMetrics() *DefaultMetrics { return &DefaultMetrics{} }

func (m *DefaultMetrics) IncrementBytesSent(n int64) {
	atomic.AddInt64(&m.bytesSent, n)
}
func (m *DefaultMetrics) IncrementBytesReceived(n int64) {
	atomic.AddInt64(&m.bytesReceived, n)
}

func (m *DefaultMetrics) GetBytesSent() int64     { return atomic.LoadInt64(&m.bytesSent) }
func (m *DefaultMetrics) GetBytesReceived() int64 { return atomic.LoadInt64(&m.bytesReceived) }
