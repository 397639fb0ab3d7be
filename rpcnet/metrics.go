package rpcnet

import "sync/atomic"

// Metrics is the always-on, per-process counter set every ServerHandle
// updates unconditionally (a client Handle does not update it), mirroring the teacher's
// transport.Metrics/DefaultMetrics split: a lightweight interface plus one
// atomic-counter implementation. internal/rpcmetrics layers a
// VictoriaMetrics-backed process exporter alongside this, not instead of it.
type Metrics interface {
	IncrementCommands()
	IncrementNonfatalErrors()
	IncrementFatalShutdowns()

	GetCommands() int64
	GetNonfatalErrors() int64
	GetFatalShutdowns() int64
}

// DefaultMetrics implements Metrics with atomic counters.
type DefaultMetrics struct {
	commands       int64
	nonfatalErrors int64
	fatalShutdowns int64
}

// NewDefaultMetrics returns a zeroed DefaultMetrics.
func NewDefaultMetrics() *DefaultMetrics { return &DefaultMetrics{} }

func (m *DefaultMetrics) IncrementCommands()      { atomic.AddInt64(&m.commands, 1) }
func (m *DefaultMetrics) IncrementNonfatalErrors() { atomic.AddInt64(&m.nonfatalErrors, 1) }
func (m *DefaultMetrics) IncrementFatalShutdowns() { atomic.AddInt64(&m.fatalShutdowns, 1) }

func (m *DefaultMetrics) GetCommands() int64       { return atomic.LoadInt64(&m.commands) }
func (m *DefaultMetrics) GetNonfatalErrors() int64 { return atomic.LoadInt64(&m.nonfatalErrors) }
func (m *DefaultMetrics) GetFatalShutdowns() int64 { return atomic.LoadInt64(&m.fatalShutdowns) }
