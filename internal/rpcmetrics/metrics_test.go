package rpcmetrics

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestCountersAndBreakdown(t *testing.T) {
	m := New()

	m.IncrementCommandByName("call")
	m.IncrementCommandByName("call")
	m.IncrementCommandByName("get")
	m.IncrementCommands() // unlabeled, counts as "unknown"
	m.IncrementNonfatalErrors()
	m.IncrementFatalShutdowns()
	m.IncrementFatalShutdowns()
	m.ObserveCommandDuration(5 * time.Millisecond)

	if got := m.GetCommands(); got != 4 {
		t.Fatalf("GetCommands() = %d, want 4", got)
	}
	if got := m.GetNonfatalErrors(); got != 1 {
		t.Fatalf("GetNonfatalErrors() = %d, want 1", got)
	}
	if got := m.GetFatalShutdowns(); got != 2 {
		t.Fatalf("GetFatalShutdowns() = %d, want 2", got)
	}

	var buf bytes.Buffer
	m.WritePrometheus(&buf)
	out := buf.String()
	for _, want := range []string{
		`luarpc_commands_total{command="call"} 2`,
		`luarpc_commands_total{command="get"} 1`,
		`luarpc_nonfatal_errors_total 1`,
		`luarpc_fatal_shutdowns_total 2`,
		`luarpc_command_duration_seconds`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("WritePrometheus output missing %q; got:\n%s", want, out)
		}
	}
}
