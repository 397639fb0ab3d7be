// Package rpcmetrics is the optional, process-wide VictoriaMetrics
// exporter a server binary registers alongside (not instead of)
// rpcnet.DefaultMetrics's always-on atomic counters (SPEC_FULL §10.1).
// It is grounded on R2Northstar-Atlas's pkg/api/api0/metrics.go: a
// private metrics.Set, lazily populated once, with labeled counters
// minted through GetOrCreateCounter.
package rpcmetrics

import (
	"fmt"
	"io"
	"reflect"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/atsika/luarpc/rpcnet"
)

// knownCommands is pre-registered so the counter family always reports
// every label, even at zero, instead of only appearing after first use.
var knownCommands = []string{"call", "get", "newindex", "con"}

type metricsObj struct {
	set                    *metrics.Set
	commandsTotal          func(command string) *metrics.Counter
	nonfatalErrorsTotal    *metrics.Counter
	fatalShutdownsTotal    *metrics.Counter
	commandDurationSeconds *metrics.Histogram
}

// Metrics wraps a private VictoriaMetrics set tracking luarpc_commands_total
// (labeled by command), luarpc_nonfatal_errors_total,
// luarpc_fatal_shutdowns_total, and a luarpc_command_duration_seconds
// histogram. The zero value is not usable; construct with New.
type Metrics struct {
	once sync.Once
	obj  metricsObj
}

// New returns a Metrics ready for use.
func New() *Metrics { return &Metrics{} }

func (m *Metrics) m() *metricsObj {
	m.once.Do(func() {
		mo := &m.obj
		mo.set = metrics.NewSet()
		mo.commandsTotal = func(command string) *metrics.Counter {
			if command == "" {
				command = "unknown"
			}
			return mo.set.GetOrCreateCounter(`luarpc_commands_total{command="` + command + `"}`)
		}
		for _, c := range knownCommands {
			mo.commandsTotal(c)
		}
		mo.nonfatalErrorsTotal = mo.set.NewCounter(`luarpc_nonfatal_errors_total`)
		mo.fatalShutdownsTotal = mo.set.NewCounter(`luarpc_fatal_shutdowns_total`)
		mo.commandDurationSeconds = mo.set.NewHistogram(`luarpc_command_duration_seconds`)

		var chk func(v reflect.Value, name string)
		chk = func(v reflect.Value, name string) {
			switch v.Kind() {
			case reflect.Struct:
				for i := 0; i < v.NumField(); i++ {
					chk(v.Field(i), name+"."+v.Type().Field(i).Name)
				}
			case reflect.Pointer, reflect.Func:
				if v.IsNil() {
					panic(fmt.Errorf("rpcmetrics: unexpected nil %q", name))
				}
			}
		}
		chk(reflect.ValueOf(*mo), "metricsObj")
	})
	return &m.obj
}

// IncrementCommandByName records one command of the given kind (e.g.
// "call", "get", "newindex", "con"), in addition to the undifferentiated
// IncrementCommands every rpcnet.Metrics implementation tracks.
func (m *Metrics) IncrementCommandByName(command string) {
	m.m().commandsTotal(command).Inc()
}

// ObserveCommandDuration records how long one Dispatch step took.
func (m *Metrics) ObserveCommandDuration(d time.Duration) {
	m.m().commandDurationSeconds.Update(d.Seconds())
}

// IncrementCommands/IncrementNonfatalErrors/IncrementFatalShutdowns and
// their Get* counterparts satisfy rpcnet.Metrics, so a *Metrics can be
// passed directly to rpcnet.WithMetrics: the undifferentiated counters
// mirror rpcnet.DefaultMetrics, while IncrementCommandByName/
// ObserveCommandDuration give a caller that runs its own dispatch loop the
// per-command breakdown DefaultMetrics does not (cmd/luarpcd runs
// ServerHandle.Serve and calls neither).
// IncrementCommands satisfies rpcnet.Metrics' undifferentiated counter;
// rpcnet itself never calls IncrementCommandByName, so every command
// routed through rpcnet.WithMetrics lands in the "unknown" label here.
func (m *Metrics) IncrementCommands()      { m.IncrementCommandByName("") }
func (m *Metrics) IncrementNonfatalErrors() { m.m().nonfatalErrorsTotal.Inc() }
func (m *Metrics) IncrementFatalShutdowns() { m.m().fatalShutdownsTotal.Inc() }

func (m *Metrics) GetCommands() int64 {
	var total int64
	for _, c := range knownCommands {
		total += int64(m.m().commandsTotal(c).Get())
	}
	total += int64(m.m().commandsTotal("unknown").Get())
	return total
}

func (m *Metrics) GetNonfatalErrors() int64 { return int64(m.m().nonfatalErrorsTotal.Get()) }
func (m *Metrics) GetFatalShutdowns() int64 { return int64(m.m().fatalShutdownsTotal.Get()) }

// WritePrometheus exposes the full set (including the per-command
// breakdown and the duration histogram) in Prometheus text format, for a
// server binary's /metrics endpoint.
func (m *Metrics) WritePrometheus(w io.Writer) {
	m.m().set.WritePrometheus(w)
}

var _ rpcnet.Metrics = (*Metrics)(nil)
