// Command luarpcd is a reference standalone server: it binds a
// ServerHandle over an in-memory Capability and serves CALL/GET/
// NEWINDEX/CON requests until interrupted.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/atsika/luarpc/host"
	"github.com/atsika/luarpc/internal/config"
	"github.com/atsika/luarpc/internal/rpcmetrics"
	"github.com/atsika/luarpc/negotiate"
	"github.com/atsika/luarpc/rpcnet"
	"github.com/rs/zerolog"
)

func main() {
	fs, flags, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	if flags.Help {
		fmt.Printf("usage: %s [options]\n\noptions:\n%s", os.Args[0], fs.FlagUsages())
		os.Exit(0)
	}

	cfg, err := config.Load(flags.EnvFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config: %v\n", err)
		os.Exit(1)
	}

	var logger zerolog.Logger
	if cfg.LogStdoutPretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(cfg.LogLevel).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(os.Stderr).Level(cfg.LogLevel).With().Timestamp().Logger()
	}

	metrics := rpcmetrics.New()
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
			metrics.WritePrometheus(w)
		})
		go func() {
			logger.Info().Str("addr", cfg.MetricsAddr).Msg("starting metrics server")
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	cap := demoCapability()

	srv, err := rpcnet.Listen(cfg.Addr, cfg.Backlog, cap, negotiate.HostNative(),
		rpcnet.WithLogger(logger),
		rpcnet.WithMetrics(metrics),
		rpcnet.WithMaxLinkErrs(cfg.MaxLinkErrs),
		rpcnet.WithPollIntervals(cfg.FastPoll, cfg.SteadyPoll),
	)
	if err != nil {
		logger.Error().Err(err).Str("addr", cfg.Addr).Msg("failed to bind listener")
		os.Exit(1)
	}
	defer srv.Close()

	logger.Info().Str("addr", cfg.Addr).Msg("listening")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()

	select {
	case <-sig:
		logger.Info().Msg("shutting down")
		srv.Close()
		<-done
	case err := <-done:
		if err != nil {
			logger.Error().Err(err).Msg("server exited")
			os.Exit(1)
		}
	}
}

// demoCapability seeds a Capability with a couple of globals useful for
// smoke-testing against cmd/luarpc-probe: an "echo" function returning
// its arguments unchanged, and a "counters" table GET/NEWINDEX can
// round-trip through.
func demoCapability() *host.MemHost {
	cap := host.NewMemHost()
	cap.RegisterFunc("echo", func(args []host.Value) ([]host.Value, error) {
		return args, nil
	})
	cap.SetGlobal("counters", host.TableValue(host.NewTable()))
	return cap
}
