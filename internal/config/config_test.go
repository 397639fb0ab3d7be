package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLoadDefaults(t *testing.T) {
	// Load from an env file guarantees the process's own environment
	// (which may carry unrelated LUARPCD_* leftovers in a shared CI box)
	// cannot leak in.
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.env")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Addr != ":8473" {
		t.Fatalf("Addr = %q, want :8473", c.Addr)
	}
	if c.MetricsAddr != "" {
		t.Fatalf("MetricsAddr = %q, want empty", c.MetricsAddr)
	}
	if c.Backlog != 8 {
		t.Fatalf("Backlog = %d, want 8", c.Backlog)
	}
	if c.MaxLinkErrs != 20 {
		t.Fatalf("MaxLinkErrs = %d, want 20", c.MaxLinkErrs)
	}
	if c.FastPoll != 10*time.Millisecond {
		t.Fatalf("FastPoll = %v, want 10ms", c.FastPoll)
	}
	if c.SteadyPoll != 250*time.Millisecond {
		t.Fatalf("SteadyPoll = %v, want 250ms", c.SteadyPoll)
	}
	if c.LogLevel != zerolog.InfoLevel {
		t.Fatalf("LogLevel = %v, want info", c.LogLevel)
	}
	if c.LogStdoutPretty {
		t.Fatalf("LogStdoutPretty = true, want false")
	}
}

func TestLoadOverridesFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "luarpcd.env")
	contents := "LUARPCD_ADDR=127.0.0.1:9000\n" +
		"LUARPCD_METRICS_ADDR=127.0.0.1:9001\n" +
		"LUARPCD_MAX_LINK_ERRS=5\n" +
		"LUARPCD_FAST_POLL=1ms\n" +
		"LUARPCD_LOG_LEVEL=debug\n" +
		"LUARPCD_LOG_STDOUT_PRETTY=true\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Addr != "127.0.0.1:9000" {
		t.Fatalf("Addr = %q, want 127.0.0.1:9000", c.Addr)
	}
	if c.MetricsAddr != "127.0.0.1:9001" {
		t.Fatalf("MetricsAddr = %q, want 127.0.0.1:9001", c.MetricsAddr)
	}
	if c.MaxLinkErrs != 5 {
		t.Fatalf("MaxLinkErrs = %d, want 5", c.MaxLinkErrs)
	}
	if c.FastPoll != time.Millisecond {
		t.Fatalf("FastPoll = %v, want 1ms", c.FastPoll)
	}
	// Untouched by the env file, still defaulted.
	if c.SteadyPoll != 250*time.Millisecond {
		t.Fatalf("SteadyPoll = %v, want 250ms", c.SteadyPoll)
	}
	if c.LogLevel != zerolog.DebugLevel {
		t.Fatalf("LogLevel = %v, want debug", c.LogLevel)
	}
	if !c.LogStdoutPretty {
		t.Fatalf("LogStdoutPretty = false, want true")
	}
}

func TestLoadRejectsUnparseableValue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.env")
	if err := os.WriteFile(path, []byte("LUARPCD_BACKLOG=notanumber\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for an unparseable LUARPCD_BACKLOG")
	}
}

func TestParseFlagsEnvFileAndHelp(t *testing.T) {
	_, f, err := ParseFlags([]string{"--env-file", "/tmp/x.env"})
	if err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	if f.EnvFile != "/tmp/x.env" {
		t.Fatalf("EnvFile = %q, want /tmp/x.env", f.EnvFile)
	}
	if f.Help {
		t.Fatalf("Help = true, want false")
	}

	_, f, err = ParseFlags([]string{"-h"})
	if err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	if !f.Help {
		t.Fatalf("Help = false, want true")
	}
}
