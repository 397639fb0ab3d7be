package rpcnet

import (
	"testing"

	"github.com/atsika/luarpc/host"
	"github.com/atsika/luarpc/negotiate"
	"github.com/atsika/luarpc/transport"
)

// Scenario 7 / P8: an invalid opcode closes the active session (replying
// UNSUPPORTED_CMD) without tearing down the listener, so a fresh
// connection can immediately take its place ("reconnect"); once the
// nonfatal budget is exceeded the whole ServerHandle shuts down.
func TestNonfatalBudgetEscalation(t *testing.T) {
	cap := host.NewMemHost()
	srv, err := Listen("127.0.0.1:0", 8, cap, testLocal(), WithMaxLinkErrs(3))
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer srv.Close()
	addr := srv.l.Addr().String()

	badOpcodeCycle := func() {
		acceptDone := make(chan error, 1)
		go func() { acceptDone <- srv.Dispatch() }()

		conn, err := transport.Dial(addr)
		if err != nil {
			t.Fatalf("Dial: %v", err)
		}
		if err := conn.WriteAll([]byte{byte(cmdCon)}); err != nil {
			t.Fatalf("write CON: %v", err)
		}
		if _, err := negotiate.Client(conn, testLocal()); err != nil {
			t.Fatalf("negotiate.Client: %v", err)
		}
		if err := <-acceptDone; err != nil {
			t.Fatalf("accept/negotiate: %v", err)
		}

		dispatchDone := make(chan error, 1)
		go func() { dispatchDone <- srv.Dispatch() }()
		if err := conn.WriteAll([]byte{99}); err != nil {
			t.Fatalf("write bad opcode: %v", err)
		}
		if err := <-dispatchDone; err == nil {
			t.Fatalf("expected a graded nonfatal error from an unsupported opcode")
		}
		_ = conn.Close()
	}

	for i := 0; i < 3; i++ {
		badOpcodeCycle()
		if srv.closed.Load() {
			t.Fatalf("server shut down early at iteration %d (budget is 3)", i)
		}
		if srv.errorCount != i+1 {
			t.Fatalf("errorCount = %d after iteration %d, want %d", srv.errorCount, i, i+1)
		}
	}

	// The 4th nonfatal error exceeds the budget of 3 and escalates.
	badOpcodeCycle()
	if !srv.closed.Load() {
		t.Fatalf("expected the server to shut down once the nonfatal budget was exceeded")
	}
	if srv.errorCount != 4 {
		t.Fatalf("errorCount = %d, want 4", srv.errorCount)
	}
	if got := srv.cfg.metrics.GetFatalShutdowns(); got != 1 {
		t.Fatalf("GetFatalShutdowns() = %d, want 1", got)
	}
}

// P8: a successful command clears the nonfatal budget back to zero, so a
// long-lived server recovers from isolated errors instead of ratcheting
// toward a shutdown it never actually earned.
func TestErrorCountResetsAfterSuccessfulCommand(t *testing.T) {
	cap := host.NewMemHost()
	cap.RegisterFunc("ping", func(args []host.Value) ([]host.Value, error) {
		return nil, nil
	})
	srv, err := Listen("127.0.0.1:0", 8, cap, testLocal(), WithMaxLinkErrs(5))
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer srv.Close()
	addr := srv.l.Addr().String()

	// One isolated nonfatal error: bumps errorCount to 1 and closes the
	// session, exactly like TestNonfatalBudgetEscalation's first cycle.
	acceptDone := make(chan error, 1)
	go func() { acceptDone <- srv.Dispatch() }()
	conn, err := transport.Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if err := conn.WriteAll([]byte{byte(cmdCon)}); err != nil {
		t.Fatalf("write CON: %v", err)
	}
	if _, err := negotiate.Client(conn, testLocal()); err != nil {
		t.Fatalf("negotiate.Client: %v", err)
	}
	if err := <-acceptDone; err != nil {
		t.Fatalf("accept/negotiate: %v", err)
	}
	dispatchDone := make(chan error, 1)
	go func() { dispatchDone <- srv.Dispatch() }()
	if err := conn.WriteAll([]byte{99}); err != nil {
		t.Fatalf("write bad opcode: %v", err)
	}
	if err := <-dispatchDone; err == nil {
		t.Fatalf("expected a graded nonfatal error from an unsupported opcode")
	}
	_ = conn.Close()
	if srv.errorCount != 1 {
		t.Fatalf("errorCount = %d, want 1", srv.errorCount)
	}

	// A fresh session followed by one successful CALL must reset errorCount
	// to 0, per spec §8 P8.
	acceptDone = make(chan error, 1)
	go func() { acceptDone <- srv.Dispatch() }()
	h, err := Connect(addr, testLocal())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer h.Close()
	if err := <-acceptDone; err != nil {
		t.Fatalf("accept/negotiate: %v", err)
	}

	dispatchDone = make(chan error, 1)
	go func() { dispatchDone <- srv.Dispatch() }()
	acc, err := h.Root("ping")
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	if _, err := acc.Call(); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if err := <-dispatchDone; err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if srv.errorCount != 0 {
		t.Fatalf("errorCount = %d after a successful command, want 0", srv.errorCount)
	}
	if srv.closed.Load() {
		t.Fatalf("server shut down unexpectedly")
	}
}

// resolvePath rejects a malformed path (an empty segment) as a protocol
// error without ever calling into the capability.
func TestResolvePathRejectsEmptySegment(t *testing.T) {
	cap := host.NewMemHost()
	cap.SetGlobal("a", host.TableValue(host.NewTable()))

	if _, err := resolvePath(cap, "a..b"); err == nil {
		t.Fatalf("expected an error for an empty path segment")
	}
}

// A missing global resolves to Nil rather than a protocol error, so GET on
// an absent path replies Nil instead of closing the session.
func TestResolvePathMissingGlobalIsNil(t *testing.T) {
	cap := host.NewMemHost()
	v, err := resolvePath(cap, "nosuchglobal")
	if err != nil {
		t.Fatalf("resolvePath: %v", err)
	}
	if !v.IsNil() {
		t.Fatalf("expected Nil for a missing global, got %v", v.Kind())
	}
}
