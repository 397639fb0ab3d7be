package rpcnet

import (
	"sync"
	"testing"

	"github.com/atsika/luarpc/host"
	"github.com/atsika/luarpc/rpcerr"
	"github.com/atsika/luarpc/wire"
)

// Scenario 2: a CALL to a defined function round-trips its arguments.
func TestCallEcho(t *testing.T) {
	cap := host.NewMemHost()
	cap.RegisterFunc("echo", func(args []host.Value) ([]host.Value, error) {
		return args, nil
	})
	addr := startTestServer(t, cap)

	h, err := Connect(addr, testLocal())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer h.Close()

	acc, err := h.Root("echo")
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	got, err := acc.Call(wire.Number(42))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(got) != 1 || got[0].Kind() != wire.KindNumber || got[0].AsNumber() != 42 {
		t.Fatalf("echo returned %#v, want [42]", got)
	}
}

// Scenario 3: CALL to an undefined global replies status=1 with a
// descriptive message instead of tearing the session down.
func TestCallUndefinedFunction(t *testing.T) {
	cap := host.NewMemHost()
	addr := startTestServer(t, cap)

	h, err := Connect(addr, testLocal())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer h.Close()

	acc, err := h.Root("nosuchfunction")
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	_, err = acc.Call()
	if err == nil {
		t.Fatalf("expected a CallError")
	}
	ce, ok := err.(*CallError)
	if !ok {
		t.Fatalf("expected *CallError, got %T: %v", err, err)
	}
	const want = "undefined function: nosuchfunction"
	if ce.Message != want {
		t.Fatalf("message = %q, want %q", ce.Message, want)
	}

	// The session survives an application-level CALL failure: a second
	// call on the same handle still works.
	cap.RegisterFunc("alive", func(args []host.Value) ([]host.Value, error) {
		return nil, nil
	})
	acc2, _ := h.Root("alive")
	if _, err := acc2.Call(); err != nil {
		t.Fatalf("handle should survive an undefined-function reply: %v", err)
	}
}

// P6: async CALL replies drain in FIFO order, and a failed async call's
// error reaches the hook rather than any caller (the original Call already
// returned).
func TestAsyncDrainOrdering(t *testing.T) {
	cap := host.NewMemHost()
	cap.RegisterFunc("ok", func(args []host.Value) ([]host.Value, error) {
		return nil, nil
	})
	cap.RegisterFunc("boom", func(args []host.Value) ([]host.Value, error) {
		return nil, &host.CallError{Code: 42, Message: "boom failed"}
	})
	addr := startTestServer(t, cap)

	h, err := Connect(addr, testLocal())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer h.Close()

	var mu sync.Mutex
	var raised []*rpcerr.Error
	rpcerr.SetHook(func(e *rpcerr.Error) {
		mu.Lock()
		raised = append(raised, e)
		mu.Unlock()
	})
	t.Cleanup(func() { rpcerr.SetHook(nil) })

	h.SetAsync(true)

	okAcc, _ := h.Root("ok")
	if _, err := okAcc.Call(); err != nil {
		t.Fatalf("async Call should return immediately without error: %v", err)
	}
	if n := h.PendingReplies(); n != 1 {
		t.Fatalf("PendingReplies() = %d, want 1", n)
	}

	boomAcc, _ := h.Root("boom")
	// Issuing the next command drains the first reply before sending a
	// new request; "ok"'s reply is consumed silently (no error, no hook).
	if _, err := boomAcc.Call(); err != nil {
		t.Fatalf("async Call should return immediately without error: %v", err)
	}
	if n := h.PendingReplies(); n != 1 {
		t.Fatalf("PendingReplies() after second async call = %d, want 1 (only boom outstanding)", n)
	}

	if err := h.drainPending(); err != nil {
		t.Fatalf("drainPending: %v", err)
	}
	if n := h.PendingReplies(); n != 0 {
		t.Fatalf("PendingReplies() after drain = %d, want 0", n)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(raised) != 1 {
		t.Fatalf("expected exactly one drained error delivered to the hook, got %d", len(raised))
	}
	if raised[0].Kind != rpcerr.KindCommand {
		t.Fatalf("drained error kind = %v, want KindCommand", raised[0].Kind)
	}
}

// A transport failure encountered while draining an owed async reply must
// close the handle (spec §7/I4), exactly like a failure on any other read
// path does: a poisoned session must not be left open for the next command
// to stumble into.
func TestDrainPendingClosesHandleOnTransportFailure(t *testing.T) {
	cap := host.NewMemHost()
	srv, err := Listen("127.0.0.1:0", 8, cap, testLocal())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := srv.l.Addr().String()
	// "ok" severs the accepted session from inside the server's CALL
	// handler, before the server writes any reply.
	cap.RegisterFunc("ok", func(args []host.Value) ([]host.Value, error) {
		_ = srv.a.Close()
		return nil, nil
	})

	acceptDone := make(chan error, 1)
	go func() { acceptDone <- srv.Dispatch() }()
	h, err := Connect(addr, testLocal())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer h.Close()
	if err := <-acceptDone; err != nil {
		t.Fatalf("accept/negotiate: %v", err)
	}

	h.SetAsync(true)
	acc, err := h.Root("ok")
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	// The server answers the opcode with READY and reads the request, but
	// "ok" closes the session first, so the owed reply never arrives.
	go func() { _ = srv.Dispatch() }()
	if _, err := acc.Call(); err != nil {
		t.Fatalf("async Call should return immediately without error: %v", err)
	}
	if n := h.PendingReplies(); n != 1 {
		t.Fatalf("PendingReplies() = %d, want 1", n)
	}

	_ = srv.Close()

	if err := h.drainPending(); err == nil {
		t.Fatalf("expected drainPending to surface the severed connection")
	}
	if !h.closed.Load() {
		t.Fatalf("expected a drain failure to close the handle")
	}
}
