package rpcnet

import (
	"testing"

	"github.com/atsika/luarpc/host"
	"github.com/atsika/luarpc/negotiate"
)

func testLocal() negotiate.Local {
	return negotiate.Local{Little: true, LNumBytes: 8, Intnum: false}
}

// startTestServer binds a ServerHandle to an ephemeral loopback port and
// runs it in the background for the life of the test.
func startTestServer(t *testing.T, cap host.Capability, opts ...Option) string {
	t.Helper()
	srv, err := Listen("127.0.0.1:0", 4, cap, testLocal(), opts...)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := srv.l.Addr().String()
	go func() { _ = srv.Serve() }()
	t.Cleanup(func() { _ = srv.Close() })
	return addr
}
