package transport

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atsika/luarpc/rpcerr"
)

// TCPListener implements Listener over a net.TCPListener, realizing spec
// §4.A's bind_listen(port, backlog)+accept(listener).
type TCPListener struct {
	ln      net.Listener
	cfg     *Config
	closed  atomic.Bool
	mu      sync.Mutex
	pending net.Conn // stashed by Readable's accept-to-peek probe
}

// Listen performs bind_listen(port, backlog) (spec §4.A). backlog is
// advisory only — Go's net package does not expose TCP backlog tuning
// portably, so it is accepted for interface symmetry with spec §6.1 and
// otherwise ignored, matching net.Listen's own behavior.
func Listen(addr string, backlog int, opts ...Option) (*TCPListener, error) {
	cfg := applyConfig(opts)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		cfg.log.Error().Err(err).Str("addr", addr).Msg("transport listen failed")
		return nil, rpcerr.Raise(rpcerr.Wrap(rpcerr.KindDataLink, "listen failed", err))
	}
	return &TCPListener{ln: ln, cfg: cfg}, nil
}

func (l *TCPListener) Accept() (Transport, error) {
	if l.closed.Load() {
		return nil, rpcerr.Raise(rpcerr.Wrap(rpcerr.KindClosed, "accept on closed listener", nil))
	}

	l.mu.Lock()
	if l.pending != nil {
		conn := l.pending
		l.pending = nil
		l.mu.Unlock()
		return newAccepted(conn, l.cfg), nil
	}
	l.mu.Unlock()

	conn, err := l.ln.Accept()
	if err != nil {
		return nil, rpcerr.Raise(rpcerr.Wrap(rpcerr.KindDataLink, "accept failed", err))
	}
	return newAccepted(conn, l.cfg), nil
}

// Readable reports whether Accept would return immediately. net.Listener
// exposes no portable peek, so this probes with a very short deadline on
// the underlying *net.TCPListener and stashes any accepted connection for
// the next real Accept call, matching
// original_source/luarpc_socket.c's select()-based transport_readable
// without a platform-specific syscall.
func (l *TCPListener) Readable() bool {
	if l.closed.Load() {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending != nil {
		return true
	}

	tl, ok := l.ln.(*net.TCPListener)
	if !ok {
		return true
	}
	if err := tl.SetDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return true
	}
	conn, err := tl.Accept()
	tl.SetDeadline(time.Time{})
	if err != nil {
		return false
	}
	l.pending = conn
	return true
}

func (l *TCPListener) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	return l.ln.Close()
}

func (l *TCPListener) Addr() net.Addr { return l.ln.Addr() }
