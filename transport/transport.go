// Package transport realizes the Transport capability consumed by the
// luarpc core (spec §4.A/§6.1): framed byte I/O over a reliable, ordered
// byte stream, with open/close/accept/readable semantics and nothing else.
// The core never imports net directly; it only ever sees the Transport and
// Listener interfaces defined here.
package transport

import (
	"net"
)

// Transport is one accepted or dialed byte-stream session. All methods block
// until they complete or the transport is closed; none return a partial
// success.
type Transport interface {
	// ReadExact reads exactly len(buf) bytes or fails with a graded error
	// (rpcerr.ErrEOF if the peer closed mid-read).
	ReadExact(buf []byte) error
	// WriteAll writes every byte of data or fails with a graded error.
	WriteAll(data []byte) error
	// Readable reports whether a subsequent ReadExact would not block.
	Readable() bool
	// Close is idempotent; it transitions the transport to Closed. Every
	// subsequent ReadExact/WriteAll fails with rpcerr.ErrClosed.
	Close() error
	// LocalAddr and RemoteAddr mirror net.Conn for logging/diagnostics.
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// Listener accepts incoming Transport sessions, at most one open accept in
// flight at a time from the caller's point of view (spec §4.E's "at most
// one active accepted connection" is enforced by rpcnet, not here).
type Listener interface {
	// Accept blocks for one incoming session.
	Accept() (Transport, error)
	// Readable reports whether Accept would not block.
	Readable() bool
	Close() error
	Addr() net.Addr
}
