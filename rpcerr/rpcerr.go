// Package rpcerr defines the graded error taxonomy shared by every layer of
// luarpc: transport, negotiation, wire codec, and the client/server runtime.
//
// Every error that crosses a component boundary is classified fatal or
// nonfatal (spec §7). Fatal errors mandate closing the transport on which
// they occurred; nonfatal errors are reported to the caller without tearing
// the connection down.
package rpcerr

import (
	"errors"
	"fmt"
)

// Kind identifies the language-neutral error category (spec §4.F).
type Kind int

const (
	// KindEOF: transport read saw the peer close mid-frame.
	KindEOF Kind = iota
	// KindClosed: operation attempted on a transport in the Closed state.
	KindClosed
	// KindProtocol: bad tag, bad magic, version mismatch, malformed frame.
	KindProtocol
	// KindCommand: unknown or forbidden opcode.
	KindCommand
	// KindDataLink: transport-layer I/O error (the underlying socket failed).
	KindDataLink
	// KindNoData: an empty read was attempted.
	KindNoData
	// KindBadName: a path segment exceeded MAX_SEGMENT; never touches the network.
	KindBadName
	// KindTransportSpecific: a platform transport errno passed through verbatim.
	KindTransportSpecific
)

func (k Kind) String() string {
	switch k {
	case KindEOF:
		return "EOF"
	case KindClosed:
		return "Closed"
	case KindProtocol:
		return "Protocol"
	case KindCommand:
		return "Command"
	case KindDataLink:
		return "DataLink"
	case KindNoData:
		return "NoData"
	case KindBadName:
		return "BadName"
	case KindTransportSpecific:
		return "TransportSpecific"
	default:
		return "Unknown"
	}
}

// Grade is whether an error mandates tearing down the transport.
type Grade int

const (
	// Nonfatal errors may be reported to the caller without closing the transport.
	Nonfatal Grade = iota
	// Fatal errors always close the affected transport.
	Fatal
)

func (g Grade) String() string {
	if g == Fatal {
		return "fatal"
	}
	return "nonfatal"
}

// Error is a graded luarpc error: a Kind, a Grade, and a human-readable
// message, optionally wrapping an underlying cause (e.g. a net.Error).
type Error struct {
	Kind  Kind
	Grade Grade
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %v", e.Msg, e.Grade, e.Cause)
	}
	return fmt.Sprintf("%s (%s)", e.Msg, e.Grade)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is the sentinel for e.Kind, so callers can use
// errors.Is(err, rpcerr.ErrProtocol) regardless of grade or message.
func (e *Error) Is(target error) bool {
	if s, ok := target.(*sentinel); ok {
		return s.kind == e.Kind
	}
	return false
}

type sentinel struct{ kind Kind }

func (s *sentinel) Error() string { return "rpcerr: " + s.kind.String() }

// Sentinel kinds usable with errors.Is.
var (
	ErrEOF               = &sentinel{KindEOF}
	ErrClosed            = &sentinel{KindClosed}
	ErrProtocol          = &sentinel{KindProtocol}
	ErrCommand           = &sentinel{KindCommand}
	ErrDataLink          = &sentinel{KindDataLink}
	ErrNoData            = &sentinel{KindNoData}
	ErrBadName           = &sentinel{KindBadName}
	ErrTransportSpecific = &sentinel{KindTransportSpecific}
)

// New builds a graded Error of the given kind with the grade and message
// the caller supplies; Wrap is the variant that picks the kind's default
// grade.
func New(kind Kind, grade Grade, msg string, cause error) *Error {
	return &Error{Kind: kind, Grade: grade, Msg: msg, Cause: cause}
}

// defaultGrade returns the grade a kind takes absent a more specific reason
// to override it (e.g. Protocol is nonfatal on server command input but
// fatal on a corrupted mid-stream frame; callers needing that distinction
// pass an explicit grade to New instead of using these helpers).
func defaultGrade(k Kind) Grade {
	switch k {
	case KindEOF, KindClosed, KindDataLink, KindTransportSpecific:
		return Fatal
	case KindProtocol:
		return Fatal
	default:
		return Nonfatal
	}
}

// Wrap builds a graded Error using the kind's default grade.
func Wrap(kind Kind, msg string, cause error) *Error {
	return New(kind, defaultGrade(kind), msg, cause)
}

// Message returns a human-readable description of an error kind, mirroring
// original_source/luarpc.c's errorString().
func Message(k Kind) string {
	switch k {
	case KindEOF:
		return `connection closed unexpectedly ("end of file")`
	case KindClosed:
		return "operation requested on a closed transport"
	case KindProtocol:
		return "error in the received luarpc protocol"
	case KindCommand:
		return "undefined RPC command"
	case KindDataLink:
		return "transmission error at data link level"
	case KindNoData:
		return "no data received when attempting to read"
	case KindBadName:
		return "path segment name is too long"
	case KindTransportSpecific:
		return "transport-specific error"
	default:
		return "unknown error"
	}
}

// AsGraded extracts the Kind/Grade from err if it is (or wraps) an *Error,
// otherwise reports a DataLink/Fatal default for an opaque underlying error
// (e.g. a raw net.OpError bubbling up from the standard library).
func AsGraded(err error) (Kind, Grade, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, e.Grade, true
	}
	return KindDataLink, Fatal, false
}
