// Package rpcnet implements the client Handle/Accessor (spec §4.D) and
// server ServerHandle/Dispatch (spec §4.E) that sit on top of transport,
// negotiate, and wire.
package rpcnet

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/atsika/luarpc/negotiate"
	"github.com/atsika/luarpc/rpcerr"
	"github.com/atsika/luarpc/transport"
	"github.com/atsika/luarpc/wire"
	"github.com/google/uuid"
)

// CallError is a host-level failure reported by a CALL reply with
// status=1 (spec §4.D): distinct from rpcerr.Error, which grades
// transport/protocol failures — this is the remote's own application
// error, carrying the host's error code and message verbatim.
type CallError struct {
	Code    uint32
	Message string
}

func (e *CallError) Error() string { return e.Message }

// Handle is a client-side session owner (spec §4.D). Not safe for
// concurrent use from multiple goroutines, matching spec §5's
// single-threaded-cooperative model.
type Handle struct {
	mu        sync.Mutex
	t         transport.Transport
	profile   negotiate.Profile
	cfg       *Config
	async     atomic.Bool
	pending   int
	sessionID string
	closed    atomic.Bool
}

// Connect dials addr, then negotiates a session using local's proposal
// (spec §6.4 connect(host,port) -> Handle). On any failure the error hook
// fires and a nil *Handle is returned alongside the error.
func Connect(addr string, local negotiate.Local, opts ...Option) (*Handle, error) {
	cfg := defaultConfig()
	applyConfig(cfg, opts)

	tc, err := transport.Dial(addr)
	if err != nil {
		ge := asRPCErr(err)
		cfg.log.Error().Err(ge).Str("kind", ge.Kind.String()).Msg("connect failed")
		return nil, ge
	}

	h := &Handle{t: tc, cfg: cfg, sessionID: uuid.New().String()}
	if err := h.negotiateCon(local); err != nil {
		return nil, err
	}
	return h, nil
}

// negotiateCon runs the CON opcode + negotiation body, used both by
// Connect (first contact) and Reconnect (mid-session, spec §4.D CON).
func (h *Handle) negotiateCon(local negotiate.Local) *rpcerr.Error {
	if err := h.t.WriteAll([]byte{byte(cmdCon)}); err != nil {
		return h.fatal(rpcerr.Wrap(rpcerr.KindDataLink, "write CON opcode", err))
	}
	profile, err := negotiate.Client(h.t, local)
	if err != nil {
		return h.fatal(asRPCErr(err))
	}
	h.profile = profile
	return nil
}

// Reconnect re-runs negotiation on the same transport (spec §4.D: CON is
// "also accepted mid-session as a reconnect").
func (h *Handle) Reconnect(local negotiate.Local) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed.Load() {
		return rpcerr.Raise(rpcerr.Wrap(rpcerr.KindClosed, "reconnect on a closed handle", nil))
	}
	if err := h.negotiateCon(local); err != nil {
		return err
	}
	return nil
}

func (h *Handle) fatal(err *rpcerr.Error) *rpcerr.Error {
	rpcerr.Raise(err)
	h.cfg.log.Error().Str("kind", err.Kind.String()).Str("session_id", h.sessionID).Msg(err.Msg)
	_ = h.t.Close()
	h.closed.Store(true)
	return err
}

func (h *Handle) nonfatal(err *rpcerr.Error) *rpcerr.Error {
	rpcerr.Raise(err)
	h.cfg.log.Warn().Str("kind", err.Kind.String()).Str("session_id", h.sessionID).Msg(err.Msg)
	return err
}

// Close idempotently shuts down the underlying transport (spec §6.4).
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed.Swap(true) {
		return nil
	}
	return h.t.Close()
}

// SetAsync toggles asynchronous CALL mode (spec §4.D). Turning async off
// does not drain; the next command does.
func (h *Handle) SetAsync(on bool) { h.async.Store(on) }

// PendingReplies reports the number of CALL replies owed to this handle
// (spec §4.D pending_replies; a read-only supplement per SPEC_FULL §10.6,
// useful for verifying FIFO drain ordering in tests).
func (h *Handle) PendingReplies() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pending
}

// drainPending consumes every reply owed from prior async CALLs, in FIFO
// order, before the handle issues its next command (spec §4.D). Errors
// from drained replies go to the hook; they never reach the caller here,
// since the original async call already returned.
func (h *Handle) drainPending() error {
	for h.pending > 0 {
		status, err := h.readByte()
		if err != nil {
			return h.fatal(rpcerr.Wrap(rpcerr.KindEOF, "read drained call status", err))
		}
		h.pending--
		if status == 0 {
			if _, err := h.readValues(); err != nil {
				return h.fatal(rpcerr.Wrap(rpcerr.KindProtocol, "decode drained call results", err))
			}
			continue
		}
		code, err := readU32(h.t, h.profile)
		if err != nil {
			return h.fatal(rpcerr.Wrap(rpcerr.KindEOF, "read drained call error code", err))
		}
		msg, err := readBytes(h.t, h.profile)
		if err != nil {
			return h.fatal(rpcerr.Wrap(rpcerr.KindEOF, "read drained call error message", err))
		}
		rpcerr.Raise(rpcerr.New(rpcerr.KindCommand, rpcerr.Nonfatal,
			fmt.Sprintf("drained async CALL error %d: %s", code, msg), nil))
	}
	return nil
}

func (h *Handle) readByte() (byte, error) {
	var buf [1]byte
	if err := h.t.ReadExact(buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (h *Handle) readValues() ([]wire.Value, error) {
	nret, err := readU32(h.t, h.profile)
	if err != nil {
		return nil, err
	}
	dec := wire.NewDecoder(h.t, h.profile)
	out := make([]wire.Value, nret)
	for i := range out {
		v, err := dec.Decode()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// openCommand writes one opcode and consumes the READY/UNSUPPORTED_CMD
// handshake byte the server sends back (spec §6.3), draining any backlog
// of async replies first (spec §4.D).
func (h *Handle) openCommand(op opcode) error {
	if h.closed.Load() {
		return rpcerr.Raise(rpcerr.Wrap(rpcerr.KindClosed, "operation on a closed handle", nil))
	}
	if err := h.drainPending(); err != nil {
		return err
	}
	if err := h.t.WriteAll([]byte{byte(op)}); err != nil {
		return h.fatal(rpcerr.Wrap(rpcerr.KindDataLink, "write opcode", err))
	}
	reply, err := readReplyByte(h.t)
	if err != nil {
		return h.fatal(rpcerr.Wrap(rpcerr.KindEOF, "read command handshake", err))
	}
	if reply != replyReady {
		return h.nonfatal(rpcerr.Wrap(rpcerr.KindCommand, "server rejected opcode", nil))
	}
	return nil
}
