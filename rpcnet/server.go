package rpcnet

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/atsika/luarpc/host"
	"github.com/atsika/luarpc/negotiate"
	"github.com/atsika/luarpc/rpcerr"
	"github.com/atsika/luarpc/transport"
	"github.com/atsika/luarpc/wire"
	"github.com/google/uuid"
)

// ServerHandle owns one listener L and at most one accepted session A
// (spec §4.E). Not safe for concurrent use from multiple goroutines.
type ServerHandle struct {
	mu         sync.Mutex
	l          transport.Listener
	a          transport.Transport
	profile    negotiate.Profile
	local      negotiate.Local
	cap        host.Capability
	cfg        *Config
	errorCount int
	sessionID  string
	closed     atomic.Bool
}

// Listen binds a listener and returns a ServerHandle ready to Dispatch
// (spec §6.4 listen(port) -> ServerHandle). cap is the Host capability
// every resolved path is read from and written through.
func Listen(addr string, backlog int, cap host.Capability, local negotiate.Local, opts ...Option) (*ServerHandle, error) {
	cfg := defaultConfig()
	applyConfig(cfg, opts)

	ln, err := transport.Listen(addr, backlog)
	if err != nil {
		return nil, asRPCErr(err)
	}
	return &ServerHandle{l: ln, cap: cap, local: local, cfg: cfg, sessionID: uuid.New().String()}, nil
}

// Close idempotently shuts down the listener and any accepted session.
func (s *ServerHandle) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Swap(true) {
		return nil
	}
	if s.a != nil {
		_ = s.a.Close()
	}
	return s.l.Close()
}

// Peek reports whether Dispatch would not block (spec §6.4 peek): true if
// the active session A has data ready, or (absent a session) the
// listener L would accept without blocking.
func (s *ServerHandle) Peek() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return false
	}
	if s.a != nil {
		return s.a.Readable()
	}
	return s.l.Readable()
}

// Dispatch handles exactly one step: accept-and-negotiate when no session
// is active, or one command when a session is active (spec §4.E).
func (s *ServerHandle) Dispatch() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return rpcerr.Wrap(rpcerr.KindClosed, "dispatch on a closed server handle", nil)
	}
	if s.a == nil {
		return s.acceptAndNegotiate()
	}
	return s.dispatchCommand()
}

// Serve is a convenience loop realizing spec §6.4's server(port):
// listen + loop dispatch until shut down, backing its Peek/Dispatch
// cadence off from a fast interval while busy to a steady idle interval
// (SPEC_FULL §10.5, adapted from the teacher's AdaptivePoll).
func (s *ServerHandle) Serve() error {
	poll := newAdaptivePoll(s.cfg.fastPoll, s.cfg.steadyPoll)
	for !s.closed.Load() {
		if !s.Peek() {
			poll.sleep()
			continue
		}
		poll.reset()
		if err := s.Dispatch(); err != nil && s.closed.Load() {
			return err
		}
	}
	return nil
}

func (s *ServerHandle) acceptAndNegotiate() error {
	a, err := s.l.Accept()
	if err != nil {
		return s.fatal(rpcerr.Wrap(rpcerr.KindDataLink, "accept", err))
	}
	s.a = a

	var buf [1]byte
	if err := a.ReadExact(buf[:]); err != nil {
		return s.gradeNonfatal(rpcerr.Wrap(rpcerr.KindEOF, "read session-open byte", err))
	}
	if opcode(buf[0]) != cmdCon {
		return s.gradeNonfatal(rpcerr.New(rpcerr.KindCommand, rpcerr.Nonfatal, "expected CON to open a session", nil))
	}

	profile, err := negotiate.Server(a, s.local)
	if err != nil {
		return s.gradeNonfatal(asRPCErr(err))
	}
	s.profile = profile
	s.cfg.metrics.IncrementCommands()
	return nil
}

func (s *ServerHandle) dispatchCommand() error {
	var buf [1]byte
	if err := s.a.ReadExact(buf[:]); err != nil {
		return s.gradeNonfatal(rpcerr.Wrap(rpcerr.KindEOF, "read command opcode", err))
	}
	s.cfg.metrics.IncrementCommands()

	var cmdErr *rpcerr.Error
	switch opcode(buf[0]) {
	case cmdCall:
		cmdErr = s.handleCall()
	case cmdGet:
		cmdErr = s.handleGet()
	case cmdNewIndex:
		cmdErr = s.handleNewIndex()
	case cmdCon:
		cmdErr = s.handleReconnect()
	default:
		_ = s.a.WriteAll([]byte{replyUnsupportedCmd})
		cmdErr = rpcerr.New(rpcerr.KindCommand, rpcerr.Nonfatal, "unsupported opcode", nil)
	}
	if cmdErr == nil {
		// A successful active-session command clears the nonfatal budget
		// (spec §8 P8; original_source/luarpc.c:1423 `link_errs = 0`), so
		// only sustained trouble, not a lifetime total, escalates.
		s.errorCount = 0
		return nil
	}
	if cmdErr.Grade == rpcerr.Fatal {
		return s.fatal(cmdErr)
	}
	return s.gradeNonfatal(cmdErr)
}

func (s *ServerHandle) writeReady() *rpcerr.Error {
	if err := s.a.WriteAll([]byte{replyReady}); err != nil {
		return rpcerr.Wrap(rpcerr.KindDataLink, "write READY", err)
	}
	return nil
}

func (s *ServerHandle) handleCall() *rpcerr.Error {
	if err := s.writeReady(); err != nil {
		return err
	}
	pathBytes, err := readBytes(s.a, s.profile)
	if err != nil {
		return asRPCErr(err)
	}
	nargs, err := readU32(s.a, s.profile)
	if err != nil {
		return asRPCErr(err)
	}
	dec := wire.NewDecoder(s.a, s.profile)
	wargs := make([]wire.Value, nargs)
	for i := range wargs {
		v, err := dec.Decode()
		if err != nil {
			return asRPCErr(err)
		}
		wargs[i] = v
	}

	path := string(pathBytes)
	target, rerr := resolvePath(s.cap, path)
	if rerr != nil {
		return rerr
	}

	if !s.cap.IsCallable(target) {
		return s.replyCallFailure(errRun, fmt.Sprintf("undefined function: %s", path))
	}

	hargs := make([]host.Value, len(wargs))
	for i, v := range wargs {
		hv, err := host.FromWire(s.cap, v)
		if err != nil {
			return s.replyCallFailure(errRun, err.Error())
		}
		hargs[i] = hv
	}

	results, callErr := s.cap.Call(target, hargs)
	if callErr != nil {
		code, msg := callErrorParts(callErr)
		return s.replyCallFailure(code, msg)
	}

	wresults := make([]wire.Value, len(results))
	for i, r := range results {
		wv, err := host.ToWire(s.cap, r)
		if err != nil {
			return s.replyCallFailure(errRun, err.Error())
		}
		wresults[i] = wv
	}
	return s.replyCallSuccess(wresults)
}

func (s *ServerHandle) replyCallSuccess(results []wire.Value) *rpcerr.Error {
	if err := s.a.WriteAll([]byte{0}); err != nil {
		return rpcerr.Wrap(rpcerr.KindDataLink, "write call status", err)
	}
	if err := writeU32(s.a, s.profile, uint32(len(results))); err != nil {
		return rpcerr.Wrap(rpcerr.KindDataLink, "write nret", err)
	}
	enc := wire.NewEncoder(s.a, s.profile)
	for _, v := range results {
		if err := enc.Encode(v); err != nil {
			return rpcerr.Wrap(rpcerr.KindProtocol, "encode call result", err)
		}
	}
	return nil
}

// replyCallFailure writes a status=1 CALL reply. It returns a non-nil
// *rpcerr.Error only when the write itself fails; a successfully
// delivered application-level failure is not a dispatch-level error.
func (s *ServerHandle) replyCallFailure(code uint32, msg string) *rpcerr.Error {
	if err := s.a.WriteAll([]byte{1}); err != nil {
		return rpcerr.Wrap(rpcerr.KindDataLink, "write call status", err)
	}
	if err := writeU32(s.a, s.profile, code); err != nil {
		return rpcerr.Wrap(rpcerr.KindDataLink, "write call error code", err)
	}
	if err := writeBytes(s.a, s.profile, []byte(msg)); err != nil {
		return rpcerr.Wrap(rpcerr.KindDataLink, "write call error message", err)
	}
	return nil
}

func (s *ServerHandle) handleGet() *rpcerr.Error {
	if err := s.writeReady(); err != nil {
		return err
	}
	pathBytes, err := readBytes(s.a, s.profile)
	if err != nil {
		return asRPCErr(err)
	}
	target, rerr := resolvePath(s.cap, string(pathBytes))
	if rerr != nil {
		return rerr
	}
	wv, werr := host.ToWire(s.cap, target)
	if werr != nil {
		wv = wire.Nil()
	}
	if err := wire.NewEncoder(s.a, s.profile).Encode(wv); err != nil {
		return rpcerr.Wrap(rpcerr.KindProtocol, "encode get result", err)
	}
	return nil
}

func (s *ServerHandle) handleNewIndex() *rpcerr.Error {
	if err := s.writeReady(); err != nil {
		return err
	}
	pathBytes, err := readBytes(s.a, s.profile)
	if err != nil {
		return asRPCErr(err)
	}
	dec := wire.NewDecoder(s.a, s.profile)
	keyW, err := dec.Decode()
	if err != nil {
		return asRPCErr(err)
	}
	valW, err := dec.Decode()
	if err != nil {
		return asRPCErr(err)
	}

	key, kerr := host.FromWire(s.cap, keyW)
	if kerr != nil {
		return rpcerr.New(rpcerr.KindProtocol, rpcerr.Nonfatal, kerr.Error(), nil)
	}
	val, verr := host.FromWire(s.cap, valW)
	if verr != nil {
		return rpcerr.New(rpcerr.KindProtocol, rpcerr.Nonfatal, verr.Error(), nil)
	}

	path := string(pathBytes)
	if path == "" {
		s.cap.SetGlobal(string(key.AsString()), val)
		return nil
	}
	parent, rerr := resolvePath(s.cap, path)
	if rerr != nil {
		return rerr
	}
	if err := s.cap.SetIndex(parent, key, val); err != nil {
		return rpcerr.New(rpcerr.KindProtocol, rpcerr.Nonfatal, err.Error(), nil)
	}
	return nil
}

func (s *ServerHandle) handleReconnect() *rpcerr.Error {
	profile, err := negotiate.Server(s.a, s.local)
	if err != nil {
		return asRPCErr(err)
	}
	s.profile = profile
	return nil
}

func (s *ServerHandle) gradeNonfatal(err *rpcerr.Error) error {
	rpcerr.Raise(err)
	s.cfg.log.Warn().Str("kind", err.Kind.String()).Str("session_id", s.sessionID).Msg(err.Msg)
	s.cfg.metrics.IncrementNonfatalErrors()
	if s.a != nil {
		_ = s.a.Close()
		s.a = nil
	}
	s.errorCount++
	if s.errorCount > s.cfg.maxLinkErrs {
		s.cfg.log.Error().Str("session_id", s.sessionID).Int("error_count", s.errorCount).
			Msg("nonfatal error budget exceeded, shutting down")
		s.cfg.metrics.IncrementFatalShutdowns()
		_ = s.l.Close()
		s.closed.Store(true)
	}
	return err
}

func (s *ServerHandle) fatal(err *rpcerr.Error) error {
	rpcerr.Raise(err)
	s.cfg.log.Error().Str("kind", err.Kind.String()).Str("session_id", s.sessionID).Msg(err.Msg)
	s.cfg.metrics.IncrementFatalShutdowns()
	if s.a != nil {
		_ = s.a.Close()
		s.a = nil
	}
	_ = s.l.Close()
	s.closed.Store(true)
	return err
}

// resolvePath walks dotted segments against the Host capability (spec
// §4.E): the first segment is a global lookup, each further segment an
// Index call on the previous value. A missing global or a field that
// cannot be indexed resolves to Nil, matching "undefined function"/absent
// value being a normal (not protocol-level) outcome; only a malformed path
// (an empty segment, e.g. "a..b") is graded as a protocol error (spec §12
// Q3).
func resolvePath(cap host.Capability, path string) (host.Value, *rpcerr.Error) {
	if path == "" {
		return host.Nil(), nil
	}
	segs := strings.Split(path, ".")
	for _, s := range segs {
		if s == "" {
			return host.Value{}, rpcerr.New(rpcerr.KindProtocol, rpcerr.Nonfatal, "empty path segment in \""+path+"\"", nil)
		}
	}
	cur := cap.GetGlobal(segs[0])
	for _, s := range segs[1:] {
		next, err := cap.Index(cur, host.String([]byte(s)))
		if err != nil {
			return host.Nil(), nil
		}
		cur = next
	}
	return cur, nil
}

func callErrorParts(err error) (uint32, string) {
	if ce, ok := err.(*host.CallError); ok {
		return ce.Code, ce.Message
	}
	return errRun, err.Error()
}

func asRPCErr(err error) *rpcerr.Error {
	if ge, ok := err.(*rpcerr.Error); ok {
		return ge
	}
	return rpcerr.Wrap(rpcerr.KindDataLink, "io error", err)
}
