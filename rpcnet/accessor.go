package rpcnet

import (
	"github.com/atsika/luarpc/rpcerr"
	"github.com/atsika/luarpc/wire"
)

// Accessor is an immutable, client-side dotted-path chain rooted at one
// Handle (spec §3/§4.D). Building an accessor never touches the network;
// Go has no dynamic attribute operator, so `h.a.b.c` is realized as
// explicit Root/Field calls rather than field access.
type Accessor struct {
	h      *Handle
	parent *Accessor
	seg    string
}

// Root starts a new accessor chain from name (the first dotted segment).
func (h *Handle) Root(name string) (*Accessor, error) {
	return newAccessor(h, nil, name)
}

// Field extends the chain with one more dotted segment.
func (a *Accessor) Field(name string) (*Accessor, error) {
	return newAccessor(a.h, a, name)
}

func newAccessor(h *Handle, parent *Accessor, seg string) (*Accessor, error) {
	if len(seg) == 0 || len(seg) >= MaxSegment {
		return nil, rpcerr.Raise(rpcerr.New(rpcerr.KindBadName, rpcerr.Nonfatal,
			"path segment exceeds MAX_SEGMENT: "+seg, nil))
	}
	return &Accessor{h: h, parent: parent, seg: seg}, nil
}

// Path reconstructs the full dotted path by walking to root.
func (a *Accessor) Path() string {
	if a.parent == nil {
		return a.seg
	}
	return a.parent.Path() + "." + a.seg
}

// parentPath is "" for a root accessor, matching the NEWINDEX contract
// (spec §4.E: path_len=0 means "store under the global named by key").
func (a *Accessor) parentPath() string {
	if a.parent == nil {
		return ""
	}
	return a.parent.Path()
}

// Call issues a CMD_CALL for this accessor's full path (spec §4.D). In
// asynchronous mode it returns immediately with no values and no error;
// the reply is drained (and any failure delivered to the hook) before the
// handle's next command.
func (a *Accessor) Call(args ...wire.Value) ([]wire.Value, error) {
	h := a.h
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.openCommand(cmdCall); err != nil {
		return nil, err
	}
	if err := writeBytes(h.t, h.profile, []byte(a.Path())); err != nil {
		return nil, h.fatal(rpcerr.Wrap(rpcerr.KindDataLink, "write call path", err))
	}
	if err := writeU32(h.t, h.profile, uint32(len(args))); err != nil {
		return nil, h.fatal(rpcerr.Wrap(rpcerr.KindDataLink, "write nargs", err))
	}
	enc := wire.NewEncoder(h.t, h.profile)
	for _, v := range args {
		if err := enc.Encode(v); err != nil {
			return nil, h.fatal(rpcerr.Wrap(rpcerr.KindProtocol, "encode call argument", err))
		}
	}

	if h.async.Load() {
		h.pending++
		return nil, nil
	}

	status, err := h.readByte()
	if err != nil {
		return nil, h.fatal(rpcerr.Wrap(rpcerr.KindEOF, "read call status", err))
	}
	if status == 0 {
		vals, err := h.readValues()
		if err != nil {
			return nil, h.fatal(rpcerr.Wrap(rpcerr.KindProtocol, "decode call results", err))
		}
		return vals, nil
	}

	code, err := readU32(h.t, h.profile)
	if err != nil {
		return nil, h.fatal(rpcerr.Wrap(rpcerr.KindEOF, "read call error code", err))
	}
	msg, err := readBytes(h.t, h.profile)
	if err != nil {
		return nil, h.fatal(rpcerr.Wrap(rpcerr.KindEOF, "read call error message", err))
	}
	return nil, &CallError{Code: code, Message: string(msg)}
}

// Get issues a CMD_GET for this accessor's full path and returns the
// single resolved value (spec §4.D).
func (a *Accessor) Get() (wire.Value, error) {
	h := a.h
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.openCommand(cmdGet); err != nil {
		return wire.Value{}, err
	}
	if err := writeBytes(h.t, h.profile, []byte(a.Path())); err != nil {
		return wire.Value{}, h.fatal(rpcerr.Wrap(rpcerr.KindDataLink, "write get path", err))
	}
	v, err := wire.NewDecoder(h.t, h.profile).Decode()
	if err != nil {
		return wire.Value{}, h.fatal(rpcerr.Wrap(rpcerr.KindProtocol, "decode get result", err))
	}
	return v, nil
}

// Set issues a CMD_NEWINDEX assigning value under this accessor's path
// (spec §4.D/§4.E): the wire body carries the *parent's* path plus an
// explicit key, so a root accessor's assignment carries an empty path and
// the segment name doubles as the global name.
func (a *Accessor) Set(value wire.Value) error {
	h := a.h
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.openCommand(cmdNewIndex); err != nil {
		return err
	}
	if err := writeBytes(h.t, h.profile, []byte(a.parentPath())); err != nil {
		return h.fatal(rpcerr.Wrap(rpcerr.KindDataLink, "write newindex path", err))
	}
	enc := wire.NewEncoder(h.t, h.profile)
	if err := enc.Encode(wire.String([]byte(a.seg))); err != nil {
		return h.fatal(rpcerr.Wrap(rpcerr.KindProtocol, "encode newindex key", err))
	}
	if err := enc.Encode(value); err != nil {
		return h.fatal(rpcerr.Wrap(rpcerr.KindProtocol, "encode newindex value", err))
	}
	return nil
}
