// Package negotiate implements the luarpc session handshake (spec §4.C):
// an 8-byte header exchange that agrees on wire byte order, numeric width,
// and integer-vs-float representation before any value frame is sent.
package negotiate

import (
	"github.com/atsika/luarpc/rpcerr"
	"github.com/atsika/luarpc/transport"
)

// ProtocolVersion is the single supported wire version (spec §6.3).
const ProtocolVersion byte = 3

var magic = [4]byte{'L', 'R', 'P', 'C'}

// Profile is the per-session agreement both peers install after a
// successful negotiation (spec §3 "Session state" net_little/lnum_bytes/
// net_intnum, plus the locally-derived fields needed by the wire codec).
type Profile struct {
	NetLittle bool // wire byte order: true = little-endian
	LocLittle bool // this process's native byte order
	LNumBytes uint8 // numeric width in bytes: one of {1,2,4,8}
	NetIntnum bool // wire numbers are integers, not floats
	LocIntnum bool // this process's native number representation
}

// Local describes one side's proposal before negotiation resolves it.
type Local struct {
	Little    bool
	LNumBytes uint8
	Intnum    bool
}

func encodeHeader(little, intnum bool, lnumBytes uint8) [8]byte {
	var b [8]byte
	copy(b[:4], magic[:])
	b[4] = ProtocolVersion
	b[5] = boolByte(little)
	b[6] = lnumBytes
	b[7] = boolByte(intnum)
	return b
}

func decodeHeader(b [8]byte) (little, intnum bool, lnumBytes uint8, err *rpcerr.Error) {
	if b[0] != magic[0] || b[1] != magic[1] || b[2] != magic[2] || b[3] != magic[3] {
		return false, false, 0, rpcerr.Wrap(rpcerr.KindProtocol, "bad negotiation magic", nil)
	}
	if b[4] != ProtocolVersion {
		return false, false, 0, rpcerr.Wrap(rpcerr.KindProtocol, "unsupported protocol version", nil)
	}
	if !validWidth(b[6]) {
		return false, false, 0, rpcerr.Wrap(rpcerr.KindProtocol, "invalid numeric width", nil)
	}
	return b[5] != 0, b[7] != 0, b[6], nil
}

func validWidth(w uint8) bool {
	switch w {
	case 1, 2, 4, 8:
		return true
	default:
		return false
	}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// resolve computes the session profile from both sides' proposals, per
// spec §4.C's deterministic tie-break: big-endian wire on disagreement,
// minimum width, integer wins if either side is integer.
func resolve(client, server Local) Profile {
	netLittle := client.Little
	if client.Little != server.Little {
		netLittle = false // big-endian wire on disagreement
	}
	width := client.LNumBytes
	if server.LNumBytes < width {
		width = server.LNumBytes
	}
	netIntnum := client.Intnum || server.Intnum

	return Profile{
		NetLittle: netLittle,
		LNumBytes: width,
		NetIntnum: netIntnum,
	}
}

// Client runs the client side of negotiation (spec §4.C: "client sends
// first"): write the local proposal, read the server's resolved profile,
// and install it (LocLittle/LocIntnum reflect local, NetLittle/LNumBytes/
// NetIntnum reflect what the server decided and echoed back).
func Client(t transport.Transport, local Local) (Profile, error) {
	out := encodeHeader(local.Little, local.Intnum, local.LNumBytes)
	if err := t.WriteAll(out[:]); err != nil {
		return Profile{}, err
	}

	var in [8]byte
	if err := t.ReadExact(in[:]); err != nil {
		return Profile{}, err
	}
	netLittle, netIntnum, lnumBytes, err := decodeHeader(in)
	if err != nil {
		return Profile{}, rpcerr.Raise(err)
	}

	return Profile{
		NetLittle: netLittle,
		LocLittle: local.Little,
		LNumBytes: lnumBytes,
		NetIntnum: netIntnum,
		LocIntnum: local.Intnum,
	}, nil
}

// Server runs the server side of negotiation: read the client's proposal,
// resolve the session profile, write it back, and install it.
func Server(t transport.Transport, local Local) (Profile, error) {
	var in [8]byte
	if err := t.ReadExact(in[:]); err != nil {
		return Profile{}, err
	}
	clientLittle, clientIntnum, clientWidth, err := decodeHeader(in)
	if err != nil {
		return Profile{}, rpcerr.Raise(err)
	}
	client := Local{Little: clientLittle, LNumBytes: clientWidth, Intnum: clientIntnum}

	resolved := resolve(client, local)

	out := encodeHeader(resolved.NetLittle, resolved.NetIntnum, resolved.LNumBytes)
	if err := t.WriteAll(out[:]); err != nil {
		return Profile{}, err
	}

	resolved.LocLittle = local.Little
	resolved.LocIntnum = local.Intnum
	return resolved, nil
}

// HostNative returns the Local proposal for this process's native
// representation: Go's only numeric wire type in this module is float64
// (see wire.Value), so Intnum is always false and the native width is 8.
// Little is derived from the running architecture's byte order.
func HostNative() Local {
	return Local{Little: nativeLittleEndian(), LNumBytes: 8, Intnum: false}
}
