package rpcnet

import (
	"encoding/binary"

	"github.com/atsika/luarpc/negotiate"
	"github.com/atsika/luarpc/rpcerr"
	"github.com/atsika/luarpc/transport"
)

// The framing primitives around a command body (path_len, nargs, nret,
// host_error_code, msg_len) are plain u32s, not wire.Values; they ride in
// the session's negotiated byte order like everything else on the wire
// (spec §4.B: "all multi-byte integers are transmitted in the sender's
// byte order").
func order(p negotiate.Profile) binary.ByteOrder {
	if p.NetLittle {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

func writeU32(t transport.Transport, p negotiate.Profile, v uint32) error {
	var buf [4]byte
	order(p).PutUint32(buf[:], v)
	return t.WriteAll(buf[:])
}

func readU32(t transport.Transport, p negotiate.Profile) (uint32, error) {
	var buf [4]byte
	if err := t.ReadExact(buf[:]); err != nil {
		return 0, err
	}
	return order(p).Uint32(buf[:]), nil
}

func writeBytes(t transport.Transport, p negotiate.Profile, data []byte) error {
	if err := writeU32(t, p, uint32(len(data))); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return t.WriteAll(data)
}

const maxBytesLen = 1 << 30

func readBytes(t transport.Transport, p negotiate.Profile) ([]byte, error) {
	n, err := readU32(t, p)
	if err != nil {
		return nil, err
	}
	if n > maxBytesLen {
		return nil, rpcerr.Raise(rpcerr.Wrap(rpcerr.KindProtocol, "byte field exceeds implementation limit", nil))
	}
	if n == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, n)
	if err := t.ReadExact(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// readReplyByte reads the single READY/UNSUPPORTED_CMD handshake byte a
// server writes in response to a CALL/GET/NEWINDEX opcode (spec §6.3).
// CON is deliberately excluded from all of this (spec §9 Q2).
func readReplyByte(t transport.Transport) (byte, error) {
	var buf [1]byte
	if err := t.ReadExact(buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}
