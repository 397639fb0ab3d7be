package wire

import (
	"encoding/binary"
	"math"

	"github.com/atsika/luarpc/negotiate"
	"github.com/atsika/luarpc/rpcerr"
)

// encodeNumber renders n into exactly profile.LNumBytes wire bytes,
// following spec §4.B: native layout when both sides agree on
// integer-vs-float (loc is always float64 in this implementation, so that
// path only applies at width 8 and 4, as a float64/float32), and a signed
// integer conversion when they disagree — the Q1 decision in SPEC_FULL.md
// §12, applied uniformly to the widths a pure-float native side cannot
// otherwise represent (1 and 2 bytes).
func encodeNumber(n float64, p negotiate.Profile) ([]byte, *rpcerr.Error) {
	width := p.LNumBytes
	order := byteOrder(p.NetLittle)

	if !p.NetIntnum {
		switch width {
		case 8:
			buf := make([]byte, 8)
			order.PutUint64(buf, math.Float64bits(n))
			return buf, nil
		case 4:
			buf := make([]byte, 4)
			order.PutUint32(buf, math.Float32bits(float32(n)))
			return buf, nil
		}
	}

	// Integer path: truncate toward zero, sign-extend/narrow to width.
	iv := int64(n)
	buf := make([]byte, width)
	switch width {
	case 1:
		buf[0] = byte(iv)
	case 2:
		order.PutUint16(buf, uint16(int16(iv)))
	case 4:
		order.PutUint32(buf, uint32(int32(iv)))
	case 8:
		order.PutUint64(buf, uint64(iv))
	default:
		return nil, rpcerr.Wrap(rpcerr.KindProtocol, "invalid numeric width", nil)
	}
	return buf, nil
}

// decodeNumber is encodeNumber's inverse.
func decodeNumber(buf []byte, p negotiate.Profile) (float64, *rpcerr.Error) {
	width := p.LNumBytes
	if len(buf) != int(width) {
		return 0, rpcerr.Wrap(rpcerr.KindProtocol, "short number payload", nil)
	}
	order := byteOrder(p.NetLittle)

	if !p.NetIntnum {
		switch width {
		case 8:
			return math.Float64frombits(order.Uint64(buf)), nil
		case 4:
			return float64(math.Float32frombits(order.Uint32(buf))), nil
		}
	}

	switch width {
	case 1:
		return float64(int8(buf[0])), nil
	case 2:
		return float64(int16(order.Uint16(buf))), nil
	case 4:
		return float64(int32(order.Uint32(buf))), nil
	case 8:
		return float64(int64(order.Uint64(buf))), nil
	default:
		return 0, rpcerr.Wrap(rpcerr.KindProtocol, "invalid numeric width", nil)
	}
}

type wireByteOrder interface {
	PutUint16([]byte, uint16)
	PutUint32([]byte, uint32)
	PutUint64([]byte, uint64)
	Uint16([]byte) uint16
	Uint32([]byte) uint32
	Uint64([]byte) uint64
}

func byteOrder(little bool) wireByteOrder {
	if little {
		return binary.LittleEndian
	}
	return binary.BigEndian
}
