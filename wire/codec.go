package wire

import (
	"github.com/atsika/luarpc/negotiate"
	"github.com/atsika/luarpc/rpcerr"
	"github.com/atsika/luarpc/transport"
)

// MaxStringLen bounds a single String/Function-chunk payload so a
// corrupted or adversarial length prefix cannot force an unbounded
// allocation; spec §3 only bounds strings by u32, so this is a defensive
// implementation limit, not a protocol one.
const MaxStringLen = 1 << 30

// Encoder writes Values to a Transport under a negotiated Profile.
type Encoder struct {
	t transport.Transport
	p negotiate.Profile
}

// NewEncoder binds an Encoder to a transport and the session profile
// established by negotiate.Client/negotiate.Server.
func NewEncoder(t transport.Transport, p negotiate.Profile) *Encoder {
	return &Encoder{t: t, p: p}
}

// Encode writes one Value, recursively, per spec §4.B's encode algorithm.
func (e *Encoder) Encode(v Value) error {
	switch v.Kind() {
	case KindNil:
		return e.writeTag(TagNil)
	case KindBool:
		if err := e.writeTag(TagBoolean); err != nil {
			return err
		}
		b := byte(0)
		if v.AsBool() {
			b = 1
		}
		return e.t.WriteAll([]byte{b})
	case KindNumber:
		if err := e.writeTag(TagNumber); err != nil {
			return err
		}
		payload, err := encodeNumber(v.AsNumber(), e.p)
		if err != nil {
			return rpcerr.Raise(err)
		}
		return e.t.WriteAll(payload)
	case KindString:
		return e.encodeString(TagString, v.AsString())
	case KindTable:
		if err := e.writeTag(TagTable); err != nil {
			return err
		}
		for _, entry := range v.AsTable() {
			if err := e.Encode(entry.Key); err != nil {
				return err
			}
			if err := e.Encode(entry.Value); err != nil {
				return err
			}
		}
		return e.writeTag(TagTableEnd)
	case KindFunction:
		if err := e.writeTag(TagFunction); err != nil {
			return err
		}
		if err := e.encodeString(TagString, v.AsFunctionChunk()); err != nil {
			return err
		}
		return e.writeTag(TagFunctionEnd)
	default:
		return rpcerr.Raise(rpcerr.Wrap(rpcerr.KindProtocol, "refusing to encode unknown value kind", nil))
	}
}

func (e *Encoder) encodeString(tag Tag, data []byte) error {
	if err := e.writeTag(tag); err != nil {
		return err
	}
	lenBuf := make([]byte, 4)
	e.order().PutUint32(lenBuf, uint32(len(data)))
	if err := e.t.WriteAll(lenBuf); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return e.t.WriteAll(data)
}

func (e *Encoder) writeTag(tag Tag) error {
	return e.t.WriteAll([]byte{byte(tag)})
}

func (e *Encoder) order() wireByteOrder { return byteOrder(e.p.NetLittle) }

// Decoder reads Values from a Transport under a negotiated Profile.
type Decoder struct {
	t transport.Transport
	p negotiate.Profile
}

// NewDecoder binds a Decoder to a transport and session profile.
func NewDecoder(t transport.Transport, p negotiate.Profile) *Decoder {
	return &Decoder{t: t, p: p}
}

// Decode reads one Value, recursively, per spec §4.B's decode algorithm.
// Any tag outside the tagged sum, or a TABLE_END/FUNCTION_END encountered
// where a value was expected, fails with rpcerr.ErrProtocol (I1).
func (d *Decoder) Decode() (Value, error) {
	tag, err := d.readTag()
	if err != nil {
		return Value{}, err
	}
	return d.decodeValue(tag)
}

func (d *Decoder) decodeValue(tag Tag) (Value, error) {
	switch tag {
	case TagNil:
		return Nil(), nil
	case TagBoolean:
		var buf [1]byte
		if err := d.t.ReadExact(buf[:]); err != nil {
			return Value{}, err
		}
		return Bool(buf[0] != 0), nil
	case TagNumber:
		buf := make([]byte, d.p.LNumBytes)
		if err := d.t.ReadExact(buf); err != nil {
			return Value{}, err
		}
		n, err := decodeNumber(buf, d.p)
		if err != nil {
			return Value{}, rpcerr.Raise(err)
		}
		return Number(n), nil
	case TagString:
		s, err := d.decodeStringPayload()
		if err != nil {
			return Value{}, err
		}
		return String(s), nil
	case TagTable:
		return d.decodeTable()
	case TagFunction:
		return d.decodeFunction()
	case TagTableEnd, TagFunctionEnd:
		return Value{}, rpcerr.Raise(rpcerr.Wrap(rpcerr.KindProtocol, "unexpected end-sentinel where a value was expected", nil))
	default:
		return Value{}, rpcerr.Raise(rpcerr.Wrap(rpcerr.KindProtocol, "unknown wire value tag", nil))
	}
}

func (d *Decoder) decodeTable() (Value, error) {
	var entries []Entry
	for {
		keyTag, err := d.readTag()
		if err != nil {
			return Value{}, err
		}
		if keyTag == TagTableEnd {
			return Table(entries), nil
		}
		key, err := d.decodeValue(keyTag)
		if err != nil {
			return Value{}, err
		}
		valTag, err := d.readTag()
		if err != nil {
			return Value{}, err
		}
		if valTag == TagTableEnd {
			return Value{}, rpcerr.Raise(rpcerr.Wrap(rpcerr.KindProtocol, "table ended after key with no value", nil))
		}
		val, err := d.decodeValue(valTag)
		if err != nil {
			return Value{}, err
		}
		entries = append(entries, Entry{Key: key, Value: val})
	}
}

func (d *Decoder) decodeFunction() (Value, error) {
	var chunk []byte
	for {
		tag, err := d.readTag()
		if err != nil {
			return Value{}, err
		}
		if tag == TagFunctionEnd {
			return Function(chunk), nil
		}
		if tag != TagString {
			return Value{}, rpcerr.Raise(rpcerr.Wrap(rpcerr.KindProtocol, "function chunk must be a string", nil))
		}
		part, err := d.decodeStringPayload()
		if err != nil {
			return Value{}, err
		}
		chunk = append(chunk, part...)
	}
}

func (d *Decoder) decodeStringPayload() ([]byte, error) {
	lenBuf := make([]byte, 4)
	if err := d.t.ReadExact(lenBuf); err != nil {
		return nil, err
	}
	n := d.order().Uint32(lenBuf)
	if n > MaxStringLen {
		return nil, rpcerr.Raise(rpcerr.Wrap(rpcerr.KindProtocol, "string length exceeds implementation limit", nil))
	}
	if n == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, n)
	if err := d.t.ReadExact(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *Decoder) readTag() (Tag, error) {
	var buf [1]byte
	if err := d.t.ReadExact(buf[:]); err != nil {
		return 0, err
	}
	return Tag(buf[0]), nil
}

func (d *Decoder) order() wireByteOrder { return byteOrder(d.p.NetLittle) }
