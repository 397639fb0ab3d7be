// Package wire implements the luarpc value codec (spec §3/§4.B/§6.3): a
// recursive, heterogeneous value domain serialized to a self-delimited,
// tagged byte stream, with numeric representation swapped per a
// negotiated session Profile.
//
// wire never depends on a host script runtime: Function values carry only
// an opaque, already-dumped byte chunk (see host.ToWire, which calls the
// Host capability's dump_callable before constructing a wire.Value, and
// host.FromWire, which calls load_callable after decoding one).
package wire

// Tag is the wire value tag (spec §6.3).
type Tag byte

const (
	TagNil         Tag = 0
	TagNumber      Tag = 1
	TagBoolean     Tag = 2
	TagString      Tag = 3
	TagTable       Tag = 4
	TagTableEnd    Tag = 5
	TagFunction    Tag = 6
	TagFunctionEnd Tag = 7
)

func (t Tag) String() string {
	switch t {
	case TagNil:
		return "NIL"
	case TagNumber:
		return "NUMBER"
	case TagBoolean:
		return "BOOLEAN"
	case TagString:
		return "STRING"
	case TagTable:
		return "TABLE"
	case TagTableEnd:
		return "TABLE_END"
	case TagFunction:
		return "FUNCTION"
	case TagFunctionEnd:
		return "FUNCTION_END"
	default:
		return "UNKNOWN"
	}
}

// Kind identifies which field of Value is populated.
type Kind int

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	KindString
	KindTable
	KindFunction
)

// Entry is one (key, value) pair of a Table, in wire order. Order is not
// semantic (spec §3); it is preserved only because the wire format is
// streamed without a pre-count.
type Entry struct {
	Key   Value
	Value Value
}

// Value is the closed wire value sum type (spec §3's V). Exactly one of
// the typed fields is meaningful, selected by Kind; constructors below are
// the only supported way to build one so the zero value is always Nil.
type Value struct {
	kind     Kind
	boolean  bool
	number   float64
	str      []byte
	table    []Entry
	function []byte
}

func (v Value) Kind() Kind { return v.kind }

// Nil constructs the Nil value (also the zero Value).
func Nil() Value { return Value{kind: KindNil} }

// Bool constructs a Boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, boolean: b} }

// Number constructs a Number value. The wire representation of n is
// decided at encode time by the session Profile, not here.
func Number(n float64) Value { return Value{kind: KindNumber, number: n} }

// String constructs a String value from an opaque byte sequence.
func String(b []byte) Value { return Value{kind: KindString, str: append([]byte(nil), b...)} }

// Table constructs a Table value from an ordered slice of entries.
func Table(entries []Entry) Value { return Value{kind: KindTable, table: entries} }

// Function constructs a Function value from an already-dumped portable
// chunk (produced by the Host capability's dump_callable).
func Function(chunk []byte) Value {
	return Value{kind: KindFunction, function: append([]byte(nil), chunk...)}
}

// IsNil reports whether v is the Nil value.
func (v Value) IsNil() bool { return v.kind == KindNil }

// AsBool returns v's boolean payload; valid only when Kind() == KindBool.
func (v Value) AsBool() bool { return v.boolean }

// AsNumber returns v's numeric payload; valid only when Kind() == KindNumber.
func (v Value) AsNumber() float64 { return v.number }

// AsString returns v's byte payload; valid only when Kind() == KindString.
func (v Value) AsString() []byte { return v.str }

// AsTable returns v's entries; valid only when Kind() == KindTable.
func (v Value) AsTable() []Entry { return v.table }

// AsFunctionChunk returns v's portable dump; valid only when
// Kind() == KindFunction.
func (v Value) AsFunctionChunk() []byte { return v.function }

// Equal reports host-equality per P1: deep equality for scalars and
// strings, and for tables, equality up to key-ordering (every entry in v
// has a matching entry in other with equal key and value, and the counts
// match). Function values compare equal iff their dumped chunks are
// byte-identical.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNil:
		return true
	case KindBool:
		return v.boolean == other.boolean
	case KindNumber:
		return v.number == other.number
	case KindString:
		return bytesEqual(v.str, other.str)
	case KindFunction:
		return bytesEqual(v.function, other.function)
	case KindTable:
		return tablesEqual(v.table, other.table)
	default:
		return false
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func tablesEqual(a, b []Entry) bool {
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(b))
	for _, ea := range a {
		matched := false
		for j, eb := range b {
			if used[j] {
				continue
			}
			if ea.Key.Equal(eb.Key) && ea.Value.Equal(eb.Value) {
				used[j] = true
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}
