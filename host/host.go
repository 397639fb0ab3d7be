// Package host defines the Host capability consumed by the luarpc core
// (spec §6.2): read/write of global names, invocation of callables, and
// serialization of callables to portable bytes. The core depends only on
// this interface; binding to a specific embedded scripting runtime is
// explicitly out of scope (spec §1) — this package ships only the
// interface plus an in-memory reference implementation used by the test
// suite and as cmd/luarpcd's default when no real script runtime is
// wired in.
//
// host.Value is deliberately distinct from wire.Value: tables and
// functions here carry live, shared identity (a host table is
// mutable and shared, exactly like a Lua table), matching how the
// original C core operates directly against the Lua stack rather than a
// materialized value tree. ToWire/FromWire are the one-time flattening
// boundary the RPC layer (package rpcnet) crosses right before encoding
// and right after decoding a wire.Value.
package host

import "github.com/atsika/luarpc/wire"

// Type classifies a Value. Foreign values exist only to let a real
// embedding reject what it cannot serialize; the reference implementation
// never produces one.
type Type int

const (
	TypeNil Type = iota
	TypeBool
	TypeNumber
	TypeString
	TypeTable
	TypeFunction
	TypeForeign
)

// Func is the native callable shape the reference implementation invokes
// directly; a real embedding would instead hold a VM-specific closure.
type Func func(args []Value) ([]Value, error)

// Table is a live, mutable, shared table: exactly the aliasing semantics
// Lua tables have, and exactly what SetIndex needs in order for a write
// through one accessor to be visible through every other reference to the
// same table.
type Table struct {
	entries []Entry
}

// Entry is one live (key, value) pair of a Table.
type Entry struct {
	Key   Value
	Value Value
}

// NewTable constructs an empty, independently addressable Table.
func NewTable() *Table { return &Table{} }

// Get returns the value stored under key, or Nil if absent.
func (t *Table) Get(key Value) Value {
	for _, e := range t.entries {
		if e.Key.Equal(key) {
			return e.Value
		}
	}
	return Nil()
}

// Set stores value under key, overwriting any existing entry for an equal
// key, or appending a new one.
func (t *Table) Set(key, value Value) {
	for i, e := range t.entries {
		if e.Key.Equal(key) {
			t.entries[i].Value = value
			return
		}
	}
	t.entries = append(t.entries, Entry{Key: key, Value: value})
}

// Entries returns a snapshot of the table's current pairs, in storage
// order (wire order is not semantic, per spec §3).
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Value is the host-native tagged union. The zero Value is Nil.
type Value struct {
	kind     Type
	boolean  bool
	number   float64
	str      []byte
	table    *Table
	function Func
	// fnID is a stable identifier for function, used so DumpCallable and
	// LoadCallable can round-trip a chunk back to the same Func within
	// one process (see MemHost.funcs).
	fnID string
}

func Nil() Value                { return Value{kind: TypeNil} }
func Bool(b bool) Value         { return Value{kind: TypeBool, boolean: b} }
func Number(n float64) Value    { return Value{kind: TypeNumber, number: n} }
func String(s []byte) Value     { return Value{kind: TypeString, str: s} }
func TableValue(t *Table) Value { return Value{kind: TypeTable, table: t} }
func Foreign() Value            { return Value{kind: TypeForeign} }

func (v Value) Kind() Type        { return v.kind }
func (v Value) IsNil() bool       { return v.kind == TypeNil }
func (v Value) AsBool() bool      { return v.boolean }
func (v Value) AsNumber() float64 { return v.number }
func (v Value) AsString() []byte  { return v.str }
func (v Value) AsTable() *Table   { return v.table }

// Equal is used by Table.Get/Set for key comparison: scalars compare by
// value, tables and functions compare by identity (pointer/id equality),
// matching Lua's own table-key semantics.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case TypeNil:
		return true
	case TypeBool:
		return v.boolean == o.boolean
	case TypeNumber:
		return v.number == o.number
	case TypeString:
		return string(v.str) == string(o.str)
	case TypeTable:
		return v.table == o.table
	case TypeFunction:
		return v.fnID == o.fnID
	default:
		return false
	}
}

// CallError is returned by Capability.Call when the invoked callable
// raised, per spec §6.2/§4.E: Code is the host's native error code,
// Message is human-readable and becomes the RPC reply's message bytes.
type CallError struct {
	Code    uint32
	Message string
}

func (e *CallError) Error() string { return e.Message }

// Capability is the Host capability interface (spec §6.2).
type Capability interface {
	GetGlobal(name string) Value
	SetGlobal(name string, v Value)

	Index(table, key Value) (Value, error)
	SetIndex(table, key, value Value) error

	IsCallable(v Value) bool
	Call(v Value, args []Value) ([]Value, error)

	DumpCallable(v Value) ([]byte, error)
	LoadCallable(chunk []byte) (Value, error)

	ValueType(v Value) Type
}

// ToWire flattens a host Value into the wire serialization domain,
// recursively snapshotting tables and dumping callables through cap.
func ToWire(cap Capability, v Value) (wire.Value, error) {
	switch v.Kind() {
	case TypeNil:
		return wire.Nil(), nil
	case TypeBool:
		return wire.Bool(v.AsBool()), nil
	case TypeNumber:
		return wire.Number(v.AsNumber()), nil
	case TypeString:
		return wire.String(v.AsString()), nil
	case TypeTable:
		entries := v.AsTable().Entries()
		out := make([]wire.Entry, len(entries))
		for i, e := range entries {
			k, err := ToWire(cap, e.Key)
			if err != nil {
				return wire.Value{}, err
			}
			val, err := ToWire(cap, e.Value)
			if err != nil {
				return wire.Value{}, err
			}
			out[i] = wire.Entry{Key: k, Value: val}
		}
		return wire.Table(out), nil
	case TypeFunction:
		chunk, err := cap.DumpCallable(v)
		if err != nil {
			return wire.Value{}, err
		}
		return wire.Function(chunk), nil
	default:
		return wire.Value{}, &CallError{Message: "cannot serialize a foreign value"}
	}
}

// FromWire materializes a wire.Value into a fresh host Value, recursively
// building independent Tables (decoded tables never alias anything) and
// loading callables through cap.
func FromWire(cap Capability, v wire.Value) (Value, error) {
	switch v.Kind() {
	case wire.KindNil:
		return Nil(), nil
	case wire.KindBool:
		return Bool(v.AsBool()), nil
	case wire.KindNumber:
		return Number(v.AsNumber()), nil
	case wire.KindString:
		return String(v.AsString()), nil
	case wire.KindTable:
		t := NewTable()
		for _, e := range v.AsTable() {
			k, err := FromWire(cap, e.Key)
			if err != nil {
				return Value{}, err
			}
			val, err := FromWire(cap, e.Value)
			if err != nil {
				return Value{}, err
			}
			t.Set(k, val)
		}
		return TableValue(t), nil
	case wire.KindFunction:
		return cap.LoadCallable(v.AsFunctionChunk())
	default:
		return Value{}, &CallError{Message: "unknown wire value kind"}
	}
}
