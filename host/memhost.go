package host

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// MemHost is the reference Capability used by the test suite and by
// cmd/luarpcd when no embedded script runtime is configured. Globals live
// in a flat map; tables and functions carry the live identity described
// in host.go, so a write made through one accessor chain is visible
// through any other reference to the same table, exactly like a real
// embedding's tables.
type MemHost struct {
	mu      sync.RWMutex
	globals map[string]Value
	funcs   map[string]Func
	nextID  int64
}

// NewMemHost returns an empty MemHost.
func NewMemHost() *MemHost {
	return &MemHost{
		globals: make(map[string]Value),
		funcs:   make(map[string]Func),
	}
}

func (h *MemHost) GetGlobal(name string) Value {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if v, ok := h.globals[name]; ok {
		return v
	}
	return Nil()
}

func (h *MemHost) SetGlobal(name string, v Value) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.globals[name] = v
}

// RegisterFunc installs fn as a callable, optionally also publishing it
// under a global name, and returns the Value referring to it. Tests and
// cmd/luarpcd use this to seed the table the dispatcher resolves against.
func (h *MemHost) RegisterFunc(name string, fn Func) Value {
	id := fmt.Sprintf("fn-%d", atomic.AddInt64(&h.nextID, 1))
	h.mu.Lock()
	h.funcs[id] = fn
	h.mu.Unlock()
	v := Value{kind: TypeFunction, fnID: id}
	if name != "" {
		h.SetGlobal(name, v)
	}
	return v
}

func (h *MemHost) Index(table, key Value) (Value, error) {
	if table.Kind() != TypeTable {
		return Nil(), &CallError{Message: "index of a non-table value"}
	}
	return table.AsTable().Get(key), nil
}

func (h *MemHost) SetIndex(table, key, value Value) error {
	if table.Kind() != TypeTable {
		return &CallError{Message: "newindex of a non-table value"}
	}
	table.AsTable().Set(key, value)
	return nil
}

func (h *MemHost) IsCallable(v Value) bool {
	if v.Kind() != TypeFunction {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.funcs[v.fnID]
	return ok
}

func (h *MemHost) Call(v Value, args []Value) ([]Value, error) {
	h.mu.RLock()
	fn, ok := h.funcs[v.fnID]
	h.mu.RUnlock()
	if !ok {
		return nil, &CallError{Message: "value is not callable"}
	}
	return fn(args)
}

// DumpCallable returns the callable's registry token as its portable
// chunk. A real embedding would dump VM bytecode here; since MemHost has
// no VM, the token is all a LoadCallable in the same process needs.
func (h *MemHost) DumpCallable(v Value) ([]byte, error) {
	if !h.IsCallable(v) {
		return nil, &CallError{Message: "value is not callable"}
	}
	return []byte(v.fnID), nil
}

// LoadCallable reverses DumpCallable. A chunk naming a token that is not
// registered on this MemHost is rejected, matching a real loader rejecting
// bytecode it doesn't recognize. Tokens are per-instance sequence numbers
// ("fn-1", "fn-2", ...), so a chunk minted by another process or MemHost
// loads whichever function this MemHost registered under the same token.
func (h *MemHost) LoadCallable(chunk []byte) (Value, error) {
	id := string(chunk)
	h.mu.RLock()
	_, ok := h.funcs[id]
	h.mu.RUnlock()
	if !ok {
		return Value{}, &CallError{Message: "unknown function chunk"}
	}
	return Value{kind: TypeFunction, fnID: id}, nil
}

func (h *MemHost) ValueType(v Value) Type { return v.Kind() }

var _ Capability = (*MemHost)(nil)
