package rpcerr

import "sync"

// HookFunc receives every graded error at the point it is raised, before any
// fatal-grade transport teardown happens. It mirrors
// original_source/luarpc.c's global_error_handler slot (set via
// rpc_set_error_handler / deal_with_error there).
type HookFunc func(err *Error)

var (
	hookMu sync.RWMutex
	hook   HookFunc
)

// SetHook installs the process-wide error hook, replacing any previous one.
// Passing nil disables the hook. Safe for concurrent use with Raise.
func SetHook(h HookFunc) {
	hookMu.Lock()
	defer hookMu.Unlock()
	hook = h
}

// Raise invokes the installed hook (if any) with err and returns err
// unchanged, so call sites can write `return rpcerr.Raise(rpcerr.Wrap(...))`.
func Raise(err *Error) *Error {
	hookMu.RLock()
	h := hook
	hookMu.RUnlock()
	if h != nil {
		h(err)
	}
	return err
}
