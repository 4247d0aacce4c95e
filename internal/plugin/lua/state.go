// Package lua runs untrusted plugin scripts inside a sandboxed gopher-lua
// state. Each plugin gets its own State; the host never shares a state
// between plugins.
package lua

import (
	"context"
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// State wraps gopher-lua with sandboxing and lifecycle tracking.
//
// gopher-lua's LState is not goroutine-safe. All operations on a State must
// happen on one goroutine; the Executor in this package provides that
// serialization for callers.
type State struct {
	L *lua.LState

	mu      sync.Mutex
	sandbox *Sandbox
	cancel  context.CancelFunc
	closed  bool
}

// NewState creates a sandboxed Lua state. Only the base, table, string and
// math libraries are opened; everything with ambient authority stays out.
// The state carries a cancelable context so runaway scripts can be aborted
// from another goroutine via Close.
func NewState() *State {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	ctx, cancel := context.WithCancel(context.Background())
	L.SetContext(ctx)

	s := &State{L: L, cancel: cancel}
	s.sandbox = NewSandbox(L)
	s.sandbox.Install()
	return s
}

// DoString executes Lua source in the sandbox.
func (s *State) DoString(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStateClosed
	}
	return s.withRecovery(func() error {
		return s.L.DoString(code)
	})
}

// GetGlobal returns a global value, or lua.LNil once closed.
func (s *State) GetGlobal(name string) lua.LValue {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return lua.LNil
	}
	return s.L.GetGlobal(name)
}

// Call invokes a global Lua function with the given arguments and returns a
// single result value.
func (s *State) Call(fn string, args ...lua.LValue) (lua.LValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return lua.LNil, ErrStateClosed
	}

	fnVal := s.L.GetGlobal(fn)
	if fnVal.Type() != lua.LTFunction {
		return lua.LNil, fmt.Errorf("function %q not defined", fn)
	}

	s.L.Push(fnVal)
	for _, arg := range args {
		s.L.Push(arg)
	}

	err := s.withRecovery(func() error {
		return s.L.PCall(len(args), 1, nil)
	})
	if err != nil {
		return lua.LNil, err
	}

	ret := s.L.Get(-1)
	s.L.Pop(1)
	return ret, nil
}

// RegisterModule installs a table of Go functions as a global module.
func (s *State) RegisterModule(name string, funcs map[string]lua.LGFunction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	mod := s.L.SetFuncs(s.L.NewTable(), funcs)
	s.L.SetGlobal(name, mod)
	s.sandbox.AllowModule(name)
}

// Sandbox returns the sandbox controlling this state.
func (s *State) Sandbox() *Sandbox {
	return s.sandbox
}

// Interrupt cancels the state's context, aborting any running script.
// Safe to call from any goroutine.
func (s *State) Interrupt() {
	s.cancel()
}

// IsClosed reports whether Close has been called.
func (s *State) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close aborts any running script and releases the state.
func (s *State) Close() {
	s.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.L.Close()
	s.closed = true
}

// withRecovery converts Lua VM panics into errors.
func (s *State) withRecovery(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}
