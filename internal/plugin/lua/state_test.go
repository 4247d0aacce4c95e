package lua

import (
	"testing"

	glua "github.com/yuin/gopher-lua"
)

func TestNewState(t *testing.T) {
	s := NewState()
	defer s.Close()

	if s == nil {
		t.Fatal("NewState() returned nil")
	}
	if err := s.DoString(`x = 1 + 2`); err != nil {
		t.Fatalf("DoString() error: %v", err)
	}
	if got := s.GetGlobal("x"); got.String() != "3" {
		t.Errorf("x = %v, want 3", got)
	}
}

func TestStateSandboxed(t *testing.T) {
	s := NewState()
	defer s.Close()

	// Dangerous globals must be gone.
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		if v := s.GetGlobal(name); v != glua.LNil {
			t.Errorf("%s should be removed, got %T", name, v)
		}
	}

	// The io and os libraries are never opened.
	for _, name := range []string{"io", "os"} {
		if v := s.GetGlobal(name); v != glua.LNil {
			t.Errorf("%s library should not be loaded", name)
		}
	}
}

func TestStateSafeLibsAvailable(t *testing.T) {
	s := NewState()
	defer s.Close()

	code := `
		result = string.upper("abc") .. tostring(math.floor(2.9)) .. tostring(#({1,2,3}))
	`
	if err := s.DoString(code); err != nil {
		t.Fatalf("DoString() error: %v", err)
	}
	if got := s.GetGlobal("result").String(); got != "ABC23" {
		t.Errorf("result = %q, want %q", got, "ABC23")
	}
}

func TestStateCall(t *testing.T) {
	s := NewState()
	defer s.Close()

	if err := s.DoString(`function double(n) return n * 2 end`); err != nil {
		t.Fatalf("DoString() error: %v", err)
	}

	got, err := s.Call("double", glua.LNumber(21))
	if err != nil {
		t.Fatalf("Call() error: %v", err)
	}
	if n, ok := got.(glua.LNumber); !ok || n != 42 {
		t.Errorf("Call() = %v, want 42", got)
	}
}

func TestStateCallMissingFunction(t *testing.T) {
	s := NewState()
	defer s.Close()

	if _, err := s.Call("nope"); err == nil {
		t.Error("Call() on undefined function should fail")
	}
}

func TestStateCallAfterClose(t *testing.T) {
	s := NewState()
	s.Close()

	if err := s.DoString(`x = 1`); err == nil {
		t.Error("DoString() after Close should fail")
	}
	if _, err := s.Call("f"); err == nil {
		t.Error("Call() after Close should fail")
	}
}

func TestStateRegisterModule(t *testing.T) {
	s := NewState()
	defer s.Close()

	s.RegisterModule("host", map[string]glua.LGFunction{
		"greet": func(L *glua.LState) int {
			L.Push(glua.LString("hello " + L.CheckString(1)))
			return 1
		},
	})

	if err := s.DoString(`msg = host.greet("plugin")`); err != nil {
		t.Fatalf("DoString() error: %v", err)
	}
	if got := s.GetGlobal("msg").String(); got != "hello plugin" {
		t.Errorf("msg = %q, want %q", got, "hello plugin")
	}

	// Registered modules are also reachable through require.
	if err := s.DoString(`m = require("host"); msg2 = m.greet("again")`); err != nil {
		t.Fatalf("require registered module: %v", err)
	}
	if got := s.GetGlobal("msg2").String(); got != "hello again" {
		t.Errorf("msg2 = %q, want %q", got, "hello again")
	}
}

func TestStateInterrupt(t *testing.T) {
	s := NewState()
	defer s.Close()

	done := make(chan error, 1)
	go func() {
		done <- s.DoString(`while true do end`)
	}()

	s.Interrupt()
	if err := <-done; err == nil {
		t.Error("interrupted script should return an error")
	}
}
