package lua

import (
	"encoding/json"

	lua "github.com/yuin/gopher-lua"
)

// Sandbox strips the escape hatches out of a Lua state so third-party plugin
// code can only reach the world through host-provided modules.
type Sandbox struct {
	L *lua.LState

	// Modules the plugin may require beyond the safe built-ins.
	allowed map[string]bool
}

// safeModules are gopher-lua built-ins with no ambient authority.
var safeModules = map[string]bool{
	"string": true,
	"table":  true,
	"math":   true,
}

// NewSandbox creates a sandbox for the given state.
func NewSandbox(L *lua.LState) *Sandbox {
	return &Sandbox{
		L:       L,
		allowed: make(map[string]bool),
	}
}

// Install removes dangerous globals and locks down module loading. It must
// run before any plugin code is evaluated.
func (s *Sandbox) Install() {
	// Anything that loads code from outside the script itself.
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		s.L.SetGlobal(name, lua.LNil)
	}

	s.clearPackagePaths()
	s.installSafeRequire()
	s.installJSON()
}

// AllowModule whitelists a host-registered module name for require().
func (s *Sandbox) AllowModule(name string) {
	s.allowed[name] = true
}

// clearPackagePaths prevents module resolution from touching the filesystem.
func (s *Sandbox) clearPackagePaths() {
	pkg := s.L.GetGlobal("package")
	pkgTable, ok := pkg.(*lua.LTable)
	if !ok {
		return
	}
	s.L.SetField(pkgTable, "path", lua.LString(""))
	s.L.SetField(pkgTable, "cpath", lua.LString(""))
}

// installSafeRequire replaces require with a whitelist-only version. Host
// modules are plain globals, so require for them just returns the global.
func (s *Sandbox) installSafeRequire() {
	originalRequire := s.L.GetGlobal("require")

	s.L.SetGlobal("require", s.L.NewFunction(func(L *lua.LState) int {
		modName := L.CheckString(1)

		if safeModules[modName] {
			if originalRequire.Type() == lua.LTFunction {
				L.Push(originalRequire)
				L.Push(lua.LString(modName))
				L.Call(1, 1)
				return 1
			}
			L.Push(L.GetGlobal(modName))
			return 1
		}

		if s.allowed[modName] {
			L.Push(L.GetGlobal(modName))
			return 1
		}

		L.RaiseError("module %q is not available", modName)
		return 0
	}))
}

// installJSON provides json.encode/json.decode. Plugins talk to HTTP APIs;
// making them hand-roll JSON in Lua would be absurd.
func (s *Sandbox) installJSON() {
	mod := s.L.NewTable()

	s.L.SetField(mod, "encode", s.L.NewFunction(func(L *lua.LState) int {
		v := L.CheckAny(1)
		b := NewBridge(L)
		data, err := json.Marshal(b.ToGo(v))
		if err != nil {
			L.RaiseError("json encode: %s", err.Error())
			return 0
		}
		L.Push(lua.LString(data))
		return 1
	}))

	s.L.SetField(mod, "decode", s.L.NewFunction(func(L *lua.LState) int {
		src := L.CheckString(1)
		var v any
		if err := json.Unmarshal([]byte(src), &v); err != nil {
			L.RaiseError("json decode: %s", err.Error())
			return 0
		}
		b := NewBridge(L)
		L.Push(b.ToLua(v))
		return 1
	}))

	s.L.SetGlobal("json", mod)
	s.allowed["json"] = true
}
