package lua

import (
	"strings"
	"testing"
)

func TestSandboxRequireWhitelist(t *testing.T) {
	s := NewState()
	defer s.Close()

	tests := []struct {
		name   string
		module string
		ok     bool
	}{
		{"string allowed", "string", true},
		{"table allowed", "table", true},
		{"math allowed", "math", true},
		{"io blocked", "io", false},
		{"os blocked", "os", false},
		{"debug blocked", "debug", false},
		{"arbitrary blocked", "socket", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.DoString(`local m = require("` + tt.module + `")`)
			if tt.ok && err != nil {
				t.Errorf("require(%q) error: %v", tt.module, err)
			}
			if !tt.ok && err == nil {
				t.Errorf("require(%q) should fail", tt.module)
			}
		})
	}
}

func TestSandboxJSONModule(t *testing.T) {
	s := NewState()
	defer s.Close()

	code := `
		local obj = json.decode('{"name":"gata","count":3}')
		name = obj.name
		count = obj.count
		encoded = json.encode({ok = true})
	`
	if err := s.DoString(code); err != nil {
		t.Fatalf("DoString() error: %v", err)
	}
	if got := s.GetGlobal("name").String(); got != "gata" {
		t.Errorf("name = %q, want %q", got, "gata")
	}
	if got := s.GetGlobal("count").String(); got != "3" {
		t.Errorf("count = %v, want 3", got)
	}
	if got := s.GetGlobal("encoded").String(); !strings.Contains(got, `"ok":true`) {
		t.Errorf("encoded = %q, want it to contain %q", got, `"ok":true`)
	}
}

func TestSandboxPackagePathsCleared(t *testing.T) {
	s := NewState()
	defer s.Close()

	// Nothing on disk is reachable even if a module name looks like a path.
	if err := s.DoString(`local m = require("../etc/passwd")`); err == nil {
		t.Error("path-like require should fail")
	}
}
