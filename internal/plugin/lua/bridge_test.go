package lua

import (
	"reflect"
	"testing"
)

func TestBridgeToGo(t *testing.T) {
	s := NewState()
	defer s.Close()
	b := NewBridge(s.L)

	code := `
		num = 42
		frac = 2.5
		str = "hello"
		flag = true
		list = {1, 2, 3}
		obj = {name = "x", nested = {ok = true}}
	`
	if err := s.DoString(code); err != nil {
		t.Fatalf("DoString() error: %v", err)
	}

	tests := []struct {
		global string
		want   any
	}{
		{"num", int64(42)},
		{"frac", 2.5},
		{"str", "hello"},
		{"flag", true},
		{"list", []any{int64(1), int64(2), int64(3)}},
		{"obj", map[string]any{"name": "x", "nested": map[string]any{"ok": true}}},
	}

	for _, tt := range tests {
		t.Run(tt.global, func(t *testing.T) {
			got := b.ToGo(s.GetGlobal(tt.global))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ToGo(%s) = %#v, want %#v", tt.global, got, tt.want)
			}
		})
	}
}

func TestBridgeToGoCyclicTable(t *testing.T) {
	s := NewState()
	defer s.Close()
	b := NewBridge(s.L)

	if err := s.DoString(`t = {}; t.self = t`); err != nil {
		t.Fatalf("DoString() error: %v", err)
	}

	// Must terminate; the cyclic reference comes back nil.
	got := b.ToGo(s.GetGlobal("t"))
	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("ToGo() = %T, want map", got)
	}
	if m["self"] != nil {
		t.Errorf("cyclic reference = %#v, want nil", m["self"])
	}
}

func TestBridgeToLuaRoundTrip(t *testing.T) {
	s := NewState()
	defer s.Close()
	b := NewBridge(s.L)

	in := map[string]any{
		"id":    "abc",
		"count": float64(7),
		"tags":  []any{"a", "b"},
	}

	s.L.SetGlobal("input", b.ToLua(in))
	if err := s.DoString(`
		id = input.id
		count = input.count
		first = input.tags[1]
	`); err != nil {
		t.Fatalf("DoString() error: %v", err)
	}

	if got := s.GetGlobal("id").String(); got != "abc" {
		t.Errorf("id = %q, want %q", got, "abc")
	}
	if got := s.GetGlobal("count").String(); got != "7" {
		t.Errorf("count = %v, want 7", got)
	}
	if got := s.GetGlobal("first").String(); got != "a" {
		t.Errorf("first = %q, want %q", got, "a")
	}
}

func TestBridgeToLuaStruct(t *testing.T) {
	s := NewState()
	defer s.Close()
	b := NewBridge(s.L)

	type item struct {
		Name string `json:"name"`
		N    int    `json:"n"`
	}

	s.L.SetGlobal("item", b.ToLua(item{Name: "post", N: 2}))
	if err := s.DoString(`name = item.name; n = item.n`); err != nil {
		t.Fatalf("DoString() error: %v", err)
	}
	if got := s.GetGlobal("name").String(); got != "post" {
		t.Errorf("name = %q, want %q", got, "post")
	}
	if got := s.GetGlobal("n").String(); got != "2" {
		t.Errorf("n = %v, want 2", got)
	}
}
