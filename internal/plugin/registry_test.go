package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/infogata/socialgata/internal/plugintypes"
	"github.com/infogata/socialgata/internal/storage"
)

func newTestRegistry(t *testing.T, defaults ...*Manifest) *Registry {
	t.Helper()
	store, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("storage.Open() error: %v", err)
	}
	r := NewRegistry(store, RegistryConfig{Defaults: defaults})
	t.Cleanup(r.Close)
	return r
}

func manifest(id, script string) *Manifest {
	return &Manifest{ID: id, Name: id, Script: script}
}

func TestRegistryAddAndGet(t *testing.T) {
	r := newTestRegistry(t)

	host, err := r.AddPlugin(context.Background(), manifest("a", `function onGetFeed(req) return {} end`))
	if err != nil {
		t.Fatalf("AddPlugin() error: %v", err)
	}
	if host.State() != StateReady {
		t.Errorf("State() = %v, want %v", host.State(), StateReady)
	}

	got, err := r.Plugin("a")
	if err != nil {
		t.Fatalf("Plugin() error: %v", err)
	}
	if got != host {
		t.Error("Plugin() returned a different host")
	}
}

func TestRegistryAddDuplicate(t *testing.T) {
	r := newTestRegistry(t)

	if _, err := r.AddPlugin(context.Background(), manifest("a", `x = 1`)); err != nil {
		t.Fatalf("AddPlugin() error: %v", err)
	}
	if _, err := r.AddPlugin(context.Background(), manifest("a", `x = 2`)); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("duplicate AddPlugin() = %v, want ErrAlreadyExists", err)
	}
}

func TestRegistryDeleteCascadesAuth(t *testing.T) {
	r := newTestRegistry(t)

	if _, err := r.AddPlugin(context.Background(), manifest("a", `x = 1`)); err != nil {
		t.Fatalf("AddPlugin() error: %v", err)
	}
	if err := r.SetAuth("a", &AuthRecord{Domains: []string{"example.com"}}); err != nil {
		t.Fatalf("SetAuth() error: %v", err)
	}

	if err := r.DeletePlugin("a"); err != nil {
		t.Fatalf("DeletePlugin() error: %v", err)
	}

	if _, err := r.Plugin("a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Plugin() after delete = %v, want ErrNotFound", err)
	}
	if _, err := r.Auth("a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Auth() after delete = %v, want ErrNotFound", err)
	}
}

func TestRegistryReloadIsolatesFailures(t *testing.T) {
	r := newTestRegistry(t)

	ctx := context.Background()
	if _, err := r.AddPlugin(ctx, manifest("good", `function onGetFeed(req) return {} end`)); err != nil {
		t.Fatalf("AddPlugin(good) error: %v", err)
	}
	// The broken plugin registers but fails to load.
	if _, err := r.AddPlugin(ctx, manifest("broken", `this is not lua`)); err == nil {
		t.Fatal("AddPlugin(broken) should report the load failure")
	}

	if err := r.ReloadPlugins(ctx); err != nil {
		t.Fatalf("ReloadPlugins() error: %v", err)
	}

	hosts := r.Plugins()
	if len(hosts) != 2 {
		t.Fatalf("got %d hosts, want 2", len(hosts))
	}
	states := map[string]State{}
	for _, h := range hosts {
		states[h.ID()] = h.State()
	}
	if states["good"] != StateReady {
		t.Errorf("good = %v, want %v", states["good"], StateReady)
	}
	if states["broken"] != StateFailed {
		t.Errorf("broken = %v, want %v", states["broken"], StateFailed)
	}

	loaded := r.Loaded()
	if len(loaded) != 1 || loaded[0].ID() != "good" {
		t.Errorf("Loaded() = %v, want [good]", ids(loaded))
	}
	failed := r.Failed()
	if len(failed) != 1 || failed[0].ID() != "broken" {
		t.Errorf("Failed() = %v, want [broken]", ids(failed))
	}
}

func ids(hosts []*Host) []string {
	out := make([]string, len(hosts))
	for i, h := range hosts {
		out[i] = h.ID()
	}
	return out
}

func TestRegistryPreinstallIdempotent(t *testing.T) {
	def := manifest("default-plugin", `function onGetFeed(req) return {} end`)
	r := newTestRegistry(t, def)

	ctx := context.Background()
	if err := r.Preinstall(ctx); err != nil {
		t.Fatalf("Preinstall() error: %v", err)
	}
	if _, err := r.Plugin("default-plugin"); err != nil {
		t.Fatalf("default plugin missing after Preinstall: %v", err)
	}

	// A second preinstall must not duplicate or fail.
	if err := r.Preinstall(ctx); err != nil {
		t.Fatalf("second Preinstall() error: %v", err)
	}
	if got := len(r.Plugins()); got != 1 {
		t.Errorf("got %d plugins after double preinstall, want 1", got)
	}

	// Removing the default and preinstalling again within the same session
	// must not resurrect it.
	if err := r.DeletePlugin("default-plugin"); err != nil {
		t.Fatalf("DeletePlugin() error: %v", err)
	}
	if err := r.Preinstall(ctx); err != nil {
		t.Fatalf("third Preinstall() error: %v", err)
	}
	if got := len(r.Plugins()); got != 0 {
		t.Errorf("got %d plugins, deleted default must stay deleted this session", got)
	}
}

func TestRegistryPreinstallReinstallsNextSession(t *testing.T) {
	store, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("storage.Open() error: %v", err)
	}
	def := manifest("default-plugin", `function onGetFeed(req) return {} end`)
	cfg := RegistryConfig{Defaults: []*Manifest{def}}

	ctx := context.Background()
	r1 := NewRegistry(store, cfg)
	if err := r1.Preinstall(ctx); err != nil {
		t.Fatalf("Preinstall() error: %v", err)
	}
	if err := r1.DeletePlugin("default-plugin"); err != nil {
		t.Fatalf("DeletePlugin() error: %v", err)
	}
	r1.Close()

	// A new registry over the same store is a new session; its preinstall
	// pass re-checks the default list against the store.
	r2 := NewRegistry(store, cfg)
	defer r2.Close()
	if err := r2.Preinstall(ctx); err != nil {
		t.Fatalf("Preinstall() in new session error: %v", err)
	}
	if _, err := r2.Plugin("default-plugin"); err != nil {
		t.Errorf("default plugin not reinstalled in a new session: %v", err)
	}
}

func TestRegistryEvents(t *testing.T) {
	r := newTestRegistry(t)
	events := r.Subscribe()

	if _, err := r.AddPlugin(context.Background(), manifest("a", `x = 1`)); err != nil {
		t.Fatalf("AddPlugin() error: %v", err)
	}

	ev := <-events
	if ev.Type != EventLoaded || ev.PluginID != "a" {
		t.Errorf("event = %+v, want loaded/a", ev)
	}

	if err := r.DeletePlugin("a"); err != nil {
		t.Fatalf("DeletePlugin() error: %v", err)
	}
	ev = <-events
	if ev.Type != EventRemoved || ev.PluginID != "a" {
		t.Errorf("event = %+v, want removed/a", ev)
	}
}

func TestRegistrySetThemePushesToPlugins(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.AddPlugin(context.Background(), manifest("a", `
		theme = ""
		function onChangeTheme(msg)
			theme = msg.theme
		end
		function onReadTheme()
			return theme
		end
	`))
	if err != nil {
		t.Fatalf("AddPlugin() error: %v", err)
	}

	r.SetTheme(plugintypes.ThemeDark)

	host, _ := r.Plugin("a")
	var got string
	if err := host.Channel().Invoke(context.Background(), "onReadTheme", nil, &got); err != nil {
		t.Fatalf("Invoke() error: %v", err)
	}
	if got != "dark" {
		t.Errorf("plugin saw theme %q, want %q", got, "dark")
	}
}

func TestRegistryUIMessages(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.AddPlugin(context.Background(), manifest("a", `
		function onGetFeed(req)
			gata.postUiMessage({ text = "hello" })
			return {}
		end
	`))
	if err != nil {
		t.Fatalf("AddPlugin() error: %v", err)
	}

	host, _ := r.Plugin("a")
	if err := host.Channel().Invoke(context.Background(), MethodGetFeed, nil, nil); err != nil {
		t.Fatalf("Invoke() error: %v", err)
	}

	select {
	case msg := <-r.Messages():
		if msg.PluginID != "a" {
			t.Errorf("message from %q, want %q", msg.PluginID, "a")
		}
	default:
		t.Fatal("no UI message relayed")
	}
}
