package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/infogata/socialgata/internal/plugin"
	"github.com/infogata/socialgata/internal/plugintypes"
	"github.com/infogata/socialgata/internal/storage"
)

func loadAdapter(t *testing.T, script string) *Adapter {
	t.Helper()
	h := plugin.NewHost(&plugin.Manifest{ID: "p", Name: "P", Script: script}, plugin.HostConfig{})
	if err := h.Load(context.Background(), script); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	t.Cleanup(h.Close)
	return NewAdapter(h)
}

func TestAdapterImplementedMethod(t *testing.T) {
	a := loadAdapter(t, `
		function onGetFeed(req)
			return { items = { { apiId = "1", title = "hello" } } }
		end
	`)

	resp, err := a.GetFeed(context.Background(), &plugintypes.GetFeedRequest{})
	if err != nil {
		t.Fatalf("GetFeed() error: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Title != "hello" {
		t.Errorf("GetFeed() = %+v", resp)
	}
	if resp.Items[0].PluginID != "p" {
		t.Errorf("pluginId = %q, want stamped id", resp.Items[0].PluginID)
	}
}

func TestAdapterMissingMethodReturnsEmptyShape(t *testing.T) {
	a := loadAdapter(t, `x = 1`)

	ctx := context.Background()
	feed, err := a.GetFeed(ctx, &plugintypes.GetFeedRequest{})
	if err != nil {
		t.Fatalf("GetFeed() error: %v", err)
	}
	if feed == nil || len(feed.Items) != 0 {
		t.Errorf("GetFeed() = %+v, want empty shape", feed)
	}

	search, err := a.Search(ctx, &plugintypes.SearchRequest{Query: "q"})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if search == nil {
		t.Error("Search() should never return nil")
	}

	// The empty shape serializes with empty arrays, never null.
	data, err := json.Marshal(feed)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if !strings.Contains(string(data), `"items":[]`) {
		t.Errorf("empty feed = %s, want \"items\":[]", data)
	}

	instances, err := a.GetInstances(ctx, &plugintypes.GetInstancesRequest{})
	if err != nil {
		t.Fatalf("GetInstances() error: %v", err)
	}
	data, err = json.Marshal(instances)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if !strings.Contains(string(data), `"instances":[]`) {
		t.Errorf("empty instances = %s, want \"instances\":[]", data)
	}
}

func TestAdapterFailingMethodDegrades(t *testing.T) {
	a := loadAdapter(t, `
		function onGetFeed(req)
			error("instance unreachable")
		end
	`)

	resp, err := a.GetFeed(context.Background(), &plugintypes.GetFeedRequest{})
	if err != nil {
		t.Fatalf("GetFeed() error: %v", err)
	}
	if resp == nil || len(resp.Items) != 0 {
		t.Errorf("GetFeed() = %+v, want empty shape on plugin failure", resp)
	}
}

func TestAdapterLoginPropagates(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		wantErr bool
	}{
		{"implemented", `function onLogin(req) return {} end`, false},
		{"missing", `x = 1`, true},
		{"throws", `function onLogin(req) error("bad credentials") end`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := loadAdapter(t, tt.script)
			err := a.Login(context.Background(), &plugintypes.LoginRequest{APIKey: "k", APISecret: "s"})
			if (err != nil) != tt.wantErr {
				t.Errorf("Login() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAdapterIsLoggedIn(t *testing.T) {
	a := loadAdapter(t, `function onIsLoggedIn() return true end`)

	got, err := a.IsLoggedIn(context.Background())
	if err != nil {
		t.Fatalf("IsLoggedIn() error: %v", err)
	}
	if !got {
		t.Error("IsLoggedIn() = false, want true")
	}
}

func TestAdapterUnloadedHost(t *testing.T) {
	h := plugin.NewHost(&plugin.Manifest{ID: "p", Name: "P", Script: "x = 1"}, plugin.HostConfig{})
	a := NewAdapter(h)

	resp, err := a.GetFeed(context.Background(), &plugintypes.GetFeedRequest{})
	if err != nil {
		t.Fatalf("GetFeed() error: %v", err)
	}
	if resp == nil {
		t.Error("GetFeed() on unloaded host should return an empty shape")
	}

	if err := a.Login(context.Background(), &plugintypes.LoginRequest{}); !errors.Is(err, plugin.ErrNotLoaded) {
		t.Errorf("Login() = %v, want ErrNotLoaded", err)
	}
}

func TestCacheInvalidation(t *testing.T) {
	store, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("storage.Open() error: %v", err)
	}
	registry := plugin.NewRegistry(store, plugin.RegistryConfig{})
	defer registry.Close()

	ctx := context.Background()
	if _, err := registry.AddPlugin(ctx, &plugin.Manifest{
		ID: "a", Name: "A", Script: `function onGetFeed(req) return {} end`,
	}); err != nil {
		t.Fatalf("AddPlugin() error: %v", err)
	}

	cache := NewCache(registry)
	svc1, err := cache.Service("a")
	if err != nil {
		t.Fatalf("Service() error: %v", err)
	}

	// After a reload the host is new, so the adapter must be rebuilt.
	if err := registry.ReloadPlugins(ctx); err != nil {
		t.Fatalf("ReloadPlugins() error: %v", err)
	}
	svc2, err := cache.Service("a")
	if err != nil {
		t.Fatalf("Service() error: %v", err)
	}
	if svc1 == svc2 {
		t.Error("cache returned a stale adapter after reload")
	}
}
