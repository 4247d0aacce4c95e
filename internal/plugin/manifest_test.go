package plugin

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseManifest(t *testing.T) {
	data := []byte(`{
		"id": "lemmy",
		"name": "Lemmy",
		"version": "1.2.0",
		"updateUrl": "https://example.com/lemmy/manifest.json",
		"script": "function onGetFeed(req) return {} end",
		"authentication": {
			"loginUrl": "https://lemmy.ml/login",
			"headersToFind": ["authorization"],
			"completionUrl": "https://lemmy.ml/"
		},
		"options": {"instance": "lemmy.ml"}
	}`)

	m, err := ParseManifest(data)
	if err != nil {
		t.Fatalf("ParseManifest() error: %v", err)
	}
	if m.ID != "lemmy" || m.Name != "Lemmy" || m.Version != "1.2.0" {
		t.Errorf("unexpected manifest: %+v", m)
	}
	if m.Authentication == nil || m.Authentication.LoginURL != "https://lemmy.ml/login" {
		t.Errorf("authentication not parsed: %+v", m.Authentication)
	}
	if m.Options["instance"] != "lemmy.ml" {
		t.Errorf("options = %v", m.Options)
	}
	if m.UpdateURL != "https://example.com/lemmy/manifest.json" {
		t.Errorf("UpdateURL = %q", m.UpdateURL)
	}
}

func TestParseManifestOptionsAsString(t *testing.T) {
	// Some registries double-encode options as a JSON string.
	data := []byte(`{"name": "X", "script": "x = 1", "options": "{\"a\":\"b\"}"}`)

	m, err := ParseManifest(data)
	if err != nil {
		t.Fatalf("ParseManifest() error: %v", err)
	}
	if m.Options["a"] != "b" {
		t.Errorf("options = %v, want a=b", m.Options)
	}
}

func TestParseManifestGeneratesID(t *testing.T) {
	m1, err := ParseManifest([]byte(`{"name": "A", "script": "x = 1"}`))
	if err != nil {
		t.Fatalf("ParseManifest() error: %v", err)
	}
	m2, _ := ParseManifest([]byte(`{"name": "A", "script": "x = 1"}`))
	if m1.ID == "" {
		t.Error("missing id should be generated")
	}
	if m1.ID == m2.ID {
		t.Error("generated ids should be unique")
	}
}

func TestParseManifestInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"not json", `{{`, ErrInvalidManifest},
		{"no name", `{"script": "x = 1"}`, ErrInvalidManifest},
		{"no script", `{"name": "A"}`, ErrNoScript},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseManifest([]byte(tt.data)); !errors.Is(err, tt.want) {
				t.Errorf("ParseManifest() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestResolveScriptRelativeURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/plugins/feed.lua", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`function onGetFeed(req) return {} end`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m := &Manifest{
		ID:          "x",
		Name:        "X",
		ScriptURL:   "feed.lua",
		ManifestURL: srv.URL + "/plugins/manifest.json",
	}

	script, err := m.ResolveScript(srv.Client())
	if err != nil {
		t.Fatalf("ResolveScript() error: %v", err)
	}
	if script != `function onGetFeed(req) return {} end` {
		t.Errorf("script = %q", script)
	}
}

func TestFetchManifest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "m", "name": "M", "script": "x = 1"}`))
	}))
	defer srv.Close()

	m, err := FetchManifest(srv.Client(), srv.URL+"/manifest.json")
	if err != nil {
		t.Fatalf("FetchManifest() error: %v", err)
	}
	if m.ManifestURL != srv.URL+"/manifest.json" {
		t.Errorf("ManifestURL = %q, want the fetch URL recorded", m.ManifestURL)
	}
}
