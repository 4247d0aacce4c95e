package plugin

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/infogata/socialgata/internal/plugin/channel"
	glua "github.com/infogata/socialgata/internal/plugin/lua"
	"github.com/infogata/socialgata/internal/plugintypes"
	lua "github.com/yuin/gopher-lua"
)

// AuthRecord holds the credentials captured for one plugin's platform.
// Headers is keyed by exact request URL, DomainHeaders by host suffix.
type AuthRecord struct {
	Domains       []string                     `json:"domains,omitempty"`
	Headers       map[string]map[string]string `json:"headers,omitempty"`
	DomainHeaders map[string]map[string]string `json:"domainHeaders,omitempty"`
	Cookies       map[string]string            `json:"cookies,omitempty"`
}

// HostConfig wires one Host into its surroundings.
type HostConfig struct {
	// Client performs plugin network requests. It must not carry a cookie
	// jar; credentials are attached per request from the auth record.
	Client *http.Client

	// CORSProxy, when set, is exposed to plugin code via gata.getCorsProxy.
	CORSProxy string

	// Auth returns the stored credentials for a plugin, if any.
	Auth func(pluginID string) (*AuthRecord, bool)

	// Theme reports the current UI theme.
	Theme func() plugintypes.Theme

	// UIMessage relays a message from plugin code toward the UI.
	UIMessage func(pluginID string, message any)

	// ReadyTimeout overrides the channel's load deadline when positive.
	ReadyTimeout time.Duration
}

// Host runs one plugin inside a sandboxed context and exposes the host API
// to it. A Host owns its channel from Load until Close.
type Host struct {
	manifest *Manifest
	cfg      HostConfig

	mu       sync.Mutex
	ch       *channel.Channel
	state    State
	loadErr  error
	platform plugintypes.PlatformType
}

// NewHost prepares a host for the given manifest. Nothing runs until Load.
func NewHost(manifest *Manifest, cfg HostConfig) *Host {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Host{
		manifest: manifest,
		cfg:      cfg,
		state:    StateUnloaded,
		platform: plugintypes.PlatformForum,
	}
}

// ID returns the plugin id.
func (h *Host) ID() string { return h.manifest.ID }

// Manifest returns the manifest the host was built from.
func (h *Host) Manifest() *Manifest { return h.manifest }

// State reports the plugin's lifecycle state.
func (h *Host) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// LoadError returns the error that moved the plugin to StateFailed.
func (h *Host) LoadError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loadErr
}

// PlatformType reports the platform kind the plugin declared during load.
func (h *Host) PlatformType() plugintypes.PlatformType {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.platform
}

// Channel exposes the live message channel, or nil before Load.
func (h *Host) Channel() *channel.Channel {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ch
}

// Load opens the sandbox, installs the host API, evaluates the plugin
// script and discovers the plugin's platform type. On any failure the
// context is torn down and the host moves to StateFailed.
func (h *Host) Load(ctx context.Context, script string) error {
	h.mu.Lock()
	if h.state == StateLoading || h.state == StateReady {
		h.mu.Unlock()
		return fmt.Errorf("plugin %s: load in state %s", h.manifest.ID, h.state)
	}
	h.state = StateLoading
	h.loadErr = nil
	h.mu.Unlock()

	timeout := h.cfg.ReadyTimeout
	if timeout <= 0 {
		timeout = channel.DefaultReadyTimeout
	}
	// The deadline covers the whole load: shim, API install and the plugin
	// script itself. A script that never returns fails the load and is
	// interrupted on teardown.
	loadCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := channel.New(h.manifest.ID, channel.WithReadyTimeout(timeout))

	err := func() error {
		if err := ch.Open(loadCtx); err != nil {
			return err
		}
		if err := ch.RegisterModule(loadCtx, "gata", h.apiFuncs()); err != nil {
			return err
		}
		if err := ch.ExecuteCode(loadCtx, script); err != nil {
			return err
		}
		return nil
	}()
	if err != nil {
		ch.Close()
		h.fail(err)
		return err
	}

	platform := h.discoverPlatform(loadCtx, ch)
	h.installHooks(ch)

	h.mu.Lock()
	h.ch = ch
	h.state = StateReady
	h.platform = platform
	h.mu.Unlock()
	return nil
}

func (h *Host) fail(err error) {
	h.mu.Lock()
	h.state = StateFailed
	h.loadErr = err
	h.ch = nil
	h.mu.Unlock()
}

// Close tears down the plugin context. Safe to call in any state.
func (h *Host) Close() {
	h.mu.Lock()
	ch := h.ch
	h.ch = nil
	h.state = StateUnloaded
	h.mu.Unlock()
	if ch != nil {
		ch.Close()
	}
}

// discoverPlatform asks the plugin what kind of platform it fronts.
// Plugins without the method, or answering something unknown, count as
// forums.
func (h *Host) discoverPlatform(ctx context.Context, ch *channel.Channel) plugintypes.PlatformType {
	defined, err := ch.HasDefined(ctx, MethodGetPlatformType)
	if err != nil || !defined {
		return plugintypes.PlatformForum
	}
	var answer string
	if err := ch.Invoke(ctx, MethodGetPlatformType, nil, &answer); err != nil {
		return plugintypes.PlatformForum
	}
	pt := plugintypes.PlatformType(answer)
	if !pt.Valid() {
		return plugintypes.PlatformForum
	}
	return pt
}

// installHooks stamps the plugin id onto every content item a list-shaped
// response carries, so items stay attributable after aggregation.
func (h *Host) installHooks(ch *channel.Channel) {
	id := h.manifest.ID
	stamp := func(payload map[string]any) {
		for _, field := range []string{"items", "instances", "communities", "users"} {
			items, ok := payload[field].([]any)
			if !ok {
				continue
			}
			for _, item := range items {
				if m, ok := item.(map[string]any); ok {
					m["pluginId"] = id
				}
			}
		}
	}
	for _, method := range []string{MethodGetFeed, MethodSearch, MethodGetTrendingTopicFeed} {
		ch.Complete(method, stamp)
	}
}

// apiFuncs builds the gata module surface exposed inside the sandbox.
func (h *Host) apiFuncs() map[string]lua.LGFunction {
	return map[string]lua.LGFunction{
		"networkRequest": h.luaNetworkRequest,
		"postUiMessage":  h.luaPostUIMessage,
		"getCorsProxy":   h.luaGetCorsProxy,
		"isLoggedIn":     h.luaIsLoggedIn,
		"getTheme":       h.luaGetTheme,
		"getOption":      h.luaGetOption,
	}
}

func (h *Host) luaNetworkRequest(L *lua.LState) int {
	target := L.CheckString(1)
	var opts map[string]any
	if L.GetTop() >= 2 {
		if tbl, ok := L.Get(2).(*lua.LTable); ok {
			opts, _ = glua.NewBridge(L).ToGo(tbl).(map[string]any)
		}
	}

	resp, err := h.doNetworkRequest(target, opts)
	if err != nil {
		L.RaiseError("networkRequest: %s", err)
		return 0
	}

	L.Push(glua.NewBridge(L).ToLua(map[string]any{
		"body":       string(resp.Body),
		"status":     resp.Status,
		"statusText": resp.StatusText,
		"headers":    headerMap(resp.Headers),
		"url":        resp.URL,
	}))
	return 1
}

func (h *Host) luaPostUIMessage(L *lua.LState) int {
	v := glua.NewBridge(L).ToGo(L.CheckAny(1))
	if h.cfg.UIMessage != nil {
		h.cfg.UIMessage(h.manifest.ID, v)
	}
	return 0
}

func (h *Host) luaGetCorsProxy(L *lua.LState) int {
	L.Push(lua.LString(h.cfg.CORSProxy))
	return 1
}

func (h *Host) luaIsLoggedIn(L *lua.LState) int {
	loggedIn := false
	if h.cfg.Auth != nil {
		_, loggedIn = h.cfg.Auth(h.manifest.ID)
	}
	L.Push(lua.LBool(loggedIn))
	return 1
}

func (h *Host) luaGetTheme(L *lua.LState) int {
	theme := plugintypes.ThemeSystem
	if h.cfg.Theme != nil {
		theme = h.cfg.Theme()
	}
	L.Push(lua.LString(string(theme)))
	return 1
}

func (h *Host) luaGetOption(L *lua.LState) int {
	name := L.CheckString(1)
	if v, ok := h.manifest.Options[name]; ok {
		L.Push(lua.LString(v))
	} else {
		L.Push(lua.LNil)
	}
	return 1
}

// doNetworkRequest performs a plugin-initiated HTTP request. Credentials
// are never sent implicitly; stored auth headers are attached only when the
// target matches the plugin's authorized domains or a recorded URL.
func (h *Host) doNetworkRequest(target string, opts map[string]any) (*plugintypes.NetworkResponse, error) {
	method := http.MethodGet
	var body io.Reader
	headers := map[string]string{}

	if opts != nil {
		if m, ok := opts["method"].(string); ok && m != "" {
			method = strings.ToUpper(m)
		}
		if hs, ok := opts["headers"].(map[string]any); ok {
			for k, v := range hs {
				if s, ok := v.(string); ok {
					headers[k] = s
				}
			}
		}
		if b, ok := opts["body"].(string); ok && b != "" {
			body = strings.NewReader(b)
		}
	}

	req, err := http.NewRequest(method, target, body)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	h.attachAuth(req)

	resp, err := h.cfg.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &plugintypes.NetworkResponse{
		Body:       data,
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Headers:    flattenHeader(resp.Header),
		URL:        resp.Request.URL.String(),
	}, nil
}

// attachAuth injects stored credentials for authorized targets only.
func (h *Host) attachAuth(req *http.Request) {
	if h.cfg.Auth == nil {
		return
	}
	rec, ok := h.cfg.Auth(h.manifest.ID)
	if !ok || rec == nil {
		return
	}

	if hs, ok := rec.Headers[req.URL.String()]; ok {
		for k, v := range hs {
			req.Header.Set(k, v)
		}
	}

	host := req.URL.Hostname()
	for domain, hs := range rec.DomainHeaders {
		if !domainMatches(host, domain) {
			continue
		}
		for k, v := range hs {
			req.Header.Set(k, v)
		}
	}

	if len(rec.Cookies) > 0 && h.authorizedDomain(host, rec) {
		for name, value := range rec.Cookies {
			req.AddCookie(&http.Cookie{Name: name, Value: value})
		}
	}
}

// authorizedDomain checks the stored record's domains first, then the
// manifest's declared authentication: a record captured before any domain
// was recorded still honors what the manifest declares.
func (h *Host) authorizedDomain(host string, rec *AuthRecord) bool {
	for _, d := range rec.Domains {
		if domainMatches(host, d) {
			return true
		}
	}
	if auth := h.manifest.Authentication; auth != nil {
		if auth.LoginURL != "" && domainMatches(host, auth.LoginURL) {
			return true
		}
		for _, d := range auth.DomainHeadersToFind {
			if domainMatches(host, d) {
				return true
			}
		}
	}
	return false
}

// domainMatches accepts domain as a bare host, a host:port pair, or a full
// URL, and compares by exact host or dot-separated suffix.
func domainMatches(host, domain string) bool {
	if u, err := url.Parse(domain); err == nil && u.Hostname() != "" {
		domain = u.Hostname()
	} else if h, _, err := net.SplitHostPort(domain); err == nil {
		domain = h
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func headerMap(h map[string]string) map[string]any {
	out := make(map[string]any, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}
