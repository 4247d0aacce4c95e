package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/infogata/socialgata/internal/plugintypes"
	"github.com/infogata/socialgata/internal/storage"
)

// Storage namespaces used by the registry.
const (
	nsPlugins = "plugins"
	nsAuth    = "pluginauths"
)

// EventType classifies registry events.
type EventType string

const (
	EventLoaded   EventType = "loaded"
	EventFailed   EventType = "failed"
	EventRemoved  EventType = "removed"
	EventReloaded EventType = "reloaded"
)

// Event notifies subscribers that a plugin changed state. Consumers use
// these to invalidate caches built over plugin responses.
type Event struct {
	Type     EventType
	PluginID string
}

// Message is a UI-bound message posted by plugin code.
type Message struct {
	PluginID string
	Payload  any
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Client    *http.Client
	CORSProxy string

	// Defaults are manifests installed by Preinstall when not already
	// present in the store.
	Defaults []*Manifest

	// ReadyTimeout bounds each plugin's load, when positive.
	ReadyTimeout time.Duration
}

// Registry owns every installed plugin: the persisted records, the live
// hosts, and their auth credentials. All methods are safe for concurrent
// use.
type Registry struct {
	store  *storage.Store
	client *http.Client
	cfg    RegistryConfig

	mu           sync.Mutex
	hosts        map[string]*Host
	theme        plugintypes.Theme
	subs         []chan Event
	messages     chan Message
	preinstalled bool
}

// NewRegistry builds a registry over the given store. Plugins are not
// loaded until ReloadPlugins or Preinstall runs.
func NewRegistry(store *storage.Store, cfg RegistryConfig) *Registry {
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &Registry{
		store:    store,
		client:   client,
		cfg:      cfg,
		hosts:    make(map[string]*Host),
		theme:    plugintypes.ThemeSystem,
		messages: make(chan Message, 64),
	}
}

// Messages returns the stream of UI messages posted by plugin code.
// Messages are dropped when nothing is draining the channel.
func (r *Registry) Messages() <-chan Message { return r.messages }

// Subscribe returns a channel of registry events. Events to a slow
// subscriber are dropped.
func (r *Registry) Subscribe() <-chan Event {
	ch := make(chan Event, 16)
	r.mu.Lock()
	r.subs = append(r.subs, ch)
	r.mu.Unlock()
	return ch
}

func (r *Registry) publish(ev Event) {
	r.mu.Lock()
	subs := make([]chan Event, len(r.subs))
	copy(subs, r.subs)
	r.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (r *Registry) postMessage(pluginID string, payload any) {
	select {
	case r.messages <- Message{PluginID: pluginID, Payload: payload}:
	default:
	}
}

func (r *Registry) hostConfig() HostConfig {
	return HostConfig{
		Client:    r.client,
		CORSProxy: r.cfg.CORSProxy,
		Auth: func(pluginID string) (*AuthRecord, bool) {
			rec, err := r.Auth(pluginID)
			if err != nil {
				return nil, false
			}
			return rec, true
		},
		Theme:        r.Theme,
		UIMessage:    r.postMessage,
		ReadyTimeout: r.cfg.ReadyTimeout,
	}
}

// Preinstall installs any default plugin not currently in the store, then
// loads everything. The install pass runs once per Registry; later calls
// only reload, so a default removed mid-session stays removed until the
// next session.
func (r *Registry) Preinstall(ctx context.Context) error {
	r.mu.Lock()
	install := !r.preinstalled
	r.preinstalled = true
	r.mu.Unlock()

	if install {
		for _, m := range r.cfg.Defaults {
			if err := r.saveManifest(m); err != nil && !errors.Is(err, ErrAlreadyExists) {
				return err
			}
		}
	}
	return r.ReloadPlugins(ctx)
}

func (r *Registry) saveManifest(m *Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if _, err := r.store.Get(nsPlugins, m.ID); err == nil {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, m.ID)
	}
	return r.writeManifest(m)
}

func (r *Registry) writeManifest(m *Manifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return r.store.Set(nsPlugins, m.ID, data)
}

func (r *Registry) loadManifest(id string) (*Manifest, error) {
	data, err := r.store.Get(nsPlugins, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidManifest, id, err)
	}
	return &m, nil
}

// AddPlugin registers a manifest and loads it immediately.
func (r *Registry) AddPlugin(ctx context.Context, m *Manifest) (*Host, error) {
	if err := r.saveManifest(m); err != nil {
		return nil, err
	}
	return r.loadOne(ctx, m)
}

// AddPluginFromURL fetches a manifest and registers it.
func (r *Registry) AddPluginFromURL(ctx context.Context, manifestURL string) (*Host, error) {
	m, err := FetchManifest(r.client, manifestURL)
	if err != nil {
		return nil, err
	}
	return r.AddPlugin(ctx, m)
}

// UpdatePlugin refetches a plugin's manifest from its recorded URL, saves
// the new version and reloads every plugin so cross-plugin state is
// rebuilt consistently.
func (r *Registry) UpdatePlugin(ctx context.Context, id string) error {
	m, err := r.loadManifest(id)
	if err != nil {
		return err
	}
	source := m.UpdateURL
	if source == "" {
		source = m.ManifestURL
	}
	if source == "" {
		return fmt.Errorf("plugin %s: no manifest url to update from", id)
	}
	updated, err := FetchManifest(r.client, source)
	if err != nil {
		return err
	}
	updated.ID = id
	if err := r.writeManifest(updated); err != nil {
		return err
	}
	return r.ReloadPlugins(ctx)
}

// DeletePlugin unloads a plugin and removes its record and credentials.
func (r *Registry) DeletePlugin(id string) error {
	if _, err := r.loadManifest(id); err != nil {
		return err
	}

	r.mu.Lock()
	host := r.hosts[id]
	delete(r.hosts, id)
	r.mu.Unlock()
	if host != nil {
		host.Close()
	}

	if err := r.store.Delete(nsPlugins, id); err != nil {
		return err
	}
	if err := r.store.Delete(nsAuth, id); err != nil {
		return err
	}
	r.publish(Event{Type: EventRemoved, PluginID: id})
	return nil
}

// ReloadPlugins tears down every host and loads each registered plugin
// fresh. One plugin failing to load never blocks the others; failures are
// logged and kept as failed hosts so callers can inspect them.
func (r *Registry) ReloadPlugins(ctx context.Context) error {
	r.mu.Lock()
	old := r.hosts
	r.hosts = make(map[string]*Host)
	r.mu.Unlock()
	for _, h := range old {
		h.Close()
	}

	records, err := r.store.List(nsPlugins)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		m, err := r.loadManifest(id)
		if err != nil {
			log.Printf("plugin %s: skipping: %v", id, err)
			continue
		}
		if _, err := r.loadOne(ctx, m); err != nil {
			log.Printf("plugin %s: load failed: %v", id, err)
		}
	}
	r.publish(Event{Type: EventReloaded})
	return nil
}

func (r *Registry) loadOne(ctx context.Context, m *Manifest) (*Host, error) {
	host := NewHost(m, r.hostConfig())

	r.mu.Lock()
	r.hosts[m.ID] = host
	r.mu.Unlock()

	script, err := m.ResolveScript(r.client)
	if err != nil {
		host.fail(err)
		r.publish(Event{Type: EventFailed, PluginID: m.ID})
		return host, err
	}
	if err := host.Load(ctx, script); err != nil {
		r.publish(Event{Type: EventFailed, PluginID: m.ID})
		return host, err
	}
	r.publish(Event{Type: EventLoaded, PluginID: m.ID})
	return host, nil
}

// Plugin returns the host for id, loaded or not.
func (r *Registry) Plugin(id string) (*Host, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	host, ok := r.hosts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return host, nil
}

// Plugins returns every host, ordered by plugin id.
func (r *Registry) Plugins() []*Host {
	r.mu.Lock()
	hosts := make([]*Host, 0, len(r.hosts))
	for _, h := range r.hosts {
		hosts = append(hosts, h)
	}
	r.mu.Unlock()
	sort.Slice(hosts, func(i, j int) bool { return hosts[i].ID() < hosts[j].ID() })
	return hosts
}

// Loaded returns the hosts whose plugin code is ready to serve calls.
func (r *Registry) Loaded() []*Host {
	return r.filter(StateReady)
}

// Failed returns the hosts whose last load attempt did not reach ready.
func (r *Registry) Failed() []*Host {
	return r.filter(StateFailed)
}

func (r *Registry) filter(state State) []*Host {
	var out []*Host
	for _, h := range r.Plugins() {
		if h.State() == state {
			out = append(out, h)
		}
	}
	return out
}

// SetAuth stores credentials for a plugin and notifies it.
func (r *Registry) SetAuth(id string, rec *AuthRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := r.store.Set(nsAuth, id, data); err != nil {
		return err
	}
	if host, err := r.Plugin(id); err == nil && host.State() == StateReady {
		host.Channel().Push(MethodPostLogin, nil)
	}
	return nil
}

// Auth returns the stored credentials for a plugin.
func (r *Registry) Auth(id string) (*AuthRecord, error) {
	data, err := r.store.Get(nsAuth, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: auth for %s", ErrNotFound, id)
		}
		return nil, err
	}
	var rec AuthRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ClearAuth drops a plugin's credentials and notifies it.
func (r *Registry) ClearAuth(id string) error {
	if err := r.store.Delete(nsAuth, id); err != nil {
		return err
	}
	if host, err := r.Plugin(id); err == nil && host.State() == StateReady {
		host.Channel().Push(MethodPostLogout, nil)
	}
	return nil
}

// Theme reports the current UI theme.
func (r *Registry) Theme() plugintypes.Theme {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.theme
}

// SetTheme switches the UI theme and pushes the change to every loaded
// plugin.
func (r *Registry) SetTheme(theme plugintypes.Theme) {
	r.mu.Lock()
	r.theme = theme
	r.mu.Unlock()
	for _, host := range r.Plugins() {
		if host.State() == StateReady {
			host.Channel().Push(MethodChangeTheme, map[string]any{"theme": string(theme)})
		}
	}
}

// Close unloads every plugin.
func (r *Registry) Close() {
	r.mu.Lock()
	hosts := r.hosts
	r.hosts = make(map[string]*Host)
	r.mu.Unlock()
	for _, h := range hosts {
		h.Close()
	}
}
