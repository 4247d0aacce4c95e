package service

import (
	"sync"

	"github.com/infogata/socialgata/internal/plugin"
)

// Cache hands out one Adapter per plugin and rebuilds them when the
// registry reports plugin changes.
type Cache struct {
	registry *plugin.Registry

	mu       sync.Mutex
	adapters map[string]*Adapter
}

// NewCache builds a cache over the registry and starts watching its
// events until the subscription channel closes.
func NewCache(registry *plugin.Registry) *Cache {
	c := &Cache{
		registry: registry,
		adapters: make(map[string]*Adapter),
	}
	go c.watch(registry.Subscribe())
	return c
}

func (c *Cache) watch(events <-chan plugin.Event) {
	for ev := range events {
		c.mu.Lock()
		if ev.PluginID == "" {
			c.adapters = make(map[string]*Adapter)
		} else {
			delete(c.adapters, ev.PluginID)
		}
		c.mu.Unlock()
	}
}

// Service returns the adapter for one plugin.
func (c *Cache) Service(pluginID string) (Service, error) {
	host, err := c.registry.Plugin(pluginID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok := c.adapters[pluginID]; ok && a.host == host {
		return a, nil
	}
	a := NewAdapter(host)
	c.adapters[pluginID] = a
	return a, nil
}

// Services returns an adapter for every registered plugin, loaded or not.
func (c *Cache) Services() []Service {
	hosts := c.registry.Plugins()
	out := make([]Service, 0, len(hosts))
	for _, h := range hosts {
		if s, err := c.Service(h.ID()); err == nil {
			out = append(out, s)
		}
	}
	return out
}
