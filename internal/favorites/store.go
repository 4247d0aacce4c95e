package favorites

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/infogata/socialgata/internal/broadcast"
	"github.com/infogata/socialgata/internal/storage"
)

const (
	nsSettings = "settings"
	keyAddress = "favoritesAddress"

	snapshotFile = "favorites.bin"
)

// Store holds the favorites document, persists it as a compressed snapshot
// and announces every change on the hub.
type Store struct {
	settings *storage.Store
	hub      *broadcast.Hub
	path     string
	address  string

	mu        sync.Mutex
	doc       *Doc
	lastWrite time.Time
}

// NewStore loads (or creates) the favorites document under dir. The
// store's address identifies this favorites collection to sync providers
// and is minted once per settings store.
func NewStore(dir string, settings *storage.Store, hub *broadcast.Hub) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("favorites: %w", err)
	}

	s := &Store{
		settings: settings,
		hub:      hub,
		path:     filepath.Join(dir, snapshotFile),
		doc:      NewDoc(),
	}

	if data, err := os.ReadFile(s.path); err == nil {
		doc, err := DecodeDoc(data)
		if err != nil {
			log.Printf("favorites: ignoring corrupt snapshot: %v", err)
		} else {
			s.doc = doc
		}
	}

	addr, err := s.loadAddress()
	if err != nil {
		return nil, err
	}
	s.address = addr
	return s, nil
}

func (s *Store) loadAddress() (string, error) {
	if data, err := s.settings.Get(nsSettings, keyAddress); err == nil {
		var addr string
		if err := json.Unmarshal(data, &addr); err == nil && addr != "" {
			return addr, nil
		}
	}
	addr := uuid.NewString()
	data, _ := json.Marshal(addr)
	if err := s.settings.Set(nsSettings, keyAddress, data); err != nil {
		return "", fmt.Errorf("favorites: persist address: %w", err)
	}
	return addr, nil
}

// Address identifies this favorites collection across devices.
func (s *Store) Address() string { return s.address }

// Path returns the snapshot file location.
func (s *Store) Path() string { return s.path }

// Toggle saves the item when absent and removes it when present, returning
// whether the item is a favorite afterwards.
func (s *Store) Toggle(kind Kind, pluginID, itemID string, item any) (bool, error) {
	key := Key(pluginID, itemID)

	s.mu.Lock()
	m := s.doc.Map(kind)
	if m == nil {
		s.mu.Unlock()
		return false, fmt.Errorf("favorites: unknown kind %q", kind)
	}
	if _, ok := m[key]; ok {
		delete(m, key)
		err := s.persistLocked()
		s.mu.Unlock()
		return false, err
	}
	s.mu.Unlock()

	clean, err := SanitizeItem(item)
	if err != nil {
		return false, err
	}
	clean["pluginId"] = pluginID

	s.mu.Lock()
	s.doc.Map(kind)[key] = clean
	err = s.persistLocked()
	s.mu.Unlock()
	return true, err
}

// IsFavorite reports whether the item is saved.
func (s *Store) IsFavorite(kind Kind, pluginID, itemID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.doc.Map(kind)
	if m == nil {
		return false
	}
	_, ok := m[Key(pluginID, itemID)]
	return ok
}

// List returns a copy of one item map.
func (s *Store) List(kind Kind) map[string]map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.doc.Map(kind)
	out := make(map[string]map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// Merge folds a remote document into the local one and persists. Remote
// items win on conflict.
func (s *Store) Merge(remote *Doc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Merge(remote)
	return s.persistLocked()
}

// Snapshot encodes the current document.
func (s *Store) Snapshot() ([]byte, error) {
	s.mu.Lock()
	doc := s.doc.Clone()
	s.mu.Unlock()
	return EncodeDoc(doc)
}

// ApplySnapshot merges an encoded remote snapshot into the local document.
func (s *Store) ApplySnapshot(data []byte) error {
	doc, err := DecodeDoc(data)
	if err != nil {
		return err
	}
	return s.Merge(doc)
}

// Len reports the number of saved items.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Len()
}

// WroteWithin reports whether the store wrote its snapshot within d. The
// file watcher uses this to tell its own writes from external ones.
func (s *Store) WroteWithin(d time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.lastWrite.IsZero() && time.Since(s.lastWrite) < d
}

// persistLocked writes the snapshot atomically and announces the change.
// Callers hold s.mu.
func (s *Store) persistLocked() error {
	data, err := EncodeDoc(s.doc)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, snapshotFile+".*.tmp")
	if err != nil {
		return fmt.Errorf("favorites: persist: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("favorites: persist: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("favorites: persist: %w", err)
	}
	if err := os.Rename(name, s.path); err != nil {
		os.Remove(name)
		return fmt.Errorf("favorites: persist: %w", err)
	}
	s.lastWrite = time.Now()

	if s.hub != nil {
		msg, _ := json.Marshal(map[string]any{
			"type":  "favorites-changed",
			"count": s.doc.Len(),
		})
		s.hub.Broadcast(msg)
	}
	return nil
}
