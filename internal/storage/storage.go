// Package storage provides a small file-backed key/value store. Each
// namespace maps to one JSON document on disk; values are raw JSON kept and
// queried in place with gjson/sjson, so callers never pay for a full
// decode of the namespace to touch one key.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrNotFound is returned when a key has no value in its namespace.
var ErrNotFound = errors.New("storage: key not found")

// Store persists namespaced JSON values under a directory, one file per
// namespace. All methods are safe for concurrent use.
type Store struct {
	mu  sync.Mutex
	dir string
}

// Open creates the backing directory if needed and returns a store rooted
// at dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory backing the store.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(namespace string) string {
	return filepath.Join(s.dir, namespace+".json")
}

// escapeKey makes an arbitrary key usable as a single gjson path element.
func escapeKey(key string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`, "|", `\|`)
	return r.Replace(key)
}

func (s *Store) read(namespace string) ([]byte, error) {
	data, err := os.ReadFile(s.path(namespace))
	if err != nil {
		if os.IsNotExist(err) {
			return []byte("{}"), nil
		}
		return nil, fmt.Errorf("storage: read %s: %w", namespace, err)
	}
	if len(data) == 0 {
		return []byte("{}"), nil
	}
	return data, nil
}

// write replaces the namespace document atomically.
func (s *Store) write(namespace string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, namespace+".*.tmp")
	if err != nil {
		return fmt.Errorf("storage: write %s: %w", namespace, err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("storage: write %s: %w", namespace, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("storage: write %s: %w", namespace, err)
	}
	if err := os.Rename(name, s.path(namespace)); err != nil {
		os.Remove(name)
		return fmt.Errorf("storage: write %s: %w", namespace, err)
	}
	return nil
}

// Get returns the raw JSON value stored under key, or ErrNotFound.
func (s *Store) Get(namespace, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read(namespace)
	if err != nil {
		return nil, err
	}
	res := gjson.GetBytes(doc, escapeKey(key))
	if !res.Exists() {
		return nil, ErrNotFound
	}
	return []byte(res.Raw), nil
}

// Set stores raw JSON under key. The value must be valid JSON.
func (s *Store) Set(namespace, key string, value []byte) error {
	if !gjson.ValidBytes(value) {
		return fmt.Errorf("storage: set %s/%s: value is not valid JSON", namespace, key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read(namespace)
	if err != nil {
		return err
	}
	doc, err = sjson.SetRawBytes(doc, escapeKey(key), value)
	if err != nil {
		return fmt.Errorf("storage: set %s/%s: %w", namespace, key, err)
	}
	return s.write(namespace, doc)
}

// Delete removes key from the namespace. Deleting a missing key is a no-op.
func (s *Store) Delete(namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read(namespace)
	if err != nil {
		return err
	}
	doc, err = sjson.DeleteBytes(doc, escapeKey(key))
	if err != nil {
		return fmt.Errorf("storage: delete %s/%s: %w", namespace, key, err)
	}
	return s.write(namespace, doc)
}

// List returns every key/value pair in the namespace as raw JSON.
func (s *Store) List(namespace string) (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read(namespace)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte)
	gjson.ParseBytes(doc).ForEach(func(key, value gjson.Result) bool {
		out[key.String()] = []byte(value.Raw)
		return true
	})
	return out, nil
}

// Keys returns the keys present in the namespace.
func (s *Store) Keys(namespace string) ([]string, error) {
	pairs, err := s.List(namespace)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	return keys, nil
}
