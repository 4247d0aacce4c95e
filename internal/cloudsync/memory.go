package cloudsync

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process provider used in tests and as a stand-in when no
// cloud account is connected.
type Memory struct {
	mu       sync.Mutex
	blobs    map[string][]byte
	modified map[string]time.Time

	// Uploads counts Upload calls, Downloads counts Download calls.
	Uploads   int
	Downloads int

	// FailDownload and FailUpload, when set, are returned instead of
	// performing the operation.
	FailDownload error
	FailUpload   error
}

// NewMemory returns an empty in-memory provider.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte), modified: make(map[string]time.Time)}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Authenticated() bool { return true }

func (m *Memory) Download(_ context.Context, address string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Downloads++
	if m.FailDownload != nil {
		return nil, m.FailDownload
	}
	data, ok := m.blobs[address]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *Memory) Upload(_ context.Context, address string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Uploads++
	if m.FailUpload != nil {
		return m.FailUpload
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	m.blobs[address] = stored
	m.modified[address] = time.Now()
	return nil
}

func (m *Memory) Metadata(_ context.Context, address string) (*Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[address]
	if !ok {
		return nil, ErrNotFound
	}
	return &Metadata{LastModified: m.modified[address], Size: int64(len(data))}, nil
}

func (m *Memory) Delete(_ context.Context, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, address)
	delete(m.modified, address)
	return nil
}

func (m *Memory) SignOut() error { return nil }

// Blob returns the stored snapshot for address, if any.
func (m *Memory) Blob(address string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[address]
	return data, ok
}
