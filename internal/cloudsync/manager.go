package cloudsync

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/infogata/socialgata/internal/favorites"
)

// Status describes where the manager is in its sync cycle.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Listener receives status transitions.
type Listener func(Status)

// Manager drives the sync cycle: download the remote snapshot, merge it
// into the local favorites store (remote wins), then upload the merged
// result. Only one cycle runs at a time.
type Manager struct {
	store *favorites.Store

	mu        sync.Mutex
	provider  Provider
	status    Status
	syncing   bool
	lastErr   error
	lastSync  time.Time
	listeners []Listener

	stopPeriodic context.CancelFunc
	periodicDone chan struct{}
}

// NewManager builds a manager over the favorites store. No provider is
// bound yet; SyncNow warns and does nothing until BindProvider runs.
func NewManager(store *favorites.Store) *Manager {
	return &Manager{store: store, status: StatusIdle}
}

// BindProvider attaches (or replaces) the cloud provider.
func (m *Manager) BindProvider(p Provider) {
	m.mu.Lock()
	m.provider = p
	m.mu.Unlock()
}

// Provider returns the bound provider, if any.
func (m *Manager) Provider() Provider {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.provider
}

// Status reports the current sync status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// LastError returns the failure from the most recent cycle, if any.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// LastSyncTime returns when the last successful cycle finished.
func (m *Manager) LastSyncTime() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSync
}

// AddListener registers a status listener. Listeners run synchronously on
// the syncing goroutine and must not block.
func (m *Manager) AddListener(l Listener) {
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}

func (m *Manager) setStatus(s Status, err error) {
	m.mu.Lock()
	m.status = s
	m.lastErr = err
	if s == StatusSuccess {
		m.lastSync = time.Now()
	}
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()
	for _, l := range listeners {
		l(s)
	}
}

// begin claims the sync slot. It returns the provider to use, or false
// when the cycle should be skipped.
func (m *Manager) begin(op string) (Provider, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.provider == nil:
		log.Printf("cloudsync: %s skipped: no provider bound", op)
		return nil, false
	case !m.provider.Authenticated():
		log.Printf("cloudsync: %s skipped: %s not authenticated", op, m.provider.Name())
		return nil, false
	case m.syncing:
		log.Printf("cloudsync: %s skipped: sync already in progress", op)
		return nil, false
	}
	m.syncing = true
	return m.provider, true
}

func (m *Manager) end() {
	m.mu.Lock()
	m.syncing = false
	m.mu.Unlock()
}

// SyncNow runs one full cycle. A failed download aborts the cycle; a
// snapshot that downloads but will not merge is logged and the local
// document is uploaded anyway, so a corrupt remote copy gets repaired.
func (m *Manager) SyncNow(ctx context.Context) error {
	provider, ok := m.begin("sync")
	if !ok {
		return nil
	}
	defer m.end()

	m.setStatus(StatusSyncing, nil)

	data, err := provider.Download(ctx, m.store.Address())
	switch {
	case errors.Is(err, ErrNotFound):
		// First sync from this address; nothing to merge.
	case err != nil:
		m.setStatus(StatusError, err)
		return err
	default:
		if err := m.store.ApplySnapshot(data); err != nil {
			log.Printf("cloudsync: remote snapshot rejected: %v", err)
		}
	}

	if err := m.upload(ctx, provider); err != nil {
		m.setStatus(StatusError, err)
		return err
	}
	m.setStatus(StatusSuccess, nil)
	return nil
}

// UploadNow pushes the local document without merging first.
func (m *Manager) UploadNow(ctx context.Context) error {
	provider, ok := m.begin("upload")
	if !ok {
		return nil
	}
	defer m.end()

	m.setStatus(StatusSyncing, nil)
	if err := m.upload(ctx, provider); err != nil {
		m.setStatus(StatusError, err)
		return err
	}
	m.setStatus(StatusSuccess, nil)
	return nil
}

// DownloadNow merges the remote snapshot without uploading afterwards.
func (m *Manager) DownloadNow(ctx context.Context) error {
	provider, ok := m.begin("download")
	if !ok {
		return nil
	}
	defer m.end()

	m.setStatus(StatusSyncing, nil)
	data, err := provider.Download(ctx, m.store.Address())
	if errors.Is(err, ErrNotFound) {
		m.setStatus(StatusSuccess, nil)
		return nil
	}
	if err != nil {
		m.setStatus(StatusError, err)
		return err
	}
	if err := m.store.ApplySnapshot(data); err != nil {
		m.setStatus(StatusError, err)
		return err
	}
	m.setStatus(StatusSuccess, nil)
	return nil
}

func (m *Manager) upload(ctx context.Context, provider Provider) error {
	data, err := m.store.Snapshot()
	if err != nil {
		return err
	}
	return provider.Upload(ctx, m.store.Address(), data)
}

// StartPeriodicSync syncs immediately and then on every tick until
// StopPeriodicSync or ctx cancellation. Starting while already running
// restarts the schedule.
func (m *Manager) StartPeriodicSync(ctx context.Context, interval time.Duration) {
	m.StopPeriodicSync()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.mu.Lock()
	m.stopPeriodic = cancel
	m.periodicDone = done
	m.mu.Unlock()

	go func() {
		defer close(done)
		if err := m.SyncNow(runCtx); err != nil {
			log.Printf("cloudsync: periodic sync: %v", err)
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if err := m.SyncNow(runCtx); err != nil {
					log.Printf("cloudsync: periodic sync: %v", err)
				}
			}
		}
	}()
}

// StopPeriodicSync halts the periodic schedule. Safe to call when none is
// running.
func (m *Manager) StopPeriodicSync() {
	m.mu.Lock()
	cancel := m.stopPeriodic
	done := m.periodicDone
	m.stopPeriodic = nil
	m.periodicDone = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}
