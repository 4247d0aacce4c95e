package favorites

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// selfWriteWindow is how recently the store must have written for a file
// event to be treated as our own save rather than an external edit.
const selfWriteWindow = 2 * time.Second

// Watcher merges external modifications of the snapshot file into the
// store, so another process sharing the data directory stays in sync.
type Watcher struct {
	store *Store
	fsw   *fsnotify.Watcher
}

// NewWatcher watches the directory holding the store's snapshot. Watching
// the directory rather than the file survives the store's rename-based
// saves.
func NewWatcher(store *Store) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(store.Path())); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{store: store, fsw: fsw}, nil
}

// Run processes file events until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fsw.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("favorites: watch: %v", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Name != w.store.Path() {
		return
	}
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}
	if w.store.WroteWithin(selfWriteWindow) {
		return
	}

	data, err := os.ReadFile(w.store.Path())
	if err != nil {
		log.Printf("favorites: watch: read snapshot: %v", err)
		return
	}
	if err := w.store.ApplySnapshot(data); err != nil {
		log.Printf("favorites: watch: merge snapshot: %v", err)
	}
}
