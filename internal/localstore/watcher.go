package localstore

import (
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// selfWriteWindow bounds how long a note written by the sync engine
// itself stays exempt from dirty tracking. The filesystem events for
// such a write arrive after the write call returns, so suppression has
// to outlive the call; anything later than the window is a real edit.
const selfWriteWindow = 2 * time.Second

// Watcher tracks which notes changed on disk between sync cycles. The
// sync manager drains the dirty set to decide what to push and the
// removed set to decide what to delete remotely.
type Watcher struct {
	fw     *fsnotify.Watcher
	logger *log.Logger

	mu         sync.Mutex
	dirty      map[string]bool
	removed    map[string]bool
	selfWrites map[string]time.Time
}

func NewWatcher(dir string, logger *log.Logger) (*Watcher, error) {
	if logger == nil {
		logger = log.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{
		fw:         fw,
		logger:     logger,
		dirty:      make(map[string]bool),
		removed:    make(map[string]bool),
		selfWrites: make(map[string]time.Time),
	}, nil
}

// Run consumes filesystem events until the watcher is closed. Call it
// from its own goroutine.
func (w *Watcher) Run() {
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Printf("[localstore] watch error: %v", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	name := filepath.Base(ev.Name)
	if !strings.HasSuffix(name, noteExt) {
		return
	}
	id := strings.TrimSuffix(name, noteExt)

	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write):
		if at, ok := w.selfWrites[id]; ok {
			if time.Since(at) < selfWriteWindow {
				return
			}
			delete(w.selfWrites, id)
		}
		w.dirty[id] = true
		delete(w.removed, id)
	case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
		w.removed[id] = true
		delete(w.dirty, id)
	}
}

// DrainDirty returns and clears the set of locally modified note ids.
// Expired self-write suppressions are swept here so ids that never
// produced an event do not accumulate.
func (w *Watcher) DrainDirty() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, at := range w.selfWrites {
		if time.Since(at) >= selfWriteWindow {
			delete(w.selfWrites, id)
		}
	}
	ids := make([]string, 0, len(w.dirty))
	for id := range w.dirty {
		ids = append(ids, id)
	}
	w.dirty = make(map[string]bool)
	return ids
}

// DrainRemoved returns and clears the set of locally removed note ids.
func (w *Watcher) DrainRemoved() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]string, 0, len(w.removed))
	for id := range w.removed {
		ids = append(ids, id)
	}
	w.removed = make(map[string]bool)
	return ids
}

// MarkDirty re-queues a note id for push, used when an upload batch
// fails after the pending sets were already drained.
func (w *Watcher) MarkDirty(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dirty[id] = true
}

// MarkRemoved re-queues a note id for remote deletion.
func (w *Watcher) MarkRemoved(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.removed[id] = true
}

// ExpectWrite records that the sync engine is about to write a note
// itself. The sync manager calls it before storing a pulled note; any
// write event for that id inside the suppression window is ignored
// instead of queued for push, and any pending record is dropped.
func (w *Watcher) ExpectWrite(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.selfWrites[id] = time.Now()
	delete(w.dirty, id)
	delete(w.removed, id)
}

func (w *Watcher) Close() error {
	return w.fw.Close()
}
