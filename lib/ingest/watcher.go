// Package ingest catalogs recordings produced by external tooling. It
// watches a drop directory; files that settle (no writes for a quiet
// period) are added to the recording catalog so the sync pipeline picks
// them up.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/nrednav/cuid2"

	"github.com/visiondrive/agent/lib/logger"
	"github.com/visiondrive/agent/lib/store"
)

// Catalog receives settled drop files. Satisfied by *store.Store.
type Catalog interface {
	Put(ctx context.Context, rec store.Recording) error
}

const defaultSettle = 500 * time.Millisecond

// Watcher monitors one drop directory.
type Watcher struct {
	dir     string
	bucket  string
	catalog Catalog
	settle  time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
	seen   map[string]bool
}

// New builds a watcher over dir. Settled files are cataloged under bucket.
// A non-positive settle uses the default quiet period.
func New(dir, bucket string, catalog Catalog, settle time.Duration) *Watcher {
	if settle <= 0 {
		settle = defaultSettle
	}
	return &Watcher{
		dir:     dir,
		bucket:  bucket,
		catalog: catalog,
		settle:  settle,
		timers:  make(map[string]*time.Timer),
		seen:    make(map[string]bool),
	}
}

// Run watches until ctx is cancelled. Files already present at startup are
// cataloged immediately.
func (w *Watcher) Run(ctx context.Context) error {
	log := logger.FromContext(ctx)

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create drop dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	settled := make(chan string, 64)

	// Catalog whatever is already sitting in the drop dir.
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("scan drop dir: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			w.ingest(ctx, filepath.Join(w.dir, e.Name()))
		}
	}

	log.Info("ingest watcher started", "dir", w.dir, "bucket", w.bucket)
	for {
		select {
		case <-ctx.Done():
			return nil
		case path := <-settled:
			w.ingest(ctx, path)
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			info, err := os.Stat(ev.Name)
			if err != nil || info.IsDir() {
				continue
			}
			w.resetTimer(ev.Name, settled)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("fsnotify error", "err", err)
		}
	}
}

// resetTimer (re)arms the settle timer for path: the file is ingested only
// after a full quiet period without further writes.
func (w *Watcher) resetTimer(path string, settled chan<- string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.seen[path] {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Reset(w.settle)
		return
	}
	w.timers[path] = time.AfterFunc(w.settle, func() {
		// Non-blocking: a full buffer just delays ingestion to the next event.
		select {
		case settled <- path:
		default:
		}
	})
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	log := logger.FromContext(ctx)

	w.mu.Lock()
	if w.seen[path] {
		w.mu.Unlock()
		return
	}
	w.seen[path] = true
	delete(w.timers, path)
	w.mu.Unlock()

	info, err := os.Stat(path)
	if err != nil {
		log.Error("dropped file vanished before ingest", "path", path, "err", err)
		return
	}

	rec := store.Recording{
		ID:        cuid2.Generate(),
		Path:      path,
		Bucket:    w.bucket,
		SizeBytes: info.Size(),
		StartedAt: info.ModTime(),
		EndedAt:   info.ModTime(),
	}
	if err := w.catalog.Put(ctx, rec); err != nil {
		log.Error("failed to catalog dropped file", "path", path, "err", err)
		return
	}
	log.Info("cataloged dropped recording", "path", path, "id", rec.ID)
}
