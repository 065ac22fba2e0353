package asterisk

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher consumes every file that appears in a write-back directory. A file
// is read only after it has been quiet for the settle delay.
type Watcher struct {
	dir    string
	sink   Sink
	settle time.Duration
	poll   time.Duration

	pending map[string]time.Time
}

// NewWatcher creates a watcher over dir. A zero settle defaults to 500ms.
func NewWatcher(dir string, sink Sink, settle time.Duration) *Watcher {
	if settle <= 0 {
		settle = 500 * time.Millisecond
	}
	return &Watcher{
		dir:     dir,
		sink:    sink,
		settle:  settle,
		poll:    time.Minute,
		pending: make(map[string]time.Time),
	}
}

// Run watches the directory until ctx is cancelled. Files already present
// when it starts are consumed too.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("error creando directorio %s: %w", w.dir, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("fsnotify: no se pudo vigilar %s: %w", w.dir, err)
	}
	log.Printf("[Watcher] Vigilando %s", w.dir)

	w.scan()

	check := time.NewTicker(w.settle / 2)
	defer check.Stop()
	// safety net for missed events
	fallback := time.NewTicker(w.poll)
	defer fallback.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				w.pending[event.Name] = time.Now()
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.Printf("[Watcher] fsnotify error: %v", err)

		case <-check.C:
			w.flush(ctx, time.Now())

		case <-fallback.C:
			w.scan()
		}
	}
}

// scan marks every regular file in the directory as pending.
func (w *Watcher) scan() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		log.Printf("[Watcher] Error listando %s: %v", w.dir, err)
		return
	}
	now := time.Now()
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		path := filepath.Join(w.dir, e.Name())
		if _, ok := w.pending[path]; !ok {
			w.pending[path] = now
		}
	}
}

// flush consumes the pending files that have settled.
func (w *Watcher) flush(ctx context.Context, now time.Time) {
	for path, last := range w.pending {
		if now.Sub(last) < w.settle {
			continue
		}
		delete(w.pending, path)

		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if err := consumeFile(ctx, path, w.sink); err != nil {
			log.Printf("[Watcher] Error consumiendo %s: %v", filepath.Base(path), err)
			continue
		}
		log.Printf("[Watcher] Señal consumida: %s", filepath.Base(path))
	}
}
