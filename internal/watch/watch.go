// Package watch is the fsnotify-backed producer side of the pending-refresh
// log (SPEC_FULL.md DOMAIN STACK): it watches a mod's directory tree for
// filesystem activity and, once an event settles past a debounce window,
// appends a queue.PendingRefresh record naming the changed relpath. The
// daemon's own loop (internal/engine.Engine.DrainPendingRefresh) is the
// consumer: it reads the log back and enqueues a build task per record.
// Grounded on the debounce-map-plus-ticker, Start(ctx)/Stop() lifecycle of
// _examples/theRebelliousNerd-codenerd/internal/core/mangle_watcher.go.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/paradoxindex/ckindex/internal/debug"
	"github.com/paradoxindex/ckindex/internal/pathutil"
	"github.com/paradoxindex/ckindex/internal/queue"
)

// Root is one directory the watcher recursively monitors, identified by the
// mod key (stable across the log: internal/engine threads this through as
// the mod's CVID so DrainPendingRefresh can map a record back to the
// ContentVersion it concerns).
type Root struct {
	Mod  string
	Path string
}

// Watcher is a live fsnotify watch over one or more Roots, debouncing
// bursts of events into settled queue.PendingRefresh appends.
type Watcher struct {
	fsw      *fsnotify.Watcher
	log      *queue.PendingRefreshLog
	roots    []Root
	debounce time.Duration

	mu      sync.Mutex
	watched map[string]Root // absolute dir -> owning root
	pending map[string]pendingEvent
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

type pendingEvent struct {
	root   Root
	abs    string
	delete bool
	at     time.Time
}

// New creates a Watcher over roots. The fsnotify watcher is created and
// every root's tree is added immediately; Start begins the event loop.
func New(roots []Root, log *queue.PendingRefreshLog, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}

	w := &Watcher{
		fsw:      fsw,
		log:      log,
		roots:    roots,
		debounce: debounce,
		watched:  make(map[string]Root),
		pending:  make(map[string]pendingEvent),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, root := range roots {
		if err := w.addRecursive(root); err != nil {
			debug.LogQueue("watch: failed to add root %s (%s): %v", root.Path, root.Mod, err)
		}
	}
	return w, nil
}

// addRecursive registers root's directory tree with the underlying
// fsnotify watcher. fsnotify only reports events for directories it was
// explicitly told to watch, so every subdirectory needs its own Add.
func (w *Watcher) addRecursive(root Root) error {
	return filepath.WalkDir(root.Path, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if addErr := w.fsw.Add(path); addErr != nil {
			return nil
		}
		w.mu.Lock()
		w.watched[path] = root
		w.mu.Unlock()
		return nil
	})
}

// Start begins the watcher's event loop in a background goroutine. It is
// non-blocking; callers stop it by cancelling ctx or calling Stop.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	go w.run(ctx)
}

// Stop halts the event loop and releases the underlying fsnotify handle.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	w.fsw.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			debug.LogQueue("watch: fsnotify error: %v", err)
		case <-ticker.C:
			w.flush()
		}
	}
}

// handleEvent classifies one fsnotify.Event and records it in the debounce
// map, keyed by absolute path so repeated writes to the same file collapse
// into a single flushed record. A newly created directory is added to the
// watch set so files written into it afterward are also observed.
func (w *Watcher) handleEvent(ev fsnotify.Event) {
	root, ok := w.resolveRoot(ev.Name)
	if !ok {
		return
	}

	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			w.addRecursive(root)
			return
		}
	}

	var deleted bool
	switch {
	case ev.Op&fsnotify.Remove != 0, ev.Op&fsnotify.Rename != 0:
		deleted = true
	case ev.Op&fsnotify.Write != 0, ev.Op&fsnotify.Create != 0:
		deleted = false
	default:
		return // chmod and similar carry no content change
	}

	w.mu.Lock()
	w.pending[ev.Name] = pendingEvent{root: root, abs: ev.Name, delete: deleted, at: time.Now()}
	w.mu.Unlock()
}

// resolveRoot finds which watched Root an absolute path falls under by
// walking up its parent directories against the watched-directory set.
func (w *Watcher) resolveRoot(abs string) (Root, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	dir := filepath.Dir(abs)
	for {
		if root, ok := w.watched[dir]; ok {
			return root, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Root{}, false
		}
		dir = parent
	}
}

// flush appends a pending-refresh record for every event that has settled
// past the debounce window.
func (w *Watcher) flush() {
	w.mu.Lock()
	now := time.Now()
	var settled []pendingEvent
	for abs, ev := range w.pending {
		if now.Sub(ev.at) < w.debounce {
			continue
		}
		settled = append(settled, ev)
		delete(w.pending, abs)
	}
	w.mu.Unlock()

	for _, ev := range settled {
		rel := pathutil.Normalize(relTo(ev.root.Path, ev.abs))
		if rel == "" {
			continue
		}
		op := queue.RefreshWrite
		if ev.delete {
			op = queue.RefreshDelete
		}
		if err := w.log.Append(op, ev.root.Mod, rel); err != nil {
			debug.LogQueue("watch: failed to append pending refresh for %s: %v", rel, err)
			continue
		}
		debug.LogQueue("watch: recorded %s %s (mod=%s)", op, rel, ev.root.Mod)
	}
}

func relTo(root, abs string) string {
	r, err := filepath.Rel(root, abs)
	if err != nil {
		return ""
	}
	return r
}
