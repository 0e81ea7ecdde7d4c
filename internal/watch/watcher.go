// SPDX-License-Identifier: MPL-2.0

// Package watch rebuilds an integration whenever its source tree changes.
//
// Filesystem events are coalesced over a debounce window, so an editor saving
// several files triggers one rebuild that receives every changed path. A
// rebuild still running when the window closes postpones the next one instead
// of overlapping it.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/soarhub/mp/pkg/fspath"
)

// DefaultDebounce is the quiet period after the last event before a rebuild.
const DefaultDebounce = 500 * time.Millisecond

var (
	// ErrRunning is returned when Run is called on a watcher that already ran.
	ErrRunning = errors.New("watcher already started")

	// editorNoise never triggers a rebuild: version control metadata and the
	// swap and backup files editors write next to a saved file.
	editorNoise = []string{
		"**/.git",
		"**/.idea",
		"**/.vscode",
		"**/*.swp",
		"**/*.swo",
		"**/*~",
		"**/.#*",
	}
)

type (
	// Options configures a Watcher.
	Options struct {
		// Dir is the integration source tree.
		Dir string
		// Ignored reports whether a slash-separated path relative to Dir is
		// excluded. Directories it excludes are not watched at all.
		Ignored func(rel string) bool
		// Debounce defaults to DefaultDebounce.
		Debounce time.Duration
		// OnChange receives the sorted changed paths, relative to Dir. An
		// error is logged and watching continues.
		OnChange func(ctx context.Context, changed []string) error
		Logger   *log.Logger
	}

	// Watcher watches one integration source tree.
	Watcher struct {
		dir      string
		ignored  func(rel string) bool
		debounce time.Duration
		onChange func(ctx context.Context, changed []string) error
		logger   *log.Logger
		fsw      *fsnotify.Watcher
		started  atomic.Bool
	}

	// batch collects changed paths until the debounce timer fires.
	batch struct {
		mu      sync.Mutex
		pending map[string]bool
		timer   *time.Timer
		busy    atomic.Bool
	}
)

// New registers every directory of opts.Dir that is not ignored.
func New(opts Options) (*Watcher, error) {
	dir, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", opts.Dir, err)
	}
	if !fspath.IsDir(dir) {
		return nil, fmt.Errorf("not a directory: %s", opts.Dir)
	}

	w := &Watcher{
		dir:      dir,
		ignored:  opts.Ignored,
		debounce: opts.Debounce,
		onChange: opts.OnChange,
		logger:   opts.Logger,
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	if w.logger == nil {
		w.logger = log.New(io.Discard)
	}

	if w.fsw, err = fsnotify.NewWatcher(); err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.addTree(); err != nil {
		_ = w.fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run dispatches debounced rebuilds until ctx is canceled. It returns nil on
// cancellation and an error when the underlying watcher breaks. A Watcher
// runs once.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrRunning
	}
	b := &batch{pending: make(map[string]bool)}
	defer func() {
		b.stop()
		if err := w.fsw.Close(); err != nil {
			w.logger.Warn("closing watcher", "err", err)
		}
	}()

	w.logger.Info("watching", "dir", w.dir)
	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watcher event channel closed")
			}
			if evt.Op == fsnotify.Chmod {
				continue
			}
			rel, ok := w.rel(evt.Name)
			if !ok || w.skip(rel) {
				continue
			}
			if evt.Has(fsnotify.Create) {
				w.addNewDir(evt.Name, rel)
			}
			b.add(rel, w.debounce, func() { w.flush(ctx, b) })

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watcher error channel closed")
			}
			if isFatal(err) {
				return fmt.Errorf("watcher failed: %w", err)
			}
			w.logger.Warn("watcher error", "err", err)
		}
	}
}

// flush hands the pending paths to OnChange. A flush that finds the previous
// rebuild still running re-arms the timer, keeping the pending paths.
func (w *Watcher) flush(ctx context.Context, b *batch) {
	if ctx.Err() != nil {
		return
	}
	if !b.busy.CompareAndSwap(false, true) {
		w.logger.Debug("rebuild still running, postponing")
		b.rearm(w.debounce)
		return
	}
	defer b.busy.Store(false)

	changed := b.drain()
	if len(changed) == 0 || w.onChange == nil {
		return
	}
	w.logger.Debug("change detected", "files", len(changed))
	if err := w.onChange(ctx, changed); err != nil {
		w.logger.Error("rebuild failed", "err", err)
	}
}

func (w *Watcher) addTree() error {
	return filepath.WalkDir(w.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("not watching", "path", p, "err", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, ok := w.rel(p)
		if !ok {
			return nil
		}
		if rel != "." && w.skip(rel) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
		return nil
	})
}

// addNewDir extends the watch to a directory created after New.
func (w *Watcher) addNewDir(p, rel string) {
	if !fspath.IsDir(p) {
		return
	}
	if err := w.fsw.Add(p); err != nil {
		w.logger.Warn("not watching new directory", "path", rel, "err", err)
	}
}

func (w *Watcher) rel(p string) (string, bool) {
	rel, err := filepath.Rel(w.dir, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// skip reports whether rel or any of its parent directories is ignored.
func (w *Watcher) skip(rel string) bool {
	for p := rel; p != "." && p != "/"; p = path.Dir(p) {
		if isEditorNoise(p) || (w.ignored != nil && w.ignored(p)) {
			return true
		}
	}
	return false
}

func isEditorNoise(rel string) bool {
	for _, pattern := range editorNoise {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

func (b *batch) add(rel string, debounce time.Duration, fire func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[rel] = true
	if b.timer == nil {
		b.timer = time.AfterFunc(debounce, fire)
		return
	}
	b.timer.Reset(debounce)
}

func (b *batch) rearm(debounce time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Reset(debounce)
	}
}

func (b *batch) drain() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	changed := make([]string, 0, len(b.pending))
	for rel := range b.pending {
		changed = append(changed, rel)
	}
	clear(b.pending)
	sort.Strings(changed)
	return changed
}

func (b *batch) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
	}
}
