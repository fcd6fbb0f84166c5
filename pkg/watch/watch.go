// Package watch re-runs validation when design files under a directory
// change. Bursts of events for one file are debounced into a single call.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/OpenTraceLab/designguard/pkg/errs"
	"github.com/OpenTraceLab/designguard/pkg/validate"
)

// DefaultDebounce is the quiet period before a changed file is reported
const DefaultDebounce = 500 * time.Millisecond

// Handler is called once per settled change
type Handler func(ctx context.Context, path string)

// Watcher monitors a directory tree
type Watcher struct {
	root     string
	handler  Handler
	debounce time.Duration
	filter   func(string) bool
	logger   *slog.Logger

	fs      *fsnotify.Watcher
	mu      sync.Mutex
	pending map[string]*time.Timer
	ready   chan string
}

// Option configures a Watcher
type Option func(*Watcher)

// WithDebounce sets the quiet period
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithFilter replaces the design file extension filter
func WithFilter(f func(path string) bool) Option {
	return func(w *Watcher) { w.filter = f }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// New watches root and every directory below it
func New(root string, h Handler, opts ...Option) (*Watcher, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errs.IO("watch", root, err)
	}
	if !info.IsDir() {
		return nil, errs.IO("watch", root, errors.New("not a directory"))
	}

	w := &Watcher{
		root:     root,
		handler:  h,
		debounce: DefaultDebounce,
		filter:   validate.IsDesignFile,
		logger:   slog.Default(),
		pending:  make(map[string]*time.Timer),
		ready:    make(chan string, 64),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.fs, err = fsnotify.NewWatcher(); err != nil {
		return nil, errs.IO("watch", root, err)
	}
	if err := w.addTree(root); err != nil {
		w.fs.Close()
		return nil, err
	}
	return w, nil
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "node_modules" || name == "target" || name == "build"
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return errs.IO("watch", path, err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && skipDir(d.Name()) {
			return fs.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			return errs.IO("watch", path, err)
		}
		return nil
	})
}

// Run delivers changes to the handler until ctx is done. The handler runs
// on the calling goroutine, one change at a time.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.stop()
	w.logger.Info("Watching for changes", "dir", w.root, "debounce", w.debounce)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.event(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watch error", "error", err)
		case path := <-w.ready:
			w.handler(ctx, path)
		}
	}
}

func (w *Watcher) event(ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if !skipDir(info.Name()) {
				if err := w.addTree(ev.Name); err != nil {
					w.logger.Warn("Cannot watch new directory", "dir", ev.Name, "error", err)
				}
			}
			return
		}
	}
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return
	}
	if !w.filter(ev.Name) {
		return
	}
	w.schedule(ev.Name)
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.ready <- path
	})
}

func (w *Watcher) stop() {
	w.mu.Lock()
	for p, t := range w.pending {
		t.Stop()
		delete(w.pending, p)
	}
	w.mu.Unlock()
	w.fs.Close()
}
