// Package watch feeds images dropped into an inbox directory to a handler.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/AnyUserName/imgpress/internal/pipeline"
)

// Subdirectories of the inbox that processed files are moved to.
const (
	DoneDir   = ".done"
	FailedDir = ".failed"
)

// Handler processes one file.
type Handler interface {
	Handle(ctx context.Context, path string) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, path string) error

func (f HandlerFunc) Handle(ctx context.Context, path string) error { return f(ctx, path) }

// Config controls a Watcher.
type Config struct {
	Inbox    string
	Debounce time.Duration
	// Match selects the files to handle. Nil accepts everything.
	Match func(path string) bool
}

// Watcher monitors the inbox. Files are handled one at a time, after writes
// to them have been quiet for the debounce interval, then moved to DoneDir
// or FailedDir.
type Watcher struct {
	cfg     Config
	handler Handler
	logger  *slog.Logger

	mu       sync.Mutex
	debounce map[string]*time.Timer
	ready    chan string
	stop     chan struct{}
}

// New creates a watcher.
func New(cfg Config, h Handler, logger *slog.Logger) *Watcher {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Watcher{
		cfg:      cfg,
		handler:  h,
		logger:   logger.With("inbox", cfg.Inbox),
		debounce: make(map[string]*time.Timer),
		ready:    make(chan string, 64),
		stop:     make(chan struct{}),
	}
}

// Run watches until ctx is done. Files already in the inbox are handled
// first. A Watcher runs once.
func (w *Watcher) Run(ctx context.Context) error {
	for _, dir := range []string{w.cfg.Inbox, filepath.Join(w.cfg.Inbox, DoneDir), filepath.Join(w.cfg.Inbox, FailedDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer fsw.Close()
	defer close(w.stop)
	if err := fsw.Add(w.cfg.Inbox); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.cfg.Inbox, err)
	}
	w.logger.Info("watching inbox")

	pending, err := w.existing()
	if err != nil {
		return err
	}
	for _, p := range pending {
		w.schedule(p)
	}

	for {
		select {
		case <-ctx.Done():
			w.stopTimers()
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if w.accept(event.Name) {
				w.schedule(event.Name)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)

		case path := <-w.ready:
			w.handle(ctx, path)
		}
	}
}

func (w *Watcher) accept(path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	if w.cfg.Match != nil && !w.cfg.Match(path) {
		return false
	}
	return true
}

func (w *Watcher) existing() ([]string, error) {
	entries, err := os.ReadDir(w.cfg.Inbox)
	if err != nil {
		return nil, fmt.Errorf("read inbox: %w", err)
	}
	var out []string
	for _, e := range entries {
		p := filepath.Join(w.cfg.Inbox, e.Name())
		if e.Type().IsRegular() && w.accept(p) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

// schedule (re)starts the debounce timer for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounce[path]; ok {
		t.Stop()
	}
	w.debounce[path] = time.AfterFunc(w.cfg.Debounce, func() {
		w.mu.Lock()
		delete(w.debounce, path)
		w.mu.Unlock()
		select {
		case w.ready <- path:
		case <-w.stop:
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for p, t := range w.debounce {
		t.Stop()
		delete(w.debounce, p)
	}
}

func (w *Watcher) handle(ctx context.Context, path string) {
	if _, err := os.Stat(path); err != nil {
		return // moved or deleted while waiting
	}
	log := w.logger.With("asset", filepath.Base(path))
	dest := DoneDir
	if err := w.handler.Handle(ctx, path); err != nil {
		if ctx.Err() != nil {
			return // left in the inbox for the next run
		}
		log.Error("inbox file failed", "error", err)
		dest = FailedDir
	} else {
		log.Info("inbox file processed")
	}
	if err := moveInto(path, filepath.Join(w.cfg.Inbox, dest)); err != nil {
		log.Warn("move processed file", "error", err)
	}
}

// moveInto renames path into dir, along with a sidecar of the same name.
func moveInto(path, dir string) error {
	if err := os.Rename(path, filepath.Join(dir, filepath.Base(path))); err != nil {
		return err
	}
	sidecar := path + pipeline.SidecarExt
	if _, err := os.Stat(sidecar); err == nil {
		return os.Rename(sidecar, filepath.Join(dir, filepath.Base(sidecar)))
	}
	return nil
}
