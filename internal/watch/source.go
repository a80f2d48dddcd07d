package watch

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/hupe1980/assetmanifest/internal/logging"
	"github.com/hupe1980/assetmanifest/internal/output"
)

// Event is a relevant change below the watched root.
type Event struct {
	Path string
	Op   fsnotify.Op
}

// Source streams relevant filesystem events from a directory tree.
//
// fsnotify watches single directories, so recursive coverage is built by
// adding every subdirectory. When that fails, for example because the
// inotify watch limit is exhausted, the source logs a warning and falls back
// to the root directory alone; changes in nested directories are then
// missed.
type Source struct {
	root      string
	watcher   *fsnotify.Watcher
	add       func(w *fsnotify.Watcher, path string) error
	ignore    map[string]struct{}
	logger    *slog.Logger
	events    chan Event
	errors    chan error
	done      chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	recursive bool
}

// SourceOption configures a Source.
type SourceOption func(*Source)

// WithIgnore drops events for the given paths, typically the manifest the
// watcher itself writes, and for the temporary files used to replace them.
func WithIgnore(paths ...string) SourceOption {
	return func(s *Source) {
		for _, p := range paths {
			if p == "" {
				continue
			}

			if abs, err := filepath.Abs(p); err == nil {
				p = abs
			}

			s.ignore[filepath.Clean(p)] = struct{}{}
		}
	}
}

// WithSourceLogger sets the logger used for warnings.
func WithSourceLogger(logger *slog.Logger) SourceOption {
	return func(s *Source) {
		s.logger = logger
	}
}

// withAdder replaces the function that registers a directory with fsnotify.
func withAdder(fn func(w *fsnotify.Watcher, path string) error) SourceOption {
	return func(s *Source) {
		s.add = fn
	}
}

// NewSource starts watching root. The caller must Close the source.
func NewSource(root string, opts ...SourceOption) (*Source, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", root, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("watching %s: %w", abs, err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("watching %s: not a directory", abs)
	}

	s := &Source{
		root:   abs,
		add:    func(w *fsnotify.Watcher, p string) error { return w.Add(p) },
		ignore: make(map[string]struct{}),
		events: make(chan Event, 64),
		errors: make(chan error, 8),
		done:   make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.logger = logging.Component(s.logger, "watch")

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	s.watcher = w

	if err := s.add(w, abs); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watching %s: %w", abs, err)
	}

	s.recursive = true
	if err := s.addTree(abs); err != nil {
		s.fallback(err)
	}

	go s.loop()

	return s, nil
}

// Root returns the absolute watched directory.
func (s *Source) Root() string {
	return s.root
}

// Recursive reports whether nested directories are covered.
func (s *Source) Recursive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.recursive
}

// Events returns the stream of relevant changes. It is closed after Close.
func (s *Source) Events() <-chan Event {
	return s.events
}

// Errors returns errors reported by the underlying watcher.
func (s *Source) Errors() <-chan error {
	return s.errors
}

// Close stops watching and releases the underlying watcher.
func (s *Source) Close() error {
	var err error

	s.closeOnce.Do(func() {
		close(s.done)
		err = s.watcher.Close()
	})

	return err
}

// addTree registers every directory below dir, excluding dir.
func (s *Source) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() || path == dir {
			return nil
		}

		if err := s.add(s.watcher, path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}

		return nil
	})
}

// fallback drops every nested watch and keeps only the root.
func (s *Source) fallback(cause error) {
	s.mu.Lock()
	s.recursive = false
	s.mu.Unlock()

	s.logger.Warn("recursive watch unavailable, watching top-level directory only",
		slog.String("root", s.root),
		slog.String("error", cause.Error()),
	)

	for _, p := range s.watcher.WatchList() {
		if filepath.Clean(p) != s.root {
			_ = s.watcher.Remove(p)
		}
	}
}

func (s *Source) loop() {
	defer close(s.events)
	defer close(s.errors)

	for {
		select {
		case <-s.done:
			return

		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}

			if !s.relevant(ev) {
				continue
			}

			if ev.Has(fsnotify.Create) && s.Recursive() {
				s.watchNewDir(ev.Name)
			}

			select {
			case s.events <- Event{Path: ev.Name, Op: ev.Op}:
			case <-s.done:
				return
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}

			select {
			case s.errors <- err:
			default:
				s.logger.Error("watcher error", slog.String("error", err.Error()))
			}
		}
	}
}

// watchNewDir extends recursive coverage to a directory created after start.
func (s *Source) watchNewDir(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}

	if err := s.add(s.watcher, path); err != nil {
		s.fallback(err)
		return
	}

	if err := s.addTree(path); err != nil {
		s.fallback(err)
	}
}

func (s *Source) relevant(ev fsnotify.Event) bool {
	if !isRelevant(ev) {
		return false
	}

	name := filepath.Clean(ev.Name)

	for p := range s.ignore {
		if name == p || output.IsTempFile(p, name) {
			return false
		}
	}

	return true
}

// isRelevant filters out non-content events and editor scratch files.
// Hidden names stay relevant since the scanner lists hidden images.
func isRelevant(event fsnotify.Event) bool {
	if event.Op == 0 {
		return false
	}

	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}

	name := filepath.Base(event.Name)

	if strings.HasSuffix(name, "~") || strings.HasSuffix(name, ".swp") ||
		strings.HasPrefix(name, "#") {
		return false
	}

	return true
}
