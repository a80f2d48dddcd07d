// Package scan walks an assets directory and collects image files.
//
// Paths are returned relative to the scanned root with forward slashes, in
// traversal order: each directory's entries in the order [os.ReadDir] yields
// them, descending into subdirectories as they are met.
package scan

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hupe1980/assetmanifest/internal/logging"
	"github.com/hupe1980/assetmanifest/internal/naming"
)

// DefaultExtensions lists the image extensions included in a manifest.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}

// ErrNotDir is returned when the scan root is not a directory.
var ErrNotDir = errors.New("not a directory")

// Scanner collects image files below a root directory.
type Scanner struct {
	exts           map[string]struct{}
	followSymlinks bool
	logger         *slog.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithExtensions replaces the set of accepted extensions. Matching is
// case-insensitive and a missing leading dot is added.
func WithExtensions(exts ...string) Option {
	return func(s *Scanner) {
		s.exts = extensionSet(exts)
	}
}

// WithFollowSymlinks makes the scanner resolve symbolic links. Linked
// directories are descended once per real path, which breaks cycles.
func WithFollowSymlinks(follow bool) Option {
	return func(s *Scanner) {
		s.followSymlinks = follow
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) {
		s.logger = logger
	}
}

// New creates a Scanner. Without options it accepts DefaultExtensions and
// skips symbolic links.
func New(opts ...Option) *Scanner {
	s := &Scanner{
		exts: extensionSet(DefaultExtensions),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.logger = logging.Component(s.logger, "scan")

	return s
}

// Accepts reports whether name has one of the scanner's extensions.
func (s *Scanner) Accepts(name string) bool {
	_, ok := s.exts[strings.ToLower(naming.Ext(name))]
	return ok
}

// Scan returns the image files below root as root-relative slash paths.
func (s *Scanner) Scan(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("reading assets root: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("assets root %s: %w", root, ErrNotDir)
	}

	w := &walker{
		scanner: s,
		visited: make(map[string]struct{}),
		files:   []string{},
	}

	if err := w.walk(root, ""); err != nil {
		return nil, err
	}

	s.logger.Debug("scan complete",
		slog.String("root", root),
		slog.Int("files", len(w.files)),
		slog.Int("dirs", w.dirs),
	)

	return w.files, nil
}

// walker carries the state of one Scan call.
type walker struct {
	scanner *Scanner
	visited map[string]struct{}
	files   []string
	dirs    int
}

// walk lists dir, whose path relative to the root is rel ("" for the root).
func (w *walker) walk(dir, rel string) error {
	if w.scanner.followSymlinks {
		target, err := filepath.EvalSymlinks(dir)
		if err != nil {
			return fmt.Errorf("resolving directory %s: %w", dir, err)
		}

		if _, seen := w.visited[target]; seen {
			w.scanner.logger.Debug("skipping visited directory", slog.String("path", rel), slog.String("target", target))
			return nil
		}

		w.visited[target] = struct{}{}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading directory %s: %w", dir, err)
	}

	w.dirs++

	for _, entry := range entries {
		abs := filepath.Join(dir, entry.Name())
		entryRel := path.Join(rel, entry.Name())

		typ := entry.Type()
		if typ&fs.ModeSymlink != 0 {
			if !w.scanner.followSymlinks {
				w.scanner.logger.Debug("skipping symlink", slog.String("path", entryRel))
				continue
			}

			if err := w.symlink(abs, entryRel, entry.Name()); err != nil {
				return err
			}

			continue
		}

		switch {
		case entry.IsDir():
			if err := w.walk(abs, entryRel); err != nil {
				return err
			}
		case typ.IsRegular():
			if w.scanner.Accepts(entry.Name()) {
				w.files = append(w.files, entryRel)
			}
		}
	}

	return nil
}

// symlink resolves a link and treats its target as a file or directory.
func (w *walker) symlink(abs, rel, name string) error {
	target, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// Dangling links carry no asset.
		w.scanner.logger.Debug("skipping broken symlink", slog.String("path", rel), slog.String("error", err.Error()))
		return nil
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("reading symlink target %s: %w", abs, err)
	}

	if !info.IsDir() {
		if info.Mode().IsRegular() && w.scanner.Accepts(name) {
			w.files = append(w.files, rel)
		}

		return nil
	}

	return w.walk(abs, rel)
}

func extensionSet(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))

	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}

		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}

		set[e] = struct{}{}
	}

	return set
}
