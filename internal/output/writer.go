package output

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Writer is the interface for manifest output destinations.
type Writer interface {
	// Write sends rendered bytes to the output destination.
	Write(data []byte) error
}

// StdoutWriter writes rendered output to os.Stdout.
type StdoutWriter struct {
	out io.Writer
}

// NewStdoutWriter creates a writer that sends output to the given writer.
// If w is nil, os.Stdout is used.
func NewStdoutWriter(w io.Writer) *StdoutWriter {
	if w == nil {
		w = os.Stdout
	}

	return &StdoutWriter{out: w}
}

// Write sends data to stdout.
func (sw *StdoutWriter) Write(data []byte) error {
	_, err := sw.out.Write(data)
	if err != nil {
		return fmt.Errorf("writing to stdout: %w", err)
	}

	return nil
}

// FileWriter atomically replaces a file, creating parent directories as
// needed.
type FileWriter struct {
	path   string
	perm   os.FileMode
	logger *slog.Logger
}

// FileWriterOption configures a FileWriter.
type FileWriterOption func(*FileWriter)

// WithPermissions overrides the default file permissions (0644).
func WithPermissions(perm os.FileMode) FileWriterOption {
	return func(fw *FileWriter) {
		fw.perm = perm
	}
}

// WithLogger sets a logger for the FileWriter.
func WithLogger(logger *slog.Logger) FileWriterOption {
	return func(fw *FileWriter) {
		fw.logger = logger
	}
}

// NewFileWriter creates a writer that writes to the specified file path.
func NewFileWriter(path string, opts ...FileWriterOption) *FileWriter {
	fw := &FileWriter{
		path:   path,
		perm:   0o644,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(fw)
	}

	return fw
}

// Write stores data in a temporary sibling of the target and renames it
// into place.
func (fw *FileWriter) Write(data []byte) (err error) {
	dir := filepath.Dir(fw.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, tempPrefix(fw.path)+"*"+tempSuffix)
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}

	tmpPath := tmp.Name()

	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("writing temp file %s: %w", tmpPath, err)
	}

	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file %s: %w", tmpPath, err)
	}

	if err = tmp.Chmod(fw.perm); err != nil {
		return fmt.Errorf("setting permissions on %s: %w", tmpPath, err)
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file %s: %w", tmpPath, err)
	}

	if err = os.Rename(tmpPath, fw.path); err != nil {
		return fmt.Errorf("replacing %s: %w", fw.path, err)
	}

	fw.logger.Debug("wrote file", slog.String("path", fw.path), slog.Int("bytes", len(data)))

	return nil
}

const tempSuffix = ".tmp"

func tempPrefix(target string) string {
	return "." + filepath.Base(target) + "."
}

// IsTempFile reports whether path is a temporary sibling that a FileWriter
// for target creates while replacing it.
func IsTempFile(target, path string) bool {
	if filepath.Clean(filepath.Dir(path)) != filepath.Clean(filepath.Dir(target)) {
		return false
	}

	name := filepath.Base(path)
	prefix := tempPrefix(target)

	return len(name) > len(prefix)+len(tempSuffix) &&
		strings.HasPrefix(name, prefix) && strings.HasSuffix(name, tempSuffix)
}

// Path returns the output file path.
func (fw *FileWriter) Path() string {
	return fw.path
}
