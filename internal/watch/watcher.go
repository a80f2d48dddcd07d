package watch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hupe1980/assetmanifest/internal/logging"
	"github.com/hupe1980/assetmanifest/internal/manifest"
)

// DefaultDebounce is the quiet period before a regeneration.
const DefaultDebounce = 200 * time.Millisecond

// RunFunc is called each time the watcher triggers a regeneration.
type RunFunc func(ctx context.Context) (*manifest.Result, error)

// Options configures the watch behaviour.
type Options struct {
	// Root is the assets directory to watch.
	Root string

	// Ignore lists paths whose events never trigger a regeneration, such
	// as the manifest itself.
	Ignore []string

	// Debounce is the quiet period before triggering a regeneration.
	Debounce time.Duration

	// Initial runs one regeneration before waiting for changes.
	Initial bool

	// Logger is used for structured logging.
	Logger *slog.Logger

	// Out is the writer for user-facing status messages.
	Out io.Writer
}

// DefaultOptions returns sensible default watch options.
func DefaultOptions() Options {
	return Options{
		Debounce: DefaultDebounce,
		Logger:   slog.Default(),
		Out:      os.Stderr,
	}
}

// Run starts the file watcher and blocks until the context is cancelled
// or a SIGINT/SIGTERM signal is received. Failed regenerations are reported
// and never end the watch.
func Run(ctx context.Context, opts Options, runFn RunFunc) error {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Out == nil {
		opts.Out = io.Discard
	}

	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	opts.Logger = logging.Component(opts.Logger, "watch")

	src, err := NewSource(opts.Root, WithIgnore(opts.Ignore...), WithSourceLogger(opts.Logger))
	if err != nil {
		return fmt.Errorf("watching assets directory: %w", err)
	}
	defer src.Close()

	// Trap SIGINT / SIGTERM for graceful shutdown.
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mode := "recursive"
	if !src.Recursive() {
		mode = "top-level only"
	}

	_, _ = fmt.Fprintf(opts.Out, "watching %s (%s, debounce=%s)\n", src.Root(), mode, opts.Debounce)

	if opts.Initial {
		doRun(sigCtx, opts, runFn, "(initial)")
	}

	signals := Coalesce(sigCtx, src.Events(), opts.Debounce)

	return loop(sigCtx, opts, src.Root(), signals, src.Errors(), runFn)
}

// loop runs one regeneration per signal. Regenerations run on this goroutine
// only, so they are serialized.
func loop(ctx context.Context, opts Options, root string, signals <-chan string, errs <-chan error, runFn RunFunc) error {
	for {
		select {
		case <-ctx.Done():
			_, _ = fmt.Fprintln(opts.Out, "\nshutting down watcher")
			return nil

		case path := <-signals:
			doRun(ctx, opts, runFn, displayPath(root, path))

		case watchErr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}

			opts.Logger.Error("watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

// doRun executes a single regeneration and prints the status line.
func doRun(ctx context.Context, opts Options, runFn RunFunc, trigger string) {
	now := time.Now().Format("15:04:05")

	result, err := runFn(ctx)
	if err != nil {
		opts.Logger.Error("regeneration failed", slog.String("trigger", trigger), slog.String("error", err.Error()))
		_, _ = fmt.Fprintf(opts.Out, "[%s] %s → ERROR: %v\n", now, trigger, err)

		return
	}

	if result == nil {
		result = &manifest.Result{}
	}

	state := "updated"
	if !result.Changed {
		state = "unchanged"
	}

	_, _ = fmt.Fprintf(opts.Out, "[%s] %s → OK (%d items, %s)\n", now, trigger, result.Count, state)
}

// displayPath shortens an event path for status lines.
func displayPath(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil {
		return filepath.ToSlash(rel)
	}

	return path
}
