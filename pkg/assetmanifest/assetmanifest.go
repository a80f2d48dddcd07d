// Package assetmanifest provides a public Go API for generating the image
// asset manifest, allowing programmatic use without the CLI.
//
// Basic usage:
//
//	result, err := assetmanifest.Generate(ctx, "path/to/site")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Count, "assets")
//
// With options:
//
//	err := assetmanifest.Watch(ctx, "path/to/site",
//	    assetmanifest.WithAssetsDir("public/img"),
//	    assetmanifest.WithVariable("SITE.images"),
//	    assetmanifest.WithDebounce(500*time.Millisecond),
//	)
package assetmanifest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hupe1980/assetmanifest/internal/config"
	"github.com/hupe1980/assetmanifest/internal/logging"
	"github.com/hupe1980/assetmanifest/internal/manifest"
	"github.com/hupe1980/assetmanifest/internal/naming"
	"github.com/hupe1980/assetmanifest/internal/scan"
	"github.com/hupe1980/assetmanifest/internal/watch"
)

// Asset is one manifest entry.
type Asset = manifest.Asset

// Result describes one generation pass.
type Result = manifest.Result

// ErrStale is returned by Check when the manifest on disk is missing or
// differs from a fresh render.
var ErrStale = manifest.ErrStale

// Option configures the generation pipeline.
// Use the With* functions to create Options.
type Option func(*options)

type options struct {
	assetsDir      string
	output         string
	variable       string
	followSymlinks bool
	extensions     []string
	debounce       time.Duration
	logger         *slog.Logger
	status         io.Writer
}

// WithAssetsDir sets the assets directory, relative to the project root
// unless absolute. Default: "wp-content".
func WithAssetsDir(dir string) Option { return func(o *options) { o.assetsDir = dir } }

// WithOutput sets the manifest script path, relative to the project root
// unless absolute. Default: manifest.js inside the assets directory.
func WithOutput(path string) Option { return func(o *options) { o.output = path } }

// WithVariable sets the global the manifest is assigned to.
func WithVariable(name string) Option { return func(o *options) { o.variable = name } }

// WithFollowSymlinks makes the scanner follow symbolic links.
func WithFollowSymlinks() Option { return func(o *options) { o.followSymlinks = true } }

// WithExtensions replaces the accepted image extensions.
func WithExtensions(exts ...string) Option { return func(o *options) { o.extensions = exts } }

// WithDebounce sets the quiet period used by Watch.
func WithDebounce(d time.Duration) Option { return func(o *options) { o.debounce = d } }

// WithLogger sets a structured logger. Logs are discarded by default.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithStatus sets the writer for human-readable status lines. Status output
// is discarded by default.
func WithStatus(w io.Writer) Option { return func(o *options) { o.status = w } }

// DisplayName returns the display label for a file name without extension.
func DisplayName(base string) string {
	return naming.DisplayName(base)
}

// Generate scans the assets below root and replaces the manifest script.
func Generate(ctx context.Context, root string, opts ...Option) (*Result, error) {
	gen, _, err := newGenerator(root, opts)
	if err != nil {
		return nil, err
	}

	return gen.Generate(ctx)
}

// Render returns the manifest script without writing it.
func Render(ctx context.Context, root string, opts ...Option) ([]byte, error) {
	gen, _, err := newGenerator(root, opts)
	if err != nil {
		return nil, err
	}

	data, _, err := gen.Render(ctx)

	return data, err
}

// List returns the manifest entries without rendering or writing anything.
func List(_ context.Context, root string, opts ...Option) ([]Asset, error) {
	o, paths, err := resolve(root, opts)
	if err != nil {
		return nil, err
	}

	files, err := newScanner(o).Scan(paths.AssetsDir)
	if err != nil {
		return nil, fmt.Errorf("scanning assets: %w", err)
	}

	return manifest.Build(files), nil
}

// Check reports whether the manifest on disk matches a fresh render. It
// returns an error wrapping ErrStale when it does not.
func Check(ctx context.Context, root string, opts ...Option) (*Result, error) {
	gen, _, err := newGenerator(root, opts)
	if err != nil {
		return nil, err
	}

	cr, err := gen.Check(ctx)
	if err != nil {
		return nil, err
	}

	if cr.Stale() {
		return &cr.Result, fmt.Errorf("%s: %w", cr.RelOutputPath, ErrStale)
	}

	return &cr.Result, nil
}

// Watch generates the manifest once and then regenerates it after every
// burst of changes below the assets directory. It blocks until ctx is
// cancelled and returns an error only when watching cannot start or the
// first pass fails.
func Watch(ctx context.Context, root string, opts ...Option) error {
	gen, o, err := newGenerator(root, opts)
	if err != nil {
		return err
	}

	if _, err := gen.Generate(ctx); err != nil {
		return err
	}

	cfg := gen.Config()

	return watch.Run(ctx, watch.Options{
		Root:     cfg.AssetsDir,
		Ignore:   []string{cfg.OutputPath},
		Debounce: o.debounce,
		Logger:   o.logger,
		Out:      o.status,
	}, gen.Generate)
}

func resolve(root string, opts []Option) (*options, config.Paths, error) {
	if root == "" {
		return nil, config.Paths{}, errors.New("project root must not be empty")
	}

	o := &options{
		assetsDir: config.DefaultAssetsDir,
		variable:  config.DefaultVariable,
		debounce:  config.DefaultDebounce,
		logger:    logging.Discard(),
		status:    io.Discard,
	}

	for _, opt := range opts {
		opt(o)
	}

	cfg := config.Default()
	cfg.Root = root
	cfg.AssetsDir = o.assetsDir
	cfg.Output = o.output
	cfg.Variable = o.variable
	cfg.Debounce = o.debounce

	if err := cfg.Validate(); err != nil {
		return nil, config.Paths{}, err
	}

	paths, err := cfg.ResolvePaths()
	if err != nil {
		return nil, config.Paths{}, err
	}

	return o, paths, nil
}

func newScanner(o *options) *scan.Scanner {
	scanOpts := []scan.Option{
		scan.WithFollowSymlinks(o.followSymlinks),
		scan.WithLogger(o.logger),
	}

	if len(o.extensions) > 0 {
		scanOpts = append(scanOpts, scan.WithExtensions(o.extensions...))
	}

	return scan.New(scanOpts...)
}

func newGenerator(root string, opts []Option) (*manifest.Generator, *options, error) {
	o, paths, err := resolve(root, opts)
	if err != nil {
		return nil, nil, err
	}

	gen, err := manifest.NewGenerator(manifest.Config{
		ProjectRoot: paths.ProjectRoot,
		AssetsDir:   paths.AssetsDir,
		OutputPath:  paths.OutputPath,
		Variable:    o.variable,
	},
		manifest.WithScanner(newScanner(o)),
		manifest.WithLogger(o.logger),
		manifest.WithStatus(o.status),
	)
	if err != nil {
		return nil, nil, err
	}

	return gen, o, nil
}
