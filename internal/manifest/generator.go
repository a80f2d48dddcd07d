package manifest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hupe1980/assetmanifest/internal/logging"
	"github.com/hupe1980/assetmanifest/internal/output"
	"github.com/hupe1980/assetmanifest/internal/scan"
)

// ErrStale marks a manifest on disk that differs from a fresh render.
var ErrStale = errors.New("manifest is out of date")

// Config holds the locations a Generator works with. All paths should be
// absolute.
type Config struct {
	// ProjectRoot is used only to shorten the output path in status lines.
	ProjectRoot string

	// AssetsDir is the directory scanned for images.
	AssetsDir string

	// OutputPath is the manifest script that gets replaced on each pass.
	OutputPath string

	// Variable is the global the manifest is assigned to.
	Variable string
}

// Result describes one generation pass.
type Result struct {
	// Count is the number of assets in the manifest.
	Count int

	// OutputPath is the absolute path of the manifest script.
	OutputPath string

	// RelOutputPath is OutputPath relative to the project root, with
	// forward slashes.
	RelOutputPath string

	// Changed reports whether the rendered bytes differ from the file that
	// was on disk before the pass. Always false for dry renders.
	Changed bool
}

// CheckResult compares the manifest on disk with a fresh render.
type CheckResult struct {
	Result

	// Current is the file content on disk, nil when Missing.
	Current []byte

	// Proposed is what a generation pass would write.
	Proposed []byte

	// Missing is true when no manifest exists yet.
	Missing bool
}

// Stale reports whether a generation pass would change the file.
func (c *CheckResult) Stale() bool {
	return c.Missing || !bytes.Equal(c.Current, c.Proposed)
}

// Generator runs full scan, build, render and write passes.
type Generator struct {
	cfg     Config
	scanner *scan.Scanner
	writer  output.Writer
	logger  *slog.Logger
	status  io.Writer
}

// Option configures a Generator.
type Option func(*Generator)

// WithScanner overrides the default image scanner.
func WithScanner(s *scan.Scanner) Option {
	return func(g *Generator) {
		g.scanner = s
	}
}

// WithWriter overrides the default atomic file writer for OutputPath.
func WithWriter(w output.Writer) Option {
	return func(g *Generator) {
		g.writer = w
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		g.logger = logger
	}
}

// WithStatus sets where the human-readable summary line is printed.
func WithStatus(w io.Writer) Option {
	return func(g *Generator) {
		g.status = w
	}
}

// NewGenerator validates cfg and creates a Generator.
func NewGenerator(cfg Config, opts ...Option) (*Generator, error) {
	if cfg.AssetsDir == "" {
		return nil, errors.New("assets directory must not be empty")
	}

	if cfg.OutputPath == "" {
		return nil, errors.New("output path must not be empty")
	}

	if cfg.Variable == "" {
		cfg.Variable = DefaultVariable
	}

	if !variablePattern.MatchString(cfg.Variable) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVariable, cfg.Variable)
	}

	g := &Generator{
		cfg:    cfg,
		status: io.Discard,
	}

	for _, opt := range opts {
		opt(g)
	}

	if g.status == nil {
		g.status = io.Discard
	}

	base := g.logger
	g.logger = logging.Component(base, "generator")

	if g.scanner == nil {
		g.scanner = scan.New(scan.WithLogger(base))
	}

	if g.writer == nil {
		g.writer = output.NewFileWriter(cfg.OutputPath, output.WithLogger(g.logger))
	}

	return g, nil
}

// Config returns the generator's configuration.
func (g *Generator) Config() Config {
	return g.cfg
}

// Render scans the assets directory and renders the manifest without
// writing it.
func (g *Generator) Render(_ context.Context) ([]byte, *Result, error) {
	files, err := g.scanner.Scan(g.cfg.AssetsDir)
	if err != nil {
		return nil, nil, fmt.Errorf("scanning assets: %w", err)
	}

	m := Build(files)

	data, err := Render(m, RenderOptions{Variable: g.cfg.Variable})
	if err != nil {
		return nil, nil, fmt.Errorf("rendering manifest: %w", err)
	}

	return data, &Result{
		Count:         len(m),
		OutputPath:    g.cfg.OutputPath,
		RelOutputPath: g.relOutput(),
	}, nil
}

// Generate runs one full pass and replaces the output file. On failure the
// previous file is left untouched.
func (g *Generator) Generate(ctx context.Context) (*Result, error) {
	data, res, err := g.Render(ctx)
	if err != nil {
		return nil, err
	}

	prev, readErr := os.ReadFile(g.cfg.OutputPath)
	res.Changed = readErr != nil || !bytes.Equal(prev, data)

	if err := g.writer.Write(data); err != nil {
		return nil, fmt.Errorf("writing manifest: %w", err)
	}

	g.logger.Debug("manifest written",
		slog.String("path", res.OutputPath),
		slog.Int("assets", res.Count),
		slog.Bool("changed", res.Changed),
	)

	_, _ = fmt.Fprintf(g.status, "manifest updated: %s (%d items)\n", res.RelOutputPath, res.Count)

	return res, nil
}

// Check renders the manifest and compares it with the file on disk.
func (g *Generator) Check(ctx context.Context) (*CheckResult, error) {
	data, res, err := g.Render(ctx)
	if err != nil {
		return nil, err
	}

	cr := &CheckResult{Result: *res, Proposed: data}

	current, err := os.ReadFile(g.cfg.OutputPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		cr.Missing = true
	case err != nil:
		return nil, fmt.Errorf("reading manifest: %w", err)
	default:
		cr.Current = current
	}

	cr.Changed = cr.Stale()

	return cr, nil
}

// relOutput returns the output path relative to the project root, falling
// back to the absolute path when no relation exists.
func (g *Generator) relOutput() string {
	if g.cfg.ProjectRoot == "" {
		return filepath.ToSlash(g.cfg.OutputPath)
	}

	rel, err := filepath.Rel(g.cfg.ProjectRoot, g.cfg.OutputPath)
	if err != nil {
		return filepath.ToSlash(g.cfg.OutputPath)
	}

	return filepath.ToSlash(rel)
}
