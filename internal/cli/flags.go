package cli

import (
	"context"
	"io"

	"github.com/spf13/pflag"

	"github.com/hupe1980/assetmanifest/internal/config"
	"github.com/hupe1980/assetmanifest/internal/logging"
	"github.com/hupe1980/assetmanifest/internal/manifest"
	"github.com/hupe1980/assetmanifest/internal/scan"
)

// registerManifestFlags adds the asset location and generation flags shared
// by every command.
func registerManifestFlags(f *pflag.FlagSet) {
	f.String("root", "", "project root (default: parent of the executable's directory)")
	f.String("assets-dir", config.DefaultAssetsDir, "assets directory, relative to the project root")
	f.StringP("output", "o", "", "manifest script path (default: <assets-dir>/manifest.js)")
	f.String("variable", config.DefaultVariable, "global the manifest is assigned to")
	f.Duration("debounce", config.DefaultDebounce, "quiet period before regenerating in watch mode")
	f.Bool("follow-symlinks", false, "follow symbolic links while scanning")
}

// newGenerator builds a manifest generator from the configuration carried by
// ctx. The summary line of each pass goes to status unless --quiet is set.
func newGenerator(ctx context.Context, status io.Writer) (*manifest.Generator, error) {
	cfg := config.FromContext(ctx)
	logger := logging.FromContext(ctx)

	if cfg.Quiet {
		status = io.Discard
	}

	paths, err := cfg.ResolvePaths()
	if err != nil {
		return nil, &ExitError{Code: exitUsage, Err: err}
	}

	scanner := scan.New(
		scan.WithFollowSymlinks(cfg.FollowSymlinks),
		scan.WithLogger(logger),
	)

	gen, err := manifest.NewGenerator(manifest.Config{
		ProjectRoot: paths.ProjectRoot,
		AssetsDir:   paths.AssetsDir,
		OutputPath:  paths.OutputPath,
		Variable:    cfg.Variable,
	},
		manifest.WithScanner(scanner),
		manifest.WithLogger(logger),
		manifest.WithStatus(status),
	)
	if err != nil {
		return nil, &ExitError{Code: exitUsage, Err: err}
	}

	return gen, nil
}
