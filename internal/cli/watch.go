package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/hupe1980/assetmanifest/internal/config"
	"github.com/hupe1980/assetmanifest/internal/logging"
	"github.com/hupe1980/assetmanifest/internal/watch"
)

func newWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Regenerate the manifest whenever the assets change",
		Long: `Watch writes the manifest once and then monitors the assets directory,
regenerating the manifest after every burst of changes.

Changes are debounced (see --debounce) so that copying many files at once
results in a single regeneration. Regenerations never overlap; a failed
pass is reported and the watcher keeps running until interrupted.

Nested directories are watched when the platform allows it. Otherwise the
watcher falls back to the top-level assets directory and prints a warning.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := runGenerate(cmd.Context(), cmd, false); err != nil {
				return err
			}

			return runWatch(cmd.Context(), cmd)
		},
	}

	return cmd
}

// runWatch blocks until the context is cancelled or the process receives
// SIGINT/SIGTERM.
func runWatch(ctx context.Context, cmd *cobra.Command) error {
	cfg := config.FromContext(ctx)

	gen, err := newGenerator(ctx, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	genCfg := gen.Config()

	opts := watch.Options{
		Root:     genCfg.AssetsDir,
		Ignore:   []string{genCfg.OutputPath},
		Debounce: cfg.Debounce,
		Logger:   logging.FromContext(ctx),
		Out:      cmd.ErrOrStderr(),
	}

	if err := watch.Run(ctx, opts, gen.Generate); err != nil {
		return &ExitError{Code: exitError, Err: err}
	}

	return nil
}
