package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hupe1980/assetmanifest/internal/config"
	"github.com/hupe1980/assetmanifest/internal/logging"
	"github.com/hupe1980/assetmanifest/internal/manifest"
	"github.com/hupe1980/assetmanifest/internal/output"
	"github.com/hupe1980/assetmanifest/internal/scan"
)

func newListCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the assets that would be included in the manifest",
		Long: `List scans the assets directory and prints each image with its display
name, in manifest order. Nothing is written to disk.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd.Context(), cmd.OutOrStdout(), format)
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "output format: "+listFormats().AvailableFormats())

	return cmd
}

// listFormats returns the built-in encoders plus the table view.
func listFormats() *output.Registry {
	r := output.DefaultRegistry()
	r.Register("text", encodeTable)

	return r
}

func runList(ctx context.Context, w io.Writer, format string) error {
	enc, err := listFormats().Encoder(format)
	if err != nil {
		return &ExitError{Code: exitUsage, Err: err}
	}

	cfg := config.FromContext(ctx)

	paths, err := cfg.ResolvePaths()
	if err != nil {
		return &ExitError{Code: exitUsage, Err: err}
	}

	files, err := scan.New(
		scan.WithFollowSymlinks(cfg.FollowSymlinks),
		scan.WithLogger(logging.FromContext(ctx)),
	).Scan(paths.AssetsDir)
	if err != nil {
		return &ExitError{Code: exitError, Err: fmt.Errorf("scanning assets: %w", err)}
	}

	if err := enc(w, manifest.Build(files)); err != nil {
		return &ExitError{Code: exitError, Err: err}
	}

	return nil
}

// encodeTable prints a manifest as an aligned FILE/NAME table.
func encodeTable(w io.Writer, v any) error {
	m, ok := v.(manifest.Manifest)
	if !ok {
		return fmt.Errorf("text format: unsupported value %T", v)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "FILE\tNAME")

	for _, a := range m {
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", a.File, a.Name)
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "%d items\n", len(m))

	return err
}
