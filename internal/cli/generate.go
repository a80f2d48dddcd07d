package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/assetmanifest/internal/output"
)

func newGenerateCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Scan the assets directory and write the manifest once",
		Long: `Generate scans the assets directory recursively, derives a display
name for every image and replaces the manifest script with the result.

The file is written atomically: a failed pass leaves the previous manifest
untouched. Use --dry-run to print the script instead of writing it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenerate(cmd.Context(), cmd, dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the manifest to stdout instead of writing it")

	return cmd
}

func runGenerate(ctx context.Context, cmd *cobra.Command, dryRun bool) error {
	gen, err := newGenerator(ctx, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	if dryRun {
		data, _, renderErr := gen.Render(ctx)
		if renderErr != nil {
			return &ExitError{Code: exitError, Err: renderErr}
		}

		return output.NewStdoutWriter(cmd.OutOrStdout()).Write(data)
	}

	if _, err := gen.Generate(ctx); err != nil {
		return &ExitError{Code: exitError, Err: fmt.Errorf("generating manifest: %w", err)}
	}

	return nil
}
