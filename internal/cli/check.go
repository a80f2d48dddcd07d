package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/assetmanifest/internal/config"
	"github.com/hupe1980/assetmanifest/internal/diff"
	"github.com/hupe1980/assetmanifest/internal/manifest"
)

func newCheckCommand() *cobra.Command {
	var quietDiff bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify that the manifest on disk is up to date",
		Long: `Check renders the manifest in memory and compares it with the file on
disk without writing anything. Differences are printed as a unified diff.

Exit codes:
  0  Manifest is up to date
  1  Error
  2  Invalid arguments or configuration
  3  Manifest is missing or out of date`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd.Context(), cmd, quietDiff)
		},
	}

	cmd.Flags().BoolVar(&quietDiff, "no-diff", false, "only report staleness, do not print a diff")

	return cmd
}

func runCheck(ctx context.Context, cmd *cobra.Command, quietDiff bool) error {
	gen, err := newGenerator(ctx, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	cr, err := gen.Check(ctx)
	if err != nil {
		return &ExitError{Code: exitError, Err: fmt.Errorf("checking manifest: %w", err)}
	}

	w := cmd.OutOrStdout()

	if !cr.Stale() {
		_, _ = fmt.Fprintf(w, "%s is up to date (%d items)\n", cr.RelOutputPath, cr.Count)
		return nil
	}

	if cr.Missing {
		_, _ = fmt.Fprintf(w, "%s does not exist\n", cr.RelOutputPath)
	} else if !quietDiff {
		opts := diff.DefaultOptions()
		opts.OldLabel = cr.RelOutputPath

		res, diffErr := diff.Compute(string(cr.Current), string(cr.Proposed), opts)
		if diffErr != nil {
			return &ExitError{Code: exitError, Err: diffErr}
		}

		diff.Write(w, res, !config.FromContext(ctx).NoColor)
		_, _ = fmt.Fprintf(w, "%s lines changed\n", res.Summary())
	}

	return &ExitError{
		Code: exitStale,
		Err:  fmt.Errorf("%s: %w; run `assetmanifest generate`", cr.RelOutputPath, manifest.ErrStale),
	}
}
