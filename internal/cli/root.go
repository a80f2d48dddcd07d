// Package cli implements the cobra command tree for assetmanifest.
package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hupe1980/assetmanifest/internal/config"
	"github.com/hupe1980/assetmanifest/internal/logging"
)

// Exit codes.
const (
	exitError = 1
	exitUsage = 2
	exitStale = 3
)

// ExitError wraps an error with a specific process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}

	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Execute builds the command tree, runs it, and returns the exit code.
func Execute() int {
	cmd := NewRootCommand()

	if err := cmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)

		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return exitErr.Code
		}

		return exitError
	}

	return 0
}

// NewRootCommand constructs the top-level cobra.Command with all
// subcommands attached.
func NewRootCommand() *cobra.Command {
	var (
		cfgFile string
		watch   bool
	)

	cmd := &cobra.Command{
		Use:   "assetmanifest",
		Short: "Generate a browser manifest of image assets",
		Long: `assetmanifest scans an assets directory for images (.jpg, .jpeg,
.png, .webp) and writes a script that assigns the list of files and their
display names to a global variable, ready to be loaded by a static page.

Without a subcommand it runs one generation pass. With --watch it keeps
running and regenerates the manifest whenever the assets change.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd, cfgFile)
			if err != nil {
				return &ExitError{Code: exitUsage, Err: err}
			}

			logger := logging.Setup(cfg)

			ctx := cmd.Context()
			ctx = config.NewContext(ctx, cfg)
			ctx = logging.NewContext(ctx, logger)
			cmd.SetContext(ctx)

			logger.Debug("configuration loaded",
				slog.String("logLevel", cfg.LogLevel),
				slog.String("logFormat", cfg.LogFormat),
				slog.String("configFile", cfg.ConfigFile),
			)

			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := runGenerate(cmd.Context(), cmd, false); err != nil {
				return err
			}

			if !watch {
				return nil
			}

			return runWatch(cmd.Context(), cmd)
		},
	}

	// Global persistent flags.
	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: .assetmanifest.yaml)")
	pf.String("log-level", config.LogLevelInfo, "log level: debug, info, warn, error")
	pf.String("log-format", config.LogFormatText, "log format: text, json")
	pf.Bool("no-color", false, "disable colored output")
	pf.BoolP("quiet", "q", false, "suppress non-essential output")
	registerManifestFlags(pf)

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "regenerate the manifest when assets change")

	// Flag parsing errors return exit code 2.
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: exitUsage, Err: err}
	})

	cmd.AddCommand(
		newGenerateCommand(),
		newWatchCommand(),
		newCheckCommand(),
		newListCommand(),
		newVersionCommand(),
		newCompletionCommand(),
	)

	registerFlagCompletions(cmd)

	return cmd
}
