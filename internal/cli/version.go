package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/assetmanifest/internal/config"
	"github.com/hupe1980/assetmanifest/internal/scan"
	"github.com/hupe1980/assetmanifest/internal/version"
)

// buildDefaults lists the generation defaults compiled into the binary.
type buildDefaults struct {
	AssetsDir  string   `json:"assetsDir"`
	OutputName string   `json:"outputName"`
	Variable   string   `json:"variable"`
	Debounce   string   `json:"debounce"`
	Extensions []string `json:"extensions"`
}

// versionReport is the payload of `version --json`.
type versionReport struct {
	version.Info
	Defaults buildDefaults `json:"defaults"`
}

func currentBuildDefaults() buildDefaults {
	return buildDefaults{
		AssetsDir:  config.DefaultAssetsDir,
		OutputName: config.DefaultOutputName,
		Variable:   config.DefaultVariable,
		Debounce:   config.DefaultDebounce.String(),
		Extensions: append([]string(nil), scan.DefaultExtensions...),
	}
}

func newVersionCommand() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Display the version, git commit, build date, Go version and platform,
followed by the built-in defaults: assets directory, manifest name, global
variable, debounce window and accepted image extensions.`,
		Args: cobra.NoArgs,
		// version needs no config.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			report := versionReport{Info: version.GetInfo(), Defaults: currentBuildDefaults()}
			w := cmd.OutOrStdout()

			if jsonOutput {
				data, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return fmt.Errorf("marshaling version info: %w", err)
				}

				_, err = fmt.Fprintln(w, string(data))

				return err
			}

			d := report.Defaults
			_, err := fmt.Fprintf(w, "%s\ndefaults: assets-dir=%s output=%s variable=%s debounce=%s extensions=%s\n",
				report.Info.String(), d.AssetsDir, d.OutputName, d.Variable, d.Debounce, strings.Join(d.Extensions, ","))

			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output version info as JSON")

	return cmd
}
