package cli

import (
	"github.com/spf13/cobra"

	"github.com/hupe1980/assetmanifest/internal/config"
)

func newCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion <shell>",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for assetmanifest.

To load completions:

Bash:
  $ source <(assetmanifest completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ assetmanifest completion bash > /etc/bash_completion.d/assetmanifest

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ assetmanifest completion zsh > "${fpath[1]}/_assetmanifest"

Fish:
  $ assetmanifest completion fish > ~/.config/fish/completions/assetmanifest.fish

PowerShell:
  PS> assetmanifest completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> assetmanifest completion powershell > assetmanifest.ps1
  # and source this file from your PowerShell profile.
`,
		// completion needs no config.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Args:              cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs:         []string{"bash", "zsh", "fish", "powershell"},
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()

			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletionV2(w, true)
			case "zsh":
				return cmd.Root().GenZshCompletion(w)
			case "fish":
				return cmd.Root().GenFishCompletion(w, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(w)
			}

			return nil
		},
	}

	return cmd
}

// registerFlagCompletions adds value completions for flags with a fixed set
// of choices.
func registerFlagCompletions(root *cobra.Command) {
	const noFiles = cobra.ShellCompDirectiveNoFileComp

	_ = root.RegisterFlagCompletionFunc("log-level", cobra.FixedCompletions([]string{
		config.LogLevelDebug, config.LogLevelInfo, config.LogLevelWarn, config.LogLevelError,
	}, noFiles))
	_ = root.RegisterFlagCompletionFunc("log-format", cobra.FixedCompletions([]string{
		config.LogFormatText, config.LogFormatJSON,
	}, noFiles))

	for _, sub := range root.Commands() {
		if sub.Name() == "list" {
			_ = sub.RegisterFlagCompletionFunc("format", cobra.FixedCompletions(listFormats().Formats(), noFiles))
		}
	}
}
