package cli

import (
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion script",
		Long: `Generate shell completion script for rvc.

To load completions:

Bash:
  $ source <(rvc completion bash)
  # Or add to ~/.bashrc:
  $ echo 'source <(rvc completion bash)' >> ~/.bashrc

Zsh:
  $ source <(rvc completion zsh)
  # Or add to ~/.zshrc:
  $ echo 'source <(rvc completion zsh)' >> ~/.zshrc

Fish:
  $ rvc completion fish | source
  # Or add to config:
  $ rvc completion fish > ~/.config/fish/completions/rvc.fish

PowerShell:
  PS> rvc completion powershell | Out-String | Invoke-Expression
`,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		DisableFlagsInUseLine: true,
		Run: func(cmd *cobra.Command, args []string) {
			switch args[0] {
			case "bash":
				rootCmd.GenBashCompletion(os.Stdout)
			case "zsh":
				rootCmd.GenZshCompletion(os.Stdout)
			case "fish":
				rootCmd.GenFishCompletion(os.Stdout, true)
			case "powershell":
				rootCmd.GenPowerShellCompletionWithDesc(os.Stdout)
			}
		},
	})
}
