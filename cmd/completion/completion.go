// Package completion provides shell completion generation commands.
package completion

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewCommand returns the completion command.
func NewCommand(rootCmd *cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completions",
		Long: `Generate shell completion scripts for xla.

Install instructions:
  Bash:       xla completion bash > /etc/bash_completion.d/xla
              echo 'source <(xla completion bash)' >> ~/.bashrc
  Zsh:        xla completion zsh > ~/.zsh/completions/_xla
  Fish:       xla completion fish > ~/.config/fish/completions/xla.fish
  PowerShell: xla completion powershell >> $PROFILE`,
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		Args:      cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				fmt.Fprintln(out, "# xla bash completion")
				fmt.Fprintln(out, "# Install: xla completion bash > /etc/bash_completion.d/xla")
				fmt.Fprintln(out)
				return rootCmd.GenBashCompletion(out)
			case "zsh":
				fmt.Fprintln(out, "# xla zsh completion")
				fmt.Fprintln(out, "# Install: xla completion zsh > ~/.zsh/completions/_xla")
				fmt.Fprintln(out)
				return rootCmd.GenZshCompletion(out)
			case "fish":
				fmt.Fprintln(out, "# xla fish completion")
				fmt.Fprintln(out, "# Install: xla completion fish > ~/.config/fish/completions/xla.fish")
				fmt.Fprintln(out)
				return rootCmd.GenFishCompletion(out, true)
			case "powershell":
				fmt.Fprintln(out, "# xla PowerShell completion")
				fmt.Fprintln(out, "# Install: xla completion powershell >> $PROFILE")
				fmt.Fprintln(out)
				return rootCmd.GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unsupported shell: %s (supported: bash, zsh, fish, powershell)", args[0])
			}
		},
	}
	return cmd
}
