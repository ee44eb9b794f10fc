// Package cmd contains all CLI commands for the xla binary.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	cmdactions "github.com/klytics/xla/cmd/actions"
	cmdapply "github.com/klytics/xla/cmd/apply"
	cmdaudit "github.com/klytics/xla/cmd/audit"
	cmdchat "github.com/klytics/xla/cmd/chat"
	"github.com/klytics/xla/cmd/completion"
	cmdconfig "github.com/klytics/xla/cmd/config"
	"github.com/klytics/xla/cmd/serve"
	"github.com/klytics/xla/cmd/sheet"
	"github.com/klytics/xla/cmd/token"
	"github.com/klytics/xla/cmd/version"
	"github.com/klytics/xla/internal/output"
)

var (
	jsonOutput bool
	verbose    bool
	modelName  string
	provider   string
	noColor    bool
)

// NewRootCommand creates and returns the root cobra command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "xla",
		Short: "Spreadsheet assistant for accountants",
		Long: `xla reads a workbook, asks the assistant about it and applies the
changes it proposes.

The assistant answers in prose and embeds the edits it suggests in an
[EXCEL_ACTIONS] block. xla shows a summary of those edits and applies them
to the .xlsx file once you confirm.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
			if jsonOutput {
				// Progress and spinners stay silent under --json.
				os.Setenv("XLA_JSON", "true")
			}
		},
	}

	// Global persistent flags
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as machine-readable JSON")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&modelName, "model", "", "AI model name override")
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "", "AI provider: openai | anthropic | ollama")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable ANSI color output")

	// Register subcommands
	rootCmd.AddCommand(sheet.NewSnapshotCommand())
	rootCmd.AddCommand(sheet.NewPromptCommand())
	rootCmd.AddCommand(sheet.NewBookCommand())
	rootCmd.AddCommand(cmdactions.NewCommand())
	rootCmd.AddCommand(cmdapply.NewCommand())
	rootCmd.AddCommand(cmdchat.NewCommand())
	rootCmd.AddCommand(cmdchat.NewAskCommand())
	rootCmd.AddCommand(serve.NewCommand())
	rootCmd.AddCommand(token.NewCommand())
	rootCmd.AddCommand(cmdaudit.NewCommand())
	rootCmd.AddCommand(cmdconfig.NewCommand())
	rootCmd.AddCommand(completion.NewCommand(rootCmd))
	rootCmd.AddCommand(version.NewCommand())

	return rootCmd
}

// Execute runs the root command and handles any returned errors.
func Execute() {
	rootCmd := NewRootCommand()
	cmd, err := rootCmd.ExecuteC()
	if err == nil {
		return
	}

	code := output.ExitCode(err)
	var exit *output.ExitError
	if errors.As(err, &exit) && exit.Reported {
		os.Exit(code)
	}
	if jsonOutput {
		output.PrintJSONError(cmd.CommandPath(), err, code)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
	os.Exit(code)
}
