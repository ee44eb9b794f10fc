// Package actions provides CLI commands for working with assistant replies
// offline: extracting, stripping and summarizing their action blocks.
package actions

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/klytics/xla/internal/actions"
	"github.com/klytics/xla/internal/output"
)

// NewCommand returns the actions subcommand group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actions",
		Short: "Inspect the action block of an assistant reply",
		Long: `Commands that read an assistant reply from a file or stdin and work on the
[EXCEL_ACTIONS] block embedded in it.`,
	}

	cmd.AddCommand(newParseCommand())
	cmd.AddCommand(newStripCommand())
	cmd.AddCommand(newSummarizeCommand())

	return cmd
}

func newParseCommand() *cobra.Command {
	var wrap bool
	cmd := &cobra.Command{
		Use:   "parse [file|-]",
		Short: "Extract and validate the action block",
		Long: `Prints the action block of a reply as JSON. The command fails when the
reply has no block or the block is malformed.

With --wrap, the block is printed between markers, ready to be fed to
'xla apply'.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonFlag, _ := cmd.Flags().GetBool("json")
			text, err := ReadInput(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			block, err := actions.Extract(text)
			if err != nil {
				return err
			}
			if jsonFlag {
				return output.PrintJSON("actions parse", block)
			}
			if wrap {
				wrapped, err := actions.Wrap(block)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), wrapped)
				return nil
			}
			return output.NewWriter(output.FormatJSON, cmd.OutOrStdout()).WriteJSON(block)
		},
	}
	cmd.Flags().BoolVar(&wrap, "wrap", false, "Print the block between [EXCEL_ACTIONS] markers")
	return cmd
}

func newStripCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "strip [file|-]",
		Short: "Print the reply without its action block",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonFlag, _ := cmd.Flags().GetBool("json")
			text, err := ReadInput(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			prose := actions.Strip(text)
			if jsonFlag {
				return output.PrintJSON("actions strip", map[string]string{"text": prose})
			}
			fmt.Fprintln(cmd.OutOrStdout(), prose)
			return nil
		},
	}
}

func newSummarizeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "summarize [file|-]",
		Short: "List the proposed changes, one line per action",
		Long:  "Prints the confirmation summary shown before applying. A reply without a valid block has nothing to summarize.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonFlag, _ := cmd.Flags().GetBool("json")
			text, err := ReadInput(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			lines := actions.Summarize(actions.Parse(text))
			if lines == nil {
				lines = []string{}
			}
			if jsonFlag {
				return output.PrintJSON("actions summarize", lines)
			}
			if len(lines) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No actions proposed.")
				return nil
			}
			for _, line := range lines {
				fmt.Fprintf(cmd.OutOrStdout(), "• %s\n", line)
			}
			return nil
		},
	}
}

// ReadInput reads a reply from the file named in args, or from stdin when
// args is empty or "-".
func ReadInput(stdin io.Reader, args []string) (string, error) {
	if len(args) > 0 && args[0] != "-" {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("could not read %s: %w", args[0], err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("could not read from stdin: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("no input provided: pass a file path or pipe the reply to stdin")
	}
	return string(data), nil
}
