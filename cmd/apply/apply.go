// Package apply provides the "xla apply" command.
package apply

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	cmdactions "github.com/klytics/xla/cmd/actions"
	"github.com/klytics/xla/cmd/sheet"
	"github.com/klytics/xla/internal/actions"
	"github.com/klytics/xla/internal/app"
	"github.com/klytics/xla/internal/executor"
	"github.com/klytics/xla/internal/output"
	"github.com/klytics/xla/internal/progress"
	"github.com/klytics/xla/internal/shell"
	"github.com/klytics/xla/internal/snapshot"
)

type applyJSONOutput struct {
	Workbook string           `json:"workbook"`
	DryRun   bool             `json:"dryRun"`
	Summary  []string         `json:"summary"`
	Result   *executor.Result `json:"result,omitempty"`
	Diff     []snapshot.Line  `json:"diff,omitempty"`
}

// NewCommand returns the apply command.
func NewCommand() *cobra.Command {
	var (
		yes    bool
		dryRun bool
		diff   bool
	)

	cmd := &cobra.Command{
		Use:   "apply <book.xlsx> [file|-]",
		Short: "Apply an action block to a workbook",
		Long: `Reads an assistant reply (or a bare {"actions": [...]} block) and applies
its actions to the workbook, then saves it.

The proposed changes are listed first and must be confirmed unless --yes is
given. A reply piped on stdin cannot be confirmed interactively and needs --yes.

Example:
  xla apply ventes.xlsx reply.txt
  xla actions parse --wrap reply.txt | xla apply ventes.xlsx --yes --diff`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd)
			if err != nil {
				return err
			}
			book := args[0]
			fromStdin := len(args) < 2 || args[1] == "-"

			text, err := cmdactions.ReadInput(cmd.InOrStdin(), args[1:])
			if err != nil {
				return err
			}
			block, err := Load(text)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			summary := actions.Summarize(block)
			report := applyJSONOutput{Workbook: book, DryRun: dryRun, Summary: summary}
			if !a.JSON {
				color.New(color.Bold).Fprintf(out, "Proposed actions (%d):\n", len(summary))
				for _, line := range summary {
					fmt.Fprintf(out, "  • %s\n", line)
				}
			}
			if dryRun || len(block.Actions) == 0 {
				if a.JSON {
					return output.PrintJSON("apply", report)
				}
				return nil
			}

			if !yes {
				if fromStdin {
					return fmt.Errorf("the reply was read from stdin, pass --yes to apply without confirmation")
				}
				if !confirm(cmd.InOrStdin(), out, "Apply these changes?") {
					fmt.Fprintln(out, "Nothing was changed.")
					return nil
				}
			}

			session, err := a.Session(book, "")
			if err != nil {
				return err
			}
			defer session.Close()
			reader := a.Reader(session)

			var before *snapshot.Snapshot
			if diff {
				if before, err = reader.ReadErr(cmd.Context()); err != nil {
					return err
				}
			}

			bar := progress.New("Applying", len(block.Actions))
			exec := a.Executor(session, "apply", book, func(i, n int, r executor.ActionResult) {
				bar.Step(actions.Describe(block.Actions[i]), r.OK())
			})
			res := exec.Execute(cmd.Context(), block)
			bar.Finish(fmt.Sprintf("%d action(s) processed", len(res.Actions)))
			report.Result = &res

			if diff && res.Flushed {
				after, err := reader.ReadErr(cmd.Context())
				if err != nil {
					return err
				}
				report.Diff = snapshot.Diff(before, after)
			}

			if a.JSON {
				if err := output.PrintJSON("apply", report); err != nil {
					return err
				}
			} else {
				shell.PrintResult(out, res)
				if len(report.Diff) > 0 {
					fmt.Fprintln(out)
					sheet.PrintDiff(out, report.Diff)
				}
			}
			return exitStatus(res)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Apply without asking for confirmation")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only list the proposed changes")
	cmd.Flags().BoolVar(&diff, "diff", false, "Show the rows of the active sheet that changed")

	return cmd
}

// Load decodes the block embedded in a reply, or a bare JSON block.
func Load(text string) (*actions.Block, error) {
	if strings.Contains(text, actions.StartMarker) {
		return actions.Extract(text)
	}
	block, err := actions.Decode([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("input is neither a reply with an actions block nor a JSON block: %w", err)
	}
	return block, nil
}

// exitStatus maps a batch outcome to the command's exit status. The result
// is already printed.
func exitStatus(res executor.Result) error {
	switch {
	case !res.Success:
		err := res.Err
		if err == nil {
			err = errors.New(res.Error)
		}
		return &output.ExitError{Code: output.ExitCode(err), Err: err, Reported: true}
	case res.Failures() > 0:
		return &output.ExitError{
			Code:     output.ExitUserError,
			Err:      fmt.Errorf("%d sub-operation(s) failed", res.Failures()),
			Reported: true,
		}
	}
	return nil
}

func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N] ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes", "o", "oui":
		return true
	}
	return false
}
