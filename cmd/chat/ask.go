package chat

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/klytics/xla/internal/actions"
	"github.com/klytics/xla/internal/ai"
	"github.com/klytics/xla/internal/app"
	"github.com/klytics/xla/internal/executor"
	"github.com/klytics/xla/internal/output"
	"github.com/klytics/xla/internal/progress"
	"github.com/klytics/xla/internal/prompt"
	"github.com/klytics/xla/internal/shell"
)

type askJSONOutput struct {
	Question string           `json:"question"`
	Answer   string           `json:"answer"`
	Actions  *actions.Block   `json:"actions,omitempty"`
	Summary  []string         `json:"summary,omitempty"`
	Result   *executor.Result `json:"result,omitempty"`
	Model    string           `json:"model"`
	Tokens   int              `json:"tokens"`
}

// NewAskCommand creates the "ask" command.
func NewAskCommand() *cobra.Command {
	var (
		yes       bool
		selection string
		raw       bool
	)

	cmd := &cobra.Command{
		Use:   "ask <book.xlsx> <question>",
		Short: "Ask a single question about a workbook",
		Long: `Sends one question with the workbook snapshot and prints the complete
answer. Nothing is saved to the conversation history.

The proposed changes are listed; pass --yes to apply them. Use --raw to
print the reply with its action block, e.g. to pipe it into 'xla apply'.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd)
			if err != nil {
				return err
			}
			provider, err := a.Provider()
			if err != nil {
				return err
			}
			book, question := args[0], args[1]

			session, err := a.Session(book, selection)
			if err != nil {
				return err
			}
			defer session.Close()

			ctx := cmd.Context()
			snap := a.Reader(session).Read(ctx)
			system := prompt.Build(snap, prompt.Options{MaxRows: a.Config.Prompt.MaxRows})

			spinner := progress.NewSpinner(fmt.Sprintf("Asking %s...", provider.Name()))
			spinner.Start()
			result, err := provider.Infer(ctx, system, []ai.Message{{Role: ai.RoleUser, Content: question}}, ai.Options{})
			spinner.Stop("")
			if err != nil {
				return fmt.Errorf("%s request failed: %w", provider.Name(), err)
			}

			block := actions.Parse(result.Content)
			report := askJSONOutput{
				Question: question,
				Answer:   actions.Strip(result.Content),
				Actions:  block,
				Summary:  actions.Summarize(block),
				Model:    result.Model,
				Tokens:   result.InputTokens + result.OutputTokens,
			}

			var res *executor.Result
			if yes && block != nil && len(block.Actions) > 0 {
				r := a.Executor(session, "ask", book, nil).Execute(ctx, block)
				res = &r
				report.Result = res
			}

			if a.JSON {
				return output.PrintJSON("ask", report)
			}
			out := cmd.OutOrStdout()
			if raw {
				fmt.Fprintln(out, result.Content)
			} else {
				fmt.Fprintln(out, report.Answer)
			}
			if len(report.Summary) > 0 {
				fmt.Fprintf(out, "\nProposed actions (%d):\n", len(report.Summary))
				for _, line := range report.Summary {
					fmt.Fprintf(out, "  • %s\n", line)
				}
			}
			if res != nil {
				shell.PrintResult(out, *res)
			} else if len(report.Summary) > 0 && !raw {
				fmt.Fprintln(out, "Run again with --yes to apply them.")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Apply the proposed changes")
	cmd.Flags().StringVar(&selection, "selection", "", "Selection to report instead of the one saved in the file")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the reply including its action block")
	return cmd
}
