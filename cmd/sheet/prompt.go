package sheet

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/klytics/xla/internal/app"
	"github.com/klytics/xla/internal/output"
	"github.com/klytics/xla/internal/prompt"
)

type promptJSONOutput struct {
	Workbook string `json:"workbook"`
	Sheet    string `json:"sheet"`
	Rows     int    `json:"rows"`
	Prompt   string `json:"prompt"`
}

// NewPromptCommand returns the prompt command.
func NewPromptCommand() *cobra.Command {
	var (
		selection string
		maxRows   int
	)

	cmd := &cobra.Command{
		Use:   "prompt <book.xlsx>",
		Short: "Print the system prompt built for a workbook",
		Long: `Builds the accountant persona prompt followed by the workbook data, as
sent to the AI provider on every chat turn.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("max-rows") {
				maxRows = a.Config.Prompt.MaxRows
			}

			session, err := a.Session(args[0], selection)
			if err != nil {
				return err
			}
			defer session.Close()

			snap, err := a.Reader(session).ReadErr(cmd.Context())
			if err != nil {
				return err
			}
			text := prompt.Build(snap, prompt.Options{MaxRows: maxRows})

			if a.JSON {
				return output.PrintJSON("prompt", promptJSONOutput{
					Workbook: args[0],
					Sheet:    snap.ActiveSheet.Name,
					Rows:     len(snap.ActiveSheet.Rows),
					Prompt:   text,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}

	cmd.Flags().StringVar(&selection, "selection", "", "Selection to describe instead of the one saved in the file")
	cmd.Flags().IntVar(&maxRows, "max-rows", prompt.DefaultMaxRows, "Data rows included in the prompt (-1 for all)")

	return cmd
}
