// Package chat provides the "xla chat" REPL and the one-shot "xla ask" command.
package chat

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/klytics/xla/internal/app"
	"github.com/klytics/xla/internal/auth"
	chatpkg "github.com/klytics/xla/internal/chat"
	"github.com/klytics/xla/internal/output"
	"github.com/klytics/xla/internal/shell"
)

// NewCommand creates the "chat" command.
func NewCommand() *cobra.Command {
	var (
		yes          bool
		conversation string
		selection    string
		evalMessage  string
		list         bool
	)

	cmd := &cobra.Command{
		Use:   "chat <book.xlsx>",
		Short: "Chat with the assistant about a workbook",
		Long: `Start an interactive chat attached to a workbook.

Every message is sent with a fresh snapshot of the active sheet. Replies are
streamed as they arrive; the changes the assistant proposes are listed and
applied to the workbook once you confirm. Conversations are saved and can be
resumed with --conversation.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if list {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd)
			if err != nil {
				return err
			}
			if list {
				return listConversations(cmd, a)
			}
			provider, err := a.Provider()
			if err != nil {
				return err
			}
			st, err := a.Store()
			if err != nil {
				return err
			}
			defer st.Close()

			book := args[0]
			hostSession, err := a.Session(book, selection)
			if err != nil {
				return err
			}
			defer hostSession.Close()

			svc := chatpkg.NewService(st, provider, chatpkg.Options{
				History: a.Config.Prompt.History,
				MaxRows: a.Config.Prompt.MaxRows,
				Model:   a.Config.Model,
				Logger:  a.Logger("chat"),
			})

			session := shell.NewSession(svc, a.Executor(hostSession, "chat", book, nil), a.Reader(hostSession))
			session.UserID = auth.LocalUser
			session.AutoApply = yes
			session.Out = cmd.OutOrStdout()
			if conversation != "" {
				if _, err := st.GetConversation(session.UserID, conversation); err != nil {
					return fmt.Errorf("could not resume conversation %s: %w", conversation, err)
				}
				session.ConversationID = conversation
			}

			if evalMessage != "" {
				session.Turn(cmd.Context(), evalMessage, func(string) bool { return yes })
				return nil
			}
			return session.Run(cmd.Context())
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Apply proposed changes without asking")
	cmd.Flags().StringVar(&conversation, "conversation", "", "Resume a saved conversation by ID")
	cmd.Flags().StringVar(&selection, "selection", "", "Selection to report instead of the one saved in the file")
	cmd.Flags().StringVar(&evalMessage, "eval", "", "Send a single message and exit")
	cmd.Flags().BoolVar(&list, "list", false, "List saved conversations")
	return cmd
}

func listConversations(cmd *cobra.Command, a *app.App) error {
	st, err := a.Store()
	if err != nil {
		return err
	}
	defer st.Close()

	convs, err := st.ListConversations(auth.LocalUser)
	if err != nil {
		return err
	}
	if a.JSON {
		return output.PrintJSON("chat", convs)
	}
	out := cmd.OutOrStdout()
	if len(convs) == 0 {
		fmt.Fprintln(out, "No saved conversations.")
		return nil
	}
	for _, c := range convs {
		fmt.Fprintf(out, "%s  %s  %s\n", c.ID, c.UpdatedAt.Local().Format("2006-01-02 15:04"), c.Title)
	}
	return nil
}
