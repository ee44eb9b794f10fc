// Package token provides the "xla token" command that mints bearer tokens
// for the chat API.
package token

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/klytics/xla/internal/app"
	"github.com/klytics/xla/internal/auth"
	"github.com/klytics/xla/internal/output"
)

type tokenJSONOutput struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// NewCommand creates the "token" command.
func NewCommand() *cobra.Command {
	var (
		userID string
		email  string
		name   string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the chat API",
		Long: `Signs a token for a user with auth.secret. Send it as
"Authorization: Bearer <token>", or as ?token=<token> on the websocket.

Example:
  xla token --user u-42 --email compta@example.fr --name "Cabinet Martin"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd)
			if err != nil {
				return err
			}
			claims := auth.Claims{UserID: userID, Email: email, Name: name}
			tok, err := auth.Sign(a.Config.Auth.Secret, claims, ttl)
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = auth.DefaultTTL
			}

			if a.JSON {
				return output.PrintJSON("token", tokenJSONOutput{
					Token:     tok,
					UserID:    userID,
					ExpiresAt: time.Now().Add(ttl).UTC().Truncate(time.Second),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User ID (required)")
	cmd.Flags().StringVar(&email, "email", "", "User email")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.DefaultTTL, "Token lifetime")
	cmd.MarkFlagRequired("user")
	return cmd
}
