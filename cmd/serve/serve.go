// Package serve provides the "xla serve" command: the chat API used by the
// spreadsheet add-in.
package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/klytics/xla/internal/app"
	"github.com/klytics/xla/internal/chat"
	"github.com/klytics/xla/internal/watch"
)

// NewCommand creates the "serve" command.
func NewCommand() *cobra.Command {
	var (
		addr     string
		workbook string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat API",
		Long: `Serves the streaming chat endpoint and the conversation history API.

  POST   /api/chat                  stream a reply (server-sent events)
  GET    /api/chat/ws               same over a websocket
  GET    /api/conversations         list conversations
  GET    /api/conversations/:id     conversation with its messages
  PATCH  /api/conversations/:id     rename
  DELETE /api/conversations/:id     delete

With --workbook, the snapshot of that file is attached to chat requests that
carry none, and GET /api/snapshot and POST /api/actions/apply are enabled.

Requests need a bearer token from 'xla token' when auth.secret is set.
Without a secret, every request is served as the local user.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = a.Config.Server.Addr
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

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			opts := chat.ServerOptions{
				Secret: a.Config.Auth.Secret,
				Logger: a.Logger("server"),
			}
			if workbook != "" {
				session, err := a.Session(workbook, "")
				if err != nil {
					return err
				}
				defer session.Close()
				opts.Reader = a.Reader(session)
				opts.Executor = a.Executor(session, "serve", workbook, nil)

				follower, err := watch.New(workbook, 0)
				if err != nil {
					return err
				}
				follower.Logger = a.Logger("watch")
				go func() {
					// Reconnect after edits made outside the server.
					err := follower.Run(ctx, func(watch.Event) { session.Close() })
					if err != nil && ctx.Err() == nil {
						opts.Logger.Printf("workbook follower stopped: %v", err)
					}
				}()
			}

			svc := chat.NewService(st, provider, chat.Options{
				History: a.Config.Prompt.History,
				MaxRows: a.Config.Prompt.MaxRows,
				Model:   a.Config.Model,
				Logger:  a.Logger("chat"),
			})
			gin.SetMode(gin.ReleaseMode)
			server := chat.NewServer(svc, st, opts)

			out := cmd.ErrOrStderr()
			fmt.Fprintf(out, "Serving on http://%s (%s)\n", addr, provider.Name())
			if opts.Secret == "" {
				color.New(color.FgYellow).Fprintln(out, "auth.secret is not set: every request is served as the local user")
			}
			if workbook != "" {
				fmt.Fprintf(out, "Workbook: %s\n", workbook)
			}
			return serve(ctx, server, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from server.addr)")
	cmd.Flags().StringVar(&workbook, "workbook", "", "Attach an .xlsx workbook")
	return cmd
}

func serve(ctx context.Context, server *chat.Server, addr string) error {
	if err := server.ListenAndServe(ctx, addr); err != nil {
		return fmt.Errorf("server on %s failed: %w", addr, err)
	}
	fmt.Fprintln(os.Stderr, "Server stopped")
	return nil
}
