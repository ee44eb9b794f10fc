// Package audit provides the "xla audit" commands for reviewing applied batches.
package audit

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/klytics/xla/internal/app"
	auditpkg "github.com/klytics/xla/internal/audit"
	"github.com/klytics/xla/internal/output"
)

// NewCommand creates the "audit" command with all subcommands.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Review the changes applied to workbooks",
		Long:  "Every batch of actions applied by apply, chat, ask or serve is recorded in a JSONL audit log.",
	}

	cmd.AddCommand(newLogCmd())
	cmd.AddCommand(newClearCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

func newLogCmd() *cobra.Command {
	var (
		last     int
		source   string
		workbook string
		since    string
		userID   string
		failed   bool
		details  bool
	)

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd)
			if err != nil {
				return err
			}
			path := a.Config.Audit.Path
			entries, err := auditpkg.ReadEntries(path)
			if err != nil {
				return err
			}

			f := auditpkg.Filter{Source: source, Workbook: workbook, UserID: userID, FailedOnly: failed}
			if since != "" {
				t, err := time.ParseInLocation("2006-01-02", since, time.Local)
				if err != nil {
					return fmt.Errorf("invalid --since date: %w (use YYYY-MM-DD)", err)
				}
				f.Since = t
			}
			filtered := auditpkg.FilterEntries(entries, f)
			if last > 0 && len(filtered) > last {
				filtered = filtered[len(filtered)-last:]
			}

			if a.JSON {
				if filtered == nil {
					filtered = []auditpkg.Entry{}
				}
				return output.PrintJSON("audit log", filtered)
			}

			out := cmd.OutOrStdout()
			if len(filtered) == 0 {
				fmt.Fprintln(out, "No audit log entries found.")
				return nil
			}

			fmt.Fprintf(out, "Audit log, %d batches\n", len(filtered))
			fmt.Fprintf(out, "File: %s\n\n", path)

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "TIMESTAMP\tSOURCE\tUSER\tWORKBOOK\tACTIONS\tDURATION\tSTATUS\n")
			for _, e := range filtered {
				user := e.UserID
				if user == "" {
					user = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
					e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Source, user, e.Workbook,
					len(e.Actions), formatDuration(e.DurationMs), status(e))
				if details {
					for _, line := range e.Actions {
						fmt.Fprintf(tw, "\t\t\t  %s\t\t\t\n", line)
					}
				}
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&last, "last", 20, "Show last N entries")
	cmd.Flags().StringVar(&source, "source", "", "Filter by source: apply, chat, ask or serve")
	cmd.Flags().StringVar(&workbook, "workbook", "", "Filter by workbook path (substring)")
	cmd.Flags().StringVar(&since, "since", "", "Filter entries since date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&userID, "user", "", "Filter by user ID")
	cmd.Flags().BoolVar(&failed, "failed", false, "Only batches that failed or skipped sub-operations")
	cmd.Flags().BoolVar(&details, "details", false, "List the actions of each batch")
	return cmd
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear the audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd)
			if err != nil {
				return err
			}
			path := a.Config.Audit.Path
			if err := auditpkg.Clear(path); err != nil {
				return err
			}
			if a.JSON {
				return output.PrintJSON("audit clear", map[string]string{"cleared": path})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Audit log cleared: %s\n", path)
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show audit log path and size",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd)
			if err != nil {
				return err
			}
			path := a.Config.Audit.Path
			size := auditpkg.LogSize(path)
			entries, _ := auditpkg.ReadEntries(path)

			if a.JSON {
				return output.PrintJSON("audit status", map[string]any{
					"path":    path,
					"enabled": a.Config.Audit.Enabled,
					"size":    size,
					"entries": len(entries),
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Audit log: %s\n", path)
			if !a.Config.Audit.Enabled {
				fmt.Fprintln(out, "Recording: disabled (xla config set audit.enabled true)")
			}
			if size == 0 {
				fmt.Fprintln(out, "Size:      empty (no entries)")
			} else {
				fmt.Fprintf(out, "Size:      %s\n", formatSize(size))
			}
			fmt.Fprintf(out, "Entries:   %d\n", len(entries))
			return nil
		},
	}
}

func status(e auditpkg.Entry) string {
	switch {
	case !e.Success:
		return "failed"
	case e.Failures > 0:
		return fmt.Sprintf("ok, %d skipped", e.Failures)
	}
	return "ok"
}

func formatDuration(ms int64) string {
	if ms >= 1000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	return fmt.Sprintf("%dms", ms)
}

func formatSize(bytes int64) string {
	if bytes < 1024 {
		return fmt.Sprintf("%d B", bytes)
	}
	if bytes < 1024*1024 {
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	}
	return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
}
