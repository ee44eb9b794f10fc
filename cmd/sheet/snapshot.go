// Package sheet provides the commands that read workbooks: snapshot, prompt
// and book.
package sheet

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klytics/xla/internal/app"
	"github.com/klytics/xla/internal/output"
	"github.com/klytics/xla/internal/snapshot"
	"github.com/klytics/xla/internal/watch"
)

// NewSnapshotCommand returns the snapshot command.
func NewSnapshotCommand() *cobra.Command {
	var (
		format    string
		selection string
		follow    bool
		debounce  int
	)

	cmd := &cobra.Command{
		Use:   "snapshot <book.xlsx>",
		Short: "Show the workbook context sent to the assistant",
		Long: `Reads the active sheet, the selection and the sheet list of a workbook,
exactly as a chat turn would attach them.

With --follow, the workbook is re-read every time it is saved and the
changed rows are printed.

Example:
  xla snapshot ventes.xlsx --selection B2:B10
  xla snapshot ventes.xlsx --format yaml
  xla snapshot ventes.xlsx --follow`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd)
			if err != nil {
				return err
			}
			if format == "" {
				format = a.Config.Output.Format
			}
			f, err := output.ParseFormat(format)
			if err != nil {
				return err
			}

			session, err := a.Session(args[0], selection)
			if err != nil {
				return err
			}
			defer session.Close()
			reader := a.Reader(session)

			ctx := cmd.Context()
			snap, err := reader.ReadErr(ctx)
			if err != nil {
				return err
			}

			if a.JSON {
				return output.PrintJSON("snapshot", snap)
			}
			w := output.NewWriter(f, cmd.OutOrStdout())
			if err := w.Encode(snap, func(out io.Writer) error {
				return PrintSnapshot(out, snap)
			}); err != nil {
				return err
			}
			if !follow {
				return nil
			}
			return followSnapshot(ctx, a, args[0], time.Duration(debounce)*time.Millisecond, reader, session, snap, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "Output format: text | json | yaml")
	cmd.Flags().StringVar(&selection, "selection", "", "Selection to report instead of the one saved in the file (e.g. A1:B2)")
	cmd.Flags().BoolVar(&follow, "follow", false, "Re-read the workbook whenever it changes")
	cmd.Flags().IntVar(&debounce, "debounce", 500, "Debounce interval in milliseconds for --follow")

	return cmd
}

type closer interface{ Close() error }

func followSnapshot(ctx context.Context, a *app.App, path string, debounce time.Duration, reader *snapshot.Reader, session closer, last *snapshot.Snapshot, out io.Writer) error {
	follower, err := watch.New(path, debounce)
	if err != nil {
		return err
	}
	follower.Logger = a.Logger("watch")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(out, "\nStopping...")
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Fprintf(out, "\nFollowing %s, press Ctrl+C to stop\n", path)
	return follower.Run(ctx, func(e watch.Event) {
		// The session holds the file as opened; reconnect to see the save.
		session.Close()
		snap, err := reader.ReadErr(ctx)
		if err != nil {
			color.New(color.FgRed).Fprintf(out, "[%s] could not re-read: %v\n", e.Time.Format("15:04:05"), err)
			return
		}
		lines := snapshot.Diff(last, snap)
		last = snap
		if !snapshot.Changed(lines) {
			return
		}
		fmt.Fprintf(out, "[%s] %s changed\n", e.Time.Format("15:04:05"), path)
		PrintDiff(out, lines)
	})
}

// PrintSnapshot renders a snapshot for the terminal.
func PrintSnapshot(w io.Writer, snap *snapshot.Snapshot) error {
	bold := color.New(color.Bold)
	bold.Fprintf(w, "Sheets: ")
	fmt.Fprintln(w, strings.Join(snap.WorkbookSheets, ", "))
	bold.Fprintf(w, "Active: ")
	fmt.Fprintf(w, "%s (%d rows)\n", snap.ActiveSheet.Name, len(snap.ActiveSheet.Rows))
	if snap.Selection != nil {
		bold.Fprintf(w, "Selection: ")
		fmt.Fprintf(w, "%s (row %d, column %d)\n", snap.Selection.Range, snap.Selection.StartRow+1, snap.Selection.StartCol+1)
	}
	fmt.Fprintln(w)
	_, err := fmt.Fprint(w, snapshot.Table(snap))
	return err
}

// PrintDiff renders added and removed rows, skipping unchanged context.
func PrintDiff(w io.Writer, lines []snapshot.Line) {
	for _, l := range lines {
		switch l.Type {
		case snapshot.LineAdded:
			color.New(color.FgGreen).Fprintf(w, "+ %s\n", l.Text)
		case snapshot.LineRemoved:
			color.New(color.FgRed).Fprintf(w, "- %s\n", l.Text)
		}
	}
}
