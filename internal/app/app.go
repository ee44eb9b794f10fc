// Package app builds the components a command needs from the loaded
// configuration and the global flags.
package app

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/klytics/xla/internal/ai"
	"github.com/klytics/xla/internal/audit"
	"github.com/klytics/xla/internal/config"
	"github.com/klytics/xla/internal/executor"
	"github.com/klytics/xla/internal/formats/xlsx"
	"github.com/klytics/xla/internal/host"
	"github.com/klytics/xla/internal/snapshot"
	"github.com/klytics/xla/internal/store"
)

// App carries the configuration and logging of one command invocation.
type App struct {
	Config  *config.Config
	JSON    bool
	Verbose bool

	logOut io.Writer
}

// New loads the configuration and applies the global --provider, --model,
// --json and --verbose flags of cmd.
func New(cmd *cobra.Command) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("could not load configuration: %w", err)
	}

	a := &App{Config: cfg, logOut: io.Discard}
	flags := cmd.Flags()
	a.JSON, _ = flags.GetBool("json")
	a.Verbose, _ = flags.GetBool("verbose")
	if a.Verbose {
		a.logOut = os.Stderr
	}
	if flags.Changed("provider") {
		cfg.Provider, _ = flags.GetString("provider")
	}
	if flags.Changed("model") {
		cfg.Model, _ = flags.GetString("model")
	}
	return a, nil
}

// Logger returns a logger for one component. Output is discarded unless
// --verbose is set.
func (a *App) Logger(component string) *log.Logger {
	return log.New(a.logOut, "["+component+"] ", log.Ltime)
}

// Session opens the workbook at path through a host session. selection, when
// set, replaces the selection saved in the file.
func (a *App) Session(path, selection string) (*host.Session, error) {
	if !strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		return nil, fmt.Errorf("expected an .xlsx file, got %q", path)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("workbook not found: %w", err)
	}
	if selection != "" {
		if _, err := host.ParseRef(selection); err != nil {
			return nil, fmt.Errorf("invalid --selection: %w", err)
		}
	}
	loader := xlsx.Loader{Path: path, Selection: selection}
	return host.NewSession(loader, host.Options{
		PollInterval: a.Config.Host.PollInterval,
		MaxAttempts:  a.Config.Host.MaxAttempts,
		Logger:       a.Logger("host"),
	}), nil
}

// Reader returns a snapshot reader over session.
func (a *App) Reader(session *host.Session) *snapshot.Reader {
	return snapshot.NewReader(session, a.Logger("snapshot"))
}

// Executor returns an executor over session that audits under source.
// onAction may be nil.
func (a *App) Executor(session *host.Session, source, workbook string, onAction func(i, n int, r executor.ActionResult)) *executor.Executor {
	return executor.New(session, executor.Options{
		ResolveSheets: a.Config.Executor.ResolveSheets,
		StrictGrid:    a.Config.Executor.StrictGrid,
		Logger:        a.Logger("executor"),
		OnAction:      onAction,
		Audit:         a.Audit(),
		Source:        source,
		Workbook:      workbook,
	})
}

// Audit returns the configured audit logger.
func (a *App) Audit() *audit.Logger {
	return audit.NewLogger(a.Config.Audit.Path, a.Config.Audit.Enabled)
}

// Provider creates the configured AI provider.
func (a *App) Provider() (ai.Provider, error) {
	return ai.NewProvider(ai.Config{
		Provider: a.Config.Provider,
		Model:    a.Config.Model,
		APIKey:   a.Config.APIKey(a.Config.Provider),
		BaseURL:  a.Config.BaseURL(a.Config.Provider),
	})
}

// Store opens the conversation store.
func (a *App) Store() (*store.Store, error) {
	return store.Open(a.Config.Store.Path)
}
