// Package watch follows a workbook on disk and reports when it changes, so
// snapshots can be re-read while the accountant edits the file elsewhere.
package watch

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce absorbs the burst of events a single save produces.
const DefaultDebounce = 500 * time.Millisecond

// Event is one debounced change of the followed file.
type Event struct {
	Time      time.Time `json:"time"`
	Path      string    `json:"path"`
	Operation string    `json:"operation"`
}

// Status represents the current follower status.
type Status struct {
	Running    bool   `json:"running"`
	Path       string `json:"path"`
	EventCount int    `json:"eventCount"`
	StartedAt  string `json:"startedAt,omitempty"`
}

// Handler is called after the file settles.
type Handler func(Event)

// Follower watches one file. The parent directory is watched because
// spreadsheet apps save by writing a temp file and renaming it over the
// original.
type Follower struct {
	Path     string
	Debounce time.Duration
	Logger   *log.Logger

	mu        sync.Mutex
	watcher   *fsnotify.Watcher
	timer     *time.Timer
	events    int
	running   bool
	startedAt time.Time
}

// New creates a follower for path.
func New(path string, debounce time.Duration) (*Follower, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("could not resolve %s: %w", path, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("file not found: %s", path)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("could not create file watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Follower{
		Path:     abs,
		Debounce: debounce,
		Logger:   log.New(io.Discard, "", 0),
		watcher:  fsw,
	}, nil
}

// Run calls fn after each change of the file. It blocks until ctx is
// cancelled.
func (f *Follower) Run(ctx context.Context, fn Handler) error {
	dir := filepath.Dir(f.Path)
	if err := f.watcher.Add(dir); err != nil {
		f.watcher.Close()
		return fmt.Errorf("could not watch %s: %w", dir, err)
	}

	f.mu.Lock()
	f.running = true
	f.startedAt = time.Now()
	f.mu.Unlock()
	f.Logger.Printf("following %s", f.Path)

	defer func() {
		f.mu.Lock()
		f.running = false
		if f.timer != nil {
			f.timer.Stop()
		}
		f.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			f.Logger.Println("stopping follower")
			return f.watcher.Close()
		case event, ok := <-f.watcher.Events:
			if !ok {
				return nil
			}
			f.handleEvent(event, fn)
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return nil
			}
			f.Logger.Printf("watch error: %v", err)
		}
	}
}

func (f *Follower) handleEvent(event fsnotify.Event, fn Handler) {
	if !f.matches(event) {
		return
	}

	op := event.Op.String()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.timer != nil {
		f.timer.Stop()
	}
	f.timer = time.AfterFunc(f.Debounce, func() {
		if _, err := os.Stat(f.Path); err != nil {
			// Renamed away and not yet replaced.
			return
		}
		f.mu.Lock()
		f.events++
		f.mu.Unlock()
		fn(Event{Time: time.Now(), Path: f.Path, Operation: op})
	})
}

func (f *Follower) matches(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return false
	}
	if filepath.Clean(event.Name) != f.Path {
		return false
	}
	// Office lock files live next to the workbook as ~$name.xlsx.
	return !strings.HasPrefix(filepath.Base(event.Name), "~$")
}

// GetStatus returns the current follower status.
func (f *Follower) GetStatus() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := Status{Running: f.running, Path: f.Path, EventCount: f.events}
	if f.running {
		s.StartedAt = f.startedAt.Format(time.RFC3339)
	}
	return s
}
