package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestNewMissingFile(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "absent.xlsx"), 0); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestMatches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ventes.xlsx")
	os.WriteFile(path, []byte("x"), 0644)

	f, err := New(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer f.watcher.Close()
	if f.Debounce != DefaultDebounce {
		t.Errorf("debounce = %v", f.Debounce)
	}

	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"write", fsnotify.Event{Name: path, Op: fsnotify.Write}, true},
		{"create after rename", fsnotify.Event{Name: path, Op: fsnotify.Create}, true},
		{"chmod", fsnotify.Event{Name: path, Op: fsnotify.Chmod}, false},
		{"other file", fsnotify.Event{Name: filepath.Join(dir, "autre.xlsx"), Op: fsnotify.Write}, false},
		{"lock file", fsnotify.Event{Name: filepath.Join(dir, "~$ventes.xlsx"), Op: fsnotify.Create}, false},
	}
	for _, tt := range tests {
		if got := f.matches(tt.event); got != tt.want {
			t.Errorf("%s: matches = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestRunReportsChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ventes.xlsx")
	if err := os.WriteFile(path, []byte("v1"), 0644); err != nil {
		t.Fatal(err)
	}

	f, err := New(path, 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan Event, 10)
	done := make(chan error, 1)
	go func() {
		done <- f.Run(ctx, func(e Event) { events <- e })
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	for i := 0; i < 3; i++ {
		os.WriteFile(path, []byte("v2"), 0644)
	}
	os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0644)

	select {
	case e := <-events:
		if e.Path != f.Path {
			t.Errorf("event path = %s", e.Path)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no change reported")
	}

	select {
	case e := <-events:
		t.Errorf("burst should be debounced into one event, got extra %+v", e)
	case <-time.After(200 * time.Millisecond):
	}

	if st := f.GetStatus(); !st.Running || st.EventCount != 1 {
		t.Errorf("status = %+v", st)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
	if f.GetStatus().Running {
		t.Error("follower should report stopped")
	}
}
