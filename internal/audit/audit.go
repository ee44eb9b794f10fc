// Package audit records every action batch applied to a workbook in a JSONL log.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Entry is one applied batch.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"user_id,omitempty"`
	Machine   string    `json:"machine"`
	// Source is the surface that applied the batch: apply, chat or serve.
	Source     string   `json:"source"`
	Workbook   string   `json:"workbook,omitempty"`
	Actions    []string `json:"actions"`
	Success    bool     `json:"success"`
	Flushed    bool     `json:"flushed"`
	Failures   int      `json:"failures"`
	Error      string   `json:"error,omitempty"`
	DurationMs int64    `json:"duration_ms"`
}

type userKey struct{}

// WithUser returns a context whose batches are recorded under userID.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserFrom returns the user recorded by WithUser, or "".
func UserFrom(ctx context.Context) string {
	id, _ := ctx.Value(userKey{}).(string)
	return id
}

// Logger appends entries to a file.
type Logger struct {
	FilePath string
	Enabled  bool

	mu sync.Mutex
}

// NewLogger creates a Logger. A disabled logger or an empty path is a no-op.
func NewLogger(filePath string, enabled bool) *Logger {
	return &Logger{
		FilePath: filePath,
		Enabled:  enabled,
	}
}

// Log appends a single entry. A disabled or nil logger records nothing.
func (l *Logger) Log(_ context.Context, entry Entry) error {
	if l == nil || !l.Enabled || l.FilePath == "" {
		return nil
	}
	entry.Error = RedactText(entry.Error)

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("could not encode audit entry: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.FilePath), 0755); err != nil {
		return fmt.Errorf("could not create audit directory: %w", err)
	}
	f, err := os.OpenFile(l.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("could not open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("could not write audit log: %w", err)
	}
	return nil
}

// ReadEntries reads all entries from the log file.
func ReadEntries(filePath string) ([]Entry, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entries []Entry
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue // skip malformed lines
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Filter selects entries. Zero fields match everything.
type Filter struct {
	Since    time.Time
	Until    time.Time
	Source   string
	Workbook string
	UserID   string
	// FailedOnly keeps unsuccessful batches and batches with failed sub-operations.
	FailedOnly bool
}

// FilterEntries returns entries matching f.
func FilterEntries(entries []Entry, f Filter) []Entry {
	var result []Entry
	for _, e := range entries {
		if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
			continue
		}
		if f.Source != "" && e.Source != f.Source {
			continue
		}
		if f.Workbook != "" && !strings.Contains(e.Workbook, f.Workbook) {
			continue
		}
		if f.UserID != "" && e.UserID != f.UserID {
			continue
		}
		if f.FailedOnly && e.Success && e.Failures == 0 {
			continue
		}
		result = append(result, e)
	}
	return result
}

// LogSize returns the size of the log in bytes, or 0 if not found.
func LogSize(filePath string) int64 {
	info, err := os.Stat(filePath)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Clear truncates the log file.
func Clear(filePath string) error {
	if err := os.Truncate(filePath, 0); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// sensitiveFlags are flags whose following value should be redacted.
var sensitiveFlags = map[string]bool{
	"--key": true, "--token": true, "--password": true,
	"--secret": true, "--api-key": true, "--apikey": true,
	"Bearer": true,
}

// sensitivePatterns are value prefixes that indicate secrets.
var sensitivePatterns = []string{"sk-ant-", "sk-", "eyJ"}

// Redact sanitizes args to remove secrets.
func Redact(args []string) []string {
	result := make([]string, len(args))
	redactNext := false
	for i, arg := range args {
		if redactNext {
			result[i] = "[REDACTED]"
			redactNext = false
			continue
		}
		if sensitiveFlags[arg] {
			result[i] = arg
			redactNext = true
			continue
		}
		redacted := false
		for _, pat := range sensitivePatterns {
			if strings.HasPrefix(arg, pat) {
				result[i] = "[REDACTED]"
				redacted = true
				break
			}
		}
		if !redacted {
			result[i] = arg
		}
	}
	return result
}

// RedactText applies Redact to the words of s.
func RedactText(s string) string {
	if s == "" {
		return s
	}
	return strings.Join(Redact(strings.Fields(s)), " ")
}
