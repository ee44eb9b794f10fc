package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klytics/xla/cmd/version"
	"github.com/klytics/xla/internal/actions"
	"github.com/klytics/xla/internal/host"
	"github.com/klytics/xla/internal/store"
)

// Exit codes for consistent error reporting.
const (
	ExitOK          = 0 // success
	ExitUserError   = 1 // bad flags, missing file, malformed actions
	ExitSystemError = 2 // host unavailable, network failure, API error
)

// JSONResult is the standard JSON output envelope for all commands.
type JSONResult struct {
	OK      bool   `json:"ok"`
	Command string `json:"command"`
	Version string `json:"version"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// ExitError forces the exit code of a command that already reported its
// outcome, such as a batch that applied with failures.
type ExitError struct {
	Code int
	Err  error
	// Reported means the command already printed the failure.
	Reported bool
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode classifies err.
func ExitCode(err error) int {
	var exit *ExitError
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &exit):
		return exit.Code
	case errors.Is(err, host.ErrInvalidRange),
		errors.Is(err, actions.ErrNoBlock),
		errors.Is(err, actions.ErrUnterminated),
		errors.Is(err, actions.ErrUnknownType),
		errors.Is(err, actions.ErrMissingField),
		errors.Is(err, actions.ErrInvalidValue),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, os.ErrNotExist):
		return ExitUserError
	}
	return ExitSystemError
}

// PrintJSON writes a standard success JSON result to stdout.
func PrintJSON(cmd string, data any) error {
	return FprintJSON(os.Stdout, cmd, data)
}

// FprintJSON writes a standard success JSON result to w.
func FprintJSON(w io.Writer, cmd string, data any) error {
	return encode(w, JSONResult{
		OK:      true,
		Command: cmd,
		Version: version.Version,
		Data:    data,
	})
}

// PrintJSONError writes a standard error JSON result to stdout.
func PrintJSONError(cmd string, err error, code int) error {
	result := JSONResult{
		OK:      false,
		Command: cmd,
		Version: version.Version,
		Error:   err.Error(),
		Code:    code,
	}
	if encErr := encode(os.Stdout, result); encErr != nil {
		return fmt.Errorf("could not encode JSON error: %w", encErr)
	}
	return nil
}

func encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
