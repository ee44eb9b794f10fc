// Package snapshot reads the state of the active worksheet that is sent to
// the assistant as context.
package snapshot

import (
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"time"

	"github.com/klytics/xla/internal/host"
)

// Snapshot is the workbook context of one chat turn.
type Snapshot struct {
	ActiveSheet    Sheet      `json:"activeSheet" yaml:"activeSheet"`
	Selection      *Selection `json:"selection" yaml:"selection"`
	WorkbookSheets []string   `json:"workbookSheets" yaml:"workbookSheets"`
}

// Sheet is the used range of the active sheet, split into header and data rows.
type Sheet struct {
	Name    string     `json:"name" yaml:"name"`
	Headers []string   `json:"headers" yaml:"headers"`
	Rows    [][]string `json:"rows" yaml:"rows"`
}

// Selection is the user's selected range. StartRow and StartCol are zero-based.
type Selection struct {
	Range    string `json:"range" yaml:"range"`
	StartRow int    `json:"startRow" yaml:"startRow"`
	StartCol int    `json:"startCol" yaml:"startCol"`
}

// Reader takes snapshots through a host session.
type Reader struct {
	session *host.Session
	logger  *log.Logger
}

// NewReader creates a reader. A nil logger discards output.
func NewReader(session *host.Session, logger *log.Logger) *Reader {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Reader{session: session, logger: logger}
}

// Read returns the current snapshot, or nil when the host is unavailable or
// any read fails. Errors are logged, never returned.
func (r *Reader) Read(ctx context.Context) *Snapshot {
	snap, err := r.ReadErr(ctx)
	if err != nil {
		r.logger.Printf("snapshot unavailable: %v", err)
		return nil
	}
	return snap
}

// ReadErr is Read with the failure reason.
func (r *Reader) ReadErr(ctx context.Context) (*Snapshot, error) {
	var snap *Snapshot
	err := r.session.Run(ctx, func(wb host.Workbook) error {
		var err error
		snap, err = FromWorkbook(wb)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// FromWorkbook reads a snapshot from wb in one pass.
func FromWorkbook(wb host.Workbook) (*Snapshot, error) {
	names, err := wb.SheetNames()
	if err != nil {
		return nil, fmt.Errorf("could not list sheets: %w", err)
	}
	active, err := wb.ActiveSheet()
	if err != nil {
		return nil, fmt.Errorf("could not read active sheet: %w", err)
	}
	used, err := wb.UsedRange(active)
	if err != nil {
		return nil, fmt.Errorf("could not read used range: %w", err)
	}
	sel, err := wb.Selection()
	if err != nil {
		return nil, fmt.Errorf("could not read selection: %w", err)
	}

	snap := &Snapshot{
		ActiveSheet:    Sheet{Name: active, Headers: []string{}, Rows: [][]string{}},
		WorkbookSheets: names,
	}
	if snap.WorkbookSheets == nil {
		snap.WorkbookSheets = []string{}
	}
	for i, row := range used.Values {
		line := make([]string, len(row))
		for j, v := range row {
			line[j] = CellString(v)
		}
		if i == 0 {
			snap.ActiveSheet.Headers = line
			continue
		}
		snap.ActiveSheet.Rows = append(snap.ActiveSheet.Rows, line)
	}
	if sel != nil && sel.Address != "" {
		snap.Selection = &Selection{Range: sel.Address, StartRow: sel.Row, StartCol: sel.Col}
	}
	return snap, nil
}

// CellString renders a cell value as its display string.
func CellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}
