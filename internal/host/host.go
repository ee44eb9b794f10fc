// Package host defines the spreadsheet host object model and the session
// through which readers and executors reach it.
package host

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrHostUnavailable is returned when the host never became ready.
var ErrHostUnavailable = errors.New("spreadsheet host unavailable")

// UsedRange is the smallest rectangle holding data on a sheet.
type UsedRange struct {
	Address string  `json:"address"`
	Values  [][]any `json:"values"`
}

// Selection is the range currently selected by the user.
// Row and Col are zero-based indices of its top-left cell.
type Selection struct {
	Address string `json:"address"`
	Row     int    `json:"row"`
	Col     int    `json:"col"`
}

// Workbook is the host object model. Mutations are queued until Sync and
// dropped by Discard, mirroring the host's batched round trips.
type Workbook interface {
	SheetNames() ([]string, error)
	ActiveSheet() (string, error)
	UsedRange(sheet string) (*UsedRange, error)
	// Selection returns nil when nothing is selected.
	Selection() (*Selection, error)

	SetValue(sheet string, cell Cell, v any) error
	SetFormula(sheet string, cell Cell, formula string) error
	Format(sheet string, r Range) RangeFormat

	Sync() error
	Discard() error
	Close() error
}

// RangeFormat edits one formatting property of a range at a time. A failing
// setter leaves the range unchanged for that property.
type RangeFormat interface {
	SetBold(bool) error
	SetItalic(bool) error
	SetFill(color string) error
	SetFontColor(color string) error
	SetFontSize(points float64) error
	// SetNumberFormat takes one format code per cell, rows by columns.
	SetNumberFormat(codes [][]string) error
	// SetHorizontalAlignment takes one alignment keyword per cell, rows by columns.
	SetHorizontalAlignment(alignments [][]string) error
	SetOuterBorders(Border) error
}

// BorderStyle is a border line style.
type BorderStyle string

// BorderThin is the only style the action protocol produces.
const BorderThin BorderStyle = "thin"

// Border describes a line drawn on the edges of a range.
type Border struct {
	Style BorderStyle
	Color string
}

// ThinBlack is the border applied for "borders": true.
var ThinBlack = Border{Style: BorderThin, Color: "#000000"}

var hexColor = regexp.MustCompile(`^#?[0-9A-Fa-f]{6}$`)

// NormalizeColor validates a hex color and returns it as "RRGGBB", uppercase.
func NormalizeColor(color string) (string, error) {
	color = strings.TrimSpace(color)
	if !hexColor.MatchString(color) {
		return "", fmt.Errorf("invalid hex color %q", color)
	}
	return strings.ToUpper(strings.TrimPrefix(color, "#")), nil
}

// Alignments lists the accepted horizontal alignment keywords.
var Alignments = []string{"left", "center", "right"}

// ValidateAlignment rejects keywords outside Alignments.
func ValidateAlignment(a string) error {
	for _, ok := range Alignments {
		if a == ok {
			return nil
		}
	}
	return fmt.Errorf("invalid horizontal alignment %q (expected left, center or right)", a)
}

// ValidateFontSize rejects non-positive sizes.
func ValidateFontSize(points float64) error {
	if points <= 0 {
		return fmt.Errorf("invalid font size %v (must be positive)", points)
	}
	return nil
}

// ValidateGrid checks that a per-cell payload matches the range extent.
func ValidateGrid[T any](r Range, grid [][]T) error {
	if len(grid) != r.Rows() {
		return fmt.Errorf("payload has %d rows, range %s has %d", len(grid), r.Address(), r.Rows())
	}
	for i, row := range grid {
		if len(row) != r.Cols() {
			return fmt.Errorf("payload row %d has %d columns, range %s has %d", i, len(row), r.Address(), r.Cols())
		}
	}
	return nil
}
