// Package hosttest provides an in-memory spreadsheet host for tests.
package hosttest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/klytics/xla/internal/host"
)

// Style is the formatting state of one cell.
type Style struct {
	Bold         bool
	Italic       bool
	Fill         string
	FontColor    string
	FontSize     float64
	NumberFormat string
	Alignment    string
	Borders      map[string]host.Border
}

// CellState is everything the fake tracks for a cell.
type CellState struct {
	Value   any
	Formula string
	Style   Style
}

func (c *CellState) clone() *CellState {
	out := *c
	if c.Style.Borders != nil {
		out.Style.Borders = make(map[string]host.Border, len(c.Style.Borders))
		for k, v := range c.Style.Borders {
			out.Style.Borders[k] = v
		}
	}
	return &out
}

type sheetCells map[host.Cell]*CellState

// Book is an in-memory Workbook. Edits are live immediately; Sync commits
// them and Discard rolls back to the last commit.
type Book struct {
	mu sync.Mutex

	sheets    []string
	active    string
	selection *host.Selection
	live      map[string]sheetCells
	committed map[string]sheetCells

	// FailSync makes Sync return this error.
	FailSync error
	// FailProperty makes the named format setter ("bold", "fill", ...) fail.
	FailProperty map[string]error
	// FailCells makes writes to the named cells ("A1") fail.
	FailCells map[string]error

	Syncs    int
	Discards int
	Closed   bool
}

// NewBook returns a book with the given sheets; the first one is active.
func NewBook(sheets ...string) *Book {
	if len(sheets) == 0 {
		sheets = []string{"Sheet1"}
	}
	b := &Book{
		sheets:    sheets,
		active:    sheets[0],
		live:      make(map[string]sheetCells),
		committed: make(map[string]sheetCells),
	}
	for _, s := range sheets {
		b.live[s] = make(sheetCells)
		b.committed[s] = make(sheetCells)
	}
	return b
}

// SetActive changes the active sheet.
func (b *Book) SetActive(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active = name
}

// Select sets the user selection; an empty address clears it.
func (b *Book) Select(address string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if address == "" {
		b.selection = nil
		return nil
	}
	ref, err := host.ParseRef(address)
	if err != nil {
		return err
	}
	sheet := b.active
	if ref.Sheet != "" {
		sheet = ref.Sheet
	}
	b.selection = &host.Selection{
		Address: host.Qualified(sheet, ref.Range),
		Row:     ref.Range.FirstRow - 1,
		Col:     ref.Range.FirstCol - 1,
	}
	return nil
}

// Put seeds a committed cell value.
func (b *Book) Put(sheet, cell string, v any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := mustCell(cell)
	for _, layer := range []map[string]sheetCells{b.live, b.committed} {
		st := layer[sheet][c]
		if st == nil {
			st = &CellState{}
			layer[sheet][c] = st
		}
		st.Value = v
	}
}

// PutStyle seeds a committed cell style.
func (b *Book) PutStyle(sheet, cell string, s Style) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := mustCell(cell)
	for _, layer := range []map[string]sheetCells{b.live, b.committed} {
		st := layer[sheet][c]
		if st == nil {
			st = &CellState{}
			layer[sheet][c] = st
		}
		st.Style = s
		layer[sheet][c] = st.clone()
	}
}

// Cell returns the live state of a cell, or nil.
func (b *Book) Cell(sheet, cell string) *CellState {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.live[sheet][mustCell(cell)]
	if st == nil {
		return nil
	}
	return st.clone()
}

// Committed returns the state of a cell as of the last Sync, or nil.
func (b *Book) Committed(sheet, cell string) *CellState {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.committed[sheet][mustCell(cell)]
	if st == nil {
		return nil
	}
	return st.clone()
}

func mustCell(name string) host.Cell {
	ref, err := host.ParseRef(name)
	if err != nil {
		panic(err)
	}
	return ref.Start
}

// SheetNames implements host.Workbook.
func (b *Book) SheetNames() ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.sheets...), nil
}

// ActiveSheet implements host.Workbook.
func (b *Book) ActiveSheet() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active, nil
}

// UsedRange implements host.Workbook.
func (b *Book) UsedRange(sheet string) (*host.UsedRange, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cells, ok := b.live[sheet]
	if !ok {
		return nil, fmt.Errorf("sheet %q not found", sheet)
	}

	var r host.Range
	found := false
	for c, st := range cells {
		if st.Value == nil && st.Formula == "" {
			continue
		}
		if !found {
			r = host.Range{FirstCol: c.Col, FirstRow: c.Row, LastCol: c.Col, LastRow: c.Row}
			found = true
			continue
		}
		r.FirstCol = min(r.FirstCol, c.Col)
		r.FirstRow = min(r.FirstRow, c.Row)
		r.LastCol = max(r.LastCol, c.Col)
		r.LastRow = max(r.LastRow, c.Row)
	}
	if !found {
		r = host.Range{FirstCol: 1, FirstRow: 1, LastCol: 1, LastRow: 1}
	}

	values := make([][]any, r.Rows())
	for i := range values {
		values[i] = make([]any, r.Cols())
		for j := range values[i] {
			values[i][j] = ""
			if st := cells[host.Cell{Col: r.FirstCol + j, Row: r.FirstRow + i}]; st != nil && st.Value != nil {
				values[i][j] = st.Value
			}
		}
	}
	return &host.UsedRange{Address: host.Qualified(sheet, r), Values: values}, nil
}

// Selection implements host.Workbook.
func (b *Book) Selection() (*host.Selection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.selection == nil {
		return nil, nil
	}
	s := *b.selection
	return &s, nil
}

func (b *Book) state(sheet string, c host.Cell) (*CellState, error) {
	cells, ok := b.live[sheet]
	if !ok {
		return nil, fmt.Errorf("sheet %q not found", sheet)
	}
	st := cells[c]
	if st == nil {
		st = &CellState{}
		cells[c] = st
	}
	return st, nil
}

// SetValue implements host.Workbook.
func (b *Book) SetValue(sheet string, cell host.Cell, v any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.FailCells[cell.Name()]; err != nil {
		return err
	}
	st, err := b.state(sheet, cell)
	if err != nil {
		return err
	}
	st.Value = v
	st.Formula = ""
	return nil
}

// SetFormula implements host.Workbook.
func (b *Book) SetFormula(sheet string, cell host.Cell, formula string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.FailCells[cell.Name()]; err != nil {
		return err
	}
	st, err := b.state(sheet, cell)
	if err != nil {
		return err
	}
	st.Formula = formula
	return nil
}

// Format implements host.Workbook.
func (b *Book) Format(sheet string, r host.Range) host.RangeFormat {
	return &rangeFormat{book: b, sheet: sheet, rng: r}
}

// Sync implements host.Workbook.
func (b *Book) Sync() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailSync != nil {
		return b.FailSync
	}
	b.Syncs++
	b.committed = copyLayer(b.live)
	return nil
}

// Discard implements host.Workbook.
func (b *Book) Discard() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Discards++
	b.live = copyLayer(b.committed)
	return nil
}

// Close implements host.Workbook.
func (b *Book) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Closed = true
	return nil
}

func copyLayer(src map[string]sheetCells) map[string]sheetCells {
	out := make(map[string]sheetCells, len(src))
	for sheet, cells := range src {
		cp := make(sheetCells, len(cells))
		for c, st := range cells {
			cp[c] = st.clone()
		}
		out[sheet] = cp
	}
	return out
}

type rangeFormat struct {
	book  *Book
	sheet string
	rng   host.Range
}

func (f *rangeFormat) each(property string, fn func(row, col int, s *Style)) error {
	f.book.mu.Lock()
	defer f.book.mu.Unlock()
	if err := f.book.FailProperty[property]; err != nil {
		return err
	}
	return f.rng.Each(func(c host.Cell) error {
		st, err := f.book.state(f.sheet, c)
		if err != nil {
			return err
		}
		fn(c.Row-f.rng.FirstRow, c.Col-f.rng.FirstCol, &st.Style)
		return nil
	})
}

func (f *rangeFormat) SetBold(v bool) error {
	return f.each("bold", func(_, _ int, s *Style) { s.Bold = v })
}

func (f *rangeFormat) SetItalic(v bool) error {
	return f.each("italic", func(_, _ int, s *Style) { s.Italic = v })
}

func (f *rangeFormat) SetFill(color string) error {
	c, err := host.NormalizeColor(color)
	if err != nil {
		return err
	}
	return f.each("fill", func(_, _ int, s *Style) { s.Fill = c })
}

func (f *rangeFormat) SetFontColor(color string) error {
	c, err := host.NormalizeColor(color)
	if err != nil {
		return err
	}
	return f.each("fontColor", func(_, _ int, s *Style) { s.FontColor = c })
}

func (f *rangeFormat) SetFontSize(points float64) error {
	if err := host.ValidateFontSize(points); err != nil {
		return err
	}
	return f.each("fontSize", func(_, _ int, s *Style) { s.FontSize = points })
}

func (f *rangeFormat) SetNumberFormat(codes [][]string) error {
	if err := host.ValidateGrid(f.rng, codes); err != nil {
		return err
	}
	return f.each("numberFormat", func(r, c int, s *Style) { s.NumberFormat = codes[r][c] })
}

func (f *rangeFormat) SetHorizontalAlignment(alignments [][]string) error {
	if err := host.ValidateGrid(f.rng, alignments); err != nil {
		return err
	}
	for _, row := range alignments {
		for _, a := range row {
			if err := host.ValidateAlignment(a); err != nil {
				return err
			}
		}
	}
	return f.each("horizontalAlignment", func(r, c int, s *Style) { s.Alignment = alignments[r][c] })
}

func (f *rangeFormat) SetOuterBorders(border host.Border) error {
	if border.Style != host.BorderThin {
		return fmt.Errorf("unsupported border style %q", border.Style)
	}
	rng := f.rng
	return f.each("borders", func(r, c int, s *Style) {
		if s.Borders == nil {
			s.Borders = make(map[string]host.Border)
		}
		if r == 0 {
			s.Borders["top"] = border
		}
		if r == rng.Rows()-1 {
			s.Borders["bottom"] = border
		}
		if c == 0 {
			s.Borders["left"] = border
		}
		if c == rng.Cols()-1 {
			s.Borders["right"] = border
		}
	})
}

// Loader is a host.Loader around a Book.
type Loader struct {
	Book *Book
	// AvailableAfter is the number of failed availability attempts before the
	// host shows up. Negative means never.
	AvailableAfter int
	// ReadyErr makes Ready fail.
	ReadyErr error

	mu       sync.Mutex
	attempts int
	readys   int
}

// ErrNeverReady is a convenience error for Loader.ReadyErr.
var ErrNeverReady = errors.New("host never signalled ready")

// Available implements host.Loader.
func (l *Loader) Available() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts++
	if l.AvailableAfter < 0 {
		return false
	}
	return l.attempts > l.AvailableAfter
}

// Ready implements host.Loader.
func (l *Loader) Ready(ctx context.Context) (host.Workbook, error) {
	l.mu.Lock()
	l.readys++
	l.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.ReadyErr != nil {
		return nil, l.ReadyErr
	}
	return l.Book, nil
}

// Attempts returns how many times Available was called.
func (l *Loader) Attempts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attempts
}

// Readys returns how many times Ready was called.
func (l *Loader) Readys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readys
}
