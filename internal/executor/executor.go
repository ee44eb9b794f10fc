// Package executor applies action blocks to the workbook behind a host
// session.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/klytics/xla/internal/actions"
	"github.com/klytics/xla/internal/audit"
	"github.com/klytics/xla/internal/host"
)

// Options tunes an Executor.
type Options struct {
	// ResolveSheets targets the sheet named in a qualified range when it
	// exists. Otherwise every action runs against the active sheet.
	ResolveSheets bool
	// StrictGrid rejects write actions whose values are jagged or disagree
	// with the declared range, instead of writing them cell by cell.
	StrictGrid bool

	Logger *log.Logger
	// OnAction is called after each action with its index and the batch size.
	OnAction func(i, n int, r ActionResult)

	// Audit, when set, records every executed batch.
	Audit *audit.Logger
	// Source and Workbook label audit entries.
	Source   string
	Workbook string
}

// PropertyError is a sub-operation that failed and was skipped.
type PropertyError struct {
	Property string `json:"property"`
	Reason   string `json:"reason"`
}

func (e PropertyError) Error() string {
	return e.Property + ": " + e.Reason
}

// ActionResult reports what happened to one action.
type ActionResult struct {
	Index int          `json:"index"`
	Type  actions.Type `json:"type"`
	// Range is the reference as written in the action.
	Range string `json:"range"`
	Sheet string `json:"sheet"`
	// Target is the sheet-qualified range actually edited.
	Target   string          `json:"target"`
	Applied  []string        `json:"applied,omitempty"`
	Failed   []PropertyError `json:"failed,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
	Cells    int             `json:"cells"`
}

// OK reports whether every sub-operation of the action succeeded.
func (r ActionResult) OK() bool { return len(r.Failed) == 0 }

// Result is the outcome of a batch.
type Result struct {
	// Success is true when the batch reached the flush and the flush succeeded.
	Success bool           `json:"success"`
	Flushed bool           `json:"flushed"`
	Actions []ActionResult `json:"actions"`
	Err     error          `json:"-"`
	Error   string         `json:"error,omitempty"`
}

// Failures counts failed sub-operations across the batch.
func (r Result) Failures() int {
	n := 0
	for _, a := range r.Actions {
		n += len(a.Failed)
	}
	return n
}

func (r *Result) fail(err error) {
	r.Success = false
	r.Err = err
	r.Error = err.Error()
}

// Executor applies action blocks. Calls to Execute never overlap.
type Executor struct {
	session *host.Session
	opts    Options
	logger  *log.Logger
	guard   *semaphore.Weighted
}

// New creates an executor over a session.
func New(session *host.Session, opts Options) *Executor {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Executor{
		session: session,
		opts:    opts,
		logger:  logger,
		guard:   semaphore.NewWeighted(1),
	}
}

// Execute applies the block's actions in order and flushes once. It waits
// for any batch already in flight. Sub-operation failures are recorded in
// the result and do not stop the batch.
func (e *Executor) Execute(ctx context.Context, block *actions.Block) Result {
	start := time.Now()
	res := Result{}

	if err := e.guard.Acquire(ctx, 1); err != nil {
		res.fail(fmt.Errorf("executor busy: %w", err))
		return res
	}
	defer e.guard.Release(1)

	if block == nil {
		block = &actions.Block{}
	}

	err := e.session.Run(ctx, func(wb host.Workbook) error {
		return e.apply(wb, block, &res)
	})
	if err != nil {
		if res.Err == nil {
			res.fail(err)
		}
		e.logger.Printf("batch failed: %v", err)
	}

	e.record(ctx, block, res, time.Since(start))
	return res
}

// target is an action resolved against the workbook.
type target struct {
	sheet    string
	ref      host.Ref
	warnings []string
}

func (e *Executor) apply(wb host.Workbook, block *actions.Block, res *Result) error {
	targets, err := e.resolve(wb, block)
	if err != nil {
		if derr := wb.Discard(); derr != nil {
			e.logger.Printf("discard failed: %v", derr)
		}
		res.fail(err)
		return err
	}

	n := len(block.Actions)
	res.Actions = make([]ActionResult, 0, n)
	for i, a := range block.Actions {
		ar := e.applyOne(wb, i, a, targets[i])
		res.Actions = append(res.Actions, ar)
		if e.opts.OnAction != nil {
			e.opts.OnAction(i, n, ar)
		}
	}

	if err := wb.Sync(); err != nil {
		err = fmt.Errorf("flush failed, edits may be partially applied: %w", err)
		res.fail(err)
		return err
	}
	res.Flushed = true
	res.Success = true
	return nil
}

// resolve parses every range before anything is mutated.
func (e *Executor) resolve(wb host.Workbook, block *actions.Block) ([]target, error) {
	active, err := wb.ActiveSheet()
	if err != nil {
		return nil, fmt.Errorf("could not read active sheet: %w", err)
	}

	var sheets []string
	if e.opts.ResolveSheets {
		if sheets, err = wb.SheetNames(); err != nil {
			return nil, fmt.Errorf("could not list sheets: %w", err)
		}
	}

	targets := make([]target, len(block.Actions))
	for i, a := range block.Actions {
		ref, err := host.ParseRef(a.Target())
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		if err := ref.Range.CheckSize(); err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		t := target{sheet: active, ref: ref}
		if ref.Sheet != "" && !strings.EqualFold(ref.Sheet, active) {
			switch name, ok := lookup(sheets, ref.Sheet); {
			case e.opts.ResolveSheets && ok:
				t.sheet = name
			case e.opts.ResolveSheets:
				t.warnings = append(t.warnings, fmt.Sprintf("sheet %q not found, applied to active sheet %q", ref.Sheet, active))
			default:
				t.warnings = append(t.warnings, fmt.Sprintf("sheet qualifier %q ignored, applied to active sheet %q", ref.Sheet, active))
			}
		}
		targets[i] = t
	}
	return targets, nil
}

func lookup(sheets []string, name string) (string, bool) {
	for _, s := range sheets {
		if strings.EqualFold(s, name) {
			return s, true
		}
	}
	return "", false
}

func (e *Executor) applyOne(wb host.Workbook, i int, a actions.Action, t target) (ar ActionResult) {
	ar = ActionResult{
		Index:    i,
		Type:     a.Kind(),
		Range:    a.Target(),
		Sheet:    t.sheet,
		Target:   host.Qualified(t.sheet, t.ref.Range),
		Warnings: t.warnings,
	}

	defer func() {
		if p := recover(); p != nil {
			ar.fail(e.logger, "action", fmt.Errorf("panic: %v", p))
		}
	}()

	switch v := a.(type) {
	case *actions.Write:
		e.write(wb, v, t, &ar)
	case *actions.Formula:
		e.formula(wb, v, t, &ar)
	case *actions.Format:
		e.format(wb, v, t, &ar)
	default:
		ar.fail(e.logger, "action", fmt.Errorf("%w %q", actions.ErrUnknownType, a.Kind()))
	}
	return ar
}

func (ar *ActionResult) fail(logger *log.Logger, property string, err error) {
	ar.Failed = append(ar.Failed, PropertyError{Property: property, Reason: err.Error()})
	logger.Printf("action %d (%s %s): %s: %v", ar.Index, ar.Type, ar.Range, property, err)
}

func (ar *ActionResult) applied(property string) {
	for _, p := range ar.Applied {
		if p == property {
			return
		}
	}
	ar.Applied = append(ar.Applied, property)
}

// errGridShape is reported when StrictGrid rejects a write.
var errGridShape = errors.New("values do not match the range")

func (e *Executor) write(wb host.Workbook, w *actions.Write, t target, ar *ActionResult) {
	rows, cols := w.Shape()
	var shape []string
	if !w.Rectangular() {
		shape = append(shape, "values rows have different lengths")
	}
	if t.ref.Multi && (rows != t.ref.Range.Rows() || cols != t.ref.Range.Cols()) {
		shape = append(shape, fmt.Sprintf("values are %dx%d but range %s is %dx%d",
			rows, cols, t.ref.Range.Address(), t.ref.Range.Rows(), t.ref.Range.Cols()))
	}
	if len(shape) > 0 {
		if e.opts.StrictGrid {
			ar.fail(e.logger, "values", fmt.Errorf("%w: %s", errGridShape, strings.Join(shape, "; ")))
			return
		}
		ar.Warnings = append(ar.Warnings, shape...)
	}

	start := t.ref.Start
	for r, row := range w.Values {
		for c, v := range row {
			cell := host.Cell{Col: start.Col + c, Row: start.Row + r}
			if err := wb.SetValue(t.sheet, cell, v.Interface()); err != nil {
				ar.fail(e.logger, cell.Name(), err)
				continue
			}
			ar.Cells++
			ar.applied("values")
		}
	}
}

func (e *Executor) formula(wb host.Workbook, f *actions.Formula, t target, ar *ActionResult) {
	extent := host.Range{FirstCol: t.ref.Start.Col, FirstRow: t.ref.Start.Row, LastCol: t.ref.Start.Col, LastRow: t.ref.Start.Row}
	if t.ref.Multi {
		extent = t.ref.Range
	}
	extent.Each(func(cell host.Cell) error {
		if err := wb.SetFormula(t.sheet, cell, f.Formula); err != nil {
			ar.fail(e.logger, cell.Name(), err)
			return nil
		}
		ar.Cells++
		ar.applied("formula")
		return nil
	})
}

func (e *Executor) format(wb host.Workbook, f *actions.Format, t target, ar *ActionResult) {
	rng := t.ref.Range
	rf := wb.Format(t.sheet, rng)
	opts := f.Format

	try := func(property string, fn func() error) {
		defer func() {
			if p := recover(); p != nil {
				ar.fail(e.logger, property, fmt.Errorf("panic: %v", p))
			}
		}()
		if err := fn(); err != nil {
			ar.fail(e.logger, property, err)
			return
		}
		ar.applied(property)
	}

	set := 0
	if opts.Bold != nil {
		set++
		try("bold", func() error { return rf.SetBold(*opts.Bold) })
	}
	if opts.Italic != nil {
		set++
		try("italic", func() error { return rf.SetItalic(*opts.Italic) })
	}
	if opts.Fill != nil {
		set++
		try("fill", func() error { return rf.SetFill(*opts.Fill) })
	}
	if opts.FontColor != nil {
		set++
		try("fontColor", func() error { return rf.SetFontColor(*opts.FontColor) })
	}
	if opts.FontSize != nil {
		set++
		try("fontSize", func() error { return rf.SetFontSize(*opts.FontSize) })
	}
	if opts.NumberFormat != nil {
		set++
		try("numberFormat", func() error { return rf.SetNumberFormat(grid(rng, *opts.NumberFormat)) })
	}
	if opts.HorizontalAlignment != nil {
		set++
		try("horizontalAlignment", func() error {
			return rf.SetHorizontalAlignment(grid(rng, *opts.HorizontalAlignment))
		})
	}
	if opts.Borders != nil && *opts.Borders {
		set++
		try("borders", func() error { return rf.SetOuterBorders(host.ThinBlack) })
	}

	if set == 0 {
		ar.Warnings = append(ar.Warnings, "no formatting property set")
	}
	if len(ar.Applied) > 0 {
		ar.Cells = rng.Rows() * rng.Cols()
	}
}

// grid repeats v over the extent of r, rows by columns. r is bounded by
// host.MaxCells once resolved.
func grid(r host.Range, v string) [][]string {
	out := make([][]string, r.Rows())
	for i := range out {
		out[i] = make([]string, r.Cols())
		for j := range out[i] {
			out[i][j] = v
		}
	}
	return out
}

func (e *Executor) record(ctx context.Context, block *actions.Block, res Result, elapsed time.Duration) {
	if e.opts.Audit == nil {
		return
	}
	machine, _ := os.Hostname()
	err := e.opts.Audit.Log(ctx, audit.Entry{
		Timestamp:  time.Now(),
		UserID:     audit.UserFrom(ctx),
		Machine:    machine,
		Source:     e.opts.Source,
		Workbook:   e.opts.Workbook,
		Actions:    actions.Summarize(block),
		Success:    res.Success,
		Flushed:    res.Flushed,
		Failures:   res.Failures(),
		Error:      res.Error,
		DurationMs: elapsed.Milliseconds(),
	})
	if err != nil {
		e.logger.Printf("audit: %v", err)
	}
}
