// Package analyzer scores the structural complexity of an extracted document
// and classifies its layout.
package analyzer

import (
	"errors"
	"fmt"
)

// ErrAnalysis is matched by every analysis failure.
var ErrAnalysis = errors.New("analysis failed")

// Error describes which part of the structure was malformed.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("analysis failed: %s %s", e.Field, e.Reason)
}

func (e *Error) Unwrap() error { return ErrAnalysis }

// Layout is the document layout class.
type Layout int

const (
	Standard Layout = iota
	TableHeavy
	MultiColumn
	FormBased
	Hybrid
)

func (l Layout) String() string {
	switch l {
	case Standard:
		return "standard"
	case TableHeavy:
		return "table_heavy"
	case MultiColumn:
		return "multi_column"
	case FormBased:
		return "form_based"
	case Hybrid:
		return "hybrid"
	}
	return fmt.Sprintf("layout(%d)", int(l))
}

func (l Layout) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// Structure is what extraction learned about the source document.
type Structure struct {
	Pages      int
	Columns    int // widest column count seen on any page
	Tables     int
	FormFields int
	Chars      int
}

// Result is computed once per job and never changes afterwards.
type Result struct {
	Layout      Layout `json:"layout"`
	Score       int    `json:"score"`
	Columns     int    `json:"columns"`
	HasTables   bool   `json:"has_tables"`
	HasForms    bool   `json:"has_forms"`
	HighDensity bool   `json:"high_density"`
}

const DefaultDensityThreshold = 3000

type Options struct {
	// BaseScore is the page count contribution. Nil uses PageBase.
	BaseScore func(pages int) int
	// DensityThreshold is the average characters per page at which a document counts as dense.
	DensityThreshold int
}

// PageBase scores 0 for a single page, 1 up to ten pages and 2 beyond.
func PageBase(pages int) int {
	switch {
	case pages <= 1:
		return 0
	case pages <= 10:
		return 1
	default:
		return 2
	}
}

type Analyzer struct {
	base    func(int) int
	density int
}

func New(o Options) *Analyzer {
	a := &Analyzer{base: o.BaseScore, density: o.DensityThreshold}
	if a.base == nil {
		a.base = PageBase
	}
	if a.density <= 0 {
		a.density = DefaultDensityThreshold
	}
	return a
}

// Analyze scores s and picks its layout. It has no side effects.
func (a *Analyzer) Analyze(s Structure) (Result, error) {
	if err := validate(s); err != nil {
		return Result{}, err
	}

	r := Result{
		Columns:     s.Columns,
		HasTables:   s.Tables > 0,
		HasForms:    s.FormFields > 0,
		HighDensity: s.Chars/s.Pages >= a.density,
	}

	score := a.base(s.Pages)
	if score < 0 {
		score = 0
	}
	score += s.Columns
	if r.HasTables {
		score += 3
	}
	if r.HasForms {
		score += 2
	}
	if r.HighDensity {
		score += 2
	}
	r.Score = score
	r.Layout = classify(r)
	return r, nil
}

// Analyze runs the default analyzer.
func Analyze(s Structure) (Result, error) { return New(Options{}).Analyze(s) }

func classify(r Result) Layout {
	switch {
	case r.Score < 3 && r.Columns <= 1 && !r.HasTables && !r.HasForms:
		return Standard
	case r.HasTables:
		return TableHeavy
	case r.Columns > 1:
		return MultiColumn
	case r.HasForms:
		return FormBased
	default:
		return Hybrid
	}
}

func validate(s Structure) error {
	switch {
	case s.Pages <= 0:
		return &Error{Field: "pages", Reason: fmt.Sprintf("must be positive, got %d", s.Pages)}
	case s.Columns < 0:
		return &Error{Field: "columns", Reason: fmt.Sprintf("must not be negative, got %d", s.Columns)}
	case s.Tables < 0:
		return &Error{Field: "tables", Reason: fmt.Sprintf("must not be negative, got %d", s.Tables)}
	case s.FormFields < 0:
		return &Error{Field: "form fields", Reason: fmt.Sprintf("must not be negative, got %d", s.FormFields)}
	case s.Chars < 0:
		return &Error{Field: "chars", Reason: fmt.Sprintf("must not be negative, got %d", s.Chars)}
	}
	return nil
}
