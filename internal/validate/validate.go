// Package validate checks extracted rows against the case-count invariants
// (non-negative integers, Suspected >= Confirmed >= Deaths) and repairs them.
package validate

import (
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sitrep-cli/internal/model"
)

// Policy chooses which side of a broken inequality is moved.
type Policy string

const (
	// Raise lifts the smaller figure: Confirmed up to Deaths, then
	// Suspected up to Confirmed.
	Raise Policy = "raise"
	// Lower caps the larger figure: Confirmed down to Suspected, then
	// Deaths down to Confirmed.
	Lower Policy = "lower"
)

// ParsePolicy maps a config value to a Policy. Empty means Raise.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", Raise:
		return Raise, nil
	case Lower:
		return Lower, nil
	}
	return "", eris.Errorf("validate: unknown repair policy %q", s)
}

// Violation describes one broken rule in one row.
type Violation struct {
	Row    int // 1-based position in the input
	State  string
	Field  string
	Detail string
}

func (v Violation) String() string {
	return fmt.Sprintf("row %d (%s) %s: %s", v.Row, v.State, v.Field, v.Detail)
}

// Report is the outcome of Validate. Rows is always a repaired copy of the
// input, whether or not Valid.
type Report struct {
	Valid      bool
	Rows       []model.Row
	Violations []Violation
}

// Messages renders the violations for logs.
func (r Report) Messages() []string {
	out := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		out[i] = v.String()
	}
	return out
}

// Validator applies the invariants with a fixed repair policy.
type Validator struct {
	Policy Policy
}

// New returns a Validator using p.
func New(p Policy) *Validator {
	return &Validator{Policy: p}
}

// Validate checks every row except the Total row and rows without a state
// name, which are copied through untouched. Blank cells read as 0 and are
// not violations; unparseable cells read as 0 and are. It never fails.
func (v *Validator) Validate(rows []model.Row) Report {
	rep := Report{Valid: true, Rows: model.CloneRows(rows)}
	if rep.Rows == nil {
		rep.Rows = []model.Row{}
	}

	for i := range rep.Rows {
		row := &rep.Rows[i]
		if row.State == "" || row.IsTotal() {
			continue
		}
		add := func(field, format string, args ...any) {
			rep.Violations = append(rep.Violations, Violation{
				Row: i + 1, State: row.State, Field: field, Detail: fmt.Sprintf(format, args...),
			})
		}

		for _, f := range fields(row) {
			switch {
			case f.cell.Unparseable():
				add(f.name, "non-numeric value %q", f.cell.Raw)
				*f.cell = model.Int(0)
			case f.cell.Valid && f.cell.Value < 0:
				add(f.name, "negative value %d", f.cell.Value)
				*f.cell = model.Int(0)
			}
		}

		s, c, d := row.Suspected.OrZero(), row.Confirmed.OrZero(), row.Deaths.OrZero()
		if s < c {
			add("Suspected", "Suspected (%d) < Confirmed (%d)", s, c)
		}
		if c < d {
			add("Confirmed", "Confirmed (%d) < Deaths (%d)", c, d)
		}
		v.repair(row, s, c, d)
	}

	rep.Valid = len(rep.Violations) == 0
	return rep
}

func (v *Validator) repair(row *model.Row, s, c, d int) {
	switch v.Policy {
	case Lower:
		if c > s {
			c = s
			row.Confirmed = model.Int(c)
		}
		if d > c {
			row.Deaths = model.Int(c)
		}
	default:
		if d > c {
			c = d
			row.Confirmed = model.Int(c)
		}
		if c > s {
			row.Suspected = model.Int(c)
		}
	}
}

type field struct {
	name string
	cell *model.Count
}

func fields(r *model.Row) []field {
	return []field{
		{"Suspected", &r.Suspected},
		{"Confirmed", &r.Confirmed},
		{"Probable", &r.Probable},
		{"HCW", &r.HCW},
		{"Deaths", &r.Deaths},
	}
}
