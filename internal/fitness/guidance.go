package fitness

import (
	"math"
	"slices"

	"github.com/unbound-force/mosaic/internal/execution"
	"github.com/unbound-force/mosaic/internal/goal"
	"github.com/unbound-force/mosaic/internal/static"
)

// Guidance adds a secondary signal to a suite fitness.
type Guidance interface {
	// Reset recomputes the guidance for the current live goals.
	Reset(live []goal.Goal)

	// Distance is the extra fitness of the informative results of
	// one suite execution.
	Distance(results []*execution.Result) float64
}

// LineGuidance rewards suites that come close to flipping the
// predicates controlling still uncovered lines.
type LineGuidance struct {
	program *static.Program

	mustTrue  []int
	mustFalse []int
	mustBoth  []int
}

// NewLineGuidance returns line guidance over the program's control
// dependencies.
func NewLineGuidance(p *static.Program) *LineGuidance {
	return &LineGuidance{program: p}
}

// Reset implements Guidance. Controlling predicates are collected
// transitively from each live line.
func (l *LineGuidance) Reset(live []goal.Goal) {
	need := make(map[int]uint8)
	const wantTrue, wantFalse = 1, 2
	var visit func(c static.Condition)
	visit = func(c static.Condition) {
		bit := uint8(wantFalse)
		if c.Value {
			bit = wantTrue
		}
		if need[c.BranchID]&bit != 0 {
			return
		}
		need[c.BranchID] |= bit
		if b, ok := l.program.Branch(c.BranchID); ok {
			for _, d := range b.Deps {
				visit(d)
			}
		}
	}
	for _, g := range live {
		if g.Kind != goal.Line {
			continue
		}
		for _, c := range l.program.LineDeps(g.Class, g.Method, g.Line) {
			visit(c)
		}
	}

	l.mustTrue, l.mustFalse, l.mustBoth = nil, nil, nil
	for id, bits := range need {
		switch bits {
		case wantTrue:
			l.mustTrue = append(l.mustTrue, id)
		case wantFalse:
			l.mustFalse = append(l.mustFalse, id)
		default:
			l.mustBoth = append(l.mustBoth, id)
		}
	}
	slices.Sort(l.mustTrue)
	slices.Sort(l.mustFalse)
	slices.Sort(l.mustBoth)
}

// Controlling returns the predicates that must be true, false, and
// both ways to reach the uncovered lines.
func (l *LineGuidance) Controlling() (mustTrue, mustFalse, mustBoth []int) {
	return slices.Clone(l.mustTrue), slices.Clone(l.mustFalse), slices.Clone(l.mustBoth)
}

// Distance implements Guidance. A predicate no test evaluated
// contributes 1 per required direction.
func (l *LineGuidance) Distance(results []*execution.Result) float64 {
	total := 0.0
	for _, id := range l.mustTrue {
		total += l.best(id, true, results)
	}
	for _, id := range l.mustFalse {
		total += l.best(id, false, results)
	}
	for _, id := range l.mustBoth {
		total += l.best(id, true, results) + l.best(id, false, results)
	}
	return total
}

func (l *LineGuidance) best(id int, value bool, results []*execution.Result) float64 {
	d := math.Inf(1)
	for _, r := range results {
		ps, ok := r.Trace.PredicateStats(id)
		if !ok {
			continue
		}
		if value {
			d = math.Min(d, ps.TrueDistance)
		} else {
			d = math.Min(d, ps.FalseDistance)
		}
	}
	if math.IsInf(d, 1) {
		return 1
	}
	return Normalize(d)
}
