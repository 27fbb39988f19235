// Package factory enumerates the coverage goals of a criterion from
// the static model of the class under test.
package factory

import (
	"fmt"
	"regexp"
	"slices"

	"github.com/unbound-force/mosaic/internal/goal"
	"github.com/unbound-force/mosaic/internal/static"
)

// Baseline holds lines already covered by an existing test suite,
// keyed by qualified method name. Line goals on these lines are not
// generated.
type Baseline map[string]map[int]bool

// Add records a covered line.
func (b Baseline) Add(class, method string, line int) {
	key := goal.QualifiedName(class, method)
	if b[key] == nil {
		b[key] = make(map[int]bool)
	}
	b[key][line] = true
}

// Covered reports whether the line is in the baseline.
func (b Baseline) Covered(class, method string, line int) bool {
	return b[goal.QualifiedName(class, method)][line]
}

// Filter restricts the methods goals are generated for.
type Filter struct {
	// IncludeUnexported adds method and methodtrace goals for methods
	// a test cannot call directly. Branch and line goals always cover
	// every method, since unexported code is reached through callers.
	IncludeUnexported bool

	// Methods, when set, keeps only methods whose qualified name
	// matches.
	Methods *regexp.Regexp

	// Baseline drops line and rho goals on already covered lines.
	Baseline Baseline

	// ContextDepth bounds the call contexts of cbranch and ibranch
	// goals; static.DefaultMaxContextDepth when zero.
	ContextDepth int
}

func (f Filter) keep(m static.Method) bool {
	return f.Methods == nil || f.Methods.MatchString(m.Qualified())
}

// Goals returns the goals of criterion c, sorted by goal.Compare.
func Goals(c goal.Criterion, p *static.Program, f Filter) ([]goal.Goal, error) {
	var out []goal.Goal
	switch c {
	case goal.CriterionBranch:
		out = branchGoals(p, f)
	case goal.CriterionLine:
		out = lineGoals(p, f, goal.NewLine)
	case goal.CriterionRho:
		out = lineGoals(p, f, goal.NewRho)
	case goal.CriterionMethod:
		out = methodGoals(p, f, goal.NewMethod)
	case goal.CriterionMethodTrace:
		out = methodGoals(p, f, goal.NewMethodTrace)
	case goal.CriterionCBranch:
		out = contextGoals(p, f, static.PublicEntries)
	case goal.CriterionIBranch:
		out = contextGoals(p, f, static.AllEntries)
	default:
		return nil, fmt.Errorf("no goal factory for criterion %q", c)
	}
	return sortUnique(out), nil
}

func branchGoals(p *static.Program, f Filter) []goal.Goal {
	var out []goal.Goal
	for _, m := range p.Methods() {
		if !f.keep(m) {
			continue
		}
		branches := p.BranchesIn(m.Class, m.Name)
		if len(branches) == 0 {
			out = append(out, goal.NewMethodTrace(m.Class, m.Name))
			continue
		}
		for _, b := range branches {
			out = append(out,
				goal.NewBranch(m.Class, m.Name, b.ID, true),
				goal.NewBranch(m.Class, m.Name, b.ID, false))
		}
	}
	return out
}

func lineGoals(p *static.Program, f Filter, mk func(class, method string, line int) goal.Goal) []goal.Goal {
	var out []goal.Goal
	for _, m := range p.Methods() {
		if !f.keep(m) {
			continue
		}
		for _, l := range m.Lines {
			if f.Baseline.Covered(m.Class, m.Name, l) {
				continue
			}
			out = append(out, mk(m.Class, m.Name, l))
		}
	}
	return out
}

func methodGoals(p *static.Program, f Filter, mk func(class, method string) goal.Goal) []goal.Goal {
	var out []goal.Goal
	for _, m := range p.Methods() {
		if !f.keep(m) || (!m.Public && !f.IncludeUnexported) {
			continue
		}
		out = append(out, mk(m.Class, m.Name))
	}
	return out
}

// contextGoals qualifies branch goals, and the entry goals of
// branchless methods, with every call path from an entry method.
// Unexported branchless methods get one context-free goal. Methods
// no entry reaches keep context-free goals so they still count as
// uncovered.
func contextGoals(p *static.Program, f Filter, entry static.EntryFilter) []goal.Goal {
	var out []goal.Goal
	for _, m := range p.Methods() {
		if !f.keep(m) {
			continue
		}
		branches := p.BranchesIn(m.Class, m.Name)
		if len(branches) == 0 && !m.Public {
			out = append(out, goal.NewMethodTrace(m.Class, m.Name))
			continue
		}
		contexts := p.Contexts(m.Class, m.Name, entry, f.ContextDepth)
		if len(contexts) == 0 {
			contexts = []goal.CallContext{{}}
		}
		for _, ctx := range contexts {
			if len(branches) == 0 {
				out = append(out, goal.NewMethod(m.Class, m.Name).WithContext(ctx))
				continue
			}
			for _, b := range branches {
				out = append(out,
					goal.NewBranch(m.Class, m.Name, b.ID, true).WithContext(ctx),
					goal.NewBranch(m.Class, m.Name, b.ID, false).WithContext(ctx))
			}
		}
	}
	return out
}

func sortUnique(goals []goal.Goal) []goal.Goal {
	slices.SortFunc(goals, goal.Compare)
	return slices.CompactFunc(goals, goal.Goal.Equal)
}
