// Package execution defines what running one candidate test reports
// back to the search: the execution trace (covered lines, branch
// distances, method hits, each optionally partitioned by call context)
// and the outcome flags of the run.
package execution

import (
	"math"
	"slices"
	"strings"

	"github.com/unbound-force/mosaic/internal/goal"
)

// ContextStats is the per-context slice of a predicate or method hit.
type ContextStats struct {
	Context       goal.CallContext
	Count         int
	TrueDistance  float64
	FalseDistance float64
}

// PredicateStats aggregates all evaluations of one predicate.
type PredicateStats struct {
	// Count is the number of evaluations.
	Count int

	// TrueDistance is the minimum distance to the predicate being true;
	// 0 if it was true at least once.
	TrueDistance float64

	// FalseDistance is the minimum distance to the predicate being
	// false; 0 if it was false at least once.
	FalseDistance float64

	// Contexts partitions the evaluations by call path, keyed by the
	// context string.
	Contexts map[string]*ContextStats
}

// Trace is the read-only record of one test execution. Executors
// populate it through the recording methods.
type Trace struct {
	lines          map[string]map[int]struct{}
	predicates     map[int]*PredicateStats
	methods        map[string]int
	methodContexts map[string]map[string]*ContextStats
	directCalls    map[string]int
}

// NewTrace returns an empty trace.
func NewTrace() *Trace {
	return &Trace{
		lines:          make(map[string]map[int]struct{}),
		predicates:     make(map[int]*PredicateStats),
		methods:        make(map[string]int),
		methodContexts: make(map[string]map[string]*ContextStats),
		directCalls:    make(map[string]int),
	}
}

// EnterMethod records an invocation of the innermost frame of ctx.
// A context of length one is a call issued by the test itself.
func (t *Trace) EnterMethod(ctx goal.CallContext) {
	f, ok := ctx.Last()
	if !ok {
		return
	}
	key := f.String()
	t.methods[key]++
	if ctx.Len() == 1 {
		t.directCalls[key]++
	}
	byCtx := t.methodContexts[key]
	if byCtx == nil {
		byCtx = make(map[string]*ContextStats)
		t.methodContexts[key] = byCtx
	}
	cs := byCtx[ctx.String()]
	if cs == nil {
		cs = &ContextStats{Context: ctx}
		byCtx[ctx.String()] = cs
	}
	cs.Count++
}

// Predicate records one evaluation of a predicate along ctx with the
// distances to each outcome. Negative distances are clamped to 0.
func (t *Trace) Predicate(branchID int, ctx goal.CallContext, trueDist, falseDist float64) {
	trueDist = math.Max(trueDist, 0)
	falseDist = math.Max(falseDist, 0)

	ps := t.predicates[branchID]
	if ps == nil {
		ps = &PredicateStats{
			TrueDistance:  math.Inf(1),
			FalseDistance: math.Inf(1),
			Contexts:      make(map[string]*ContextStats),
		}
		t.predicates[branchID] = ps
	}
	ps.Count++
	ps.TrueDistance = math.Min(ps.TrueDistance, trueDist)
	ps.FalseDistance = math.Min(ps.FalseDistance, falseDist)

	cs := ps.Contexts[ctx.String()]
	if cs == nil {
		cs = &ContextStats{
			Context:       ctx,
			TrueDistance:  math.Inf(1),
			FalseDistance: math.Inf(1),
		}
		ps.Contexts[ctx.String()] = cs
	}
	cs.Count++
	cs.TrueDistance = math.Min(cs.TrueDistance, trueDist)
	cs.FalseDistance = math.Min(cs.FalseDistance, falseDist)
}

// Line records execution of a source line of a class.
func (t *Trace) Line(class string, line int) {
	set := t.lines[class]
	if set == nil {
		set = make(map[int]struct{})
		t.lines[class] = set
	}
	set[line] = struct{}{}
}

// CoveredLine reports whether the line of the class was executed.
func (t *Trace) CoveredLine(class string, line int) bool {
	_, ok := t.lines[class][line]
	return ok
}

// CoveredLines returns the executed lines of a class in ascending order.
func (t *Trace) CoveredLines(class string) []int {
	out := make([]int, 0, len(t.lines[class]))
	for l := range t.lines[class] {
		out = append(out, l)
	}
	slices.Sort(out)
	return out
}

// PredicateStats returns the statistics of one predicate.
func (t *Trace) PredicateStats(branchID int) (*PredicateStats, bool) {
	ps, ok := t.predicates[branchID]
	return ps, ok
}

// ExecutedPredicates returns the ids of all evaluated predicates in
// ascending order.
func (t *Trace) ExecutedPredicates() []int {
	out := make([]int, 0, len(t.predicates))
	for id := range t.predicates {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// MethodCount returns how often "Class.method" was entered.
func (t *Trace) MethodCount(qualified string) int {
	return t.methods[qualified]
}

// DirectCallCount returns how often the test itself called
// "Class.method".
func (t *Trace) DirectCallCount(qualified string) int {
	return t.directCalls[qualified]
}

// MethodContexts returns the per-context hits of a method, sorted by
// context string.
func (t *Trace) MethodContexts(qualified string) []ContextStats {
	byCtx := t.methodContexts[qualified]
	out := make([]ContextStats, 0, len(byCtx))
	for _, cs := range byCtx {
		out = append(out, *cs)
	}
	slices.SortFunc(out, func(a, b ContextStats) int {
		return strings.Compare(a.Context.String(), b.Context.String())
	})
	return out
}

// SortedContexts returns the per-context statistics of a predicate
// sorted by context string.
func (ps *PredicateStats) SortedContexts() []ContextStats {
	out := make([]ContextStats, 0, len(ps.Contexts))
	for _, cs := range ps.Contexts {
		out = append(out, *cs)
	}
	slices.SortFunc(out, func(a, b ContextStats) int {
		return strings.Compare(a.Context.String(), b.Context.String())
	})
	return out
}
