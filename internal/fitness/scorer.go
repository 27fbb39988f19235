// Package fitness turns execution traces into search guidance.
//
// A Scorer computes the distance of one test to one goal: 0 means the
// goal is covered, larger values mean the test is further away. Suite
// fitness functions fold those distances over a whole suite, keep the
// per-criterion coverage bookkeeping, and own the protocol that
// shrinks the live goal set once goals are covered.
package fitness

import (
	"math"

	"github.com/unbound-force/mosaic/internal/archive"
	"github.com/unbound-force/mosaic/internal/chromosome"
	"github.com/unbound-force/mosaic/internal/execution"
	"github.com/unbound-force/mosaic/internal/goal"
	"github.com/unbound-force/mosaic/internal/static"
)

// Normalize maps a raw distance in [0, inf) onto [0, 1).
func Normalize(d float64) float64 {
	if d <= 0 {
		return 0
	}
	if math.IsInf(d, 1) {
		return 1
	}
	return d / (d + 1)
}

// Scorer evaluates goals against executed tests.
type Scorer struct {
	program *static.Program
	archive *archive.Archive
	policy  goal.MatchPolicy
}

// NewScorer returns a scorer over the static model of the class under
// test. A nil archive disables archiving: covered goals are then only
// recorded on the test chromosome.
func NewScorer(program *static.Program, arch *archive.Archive, policy goal.MatchPolicy) *Scorer {
	if policy == "" {
		policy = goal.MatchExact
	}
	return &Scorer{program: program, archive: arch, policy: policy}
}

// Archive returns the archive updated by the scorer, nil when
// archiving is disabled.
func (s *Scorer) Archive() *archive.Archive { return s.archive }

// Archiving reports whether covered goals are stored in an archive.
func (s *Scorer) Archiving() bool { return s.archive != nil }

// Policy is the call-context match policy in effect.
func (s *Scorer) Policy() goal.MatchPolicy { return s.policy }

// Program is the static model the scorer reads control dependencies
// from.
func (s *Scorer) Program() *static.Program { return s.program }

// Score returns the distance of test c, whose latest execution is res,
// to goal g. The value is cached on the chromosome until the test
// changes. A zero distance marks g covered on c and offers c to the
// archive.
func (s *Scorer) Score(g goal.Goal, c *chromosome.TestChromosome, res *execution.Result) float64 {
	key := g.Key()
	if d, ok := c.Fitness(key); ok {
		return d
	}
	d := s.Distance(g, res)
	c.SetFitness(key, d)
	if d == 0 {
		c.MarkCovered(g)
		if s.archive != nil {
			s.archive.Update(g, c, 0)
		}
	}
	return d
}

// Distance computes the distance of a single execution to g without
// touching any cache. Results that timed out or failed in the harness
// score the worst value of the goal.
func (s *Scorer) Distance(g goal.Goal, res *execution.Result) float64 {
	if !res.Informative() {
		return s.Worst(g)
	}
	tr := res.Trace
	switch g.Kind {
	case goal.Branch:
		return s.branchDistance(g, tr)
	case goal.Line, goal.Rho:
		if tr.MethodCount(g.QualifiedMethod()) > 0 && tr.CoveredLine(g.Class, g.Line) {
			return 0
		}
		return 1
	case goal.Method:
		if g.ContextSensitive() {
			return s.methodContextDistance(g, tr)
		}
		if tr.DirectCallCount(g.QualifiedMethod()) > 0 {
			return 0
		}
		return 1
	case goal.MethodTrace:
		if g.ContextSensitive() {
			return s.methodContextDistance(g, tr)
		}
		if tr.MethodCount(g.QualifiedMethod()) > 0 {
			return 0
		}
		return 1
	default:
		return s.Worst(g)
	}
}

// Worst is the distance of a test that does not reach g at all.
func (s *Scorer) Worst(g goal.Goal) float64 {
	if g.Kind == goal.Branch && s.program != nil {
		return float64(s.program.ApproachDepth(g.BranchID)) + 1
	}
	return 1
}

func (s *Scorer) branchDistance(g goal.Goal, tr *execution.Trace) float64 {
	if d, ok := s.matchingDistance(g.BranchID, g.Value, g.Context, tr); ok {
		return Normalize(d)
	}
	return float64(s.ApproachLevel(g, tr)) + 1
}

// matchingDistance is the minimum recorded distance of the predicate
// towards value over the evaluations whose call path matches ctx.
func (s *Scorer) matchingDistance(branchID int, value bool, ctx goal.CallContext, tr *execution.Trace) (float64, bool) {
	ps, ok := tr.PredicateStats(branchID)
	if !ok {
		return 0, false
	}
	if ctx.IsEmpty() {
		if value {
			return ps.TrueDistance, true
		}
		return ps.FalseDistance, true
	}
	best, found := math.Inf(1), false
	for _, cs := range ps.Contexts {
		if cs.Count == 0 || !ctx.Matches(cs.Context, s.policy) {
			continue
		}
		found = true
		if value {
			best = math.Min(best, cs.TrueDistance)
		} else {
			best = math.Min(best, cs.FalseDistance)
		}
	}
	return best, found
}

// ApproachLevel counts the control-dependency levels between the
// predicate of g and the nearest predicate the trace evaluated along
// a matching call path. A directly controlling predicate that was
// evaluated gives level 0; when no controlling predicate ran, the
// level is the full depth of the dependency chain.
func (s *Scorer) ApproachLevel(g goal.Goal, tr *execution.Trace) int {
	if s.program == nil {
		return 0
	}
	b, ok := s.program.Branch(g.BranchID)
	if !ok || len(b.Deps) == 0 {
		return 0
	}
	seen := map[int]bool{g.BranchID: true}
	frontier := b.Deps
	for level := 1; len(frontier) > 0; level++ {
		var next []static.Condition
		for _, d := range frontier {
			if seen[d.BranchID] {
				continue
			}
			seen[d.BranchID] = true
			if _, hit := s.matchingDistance(d.BranchID, d.Value, g.Context, tr); hit {
				return level - 1
			}
			if dep, ok := s.program.Branch(d.BranchID); ok {
				next = append(next, dep.Deps...)
			}
		}
		frontier = next
	}
	return s.program.ApproachDepth(g.BranchID)
}

func (s *Scorer) methodContextDistance(g goal.Goal, tr *execution.Trace) float64 {
	for _, cs := range tr.MethodContexts(g.QualifiedMethod()) {
		if cs.Count > 0 && g.Context.Matches(cs.Context, s.policy) {
			return 0
		}
	}
	return 1
}
