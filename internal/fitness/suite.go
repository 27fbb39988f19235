package fitness

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/unbound-force/mosaic/internal/chromosome"
	"github.com/unbound-force/mosaic/internal/execution"
	"github.com/unbound-force/mosaic/internal/goal"
)

// ErrInconsistentGoals reports corrupted goal bookkeeping. It is
// never a property of the tests being evaluated.
var ErrInconsistentGoals = errors.New("inconsistent goal bookkeeping")

// SuiteFunction is the contract shared by all suite fitness functions.
type SuiteFunction interface {
	// Name is the key under which fitness and coverage are recorded
	// on the suite.
	Name() string

	// Goals returns every goal of the criterion.
	Goals() []goal.Goal

	// LiveGoals returns the goals not yet removed.
	LiveGoals() []goal.Goal

	// Evaluate scores the suite from one result per test, records
	// fitness and coverage on the suite, and returns the fitness.
	Evaluate(suite *chromosome.TestSuiteChromosome, results []*execution.Result) float64

	// UpdateCoveredGoals flushes the goals found covered since the last
	// flush out of the live set. It reports whether goal removal is
	// enabled.
	UpdateCoveredGoals() (bool, error)
}

// Evaluate executes the suite once and feeds the results to every
// function.
func Evaluate(ctx context.Context, exec chromosome.Executor, suite *chromosome.TestSuiteChromosome, fns ...SuiteFunction) error {
	results, err := suite.Run(ctx, exec)
	if err != nil {
		return err
	}
	for _, fn := range fns {
		fn.Evaluate(suite, results)
	}
	return nil
}

// Options tune a SuiteFitness.
type Options struct {
	// Guidance adds a secondary term to the fitness. Nil disables it.
	Guidance Guidance

	// TimeoutPenalty makes any timed-out test set the fitness to the
	// total number of goals.
	TimeoutPenalty bool
}

// DefaultOptions returns the options used for a criterion: line
// coverage gets control-branch guidance and the timeout penalty.
func DefaultOptions(c goal.Criterion, scorer *Scorer) Options {
	if c == goal.CriterionLine && scorer.Program() != nil {
		return Options{Guidance: NewLineGuidance(scorer.Program()), TimeoutPenalty: true}
	}
	return Options{}
}

// SuiteFitness aggregates goal distances over the tests of a suite for
// one criterion.
type SuiteFitness struct {
	name   string
	scorer *Scorer
	opts   Options
	arena  *goal.Arena

	// Side tables from branch id and qualified method to goal indices.
	byBranch map[int][]int
	byMethod map[string][]int

	pending   []int
	isPending map[int]bool
}

// NewSuiteFitness builds the suite fitness of a criterion over goals.
func NewSuiteFitness(name string, goals []goal.Goal, scorer *Scorer, opts Options) *SuiteFitness {
	f := &SuiteFitness{
		name:      name,
		scorer:    scorer,
		opts:      opts,
		arena:     goal.NewArena(goals),
		byBranch:  make(map[int][]int),
		byMethod:  make(map[string][]int),
		isPending: make(map[int]bool),
	}
	for i, g := range f.arena.All() {
		switch g.Kind {
		case goal.Branch:
			f.byBranch[g.BranchID] = append(f.byBranch[g.BranchID], i)
		default:
			q := g.QualifiedMethod()
			f.byMethod[q] = append(f.byMethod[q], i)
		}
		if a := scorer.Archive(); a != nil {
			a.AddTarget(g)
		}
	}
	if f.opts.Guidance != nil {
		f.opts.Guidance.Reset(f.arena.Live())
	}
	return f
}

// Name implements SuiteFunction.
func (f *SuiteFitness) Name() string { return f.name }

// Goals implements SuiteFunction.
func (f *SuiteFitness) Goals() []goal.Goal { return f.arena.All() }

// LiveGoals implements SuiteFunction.
func (f *SuiteFitness) LiveGoals() []goal.Goal { return f.arena.Live() }

// RemovedGoals returns the goals flushed out of the live set.
func (f *SuiteFitness) RemovedGoals() []goal.Goal { return f.arena.Removed() }

// TotalGoals is the number of goals at construction.
func (f *SuiteFitness) TotalGoals() int { return f.arena.Len() }

// BranchGoals returns the live goals on a predicate.
func (f *SuiteFitness) BranchGoals(branchID int) []goal.Goal {
	return f.liveOf(f.byBranch[branchID])
}

// MethodGoals returns the live non-branch goals of "Class.method".
func (f *SuiteFitness) MethodGoals(qualified string) []goal.Goal {
	return f.liveOf(f.byMethod[qualified])
}

func (f *SuiteFitness) liveOf(idx []int) []goal.Goal {
	var out []goal.Goal
	for _, i := range idx {
		if f.arena.IsLive(i) {
			out = append(out, f.arena.Get(i))
		}
	}
	return out
}

// Evaluate implements SuiteFunction. Timed-out tests and harness
// failures are left out of the aggregation.
func (f *SuiteFitness) Evaluate(suite *chromosome.TestSuiteChromosome, results []*execution.Result) float64 {
	tests := suite.Tests()
	timedOut := false
	var informative []int
	for i, res := range results {
		if res.HasTimeout() {
			timedOut = true
		}
		if res.Informative() && i < len(tests) {
			informative = append(informative, i)
		}
	}

	fitness := 0.0
	covered := f.arena.RemovedCount()
	for _, idx := range f.arena.LiveIndices() {
		g := f.arena.Get(idx)
		best := math.Inf(1)
		for _, i := range informative {
			best = math.Min(best, f.scorer.Score(g, tests[i], results[i]))
			if best == 0 {
				break
			}
		}
		if math.IsInf(best, 1) {
			best = f.scorer.Worst(g)
		}
		fitness += best
		if best == 0 {
			covered++
			f.enqueue(idx)
		}
	}

	if f.opts.Guidance != nil {
		var rs []*execution.Result
		for _, i := range informative {
			rs = append(rs, results[i])
		}
		fitness += f.opts.Guidance.Distance(rs)
	}
	if f.opts.TimeoutPenalty && timedOut {
		fitness = float64(f.arena.Len())
	}

	suite.SetFitness(f.name, fitness)
	suite.SetCoverage(f.name, covered, f.arena.Len())
	return fitness
}

func (f *SuiteFitness) enqueue(idx int) {
	if f.isPending[idx] {
		return
	}
	f.isPending[idx] = true
	f.pending = append(f.pending, idx)
}

// Pending returns the goals found covered and waiting for a flush.
func (f *SuiteFitness) Pending() []goal.Goal {
	out := make([]goal.Goal, len(f.pending))
	for i, idx := range f.pending {
		out[i] = f.arena.Get(idx)
	}
	return out
}

// UpdateCoveredGoals implements SuiteFunction. Without an archive
// goals are never removed and the call reports false. With an archive
// every pending goal leaves the live set exactly once; a pending goal
// missing from the side tables or the archive is a bookkeeping bug
// and aborts the flush.
func (f *SuiteFitness) UpdateCoveredGoals() (bool, error) {
	pending := f.pending
	f.pending = nil
	clear(f.isPending)

	arch := f.scorer.Archive()
	if arch == nil {
		return false, nil
	}
	for _, idx := range pending {
		g := f.arena.Get(idx)
		if !f.indexed(idx, g) {
			return true, fmt.Errorf("%w: %s missing from index", ErrInconsistentGoals, g)
		}
		if err := f.arena.Remove(idx); err != nil {
			return true, fmt.Errorf("removing %s: %w", g, err)
		}
		if !arch.IsCovered(g) {
			return true, fmt.Errorf("%w: %s removed but not covered in archive", ErrInconsistentGoals, g)
		}
		if err := arch.Remove(g); err != nil {
			return true, err
		}
	}
	if f.arena.LiveCount()+f.arena.RemovedCount() != f.arena.Len() {
		return true, fmt.Errorf("%w: %d live + %d removed != %d goals",
			ErrInconsistentGoals, f.arena.LiveCount(), f.arena.RemovedCount(), f.arena.Len())
	}
	if len(pending) > 0 && f.opts.Guidance != nil {
		f.opts.Guidance.Reset(f.arena.Live())
	}
	return true, nil
}

func (f *SuiteFitness) indexed(idx int, g goal.Goal) bool {
	table := f.byMethod[g.QualifiedMethod()]
	if g.Kind == goal.Branch {
		table = f.byBranch[g.BranchID]
	}
	for _, i := range table {
		if i == idx {
			return true
		}
	}
	return false
}
