package search

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Progress is the state stopping conditions are evaluated against.
type Progress struct {
	Elapsed    time.Duration
	Generation int
	Statements int64

	// Live is the number of objectives still uncovered.
	Live int
}

// StoppingCondition ends the search. Conditions are polled between
// breeding steps and between generations; a generation that started
// is always completed.
type StoppingCondition interface {
	// Name identifies the condition in results and reports.
	Name() string

	// Done reports whether the search must stop at progress p.
	Done(p Progress) bool
}

// MaxTime stops after a wall-clock budget.
type MaxTime struct{ Limit time.Duration }

// Name implements StoppingCondition.
func (MaxTime) Name() string { return "max_time" }

// Done reports whether the elapsed time reached the limit.
func (c MaxTime) Done(p Progress) bool { return p.Elapsed >= c.Limit }

func (c MaxTime) String() string { return fmt.Sprintf("max_time(%s)", c.Limit) }

// MaxStatements stops once the executed statements reach the limit.
type MaxStatements struct{ Limit int64 }

// Name implements StoppingCondition.
func (MaxStatements) Name() string { return "max_statements" }

// Done reports whether the budget is spent.
func (c MaxStatements) Done(p Progress) bool { return p.Statements >= c.Limit }

// MaxGenerations stops after a number of evolved generations.
type MaxGenerations struct{ Limit int }

// Name implements StoppingCondition.
func (MaxGenerations) Name() string { return "max_generations" }

// Done reports whether the limit of generations was evolved.
func (c MaxGenerations) Done(p Progress) bool { return p.Generation >= c.Limit }

// FullCoverage stops when no objective is left uncovered.
type FullCoverage struct{}

// Name implements StoppingCondition.
func (FullCoverage) Name() string { return "full_coverage" }

// Done reports whether every objective is covered.
func (FullCoverage) Done(p Progress) bool { return p.Live == 0 }

// ExternalStop is raised from outside the search, e.g. on a signal.
type ExternalStop struct{ stopped atomic.Bool }

// Stop raises the condition. It is safe to call from any goroutine.
func (s *ExternalStop) Stop() { s.stopped.Store(true) }

// Name implements StoppingCondition.
func (*ExternalStop) Name() string { return "external" }

// Done reports whether Stop was called.
func (s *ExternalStop) Done(Progress) bool { return s.stopped.Load() }

// Budget counts the statements executed by all tests of a search. It
// is shared with the executor wrapper and safe for concurrent use.
type Budget struct{ n atomic.Int64 }

// Add records executed statements.
func (b *Budget) Add(n int) { b.n.Add(int64(n)) }

// Consumed returns the statements executed so far.
func (b *Budget) Consumed() int64 { return b.n.Load() }
