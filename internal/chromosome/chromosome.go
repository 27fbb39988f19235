// Package chromosome holds the individuals the search evolves: a test
// chromosome wraps one executable test with its latest execution
// result and per-goal fitness cache, and a suite chromosome groups
// tests with per-criterion fitness and coverage bookkeeping.
//
// The test representation itself, and the operators that mutate and
// recombine it, are supplied by the caller through Test and Operators.
package chromosome

import (
	"context"
	"math/rand"

	"github.com/unbound-force/mosaic/internal/execution"
	"github.com/unbound-force/mosaic/internal/goal"
)

// Test is an executable test case.
type Test interface {
	// Size is the number of statements.
	Size() int

	// Clone returns an independent deep copy.
	Clone() Test

	// String renders the test; two tests with equal strings are
	// treated as textually identical.
	String() string
}

// Operators create and vary tests.
type Operators interface {
	// RandomTest builds a new random test.
	RandomTest(rng *rand.Rand) Test

	// Mutate changes t in place and reports whether anything changed.
	Mutate(rng *rand.Rand, t Test) bool

	// Crossover recombines two parents into two offspring. An error
	// means the parents cannot be combined; callers skip the attempt.
	Crossover(rng *rand.Rand, a, b Test) (Test, Test, error)

	// CallsTarget reports whether t invokes the class under test.
	CallsTarget(t Test) bool
}

// Executor runs a test and reports its execution result. Outcomes of
// the test itself (timeouts, exceptions) are reported on the result;
// a non-nil error means the executor could not run at all.
type Executor interface {
	Execute(ctx context.Context, t Test) (*execution.Result, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, t Test) (*execution.Result, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, t Test) (*execution.Result, error) {
	return f(ctx, t)
}

// TestChromosome is one individual of the population.
type TestChromosome struct {
	test    Test
	result  *execution.Result
	changed bool
	age     int

	fitness map[string]float64
	covered map[string]goal.Goal
}

// NewTestChromosome wraps t, born in generation age. A new chromosome
// is marked changed so that its first Run executes it.
func NewTestChromosome(t Test, age int) *TestChromosome {
	return &TestChromosome{
		test:    t,
		changed: true,
		age:     age,
		fitness: make(map[string]float64),
		covered: make(map[string]goal.Goal),
	}
}

// Test returns the wrapped test.
func (c *TestChromosome) Test() Test { return c.test }

// Size is the number of statements of the test.
func (c *TestChromosome) Size() int { return c.test.Size() }

// Age is the generation the chromosome was created in.
func (c *TestChromosome) Age() int { return c.age }

// SetAge overrides the birth generation.
func (c *TestChromosome) SetAge(age int) { c.age = age }

// Result returns the latest execution result, nil before the first run.
func (c *TestChromosome) Result() *execution.Result { return c.result }

// Changed reports whether the test changed since its last execution.
func (c *TestChromosome) Changed() bool { return c.changed }

// MarkChanged flags the test as modified: the cached result and
// fitness values are discarded.
func (c *TestChromosome) MarkChanged() {
	c.changed = true
	c.result = nil
	clear(c.fitness)
	clear(c.covered)
}

// Clone returns an independent copy of the chromosome carrying the
// cached result and fitness. The test is deep-copied.
func (c *TestChromosome) Clone() *TestChromosome {
	cp := &TestChromosome{
		test:    c.test.Clone(),
		result:  c.result,
		changed: c.changed,
		age:     c.age,
		fitness: make(map[string]float64, len(c.fitness)),
		covered: make(map[string]goal.Goal, len(c.covered)),
	}
	for k, v := range c.fitness {
		cp.fitness[k] = v
	}
	for k, v := range c.covered {
		cp.covered[k] = v
	}
	return cp
}

// Run executes the test if it changed since the last run and returns
// the (possibly cached) result. A fresh execution clears the fitness
// cache and the changed flag.
func (c *TestChromosome) Run(ctx context.Context, exec Executor) (*execution.Result, error) {
	if !c.changed && c.result != nil {
		return c.result, nil
	}
	res, err := exec.Execute(ctx, c.test)
	if err != nil {
		return nil, err
	}
	c.result = res
	c.changed = false
	clear(c.fitness)
	clear(c.covered)
	return res, nil
}

// SetResult installs an execution result obtained elsewhere.
func (c *TestChromosome) SetResult(res *execution.Result) {
	c.result = res
	c.changed = false
	clear(c.fitness)
	clear(c.covered)
}

// Fitness returns the cached fitness for a goal key.
func (c *TestChromosome) Fitness(key string) (float64, bool) {
	f, ok := c.fitness[key]
	return f, ok
}

// SetFitness caches the fitness for a goal key.
func (c *TestChromosome) SetFitness(key string, f float64) {
	c.fitness[key] = f
}

// MarkCovered records that the test covers g.
func (c *TestChromosome) MarkCovered(g goal.Goal) {
	c.covered[g.Key()] = g
}

// Covers reports whether the test was found to cover g.
func (c *TestChromosome) Covers(g goal.Goal) bool {
	_, ok := c.covered[g.Key()]
	return ok
}

// CoveredGoals returns the goals the test covers, in goal order.
func (c *TestChromosome) CoveredGoals() []goal.Goal {
	return sortedGoals(c.covered)
}

func (c *TestChromosome) String() string { return c.test.String() }
