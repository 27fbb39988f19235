package chromosome

import (
	"context"
	"fmt"
	"slices"

	"github.com/unbound-force/mosaic/internal/execution"
	"github.com/unbound-force/mosaic/internal/goal"
)

// Coverage is the per-criterion bookkeeping of a suite.
type Coverage struct {
	Covered    int     `json:"covered"`
	NotCovered int     `json:"not_covered"`
	Ratio      float64 `json:"ratio"`
}

// TestSuiteChromosome is an ordered collection of tests.
type TestSuiteChromosome struct {
	tests    []*TestChromosome
	fitness  map[string]float64
	coverage map[string]Coverage
}

// NewTestSuite returns a suite holding the given tests.
func NewTestSuite(tests ...*TestChromosome) *TestSuiteChromosome {
	return &TestSuiteChromosome{
		tests:    slices.Clone(tests),
		fitness:  make(map[string]float64),
		coverage: make(map[string]Coverage),
	}
}

// AddTest appends a test.
func (s *TestSuiteChromosome) AddTest(t *TestChromosome) {
	s.tests = append(s.tests, t)
}

// Tests returns the tests in order.
func (s *TestSuiteChromosome) Tests() []*TestChromosome {
	return slices.Clone(s.tests)
}

// Len is the number of tests.
func (s *TestSuiteChromosome) Len() int { return len(s.tests) }

// TotalStatements sums the sizes of all tests.
func (s *TestSuiteChromosome) TotalStatements() int {
	total := 0
	for _, t := range s.tests {
		total += t.Size()
	}
	return total
}

// Run executes every test that changed since its last run and returns
// one result per test, in order.
func (s *TestSuiteChromosome) Run(ctx context.Context, exec Executor) ([]*execution.Result, error) {
	results := make([]*execution.Result, len(s.tests))
	for i, t := range s.tests {
		res, err := t.Run(ctx, exec)
		if err != nil {
			return nil, fmt.Errorf("executing test %d: %w", i, err)
		}
		results[i] = res
	}
	return results, nil
}

// SetFitness records the scalar fitness computed by the named suite
// fitness function.
func (s *TestSuiteChromosome) SetFitness(name string, f float64) {
	s.fitness[name] = f
}

// Fitness returns the fitness recorded under name.
func (s *TestSuiteChromosome) Fitness(name string) (float64, bool) {
	f, ok := s.fitness[name]
	return f, ok
}

// TotalFitness sums the fitness of all suite fitness functions.
func (s *TestSuiteChromosome) TotalFitness() float64 {
	total := 0.0
	for _, name := range s.FitnessNames() {
		total += s.fitness[name]
	}
	return total
}

// FitnessNames lists the recorded fitness names in sorted order.
func (s *TestSuiteChromosome) FitnessNames() []string {
	names := make([]string, 0, len(s.fitness))
	for n := range s.fitness {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// SetCoverage records covered and total goal counts for a criterion.
// The ratio is 1 when there are no goals.
func (s *TestSuiteChromosome) SetCoverage(name string, covered, total int) {
	ratio := 1.0
	if total > 0 {
		ratio = float64(covered) / float64(total)
	}
	s.coverage[name] = Coverage{
		Covered:    covered,
		NotCovered: total - covered,
		Ratio:      ratio,
	}
}

// Coverage returns the bookkeeping recorded for a criterion.
func (s *TestSuiteChromosome) Coverage(name string) (Coverage, bool) {
	c, ok := s.coverage[name]
	return c, ok
}

// CoveredGoals is the union of the goals covered by the tests, in goal
// order.
func (s *TestSuiteChromosome) CoveredGoals() []goal.Goal {
	all := make(map[string]goal.Goal)
	for _, t := range s.tests {
		for k, g := range t.covered {
			all[k] = g
		}
	}
	return sortedGoals(all)
}

func sortedGoals(m map[string]goal.Goal) []goal.Goal {
	out := make([]goal.Goal, 0, len(m))
	for _, g := range m {
		out = append(out, g)
	}
	slices.SortFunc(out, goal.Compare)
	return out
}
