package search

import (
	"context"

	"github.com/unbound-force/mosaic/internal/chromosome"
)

// Minimize is a LocalSearch that drops tests whose covered goals are
// covered by the rest of the suite. Tests are kept greedily: the one
// adding the most uncovered goals first, shorter tests on ties, suite
// order after that. The kept tests retain their suite order.
func Minimize(ctx context.Context, suite *chromosome.TestSuiteChromosome) (*chromosome.TestSuiteChromosome, error) {
	tests := suite.Tests()
	covers := make([]map[string]bool, len(tests))
	for i, t := range tests {
		covers[i] = make(map[string]bool)
		for _, g := range t.CoveredGoals() {
			covers[i][g.Key()] = true
		}
	}

	done := make(map[string]bool)
	kept := make([]bool, len(tests))
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		best, gain := -1, 0
		for i, t := range tests {
			if kept[i] {
				continue
			}
			n := 0
			for k := range covers[i] {
				if !done[k] {
					n++
				}
			}
			if n > gain || n == gain && n > 0 && t.Size() < tests[best].Size() {
				best, gain = i, n
			}
		}
		if best < 0 {
			break
		}
		kept[best] = true
		for k := range covers[best] {
			done[k] = true
		}
	}

	out := chromosome.NewTestSuite()
	for i, t := range tests {
		if kept[i] {
			out.AddTest(t)
		}
	}
	return out, nil
}
