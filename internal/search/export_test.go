package search

import (
	"github.com/unbound-force/mosaic/internal/chromosome"
	"github.com/unbound-force/mosaic/internal/goal"
)

// NonDominatedSort exposes the front computation over raw vectors.
func NonDominatedSort(d [][]float64) [][]int {
	return nonDominatedSort(len(d), d)
}

// Crowding computes crowding distances from raw vectors, one row per
// individual.
func Crowding(d [][]float64) []float64 {
	front, live, dist := vectors(d)
	return crowdingDistance(front, live, dist)
}

// PreferenceFronts sorts raw vectors with preference sorting and
// returns the fronts as row indices. sizes gives the test length of
// each row.
func PreferenceFronts(d [][]float64, sizes []int) [][]int {
	front, live, dist := vectors(d)
	pos := make(map[*chromosome.TestChromosome]int)
	for i, c := range front {
		pos[c] = i
		c.Test().(*rowTest).size = sizes[i]
	}
	var out [][]int
	for _, f := range preferenceSort(front, live, dist) {
		var idx []int
		for _, c := range f {
			idx = append(idx, pos[c])
		}
		out = append(out, idx)
	}
	return out
}

type rowTest struct {
	row  int
	size int
}

func (r *rowTest) Size() int { return r.size }
func (r *rowTest) Clone() chromosome.Test {
	cp := *r
	return &cp
}
func (r *rowTest) String() string { return "row" }

func vectors(d [][]float64) ([]*chromosome.TestChromosome, []goal.Goal, distanceFunc) {
	var live []goal.Goal
	if len(d) > 0 {
		for j := range d[0] {
			live = append(live, goal.NewLine("V", "v", j+1))
		}
	}
	col := make(map[string]int, len(live))
	for j, g := range live {
		col[g.Key()] = j
	}
	front := make([]*chromosome.TestChromosome, len(d))
	for i := range d {
		front[i] = chromosome.NewTestChromosome(&rowTest{row: i, size: 1}, 0)
	}
	dist := func(g goal.Goal, c *chromosome.TestChromosome) float64 {
		return d[c.Test().(*rowTest).row][col[g.Key()]]
	}
	return front, live, dist
}
