package search

import (
	"math"
	"slices"

	"github.com/unbound-force/mosaic/internal/chromosome"
	"github.com/unbound-force/mosaic/internal/goal"
)

// distanceFunc returns the distance of an evaluated chromosome to g.
type distanceFunc func(g goal.Goal, c *chromosome.TestChromosome) float64

// rankInfo is the position of a population member after sorting.
type rankInfo struct {
	rank  int
	crowd float64
}

// preferred reports whether a beats b when their distances tie
// otherwise: the shorter test wins, then the older one. Full ties keep
// the earlier individual.
func preferred(a, b *chromosome.TestChromosome) bool {
	if a.Size() != b.Size() {
		return a.Size() < b.Size()
	}
	return a.Age() < b.Age()
}

// preferenceSort splits pop into fronts over the live objectives. The
// first front holds, for each live goal, the individual closest to it.
// The remaining individuals are ranked by non-dominated sorting.
func preferenceSort(pop []*chromosome.TestChromosome, live []goal.Goal, dist distanceFunc) [][]*chromosome.TestChromosome {
	if len(pop) == 0 {
		return nil
	}
	if len(live) == 0 {
		return [][]*chromosome.TestChromosome{slices.Clone(pop)}
	}

	d := distanceMatrix(pop, live, dist)
	inFront := make([]bool, len(pop))
	var front0 []*chromosome.TestChromosome
	for j := range live {
		best := 0
		for i := 1; i < len(pop); i++ {
			if d[i][j] < d[best][j] || d[i][j] == d[best][j] && preferred(pop[i], pop[best]) {
				best = i
			}
		}
		if !inFront[best] {
			inFront[best] = true
			front0 = append(front0, pop[best])
		}
	}
	slices.SortStableFunc(front0, func(a, b *chromosome.TestChromosome) int {
		return slices.Index(pop, a) - slices.Index(pop, b)
	})

	var rest []*chromosome.TestChromosome
	var restD [][]float64
	for i, c := range pop {
		if !inFront[i] {
			rest = append(rest, c)
			restD = append(restD, d[i])
		}
	}
	fronts := [][]*chromosome.TestChromosome{front0}
	for _, f := range nonDominatedSort(len(rest), restD) {
		front := make([]*chromosome.TestChromosome, len(f))
		for k, i := range f {
			front[k] = rest[i]
		}
		fronts = append(fronts, front)
	}
	return fronts
}

func distanceMatrix(pop []*chromosome.TestChromosome, live []goal.Goal, dist distanceFunc) [][]float64 {
	d := make([][]float64, len(pop))
	for i, c := range pop {
		d[i] = make([]float64, len(live))
		for j, g := range live {
			d[i][j] = dist(g, c)
		}
	}
	return d
}

// dominates reports whether a is no worse than b on every objective
// and strictly better on at least one.
func dominates(a, b []float64) bool {
	better := false
	for j := range a {
		if a[j] > b[j] {
			return false
		}
		if a[j] < b[j] {
			better = true
		}
	}
	return better
}

// nonDominatedSort ranks n points with objective vectors d into fronts
// of indices. Each front lists its members in input order.
func nonDominatedSort(n int, d [][]float64) [][]int {
	dominatedBy := make([]int, n)
	dominated := make([][]int, n)
	var current []int
	for p := 0; p < n; p++ {
		for q := 0; q < n; q++ {
			if p == q {
				continue
			}
			if dominates(d[p], d[q]) {
				dominated[p] = append(dominated[p], q)
			} else if dominates(d[q], d[p]) {
				dominatedBy[p]++
			}
		}
		if dominatedBy[p] == 0 {
			current = append(current, p)
		}
	}

	var fronts [][]int
	for len(current) > 0 {
		fronts = append(fronts, current)
		var next []int
		for _, p := range current {
			for _, q := range dominated[p] {
				dominatedBy[q]--
				if dominatedBy[q] == 0 {
					next = append(next, q)
				}
			}
		}
		slices.Sort(next)
		current = next
	}
	return fronts
}

// crowdingDistance returns the crowding distance of each member of a
// front over the live objectives. Boundary members of every objective
// get +Inf; interior members accumulate the normalized gap between
// their neighbours.
func crowdingDistance(front []*chromosome.TestChromosome, live []goal.Goal, dist distanceFunc) []float64 {
	n := len(front)
	cd := make([]float64, n)
	if n <= 2 || len(live) == 0 {
		for i := range cd {
			cd[i] = math.Inf(1)
		}
		return cd
	}
	d := distanceMatrix(front, live, dist)
	order := make([]int, n)
	for j := range live {
		for i := range order {
			order[i] = i
		}
		slices.SortStableFunc(order, func(a, b int) int {
			switch {
			case d[a][j] < d[b][j]:
				return -1
			case d[a][j] > d[b][j]:
				return 1
			}
			return 0
		})
		lo, hi := d[order[0]][j], d[order[n-1]][j]
		cd[order[0]] = math.Inf(1)
		cd[order[n-1]] = math.Inf(1)
		if hi == lo {
			continue
		}
		for k := 1; k < n-1; k++ {
			cd[order[k]] += (d[order[k+1]][j] - d[order[k-1]][j]) / (hi - lo)
		}
	}
	return cd
}

// better compares two ranked individuals for tournament selection:
// lower rank wins, then larger crowding distance, then preferred.
func better(a, b *chromosome.TestChromosome, ia, ib rankInfo) bool {
	if ia.rank != ib.rank {
		return ia.rank < ib.rank
	}
	if ia.crowd != ib.crowd {
		return ia.crowd > ib.crowd
	}
	return preferred(a, b)
}
