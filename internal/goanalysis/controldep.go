package goanalysis

import (
	"golang.org/x/tools/go/ssa"
)

// edge is a control dependency on the outcome of a two-way block:
// Succ 0 is the true edge of an *ssa.If, Succ 1 the false edge.
type edge struct {
	block int
	succ  int
}

// controlDeps returns, for each block of fn, the two-way blocks and
// edges it is directly control dependent on, in (block, succ) order.
//
// A block B depends on edge A→S when B post-dominates S but does not
// strictly post-dominate A. Post-dominators are computed on the
// reversed CFG with a virtual exit joined to every block without
// successors. Blocks on the post-dominator chain of the entry block
// run whenever the function does and have no dependencies, even when
// a loop edge leads back to them.
func controlDeps(fn *ssa.Function) [][]edge {
	n := len(fn.Blocks)
	deps := make([][]edge, n)
	if n == 0 {
		return deps
	}
	ipdom := postDominators(fn)
	exit := n
	always := make([]bool, n)
	for r := 0; r != exit && !always[r]; r = ipdom[r] {
		always[r] = true
	}
	for _, a := range fn.Blocks {
		if len(a.Succs) != 2 {
			continue
		}
		stop := ipdom[a.Index]
		for i, s := range a.Succs {
			if i == 1 && s == a.Succs[0] {
				break
			}
			for r := s.Index; r != stop && r != exit; r = ipdom[r] {
				if !always[r] {
					deps[r] = append(deps[r], edge{block: a.Index, succ: i})
				}
				if ipdom[r] == r {
					break
				}
			}
		}
	}
	return deps
}

// postDominators returns the immediate post-dominator of every block,
// indexed by block index, with len(fn.Blocks) standing for the virtual
// exit. Blocks that cannot reach an exit (endless loops) are
// post-dominated by the exit directly.
func postDominators(fn *ssa.Function) []int {
	n := len(fn.Blocks)
	exit := n

	// Reverse CFG successors: the predecessors in the forward graph;
	// the exit precedes every returning block.
	rsucc := func(v int) []int {
		if v == exit {
			var out []int
			for _, b := range fn.Blocks {
				if len(b.Succs) == 0 {
					out = append(out, b.Index)
				}
			}
			return out
		}
		preds := fn.Blocks[v].Preds
		out := make([]int, len(preds))
		for i, p := range preds {
			out[i] = p.Index
		}
		return out
	}
	rpred := func(v int) []int {
		var out []int
		for _, s := range fn.Blocks[v].Succs {
			out = append(out, s.Index)
		}
		if len(out) == 0 {
			out = append(out, exit)
		}
		return out
	}

	// Postorder numbering of the reverse CFG from the exit.
	order := make([]int, n+1)
	for i := range order {
		order[i] = -1
	}
	var post []int
	var dfs func(v int)
	dfs = func(v int) {
		order[v] = -2
		for _, w := range rsucc(v) {
			if order[w] == -1 {
				dfs(w)
			}
		}
		order[v] = len(post)
		post = append(post, v)
	}
	dfs(exit)

	idom := make([]int, n+1)
	for i := range idom {
		idom[i] = -1
	}
	idom[exit] = exit
	intersect := func(a, b int) int {
		for a != b {
			for order[a] < order[b] {
				a = idom[a]
			}
			for order[b] < order[a] {
				b = idom[b]
			}
		}
		return a
	}
	for changed := true; changed; {
		changed = false
		for i := len(post) - 1; i >= 0; i-- {
			v := post[i]
			if v == exit {
				continue
			}
			next := -1
			for _, p := range rpred(v) {
				if order[p] < 0 || idom[p] == -1 {
					continue
				}
				if next == -1 {
					next = p
				} else {
					next = intersect(p, next)
				}
			}
			if next != -1 && idom[v] != next {
				idom[v] = next
				changed = true
			}
		}
	}
	for v := 0; v < n; v++ {
		if idom[v] == -1 {
			idom[v] = exit
		}
	}
	return idom[:n+1]
}
