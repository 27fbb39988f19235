package archive

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/unbound-force/mosaic/internal/chromosome"
	"github.com/unbound-force/mosaic/internal/goal"
)

type stmts []string

func (s stmts) Size() int              { return len(s) }
func (s stmts) Clone() chromosome.Test { return append(stmts(nil), s...) }
func (s stmts) String() string         { return strings.Join(s, ";") }

func tc(n int) *chromosome.TestChromosome {
	s := make(stmts, n)
	for i := range s {
		s[i] = "s"
	}
	return chromosome.NewTestChromosome(s, 0)
}

func TestUpdate_ShorterReplacesEqualKeeps(t *testing.T) {
	a := New()
	g := goal.NewBranch("A", "m", 1, true)
	a.AddTarget(g)

	long := tc(3)
	if a.Update(g, long, 0.5) {
		t.Fatal("non-zero distance must not cover")
	}
	if !a.Update(g, long, 0) {
		t.Fatal("first covering test must be stored")
	}
	same := tc(3)
	if a.Update(g, same, 0) {
		t.Error("equal-length test must not replace the earlier one")
	}
	short := tc(1)
	if !a.Update(g, short, 0) {
		t.Error("strictly shorter test must replace")
	}
	got, ok := a.Solution(g)
	if !ok || got != short {
		t.Errorf("solution = %v, want the shorter test", got)
	}
}

func TestCoverage_IsMonotonic(t *testing.T) {
	a := New()
	g1 := goal.NewLine("A", "m", 1)
	g2 := goal.NewLine("A", "m", 2)
	a.AddTarget(g1)
	a.AddTarget(g2)
	a.AddTarget(g1)
	if a.NumTargets() != 2 {
		t.Fatalf("AddTarget not idempotent: %d targets", a.NumTargets())
	}

	a.Update(g1, tc(2), 0)
	a.Update(g1, tc(5), 0.3)
	if !a.IsCovered(g1) {
		t.Fatal("covered goal became uncovered")
	}
	unc := a.Uncovered()
	if len(unc) != 1 || !unc[0].Equal(g2) {
		t.Errorf("uncovered = %v", unc)
	}
	if err := a.Remove(g1); err != nil {
		t.Fatal(err)
	}
	if !a.IsCovered(g1) || len(a.Purged()) != 1 {
		t.Error("removal must keep the goal covered and record the purge")
	}
}

func TestSolutions_DedupAndOrder(t *testing.T) {
	a := New()
	g1 := goal.NewLine("A", "m", 1)
	g2 := goal.NewLine("A", "m", 2)
	g3 := goal.NewLine("A", "m", 3)
	for _, g := range []goal.Goal{g1, g2, g3} {
		a.AddTarget(g)
	}
	x, y := tc(1), tc(2)
	a.Update(g2, y, 0)
	a.Update(g1, x, 0)
	a.Update(g3, x, 0)

	sols := a.Solutions()
	if len(sols) != 2 || sols[0] != x || sols[1] != y {
		t.Errorf("solutions not deduplicated in registration order: %v", sols)
	}
	if by := a.CoveredBy(x); len(by) != 2 || by[0].Line != 1 || by[1].Line != 3 {
		t.Errorf("CoveredBy = %v", by)
	}
}

func TestRemove_UnknownOrUncovered(t *testing.T) {
	a := New()
	g := goal.NewMethod("A", "m")
	if err := a.Remove(g); !errors.Is(err, ErrUnknownTarget) {
		t.Errorf("unknown goal: got %v", err)
	}
	a.AddTarget(g)
	if err := a.Remove(g); !errors.Is(err, ErrUnknownTarget) {
		t.Errorf("uncovered goal: got %v", err)
	}
}

func TestUpdate_RegistersUnknownGoal(t *testing.T) {
	a := New()
	g := goal.NewMethod("A", "m")
	a.Update(g, tc(1), 0)
	if !a.Contains(g) || a.NumCovered() != 1 {
		t.Error("update of an unknown goal must register and cover it")
	}
}

func TestReset(t *testing.T) {
	a := New()
	g := goal.NewMethod("A", "m")
	a.Update(g, tc(1), 0)
	a.Reset()
	if a.NumTargets() != 0 || len(a.Solutions()) != 0 || a.IsCovered(g) {
		t.Error("reset must clear goals and solutions")
	}
}

func TestUpdate_ConcurrentCoversOnce(t *testing.T) {
	a := New()
	g := goal.NewBranch("A", "m", 1, false)
	a.AddTarget(g)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		stored int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if a.Update(g, tc(4), 0) {
				mu.Lock()
				stored++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if stored != 1 {
		t.Errorf("equal-length concurrent updates stored %d times, want 1", stored)
	}
}
