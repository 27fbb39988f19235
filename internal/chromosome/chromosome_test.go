package chromosome

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/unbound-force/mosaic/internal/execution"
	"github.com/unbound-force/mosaic/internal/goal"
)

// fakeTest is a list of statement labels.
type fakeTest []string

func (f fakeTest) Size() int      { return len(f) }
func (f fakeTest) Clone() Test    { return append(fakeTest(nil), f...) }
func (f fakeTest) String() string { return strings.Join(f, ";") }

// countingExecutor counts executions and covers line 1 of class A.
type countingExecutor struct{ runs int }

func (e *countingExecutor) Execute(_ context.Context, t Test) (*execution.Result, error) {
	e.runs++
	res := execution.NewResult()
	res.Statements = t.Size()
	res.Trace.Line("A", 1)
	return res, nil
}

func TestRun_CachesUntilChanged(t *testing.T) {
	exec := &countingExecutor{}
	c := NewTestChromosome(fakeTest{"a", "b"}, 0)
	if !c.Changed() {
		t.Fatal("new chromosome must be marked changed")
	}
	if _, err := c.Run(context.Background(), exec); err != nil {
		t.Fatal(err)
	}
	c.SetFitness("k", 0.5)
	if _, err := c.Run(context.Background(), exec); err != nil {
		t.Fatal(err)
	}
	if exec.runs != 1 {
		t.Errorf("expected 1 execution, got %d", exec.runs)
	}
	if f, ok := c.Fitness("k"); !ok || f != 0.5 {
		t.Error("fitness cache lost without a change")
	}

	c.MarkChanged()
	if _, ok := c.Fitness("k"); ok {
		t.Error("MarkChanged must invalidate the fitness cache")
	}
	if c.Result() != nil {
		t.Error("MarkChanged must drop the cached result")
	}
	if _, err := c.Run(context.Background(), exec); err != nil {
		t.Fatal(err)
	}
	if exec.runs != 2 {
		t.Errorf("expected re-execution after change, got %d runs", exec.runs)
	}
}

func TestRun_PropagatesExecutorError(t *testing.T) {
	boom := errors.New("boom")
	exec := ExecutorFunc(func(context.Context, Test) (*execution.Result, error) { return nil, boom })
	c := NewTestChromosome(fakeTest{"a"}, 0)
	if _, err := c.Run(context.Background(), exec); !errors.Is(err, boom) {
		t.Fatalf("got %v, want boom", err)
	}
	if !c.Changed() {
		t.Error("failed run must leave the chromosome changed")
	}
}

func TestClone_IsIndependent(t *testing.T) {
	c := NewTestChromosome(fakeTest{"a"}, 3)
	c.SetFitness("k", 1)
	g := goal.NewLine("A", "m", 1)
	c.MarkCovered(g)

	cp := c.Clone()
	cp.SetFitness("k", 2)
	if f, _ := c.Fitness("k"); f != 1 {
		t.Error("clone shares the fitness map")
	}
	if !cp.Covers(g) || cp.Age() != 3 {
		t.Error("clone must carry covered goals and age")
	}
	cp.Test().(fakeTest)[0] = "z"
	if c.String() != "a" {
		t.Error("clone shares the test")
	}
}

func TestSuite_CoverageAndFitness(t *testing.T) {
	s := NewTestSuite()
	s.SetCoverage("line", 0, 0)
	if c, _ := s.Coverage("line"); c.Ratio != 1 {
		t.Errorf("empty goal set ratio = %v, want 1", c.Ratio)
	}
	s.SetCoverage("branch", 3, 4)
	c, ok := s.Coverage("branch")
	if !ok || c.Covered != 3 || c.NotCovered != 1 || c.Ratio != 0.75 {
		t.Errorf("unexpected coverage %+v", c)
	}

	s.SetFitness("line", 1.5)
	s.SetFitness("branch", 0.5)
	if got := s.TotalFitness(); got != 2 {
		t.Errorf("total fitness = %v, want 2", got)
	}
	if names := s.FitnessNames(); len(names) != 2 || names[0] != "branch" {
		t.Errorf("names = %v", names)
	}
}

func TestSuite_RunAndCoveredGoals(t *testing.T) {
	a := NewTestChromosome(fakeTest{"a"}, 0)
	b := NewTestChromosome(fakeTest{"b", "c"}, 0)
	a.MarkCovered(goal.NewLine("A", "m", 2))
	b.MarkCovered(goal.NewLine("A", "m", 1))
	b.MarkCovered(goal.NewLine("A", "m", 2))
	s := NewTestSuite(a, b)

	if s.TotalStatements() != 3 {
		t.Errorf("total statements = %d", s.TotalStatements())
	}
	results, err := s.Run(context.Background(), &countingExecutor{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[1].Statements != 2 {
		t.Errorf("unexpected results %+v", results)
	}

	// Run cleared the per-test caches because both tests were fresh.
	if n := len(s.CoveredGoals()); n != 0 {
		t.Errorf("covered goals after fresh run = %d, want 0", n)
	}
	a.MarkCovered(goal.NewLine("A", "m", 2))
	b.MarkCovered(goal.NewLine("A", "m", 1))
	b.MarkCovered(goal.NewLine("A", "m", 2))
	got := s.CoveredGoals()
	if len(got) != 2 || got[0].Line != 1 {
		t.Errorf("unexpected covered goals %v", got)
	}
}
