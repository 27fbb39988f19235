package execution

import (
	"slices"
	"testing"

	"github.com/unbound-force/mosaic/internal/goal"
)

func ctxOf(names ...string) goal.CallContext {
	frames := make([]goal.Frame, len(names))
	for i, n := range names {
		frames[i] = goal.Frame{Class: "A", Method: n}
	}
	return goal.NewCallContext(frames...)
}

func TestPredicate_KeepsMinimaPerContext(t *testing.T) {
	tr := NewTrace()
	tr.Predicate(1, ctxOf("m1", "m2"), 4, 0)
	tr.Predicate(1, ctxOf("m1", "m2"), 2, 0)
	tr.Predicate(1, ctxOf("m2"), 0, 3)

	ps, ok := tr.PredicateStats(1)
	if !ok {
		t.Fatal("predicate not recorded")
	}
	if ps.Count != 3 {
		t.Errorf("count = %d, want 3", ps.Count)
	}
	if ps.TrueDistance != 0 || ps.FalseDistance != 0 {
		t.Errorf("global distances = %v/%v, want 0/0", ps.TrueDistance, ps.FalseDistance)
	}

	ctxs := ps.SortedContexts()
	if len(ctxs) != 2 {
		t.Fatalf("expected 2 contexts, got %d", len(ctxs))
	}
	if ctxs[0].Context.String() != "A.m1->A.m2" || ctxs[0].TrueDistance != 2 || ctxs[0].Count != 2 {
		t.Errorf("unexpected m1->m2 stats %+v", ctxs[0])
	}
	if ctxs[1].FalseDistance != 3 || ctxs[1].TrueDistance != 0 {
		t.Errorf("unexpected m2 stats %+v", ctxs[1])
	}
}

func TestPredicate_ClampsNegativeDistances(t *testing.T) {
	tr := NewTrace()
	tr.Predicate(2, goal.CallContext{}, -5, 1)
	ps, _ := tr.PredicateStats(2)
	if ps.TrueDistance != 0 {
		t.Errorf("negative distance not clamped: %v", ps.TrueDistance)
	}
}

func TestEnterMethod_DirectAndNested(t *testing.T) {
	tr := NewTrace()
	tr.EnterMethod(ctxOf("m1"))
	tr.EnterMethod(ctxOf("m1", "m2"))
	tr.EnterMethod(ctxOf("m2"))
	tr.EnterMethod(goal.CallContext{})

	if n := tr.MethodCount("A.m2"); n != 2 {
		t.Errorf("m2 count = %d, want 2", n)
	}
	if n := tr.DirectCallCount("A.m2"); n != 1 {
		t.Errorf("m2 direct calls = %d, want 1", n)
	}
	if n := tr.DirectCallCount("A.m1"); n != 1 {
		t.Errorf("m1 direct calls = %d, want 1", n)
	}
	ctxs := tr.MethodContexts("A.m2")
	if len(ctxs) != 2 || ctxs[0].Context.String() != "A.m1->A.m2" {
		t.Errorf("unexpected contexts %+v", ctxs)
	}
}

func TestLines(t *testing.T) {
	tr := NewTrace()
	tr.Line("A", 7)
	tr.Line("A", 3)
	tr.Line("A", 7)
	if !tr.CoveredLine("A", 3) || tr.CoveredLine("B", 3) {
		t.Error("line membership mismatch")
	}
	if got := tr.CoveredLines("A"); !slices.Equal(got, []int{3, 7}) {
		t.Errorf("covered lines = %v", got)
	}
}

func TestResult_Informative(t *testing.T) {
	var nilResult *Result
	if nilResult.Informative() || nilResult.HasTimeout() {
		t.Error("nil result must not be informative")
	}
	r := NewResult()
	if !r.Informative() {
		t.Error("fresh result should be informative")
	}
	r.Exception = "boom"
	if !r.Informative() {
		t.Error("exceptions from the class under test are informative")
	}
	r.Timeout = true
	if r.Informative() || !r.HasTimeout() {
		t.Error("timed out result must not be informative")
	}
	r = NewResult()
	r.TestException = true
	if r.Informative() || !r.HasTestException() {
		t.Error("harness failure must not be informative")
	}
}
