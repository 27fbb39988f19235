package goanalysis_test

import (
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"testing"

	"github.com/unbound-force/mosaic/internal/factory"
	"github.com/unbound-force/mosaic/internal/goal"
	"github.com/unbound-force/mosaic/internal/goanalysis"
	"github.com/unbound-force/mosaic/internal/static"
)

// testdataPath returns the absolute path to a fixture package.
func testdataPath(pkgName string) string {
	_, thisFile, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(thisFile), "testdata", "src", pkgName)
}

func analyze(t *testing.T) *goanalysis.Analysis {
	t.Helper()
	a, err := goanalysis.Analyze(testdataPath("shapes"), ".")
	if err != nil {
		t.Fatalf("analyzing fixture: %v", err)
	}
	return a
}

func branchAt(t *testing.T, p *static.Program, class, method string, line int) static.Branch {
	t.Helper()
	for _, b := range p.BranchesIn(class, method) {
		if b.Line == line {
			return b
		}
	}
	t.Fatalf("no predicate of %s.%s on line %d", class, method, line)
	return static.Branch{}
}

func TestAnalyze_Methods(t *testing.T) {
	p := analyze(t).Program
	tests := []struct {
		class, name string
		public      bool
		line        int
		complexity  int
	}{
		{"Counter", "Add", true, 8, 2},
		{"Counter", "Value", true, 16, 1},
		{"shapes", "Classify", true, 19, 4},
		{"shapes", "distance", false, 32, 3},
	}
	for _, tt := range tests {
		m, ok := p.Method(tt.class, tt.name)
		if !ok {
			t.Errorf("method %s.%s missing", tt.class, tt.name)
			continue
		}
		if m.Public != tt.public || m.Line != tt.line || m.Complexity != tt.complexity {
			t.Errorf("%s.%s = public %v line %d complexity %d, want %v %d %d",
				tt.class, tt.name, m.Public, m.Line, m.Complexity, tt.public, tt.line, tt.complexity)
		}
	}
	if n := len(p.Methods()); n != len(tests) {
		t.Errorf("got %d methods, want %d", n, len(tests))
	}
	if m, _ := p.Method("Counter", "Add"); !slices.Contains(m.Lines, 10) || !slices.Contains(m.Lines, 12) {
		t.Errorf("Add lines = %v", m.Lines)
	}
}

func TestAnalyze_BranchesAndDependencies(t *testing.T) {
	p := analyze(t).Program
	if n := len(p.Branches()); n != 6 {
		t.Fatalf("got %d predicates, want 6", n)
	}

	add := branchAt(t, p, "Counter", "Add", 9)
	if len(add.Deps) != 0 {
		t.Errorf("top-level predicate has deps %v", add.Deps)
	}
	if deps := p.LineDeps("Counter", "Add", 10); len(deps) != 1 || deps[0] != (static.Condition{BranchID: add.ID, Value: true}) {
		t.Errorf("line 10 deps = %v", deps)
	}
	if deps := p.LineDeps("Counter", "Add", 12); len(deps) != 0 {
		t.Errorf("line after the if must be unconditional, got %v", deps)
	}

	eq := branchAt(t, p, "shapes", "Classify", 20)
	gt := branchAt(t, p, "shapes", "Classify", 23)
	much := branchAt(t, p, "shapes", "Classify", 24)
	if !slices.Equal(gt.Deps, []static.Condition{{BranchID: eq.ID, Value: false}}) {
		t.Errorf("a > b deps = %v", gt.Deps)
	}
	if !slices.Equal(much.Deps, []static.Condition{{BranchID: gt.ID, Value: true}}) {
		t.Errorf("a > 2*b deps = %v", much.Deps)
	}
	if depth := p.ApproachDepth(much.ID); depth != 2 {
		t.Errorf("approach depth = %d, want 2", depth)
	}
}

func TestAnalyze_LoopHeaderIsUnconditional(t *testing.T) {
	p := analyze(t).Program
	header := branchAt(t, p, "shapes", "distance", 33)
	inner := branchAt(t, p, "shapes", "distance", 34)
	if len(header.Deps) != 0 {
		t.Errorf("loop header deps = %v, want none", header.Deps)
	}
	if !slices.Equal(inner.Deps, []static.Condition{{BranchID: header.ID, Value: true}}) {
		t.Errorf("loop body predicate deps = %v", inner.Deps)
	}
	if deps := p.LineDeps("shapes", "distance", 38); !slices.Equal(deps, []static.Condition{{BranchID: header.ID, Value: false}}) {
		t.Errorf("line after the loop deps = %v", deps)
	}
}

func TestAnalyze_CallEdges(t *testing.T) {
	p := analyze(t).Program
	callers := p.Callers("shapes", "distance")
	if len(callers) != 1 || callers[0] != (goal.Frame{Class: "shapes", Method: "Classify"}) {
		t.Errorf("callers of distance = %v", callers)
	}
}

func TestAnalyze_FeedsGoalFactories(t *testing.T) {
	p := analyze(t).Program
	goals, err := factory.Goals(goal.CriterionBranch, p, factory.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	branches, traces := 0, 0
	for _, g := range goals {
		switch g.Kind {
		case goal.Branch:
			branches++
		case goal.MethodTrace:
			traces++
		}
	}
	if branches != 12 || traces != 1 {
		t.Errorf("got %d branch and %d methodtrace goals, want 12 and 1", branches, traces)
	}

	ctxGoals, err := factory.Goals(goal.CriterionCBranch, p, factory.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	want := "shapes.distance:branch"
	found := false
	for _, g := range ctxGoals {
		if g.QualifiedMethod() == "shapes.distance" && g.Context.String() == "shapes.Classify->shapes.distance" {
			found = true
		}
	}
	if !found {
		t.Errorf("no %s goal in the context of Classify", want)
	}
}

func TestBaseline(t *testing.T) {
	a := analyze(t)
	profile := filepath.Join(t.TempDir(), "cover.out")
	data := "mode: set\n" +
		a.PkgPath + "/shapes.go:8.34,9.11 1 1\n" +
		a.PkgPath + "/shapes.go:9.11,11.3 1 0\n" +
		a.PkgPath + "/shapes.go:12.2,12.12 1 1\n" +
		"example.com/other/shapes.go:20.1,21.2 1 1\n"
	if err := os.WriteFile(profile, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	base, err := a.Baseline(profile)
	if err != nil {
		t.Fatal(err)
	}
	if !base.Covered("Counter", "Add", 9) || !base.Covered("Counter", "Add", 12) {
		t.Errorf("covered lines missing from baseline: %v", base)
	}
	if base.Covered("Counter", "Add", 10) {
		t.Error("line 10 was not executed")
	}
	if base.Covered("shapes", "Classify", 20) {
		t.Error("entries of other packages must be ignored")
	}

	goals, err := factory.Goals(goal.CriterionLine, a.Program, factory.Filter{Baseline: base})
	if err != nil {
		t.Fatal(err)
	}
	for _, g := range goals {
		if g.QualifiedMethod() == "Counter.Add" && (g.Line == 9 || g.Line == 12) {
			t.Errorf("baseline line still has a goal: %s", g)
		}
	}

	if _, err := a.Baseline(filepath.Join(t.TempDir(), "missing.out")); err == nil {
		t.Error("expected error for a missing profile")
	}
}
