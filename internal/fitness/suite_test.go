package fitness_test

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/unbound-force/mosaic/internal/archive"
	"github.com/unbound-force/mosaic/internal/chromosome"
	"github.com/unbound-force/mosaic/internal/execution"
	"github.com/unbound-force/mosaic/internal/fitness"
	"github.com/unbound-force/mosaic/internal/goal"
)

func signBranchGoals() []goal.Goal {
	return []goal.Goal{
		goal.NewBranch("A", "sign", 1, false),
		goal.NewBranch("A", "sign", 1, true),
	}
}

func suiteOf(results ...*execution.Result) (*chromosome.TestSuiteChromosome, []*execution.Result) {
	s := chromosome.NewTestSuite()
	for _, r := range results {
		s.AddTest(chromosomeWith(r, 1))
	}
	return s, results
}

func checkBounds(t *testing.T, f *fitness.SuiteFitness, suite *chromosome.TestSuiteChromosome, value float64) {
	t.Helper()
	cov, ok := suite.Coverage(f.Name())
	if !ok {
		t.Fatal("coverage not recorded")
	}
	if value < 0 || cov.Ratio < 0 || cov.Ratio > 1 {
		t.Errorf("out of bounds: fitness %v, ratio %v", value, cov.Ratio)
	}
	if (value == 0) != (cov.Covered == f.TotalGoals()) {
		t.Errorf("fitness %v inconsistent with %d/%d covered", value, cov.Covered, f.TotalGoals())
	}
	if len(f.LiveGoals())+len(f.RemovedGoals()) != f.TotalGoals() {
		t.Errorf("goal count not conserved")
	}
}

func TestSuiteFitness_RemovalWithArchive(t *testing.T) {
	arch := archive.New()
	s := fitness.NewScorer(signProgram(t), arch, goal.MatchExact)
	f := fitness.NewSuiteFitness("branch", signBranchGoals(), s, fitness.Options{})
	if arch.NumTargets() != 2 {
		t.Fatalf("goals not registered with the archive: %d", arch.NumTargets())
	}

	suite, results := suiteOf(signRun(5))
	value := f.Evaluate(suite, results)
	checkBounds(t, f, suite, value)
	if value != fitness.Normalize(5) {
		t.Errorf("fitness = %v, want normalize(5)", value)
	}
	if p := f.Pending(); len(p) != 1 || !p[0].Value {
		t.Fatalf("pending = %v, want the true branch", p)
	}

	enabled, err := f.UpdateCoveredGoals()
	if err != nil || !enabled {
		t.Fatalf("flush: enabled=%v err=%v", enabled, err)
	}
	if len(f.LiveGoals()) != 1 || len(f.RemovedGoals()) != 1 {
		t.Errorf("expected 1 live and 1 removed goal, got %d/%d", len(f.LiveGoals()), len(f.RemovedGoals()))
	}

	enabled, err = f.UpdateCoveredGoals()
	if err != nil || !enabled || len(f.RemovedGoals()) != 1 {
		t.Errorf("second flush must be an empty delta: enabled=%v err=%v removed=%d",
			enabled, err, len(f.RemovedGoals()))
	}

	// Covering the remaining goal completes the criterion.
	suite, results = suiteOf(signRun(5), signRun(-1))
	value = f.Evaluate(suite, results)
	checkBounds(t, f, suite, value)
	if value != 0 {
		t.Errorf("fitness with both directions covered = %v", value)
	}
	if cov, _ := suite.Coverage("branch"); cov.Ratio != 1 {
		t.Errorf("coverage = %v, want 1", cov.Ratio)
	}
}

func TestSuiteFitness_NoArchiveNeverRemoves(t *testing.T) {
	s := fitness.NewScorer(signProgram(t), nil, goal.MatchExact)
	f := fitness.NewSuiteFitness("branch", signBranchGoals(), s, fitness.Options{})

	suite, results := suiteOf(signRun(5), signRun(-1))
	value := f.Evaluate(suite, results)
	checkBounds(t, f, suite, value)
	for i := 0; i < 2; i++ {
		enabled, err := f.UpdateCoveredGoals()
		if err != nil || enabled {
			t.Fatalf("flush %d: enabled=%v err=%v", i, enabled, err)
		}
	}
	if len(f.LiveGoals()) != 2 {
		t.Errorf("goals removed without archive")
	}
	if len(f.Pending()) != 0 {
		t.Error("flush must clear the pending queue")
	}
}

func TestSuiteFitness_ExcludesFailedTests(t *testing.T) {
	s := fitness.NewScorer(signProgram(t), nil, goal.MatchExact)
	f := fitness.NewSuiteFitness("branch", signBranchGoals(), s, fitness.Options{})

	broken := signRun(-1)
	broken.TestException = true
	suite, results := suiteOf(signRun(5), broken)
	f.Evaluate(suite, results)
	cov, _ := suite.Coverage("branch")
	if cov.Covered != 1 {
		t.Errorf("harness failure must not contribute coverage, covered=%d", cov.Covered)
	}
}

func TestSuiteFitness_LineTimeoutPenalty(t *testing.T) {
	p := signProgram(t)
	s := fitness.NewScorer(p, nil, goal.MatchExact)
	lines := []goal.Goal{
		goal.NewLine("A", "sign", 2),
		goal.NewLine("A", "sign", 3),
		goal.NewLine("A", "sign", 5),
	}
	f := fitness.NewSuiteFitness("line", lines, s, fitness.DefaultOptions(goal.CriterionLine, s))

	slow := signRun(-1)
	slow.Timeout = true
	suite, results := suiteOf(signRun(5), slow)
	if got := f.Evaluate(suite, results); got != 3 {
		t.Errorf("fitness with a timeout = %v, want total goals 3", got)
	}
}

func TestSuiteFitness_LineGuidance(t *testing.T) {
	p := signProgram(t)
	s := fitness.NewScorer(p, nil, goal.MatchExact)
	lines := []goal.Goal{
		goal.NewLine("A", "sign", 2),
		goal.NewLine("A", "sign", 3),
		goal.NewLine("A", "sign", 5),
	}
	f := fitness.NewSuiteFitness("line", lines, s, fitness.DefaultOptions(goal.CriterionLine, s))

	// x = 4 misses line 5; guidance adds normalize(4) for the false
	// direction of branch 1.
	suite, results := suiteOf(signRun(4))
	got := f.Evaluate(suite, results)
	want := 1 + fitness.Normalize(4)
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("fitness = %v, want %v", got, want)
	}
	checkBounds(t, f, suite, got)

	// Nothing executed: every line misses and branch 1 contributes 1
	// per direction.
	idle := execution.NewResult()
	suite, results = suiteOf(idle)
	if got := f.Evaluate(suite, results); got != 5 {
		t.Errorf("idle fitness = %v, want 5", got)
	}
}

func TestLineGuidance_ShrinksWithLiveSet(t *testing.T) {
	g := fitness.NewLineGuidance(signProgram(t))
	g.Reset([]goal.Goal{goal.NewLine("A", "sign", 3), goal.NewLine("A", "sign", 5)})
	tr, fa, both := g.Controlling()
	if len(tr) != 0 || len(fa) != 0 || len(both) != 1 {
		t.Fatalf("controlling = %v %v %v, want branch 1 both ways", tr, fa, both)
	}
	g.Reset([]goal.Goal{goal.NewLine("A", "sign", 5)})
	tr, fa, both = g.Controlling()
	if len(tr) != 0 || len(fa) != 1 || len(both) != 0 {
		t.Errorf("controlling = %v %v %v, want branch 1 false", tr, fa, both)
	}
}

func TestSuiteFitness_InconsistentFlush(t *testing.T) {
	arch := archive.New()
	s := fitness.NewScorer(signProgram(t), arch, goal.MatchExact)

	t.Run("already removed", func(t *testing.T) {
		f := fitness.NewSuiteFitness("branch", signBranchGoals(), s, fitness.Options{})
		suite, results := suiteOf(signRun(5))
		f.Evaluate(suite, results)
		if _, err := f.UpdateCoveredGoals(); err != nil {
			t.Fatal(err)
		}
		f.ForceEnqueue(1)
		if _, err := f.UpdateCoveredGoals(); !errors.Is(err, goal.ErrNotIndexed) {
			t.Errorf("got %v, want ErrNotIndexed", err)
		}
	})

	t.Run("missing from index", func(t *testing.T) {
		f := fitness.NewSuiteFitness("method", []goal.Goal{goal.NewMethod("A", "sign")}, s, fitness.Options{})
		f.DropFromIndex("A.sign")
		f.ForceEnqueue(0)
		if _, err := f.UpdateCoveredGoals(); !errors.Is(err, fitness.ErrInconsistentGoals) {
			t.Errorf("got %v, want ErrInconsistentGoals", err)
		}
	})

	t.Run("not covered in archive", func(t *testing.T) {
		f := fitness.NewSuiteFitness("line", []goal.Goal{goal.NewLine("A", "sign", 9)}, s, fitness.Options{})
		f.ForceEnqueue(0)
		if _, err := f.UpdateCoveredGoals(); !errors.Is(err, fitness.ErrInconsistentGoals) {
			t.Errorf("got %v, want ErrInconsistentGoals", err)
		}
	})
}

func TestSuiteFitness_SideTables(t *testing.T) {
	s := fitness.NewScorer(signProgram(t), nil, goal.MatchExact)
	goals := append(signBranchGoals(), goal.NewMethodTrace("A", "sign"))
	f := fitness.NewSuiteFitness("branch", goals, s, fitness.Options{})
	if got := f.BranchGoals(1); len(got) != 2 {
		t.Errorf("branch goals = %v", got)
	}
	if got := f.MethodGoals("A.sign"); len(got) != 1 || got[0].Kind != goal.MethodTrace {
		t.Errorf("method goals = %v", got)
	}
}

func row(width int, ones ...int) []bool {
	r := make([]bool, width)
	for _, i := range ones {
		r[i] = true
	}
	return r
}

func TestRho_Density(t *testing.T) {
	goals := make([]goal.Goal, 10)
	for i := range goals {
		goals[i] = goal.NewRho("A", "m", i+1)
	}
	s := fitness.NewScorer(nil, nil, goal.MatchExact)
	f, err := fitness.NewRhoFitness(goals, s, fitness.RhoDefault, nil)
	if err != nil {
		t.Fatal(err)
	}
	m := &fitness.CoverageMatrix{NumCols: 10}
	m.AddRow(row(10, 0, 1, 2), true)
	m.AddRow(row(10, 2, 3, 4), true)
	if got := f.Compute(m); math.Abs(got-0.2) > 1e-12 {
		t.Errorf("rho = %v, want 0.2", got)
	}
	if got := fitness.Rho(0, 0, 10); got != 0.5 {
		t.Errorf("empty rho = %v, want 0.5", got)
	}
}

func TestRho_Entbug(t *testing.T) {
	goals := make([]goal.Goal, 4)
	for i := range goals {
		goals[i] = goal.NewRho("A", "m", i+1)
	}
	s := fitness.NewScorer(nil, nil, goal.MatchExact)

	prev := &fitness.CoverageMatrix{}
	prev.AddRow(row(4, 0), true)

	f, err := fitness.NewRhoFitness(goals, s, fitness.RhoEntbug, prev)
	if err != nil {
		t.Fatal(err)
	}
	m := &fitness.CoverageMatrix{NumCols: 4}
	m.AddRow(row(4, 0), true)    // seen in the previous matrix
	m.AddRow(row(4, 1, 2), true) // novel
	m.AddRow(row(4, 1, 2), true) // seen locally
	// Counted: previous (1 one, 1 row) + novel (2 ones, 1 row).
	want := math.Abs(0.5 - 3.0/8.0)
	if got := f.Compute(m); math.Abs(got-want) > 1e-12 {
		t.Errorf("entbug rho = %v, want %v", got, want)
	}

	if _, err := fitness.NewRhoFitness(goals[:3], s, fitness.RhoEntbug, prev); err == nil {
		t.Error("expected width mismatch error")
	}
}

func TestRho_EvaluateRecordsFitnessAndCoverage(t *testing.T) {
	p := signProgram(t)
	s := fitness.NewScorer(p, nil, goal.MatchExact)
	goals := []goal.Goal{
		goal.NewRho("A", "sign", 2),
		goal.NewRho("A", "sign", 3),
		goal.NewRho("A", "sign", 5),
	}
	f, err := fitness.NewRhoFitness(goals, s, fitness.RhoDefault, nil)
	if err != nil {
		t.Fatal(err)
	}
	suite, results := suiteOf(signRun(5), signRun(-5))
	got := f.Evaluate(suite, results)
	// 4 ones over 2 tests × 3 goals.
	if want := math.Abs(0.5 - 4.0/6.0); math.Abs(got-want) > 1e-12 {
		t.Errorf("rho = %v, want %v", got, want)
	}
	if v, _ := suite.Fitness("rho"); v != got {
		t.Errorf("recorded fitness = %v", v)
	}
	if cov, _ := suite.Coverage("rho"); cov.Covered != 3 {
		t.Errorf("rho coverage = %+v", cov)
	}
	if m := f.LastMatrix(); m == nil || len(m.Rows) != 2 {
		t.Error("last matrix not recorded")
	}
}

func TestMatrix_LoadWrite(t *testing.T) {
	in := "1 0 1 +\n\n0 0 1 -\n"
	m, err := fitness.LoadMatrix(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Rows) != 2 || m.NumCols != 3 || m.Ones() != 3 || m.Passed[1] {
		t.Errorf("unexpected matrix %+v", m)
	}
	var buf bytes.Buffer
	if err := fitness.WriteMatrix(&buf, m); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "1 0 1 +\n0 0 1 -\n" {
		t.Errorf("written matrix = %q", buf.String())
	}

	for _, bad := range []string{"1 0 1\n", "1 2 +\n", "1 0 +\n1 +\n"} {
		if _, err := fitness.LoadMatrix(strings.NewReader(bad)); err == nil {
			t.Errorf("LoadMatrix(%q): expected error", bad)
		}
	}
}
