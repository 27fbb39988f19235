package search_test

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"testing"

	"github.com/unbound-force/mosaic/internal/archive"
	"github.com/unbound-force/mosaic/internal/chromosome"
	"github.com/unbound-force/mosaic/internal/execution"
	"github.com/unbound-force/mosaic/internal/factory"
	"github.com/unbound-force/mosaic/internal/fitness"
	"github.com/unbound-force/mosaic/internal/goal"
	"github.com/unbound-force/mosaic/internal/search"
	"github.com/unbound-force/mosaic/internal/static"
	"github.com/unbound-force/mosaic/internal/subject"
)

type env struct {
	ops    *subject.Operators
	exec   *subject.Executor
	scorer *fitness.Scorer
	fn     *fitness.SuiteFitness
}

func newEnv(t *testing.T, file string, c goal.Criterion, archiving bool) *env {
	t.Helper()
	class, err := subject.Load(filepath.Join("..", "subject", "testdata", file))
	if err != nil {
		t.Fatal(err)
	}
	p, err := class.Program()
	if err != nil {
		t.Fatal(err)
	}
	goals, err := factory.Goals(c, p, factory.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	var arch *archive.Archive
	if archiving {
		arch = archive.New()
	}
	scorer := fitness.NewScorer(p, arch, goal.MatchExact)
	ops, err := subject.NewOperators(class)
	if err != nil {
		t.Fatal(err)
	}
	return &env{
		ops:    ops,
		exec:   subject.NewExecutor(class),
		scorer: scorer,
		fn:     fitness.NewSuiteFitness(string(c), goals, scorer, fitness.DefaultOptions(c, scorer)),
	}
}

func config(pop, gens int) search.Config {
	cfg := search.DefaultConfig()
	cfg.PopulationSize = pop
	cfg.Stopping = []search.StoppingCondition{search.MaxGenerations{Limit: gens}}
	return cfg
}

func (e *env) run(t *testing.T, cfg search.Config) *search.Result {
	t.Helper()
	m, err := search.New(cfg, e.ops, e.exec, e.scorer, e.fn)
	if err != nil {
		t.Fatal(err)
	}
	res, err := m.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if m.State() != search.Terminated {
		t.Errorf("state after Run = %s", m.State())
	}
	return res
}

func suiteStrings(s *chromosome.TestSuiteChromosome) []string {
	var out []string
	for _, t := range s.Tests() {
		out = append(out, t.String())
	}
	return out
}

func TestNew_Validation(t *testing.T) {
	e := newEnv(t, "sign.yaml", goal.CriterionBranch, true)
	tests := map[string]func(*search.Config){
		"population":  func(c *search.Config) { c.PopulationSize = 1 },
		"crossover":   func(c *search.Config) { c.CrossoverRate = 1.5 },
		"insertion":   func(c *search.Config) { c.TestInsertionProbability = -0.1 },
		"no stopping": func(c *search.Config) { c.Stopping = nil },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := config(10, 5)
			mutate(&cfg)
			if _, err := search.New(cfg, e.ops, e.exec, e.scorer, e.fn); err == nil {
				t.Error("expected error")
			}
		})
	}

	empty := fitness.NewSuiteFitness("none", nil, e.scorer, fitness.Options{})
	if _, err := search.New(config(10, 5), e.ops, e.exec, e.scorer, empty); !errors.Is(err, search.ErrNoObjectives) {
		t.Errorf("got %v, want ErrNoObjectives", err)
	}
}

func TestRun_FullCoverage(t *testing.T) {
	e := newEnv(t, "sign.yaml", goal.CriterionBranch, true)
	res := e.run(t, config(10, 50))

	if res.StoppedBy != "full_coverage" {
		t.Errorf("stopped by %q, want full_coverage", res.StoppedBy)
	}
	if len(res.Uncovered) != 0 || len(res.Covered) != 2 {
		t.Errorf("covered %v, uncovered %v", res.Covered, res.Uncovered)
	}
	cov, ok := res.Suite.Coverage("branch")
	if !ok || cov.Covered != 2 || cov.Ratio != 1 {
		t.Errorf("suite coverage = %+v", cov)
	}
	if f, _ := res.Suite.Fitness("branch"); f != 0 {
		t.Errorf("suite fitness = %v, want 0", f)
	}
	if n := len(e.fn.LiveGoals()); n != 0 {
		t.Errorf("%d goals still live after full coverage", n)
	}
	if len(res.History) != res.Generations+1 {
		t.Errorf("history has %d entries for %d generations", len(res.History), res.Generations)
	}
}

func TestRun_Deterministic(t *testing.T) {
	runOnce := func() *search.Result {
		e := newEnv(t, "triangle.yaml", goal.CriterionBranch, true)
		cfg := config(12, 6)
		cfg.Seed = 42
		return e.run(t, cfg)
	}
	a, b := runOnce(), runOnce()
	if a.SelectionDigest != b.SelectionDigest {
		t.Error("parent selection differs between runs with the same seed")
	}
	if !reflect.DeepEqual(suiteStrings(a.Suite), suiteStrings(b.Suite)) {
		t.Errorf("final suites differ:\n%v\n%v", suiteStrings(a.Suite), suiteStrings(b.Suite))
	}
	if !reflect.DeepEqual(a.Covered, b.Covered) || a.Statements != b.Statements {
		t.Error("coverage or statement count differs between runs with the same seed")
	}

	e := newEnv(t, "triangle.yaml", goal.CriterionBranch, true)
	cfg := config(12, 6)
	cfg.Seed = 43
	if c := e.run(t, cfg); c.SelectionDigest == a.SelectionDigest {
		t.Error("different seeds selected identical parents")
	}
}

func TestRun_ContextSensitiveGoals(t *testing.T) {
	e := newEnv(t, "context.yaml", goal.CriterionCBranch, true)
	res := e.run(t, config(10, 60))

	nested := goal.NewBranch("Ctx", "helper", 1, true).WithContext(goal.NewCallContext(
		goal.Frame{Class: "Ctx", Method: "run"},
		goal.Frame{Class: "Ctx", Method: "helper"},
	))
	sol, ok := e.scorer.Archive().Solution(nested)
	if !ok {
		t.Fatalf("%s not covered; uncovered %v", nested, res.Uncovered)
	}
	if !strings.Contains(sol.String(), "run(7)") {
		t.Errorf("solution %q does not reach the predicate through run", sol)
	}
	if len(res.Uncovered) != 0 {
		t.Errorf("uncovered goals: %v", res.Uncovered)
	}
}

func TestRun_StatementBudget(t *testing.T) {
	e := newEnv(t, "triangle.yaml", goal.CriterionBranch, true)
	cfg := config(10, 100)
	cfg.Stopping = []search.StoppingCondition{search.MaxStatements{Limit: 1}}
	budget := &search.Budget{}
	cfg.Budget = budget

	res := e.run(t, cfg)
	if res.StoppedBy != "max_statements" || res.Generations != 0 {
		t.Errorf("stopped by %q after %d generations", res.StoppedBy, res.Generations)
	}
	if budget.Consumed() == 0 || budget.Consumed() != res.Statements {
		t.Errorf("budget %d, result %d", budget.Consumed(), res.Statements)
	}
}

func TestRun_ExternalStop(t *testing.T) {
	e := newEnv(t, "triangle.yaml", goal.CriterionBranch, true)
	cfg := config(10, 100)
	var m *search.MOSA
	cfg.OnGeneration = func(st search.GenerationStats) {
		if st.Generation == 2 {
			m.Stop()
		}
	}
	m, err := search.New(cfg, e.ops, e.exec, e.scorer, e.fn)
	if err != nil {
		t.Fatal(err)
	}
	res, err := m.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Generations > 2 {
		t.Errorf("ran %d generations after Stop", res.Generations)
	}
	if res.StoppedBy != "external" && res.StoppedBy != "full_coverage" {
		t.Errorf("stopped by %q", res.StoppedBy)
	}
	if _, err := m.Run(context.Background()); !errors.Is(err, search.ErrAlreadyRun) {
		t.Errorf("second Run: got %v, want ErrAlreadyRun", err)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	e := newEnv(t, "sign.yaml", goal.CriterionBranch, true)
	m, err := search.New(config(10, 100), e.ops, e.exec, e.scorer, e.fn)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := m.Run(ctx)
	if err != nil {
		t.Fatalf("cancellation must not be an error: %v", err)
	}
	if res.StoppedBy != "external" || res.Generations != 0 || res.Suite.Len() != 0 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestRun_WithoutArchiveKeepsGoalsLive(t *testing.T) {
	e := newEnv(t, "sign.yaml", goal.CriterionBranch, false)
	res := e.run(t, config(10, 30))
	if len(res.Covered) != 2 {
		t.Errorf("covered %v", res.Covered)
	}
	if n := len(e.fn.LiveGoals()); n != e.fn.TotalGoals() {
		t.Errorf("%d of %d goals live; nothing may be removed without an archive", n, e.fn.TotalGoals())
	}
	if cov, _ := res.Suite.Coverage("branch"); cov.Covered != 2 {
		t.Errorf("suite coverage = %+v", cov)
	}
}

type noCrossover struct{ chromosome.Operators }

func (noCrossover) Crossover(*rand.Rand, chromosome.Test, chromosome.Test) (chromosome.Test, chromosome.Test, error) {
	return nil, nil, errors.New("incompatible parents")
}

func TestRun_CrossoverFailureSkipsAttempt(t *testing.T) {
	e := newEnv(t, "triangle.yaml", goal.CriterionBranch, true)
	cfg := config(10, 3)
	cfg.CrossoverRate = 1
	m, err := search.New(cfg, noCrossover{e.ops}, e.exec, e.scorer, e.fn)
	if err != nil {
		t.Fatal(err)
	}
	res, err := m.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	skipped := 0
	for _, st := range res.History[1:] {
		skipped += st.SkippedCrossovers
		if st.Offspring == 0 && res.StoppedBy != "full_coverage" {
			t.Errorf("generation %d bred no offspring", st.Generation)
		}
	}
	if res.Generations > 0 && skipped == 0 {
		t.Error("no crossover was recorded as skipped")
	}
}

type trashOnly struct{ chromosome.Operators }

func (trashOnly) CallsTarget(chromosome.Test) bool { return false }

func TestRun_TrashOnlyOperatorsFail(t *testing.T) {
	e := newEnv(t, "triangle.yaml", goal.CriterionBranch, true)
	m, err := search.New(config(4, 10), trashOnly{e.ops}, e.exec, e.scorer, e.fn)
	if err != nil {
		t.Fatal(err)
	}
	res, err := m.Run(context.Background())
	if err == nil && res.StoppedBy != "full_coverage" {
		t.Error("expected an error when every offspring is discarded")
	}
}

func TestRun_MinimizeKeepsCoverage(t *testing.T) {
	e := newEnv(t, "triangle.yaml", goal.CriterionLine, true)
	cfg := config(12, 15)
	cfg.LocalSearch = search.Minimize
	res := e.run(t, cfg)

	cov, _ := res.Suite.Coverage("line")
	if cov.Covered < len(res.Covered) {
		t.Errorf("minimized suite covers %d goals, archive %d", cov.Covered, len(res.Covered))
	}
	if res.Suite.Len() > len(e.scorer.Archive().Solutions()) {
		t.Error("minimization grew the suite")
	}
}

// sized is a test of n statements on C.m, whose single predicate has
// distance n-1 to true and 100-n to false: only one-statement tests
// take the true branch and none takes the false one.
type sized struct{ n int }

func (s *sized) Size() int { return s.n }
func (s *sized) Clone() chromosome.Test {
	cp := *s
	return &cp
}
func (s *sized) String() string { return "sized(" + strconv.Itoa(s.n) + ")" }

// randomSizes draws tests of 1 to 20 statements.
type randomSizes struct{}

func (randomSizes) RandomTest(rng *rand.Rand) chromosome.Test {
	return &sized{n: 1 + rng.Intn(20)}
}

func (randomSizes) Mutate(rng *rand.Rand, t chromosome.Test) bool {
	s := t.(*sized)
	before := s.n
	s.n = 1 + rng.Intn(20)
	return s.n != before
}

func (randomSizes) Crossover(_ *rand.Rand, a, b chromosome.Test) (chromosome.Test, chromosome.Test, error) {
	return a.Clone(), b.Clone(), nil
}

func (randomSizes) CallsTarget(chromosome.Test) bool { return true }

// shrinking starts from 5 to 20 statements; mutation removes one.
type shrinking struct{ randomSizes }

func (shrinking) RandomTest(rng *rand.Rand) chromosome.Test {
	return &sized{n: 5 + rng.Intn(16)}
}

func (shrinking) Mutate(_ *rand.Rand, t chromosome.Test) bool {
	s := t.(*sized)
	if s.n == 1 {
		return false
	}
	s.n--
	return true
}

type sizedEnv struct {
	exec     chromosome.Executor
	smallest int
	scorer   *fitness.Scorer
	fn       *fitness.SuiteFitness
	taken    goal.Goal
	skipped  goal.Goal
}

func newSizedEnv(t *testing.T) *sizedEnv {
	t.Helper()
	p := static.NewProgram("C")
	if err := p.AddMethod(static.Method{Class: "C", Name: "m", Public: true, Line: 1, Lines: []int{1, 2}}); err != nil {
		t.Fatal(err)
	}
	if err := p.AddBranch(static.Branch{ID: 1, Class: "C", Method: "m", Line: 1}); err != nil {
		t.Fatal(err)
	}
	e := &sizedEnv{
		smallest: math.MaxInt,
		scorer:   fitness.NewScorer(p, archive.New(), goal.MatchExact),
		taken:    goal.NewBranch("C", "m", 1, true),
		skipped:  goal.NewBranch("C", "m", 1, false),
	}
	e.fn = fitness.NewSuiteFitness("branch", []goal.Goal{e.taken, e.skipped}, e.scorer, fitness.Options{})
	frame := goal.NewCallContext(goal.Frame{Class: "C", Method: "m"})
	e.exec = chromosome.ExecutorFunc(func(_ context.Context, test chromosome.Test) (*execution.Result, error) {
		n := test.Size()
		e.smallest = min(e.smallest, n)
		res := execution.NewResult()
		res.Trace.EnterMethod(frame)
		res.Trace.Predicate(1, frame, float64(n-1), float64(100-n))
		res.Statements = n
		return res, nil
	})
	return e
}

func TestRun_ArchiveKeepsShortestCoveringTest(t *testing.T) {
	e := newSizedEnv(t)
	cfg := config(10, 30)
	cfg.LocalSearch = search.Minimize
	m, err := search.New(cfg, randomSizes{}, e.exec, e.scorer, e.fn)
	if err != nil {
		t.Fatal(err)
	}
	res, err := m.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	sol, ok := e.scorer.Archive().Solution(e.taken)
	if !ok {
		t.Fatal("the true branch was never covered")
	}
	if sol.Size() != e.smallest {
		t.Errorf("archived solution has %d statements, smallest executed test had %d", sol.Size(), e.smallest)
	}
	if !sol.Covers(e.taken) {
		t.Error("archived solution does not record the goal it covers")
	}
	if got := res.Suite.Tests(); len(got) != 1 || got[0].Size() != e.smallest {
		t.Errorf("minimized suite = %v, want the %d-statement test", suiteStrings(res.Suite), e.smallest)
	}
}

func TestRun_SurvivorsRankedOnPreviousGoals(t *testing.T) {
	e := newSizedEnv(t)
	m, err := search.New(config(10, 40), shrinking{}, e.exec, e.scorer, e.fn)
	if err != nil {
		t.Fatal(err)
	}
	res, err := m.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	// The generation covering the true branch still ranks on both
	// goals, so its first front holds the best test for each; from the
	// next one on only the false branch is ranked.
	for i, st := range res.History {
		if st.Covered == 0 {
			continue
		}
		if i == 0 {
			t.Fatal("initial tests must not cover the true branch")
		}
		if st.FrontZero != 2 {
			t.Errorf("generation %d covered the true branch with %d tests in the first front, want 2", st.Generation, st.FrontZero)
		}
		if i+1 < len(res.History) && res.History[i+1].FrontZero != 1 {
			t.Errorf("generation %d has %d tests in the first front, want 1", i+1, res.History[i+1].FrontZero)
		}
		return
	}
	t.Fatal("the true branch was never covered")
}

type stmts int

func (s stmts) Size() int { return int(s) }
func (s stmts) Clone() chromosome.Test { return s }
func (s stmts) String() string { return strings.Repeat("x;", int(s)) }

func covering(size int, goals ...goal.Goal) *chromosome.TestChromosome {
	c := chromosome.NewTestChromosome(stmts(size), 0)
	for _, g := range goals {
		c.MarkCovered(g)
	}
	return c
}

func TestMinimize(t *testing.T) {
	g1 := goal.NewLine("A", "m", 1)
	g2 := goal.NewLine("A", "m", 2)
	g3 := goal.NewLine("A", "m", 3)
	a := covering(3, g1)
	b := covering(5, g1, g2, g3)
	c := covering(1, g2)
	d := covering(1, g1, g2, g3)

	out, err := search.Minimize(context.Background(), chromosome.NewTestSuite(a, b, c, d))
	if err != nil {
		t.Fatal(err)
	}
	if got := out.Tests(); len(got) != 1 || got[0] != d {
		t.Errorf("kept %v, want only the shortest full test", suiteStrings(out))
	}

	out, _ = search.Minimize(context.Background(), chromosome.NewTestSuite(a, c))
	if out.Len() != 2 {
		t.Errorf("kept %d tests, want 2", out.Len())
	}
}

func TestNonDominatedSort(t *testing.T) {
	got := search.NonDominatedSort([][]float64{{0, 1}, {1, 0}, {1, 1}, {2, 2}})
	want := [][]int{{0, 1}, {2}, {3}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("fronts = %v, want %v", got, want)
	}
}

func TestCrowding(t *testing.T) {
	got := search.Crowding([][]float64{{0, 4}, {1, 3}, {2, 2}, {4, 0}})
	if !math.IsInf(got[0], 1) || !math.IsInf(got[3], 1) {
		t.Errorf("boundary points must be infinite: %v", got)
	}
	if got[1] != 1 || got[2] != 1.5 {
		t.Errorf("interior distances = %v, want 1 and 1.5", got[1:3])
	}
	for _, v := range search.Crowding([][]float64{{1}, {2}}) {
		if !math.IsInf(v, 1) {
			t.Error("fronts of two are all boundary")
		}
	}
}

func TestPreferenceFronts(t *testing.T) {
	d := [][]float64{{0, 5}, {0, 5}, {3, 1}, {2, 2}, {4, 4}}
	got := search.PreferenceFronts(d, []int{3, 1, 2, 2, 2})
	want := [][]int{{1, 2}, {0, 3}, {4}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("fronts = %v, want %v", got, want)
	}
}
