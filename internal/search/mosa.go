// Package search implements MOSA, the many-objective sorting algorithm
// for test generation. Each uncovered goal is a separate objective; the
// population evolves towards all of them at once while an archive
// keeps the shortest test found for every covered goal.
package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"math"
	"math/rand"
	"slices"
	"sync/atomic"
	"time"

	charmlog "github.com/charmbracelet/log"

	"github.com/unbound-force/mosaic/internal/archive"
	"github.com/unbound-force/mosaic/internal/chromosome"
	"github.com/unbound-force/mosaic/internal/execution"
	"github.com/unbound-force/mosaic/internal/fitness"
	"github.com/unbound-force/mosaic/internal/goal"
)

var (
	// ErrNoObjectives is returned when the suite functions define no
	// goal to search for.
	ErrNoObjectives = errors.New("no objectives to search for")

	// ErrAlreadyRun is returned when Run is called twice on one engine.
	ErrAlreadyRun = errors.New("search already run")

	// errInterrupted aborts an evaluation when the context is done.
	errInterrupted = errors.New("search interrupted")
)

// State is the lifecycle stage of an engine.
type State int32

const (
	// Initializing covers seeding and scoring the first population.
	Initializing State = iota

	// Evolving is the generational loop.
	Evolving

	// Terminated is reached once Run has returned.
	Terminated
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Evolving:
		return "evolving"
	case Terminated:
		return "terminated"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// LocalSearch post-processes the final suite and returns the suite to
// report.
type LocalSearch func(ctx context.Context, suite *chromosome.TestSuiteChromosome) (*chromosome.TestSuiteChromosome, error)

// Config parameterizes a search.
type Config struct {
	PopulationSize int

	// CrossoverRate is the probability that a pair of parents is
	// recombined before mutation.
	CrossoverRate float64

	// TestInsertionProbability sets how many individuals are injected
	// each generation: PopulationSize × TestInsertionProbability, half
	// fresh random tests and half mutated archive solutions.
	TestInsertionProbability float64

	Seed int64

	// Stopping lists the conditions that end the search; the first
	// one to fire wins. FullCoverage is always added.
	Stopping []StoppingCondition

	// Budget counts executed statements. A nil Budget gets a fresh one.
	Budget *Budget

	LocalSearch LocalSearch

	// Logger receives progress; nil discards it.
	Logger *charmlog.Logger

	// OnGeneration is called after each generation completes.
	OnGeneration func(GenerationStats)

	// Now overrides the clock.
	Now func() time.Time
}

// DefaultConfig returns the parameters used when none are given.
func DefaultConfig() Config {
	return Config{
		PopulationSize:           50,
		CrossoverRate:            0.75,
		TestInsertionProbability: 0.1,
		Seed:                     1,
		Stopping:                 []StoppingCondition{MaxGenerations{Limit: 100}},
	}
}

// GenerationStats summarizes one generation.
type GenerationStats struct {
	Generation        int           `json:"generation"`
	Population        int           `json:"population"`
	Offspring         int           `json:"offspring"`
	Trash             int           `json:"trash"`
	SkippedCrossovers int           `json:"skipped_crossovers"`
	FrontZero         int           `json:"front_zero"`
	Covered           int           `json:"covered"`
	Live              int           `json:"live"`
	Statements        int64         `json:"statements"`
	Elapsed           time.Duration `json:"elapsed_ns"`
}

// Result is the outcome of a search.
type Result struct {
	Suite       *chromosome.TestSuiteChromosome
	Generations int
	StoppedBy   string
	Statements  int64
	Elapsed     time.Duration
	Covered     []goal.Goal
	Uncovered   []goal.Goal
	History     []GenerationStats

	// SelectionDigest fingerprints the sequence of selected parents;
	// two runs with the same seed and inputs produce the same digest.
	SelectionDigest string
}

// MOSA is a single-use search engine.
type MOSA struct {
	cfg     Config
	ops     chromosome.Operators
	exec    chromosome.Executor
	scorer  *fitness.Scorer
	fns     []fitness.SuiteFunction
	archive *archive.Archive
	logger  *charmlog.Logger
	rng     *rand.Rand

	objectives []goal.Goal
	stopping   []StoppingCondition
	external   ExternalStop
	state      atomic.Int32
	started    atomic.Bool

	population []*chromosome.TestChromosome
	ranks      map[*chromosome.TestChromosome]rankInfo
	generation int
	start      time.Time
	stoppedBy  string
	selections hash.Hash
	history    []GenerationStats

	// per-generation counters
	trash, skipped int
}

// New validates the configuration and returns an engine searching for
// the goals of fns. Tests are executed through exec and scored by
// scorer. When the scorer keeps no archive the engine uses a private
// one to track covered objectives; goals then stay in the suite
// functions' live sets.
func New(cfg Config, ops chromosome.Operators, exec chromosome.Executor, scorer *fitness.Scorer, fns ...fitness.SuiteFunction) (*MOSA, error) {
	switch {
	case cfg.PopulationSize < 2:
		return nil, fmt.Errorf("population size must be >= 2")
	case cfg.CrossoverRate < 0 || cfg.CrossoverRate > 1:
		return nil, fmt.Errorf("crossover rate must be in [0, 1]")
	case cfg.TestInsertionProbability < 0 || cfg.TestInsertionProbability > 1:
		return nil, fmt.Errorf("test insertion probability must be in [0, 1]")
	case len(cfg.Stopping) == 0:
		return nil, fmt.Errorf("at least one stopping condition is required")
	case ops == nil || exec == nil || scorer == nil:
		return nil, fmt.Errorf("operators, executor and scorer are required")
	}

	m := &MOSA{
		cfg:        cfg,
		ops:        ops,
		scorer:     scorer,
		fns:        fns,
		archive:    scorer.Archive(),
		logger:     cfg.Logger,
		rng:        rand.New(rand.NewSource(cfg.Seed)),
		ranks:      make(map[*chromosome.TestChromosome]rankInfo),
		selections: sha256.New(),
	}
	if m.archive == nil {
		m.archive = archive.New()
	}
	if m.logger == nil {
		m.logger = charmlog.New(io.Discard)
	}
	if m.cfg.Budget == nil {
		m.cfg.Budget = &Budget{}
	}
	if m.cfg.Now == nil {
		m.cfg.Now = time.Now
	}
	m.exec = countingExecutor{exec: exec, budget: m.cfg.Budget}

	seen := make(map[string]bool)
	for _, fn := range fns {
		for _, g := range fn.Goals() {
			if !seen[g.Key()] {
				seen[g.Key()] = true
				m.objectives = append(m.objectives, g)
				m.archive.AddTarget(g)
			}
		}
	}
	if len(m.objectives) == 0 {
		return nil, ErrNoObjectives
	}

	m.stopping = slices.Clone(cfg.Stopping)
	full := slices.ContainsFunc(m.stopping, func(c StoppingCondition) bool {
		_, ok := c.(FullCoverage)
		return ok
	})
	if !full {
		m.stopping = append(m.stopping, FullCoverage{})
	}
	return m, nil
}

// State returns the lifecycle stage; safe to call concurrently with Run.
func (m *MOSA) State() State { return State(m.state.Load()) }

// Stop asks a running search to terminate after the current
// generation. Safe to call from any goroutine.
func (m *MOSA) Stop() { m.external.Stop() }

// Objectives returns every goal searched for.
func (m *MOSA) Objectives() []goal.Goal { return slices.Clone(m.objectives) }

// Archive returns the archive the engine records coverage in.
func (m *MOSA) Archive() *archive.Archive { return m.archive }

// Run evolves the population until a stopping condition fires and
// returns the final suite. Cancelling ctx stops the search like Stop;
// it is not an error.
func (m *MOSA) Run(ctx context.Context) (*Result, error) {
	if !m.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}
	m.start = m.cfg.Now()
	defer m.state.Store(int32(Terminated))

	m.logger.Info("search started",
		"objectives", len(m.objectives),
		"population", m.cfg.PopulationSize,
		"seed", m.cfg.Seed)

	if err := m.initialize(ctx); err != nil {
		return nil, err
	}
	m.state.Store(int32(Evolving))

	for !m.shouldStop(ctx) {
		if err := m.evolve(ctx); err != nil {
			return nil, err
		}
	}
	m.state.Store(int32(Terminated))

	res, err := m.finish(ctx)
	if err != nil {
		return nil, err
	}
	m.logger.Info("search finished",
		"generations", res.Generations,
		"stopped_by", res.StoppedBy,
		"covered", len(res.Covered),
		"objectives", len(m.objectives),
		"tests", res.Suite.Len())
	return res, nil
}

func (m *MOSA) initialize(ctx context.Context) error {
	live := m.live()
	for i := 0; i < m.cfg.PopulationSize; i++ {
		c := chromosome.NewTestChromosome(m.ops.RandomTest(m.rng), 0)
		if err := m.evaluate(ctx, c); err != nil {
			if errors.Is(err, errInterrupted) {
				break
			}
			return err
		}
		m.population = append(m.population, c)
	}
	m.rank(m.population, live)
	if err := m.advance(ctx); err != nil {
		return err
	}
	m.record(0, len(m.population))
	return nil
}

// evolve runs one generation: breeding, survivor selection over parents
// and offspring, then the archive advance and goal flush. Survivors are
// ranked on the goals left uncovered by the previous generation, even
// when offspring covered some of them meanwhile.
func (m *MOSA) evolve(ctx context.Context) error {
	m.generation++
	m.trash, m.skipped = 0, 0
	live := m.live()

	offspring, err := m.breed(ctx)
	if err != nil {
		return err
	}
	union := append(slices.Clone(m.population), offspring...)
	m.rank(union, live)
	if err := m.advance(ctx); err != nil {
		return err
	}
	m.record(m.generation, len(offspring))
	return nil
}

func (m *MOSA) breed(ctx context.Context) ([]*chromosome.TestChromosome, error) {
	var offspring []*chromosome.TestChromosome
	keep := func(c *chromosome.TestChromosome) error {
		if !m.ops.CallsTarget(c.Test()) {
			m.trash++
			return nil
		}
		if err := m.evaluate(ctx, c); err != nil {
			return err
		}
		offspring = append(offspring, c)
		return nil
	}

	for len(offspring) < m.cfg.PopulationSize && !m.shouldStop(ctx) {
		o1 := m.tournament().Clone()
		o2 := m.tournament().Clone()
		o1.SetAge(m.generation)
		o2.SetAge(m.generation)

		if m.rng.Float64() < m.cfg.CrossoverRate {
			t1, t2, err := m.ops.Crossover(m.rng, o1.Test(), o2.Test())
			if err != nil {
				m.skipped++
				m.logger.Debug("crossover skipped", "err", err)
			} else {
				o1 = chromosome.NewTestChromosome(t1, m.generation)
				o2 = chromosome.NewTestChromosome(t2, m.generation)
			}
		}
		m.mutate(o1)
		m.mutate(o2)

		for _, c := range []*chromosome.TestChromosome{o1, o2} {
			if err := keep(c); err != nil {
				return offspring, m.interrupted(err)
			}
		}
		if m.trash > 0 && len(offspring) == 0 && m.trash >= 10*m.cfg.PopulationSize {
			return nil, fmt.Errorf("operators produced %d offspring that do not call the class under test", m.trash)
		}
	}

	inserts := int(math.Round(float64(m.cfg.PopulationSize) * m.cfg.TestInsertionProbability))
	for i := 0; i < inserts && !m.shouldStop(ctx); i++ {
		var c *chromosome.TestChromosome
		solutions := m.archive.Solutions()
		if i%2 == 1 && len(solutions) > 0 {
			c = solutions[m.rng.Intn(len(solutions))].Clone()
			c.SetAge(m.generation)
			m.mutate(c)
		} else {
			c = chromosome.NewTestChromosome(m.ops.RandomTest(m.rng), m.generation)
		}
		if err := keep(c); err != nil {
			return offspring, m.interrupted(err)
		}
	}
	return offspring, nil
}

// interrupted turns an interrupted evaluation into a clean stop.
func (m *MOSA) interrupted(err error) error {
	if errors.Is(err, errInterrupted) {
		return nil
	}
	return err
}

// mutate applies mutation, retrying once when the test text did not
// change.
func (m *MOSA) mutate(c *chromosome.TestChromosome) {
	before := c.String()
	m.ops.Mutate(m.rng, c.Test())
	if c.String() == before {
		m.ops.Mutate(m.rng, c.Test())
	}
	if c.String() != before {
		c.MarkChanged()
	}
}

// tournament is a binary tournament on rank then crowding distance.
func (m *MOSA) tournament() *chromosome.TestChromosome {
	a := m.population[m.rng.Intn(len(m.population))]
	b := m.population[m.rng.Intn(len(m.population))]
	winner := a
	if better(b, a, m.ranks[b], m.ranks[a]) {
		winner = b
	}
	fmt.Fprintf(m.selections, "%d\t%s\n", m.generation, winner)
	return winner
}

// evaluate executes c if needed and scores it on every objective,
// covered ones included, offering it to the archive for each goal it
// covers so a shorter test can replace a stored solution.
func (m *MOSA) evaluate(ctx context.Context, c *chromosome.TestChromosome) error {
	res, err := c.Run(ctx, m.exec)
	if err != nil {
		if ctx.Err() != nil {
			m.stop("external")
			return errInterrupted
		}
		return fmt.Errorf("executing %q: %w", c, err)
	}
	for _, g := range m.objectives {
		if m.scorer.Score(g, c, res) == 0 {
			m.archive.Update(g, c, 0)
		}
	}
	return nil
}

// distance returns the cached distance of an evaluated chromosome.
func (m *MOSA) distance(g goal.Goal, c *chromosome.TestChromosome) float64 {
	if c.Result() == nil {
		return m.scorer.Worst(g)
	}
	return m.scorer.Score(g, c, c.Result())
}

// live returns the objectives not yet covered, in objective order.
func (m *MOSA) live() []goal.Goal {
	var out []goal.Goal
	for _, g := range m.objectives {
		if !m.archive.IsCovered(g) {
			out = append(out, g)
		}
	}
	return out
}

// rank sorts candidates into fronts over the live goals and keeps the
// best PopulationSize as the next population. The last admitted front
// is truncated by decreasing crowding distance.
func (m *MOSA) rank(candidates []*chromosome.TestChromosome, live []goal.Goal) {
	fronts := preferenceSort(candidates, live, m.distance)
	next := make([]*chromosome.TestChromosome, 0, m.cfg.PopulationSize)
	ranks := make(map[*chromosome.TestChromosome]rankInfo, m.cfg.PopulationSize)
	for r, front := range fronts {
		if len(next) == m.cfg.PopulationSize {
			break
		}
		cd := crowdingDistance(front, live, m.distance)
		for i, c := range front {
			ranks[c] = rankInfo{rank: r, crowd: cd[i]}
		}
		if room := m.cfg.PopulationSize - len(next); len(front) > room {
			front = slices.Clone(front)
			slices.SortStableFunc(front, func(a, b *chromosome.TestChromosome) int {
				switch {
				case better(a, b, ranks[a], ranks[b]):
					return -1
				case better(b, a, ranks[b], ranks[a]):
					return 1
				}
				return 0
			})
			front = front[:room]
		}
		next = append(next, front...)
	}
	for c := range ranks {
		if !slices.Contains(next, c) {
			delete(ranks, c)
		}
	}
	if len(fronts) > 0 {
		m.logger.Debug("ranked", "generation", m.generation, "fronts", len(fronts), "front0", len(fronts[0]))
	}
	m.population = next
	m.ranks = ranks
}

// advance offers the archive solutions to the suite functions as one
// suite, then flushes the goals they found covered.
func (m *MOSA) advance(ctx context.Context) error {
	suite := chromosome.NewTestSuite(m.archive.Solutions()...)
	if err := fitness.Evaluate(ctx, m.exec, suite, m.fns...); err != nil {
		if ctx.Err() != nil {
			m.stop("external")
			return nil
		}
		return err
	}
	for _, fn := range m.fns {
		if _, err := fn.UpdateCoveredGoals(); err != nil {
			return fmt.Errorf("flushing %s goals: %w", fn.Name(), err)
		}
	}
	return nil
}

func (m *MOSA) record(gen, offspring int) {
	st := GenerationStats{
		Generation:        gen,
		Population:        len(m.population),
		Offspring:         offspring,
		Trash:             m.trash,
		SkippedCrossovers: m.skipped,
		Covered:           len(m.objectives) - len(m.live()),
		Live:              len(m.live()),
		Statements:        m.cfg.Budget.Consumed(),
		Elapsed:           m.cfg.Now().Sub(m.start),
	}
	for _, info := range m.ranks {
		if info.rank == 0 {
			st.FrontZero++
		}
	}
	m.history = append(m.history, st)
	m.logger.Debug("generation",
		"n", gen,
		"covered", st.Covered,
		"live", st.Live,
		"statements", st.Statements)
	if m.cfg.OnGeneration != nil {
		m.cfg.OnGeneration(st)
	}
}

func (m *MOSA) stop(name string) {
	if m.stoppedBy == "" {
		m.stoppedBy = name
	}
}

// shouldStop polls the context and the stopping conditions.
func (m *MOSA) shouldStop(ctx context.Context) bool {
	if m.stoppedBy != "" {
		return true
	}
	if ctx.Err() != nil {
		m.stop("external")
		return true
	}
	p := Progress{
		Elapsed:    m.cfg.Now().Sub(m.start),
		Generation: m.generation,
		Statements: m.cfg.Budget.Consumed(),
		Live:       len(m.live()),
	}
	if m.external.Done(p) {
		m.stop(m.external.Name())
		return true
	}
	for _, c := range m.stopping {
		if c.Done(p) {
			m.stop(c.Name())
			return true
		}
	}
	return false
}

// finish builds the final suite from the archive, applies local search,
// and records per-criterion coverage on it.
func (m *MOSA) finish(ctx context.Context) (*Result, error) {
	suite := chromosome.NewTestSuite(m.archive.Solutions()...)
	if m.cfg.LocalSearch != nil && ctx.Err() == nil {
		improved, err := m.cfg.LocalSearch(ctx, suite)
		if err != nil {
			return nil, fmt.Errorf("local search: %w", err)
		}
		suite = improved
	}
	if err := fitness.Evaluate(context.WithoutCancel(ctx), m.exec, suite, m.fns...); err != nil {
		return nil, fmt.Errorf("evaluating final suite: %w", err)
	}

	res := &Result{
		Suite:           suite,
		Generations:     m.generation,
		StoppedBy:       m.stoppedBy,
		Statements:      m.cfg.Budget.Consumed(),
		Elapsed:         m.cfg.Now().Sub(m.start),
		History:         m.history,
		SelectionDigest: hex.EncodeToString(m.selections.Sum(nil)),
	}
	for _, g := range m.objectives {
		if m.archive.IsCovered(g) {
			res.Covered = append(res.Covered, g)
		} else {
			res.Uncovered = append(res.Uncovered, g)
		}
	}
	return res, nil
}

// countingExecutor charges executed statements to the budget.
type countingExecutor struct {
	exec   chromosome.Executor
	budget *Budget
}

func (e countingExecutor) Execute(ctx context.Context, t chromosome.Test) (*execution.Result, error) {
	res, err := e.exec.Execute(ctx, t)
	if err == nil && res != nil {
		e.budget.Add(res.Statements)
	}
	return res, err
}
