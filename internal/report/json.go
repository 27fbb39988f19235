// Package report renders generation runs and goal listings as JSON and
// as human-readable text.
package report

import (
	"encoding/json"
	"io"
	"slices"
	"time"

	"github.com/unbound-force/mosaic/internal/chromosome"
	"github.com/unbound-force/mosaic/internal/goal"
	"github.com/unbound-force/mosaic/internal/search"
)

// Version is the version of the JSON report layout.
const Version = "1"

// Meta identifies a run.
type Meta struct {
	RunID    string
	Subject  string
	Criteria []string
	Seed     int64
}

// JSONReport is the top-level JSON output of a generation run.
type JSONReport struct {
	Version     string                   `json:"version"`
	RunID       string                   `json:"run_id,omitempty"`
	Subject     string                   `json:"subject"`
	Criteria    []string                 `json:"criteria"`
	Seed        int64                    `json:"seed"`
	Summary     Summary                  `json:"summary"`
	Fitness     []CriterionFitness       `json:"fitness"`
	Tests       []Test                   `json:"tests"`
	Goals       []RunGoal                `json:"goals"`
	Generations []search.GenerationStats `json:"generations"`
}

// Summary holds the headline numbers of a run.
type Summary struct {
	Goals           int     `json:"goals"`
	Covered         int     `json:"covered"`
	Coverage        float64 `json:"coverage"`
	Tests           int     `json:"tests"`
	Statements      int64   `json:"statements"`
	Generations     int     `json:"generations"`
	StoppedBy       string  `json:"stopped_by"`
	ElapsedMS       int64   `json:"elapsed_ms"`
	SelectionDigest string  `json:"selection_digest"`
}

// CriterionFitness is the suite fitness and coverage of one criterion.
type CriterionFitness struct {
	Name       string  `json:"name"`
	Value      float64 `json:"value"`
	Covered    int     `json:"covered"`
	NotCovered int     `json:"not_covered"`
	Ratio      float64 `json:"ratio"`
}

// Test is one test of the final suite.
type Test struct {
	Index  int      `json:"index"`
	Code   string   `json:"code"`
	Length int      `json:"length"`
	Covers []string `json:"covers"`
}

// GoalEntry describes a goal.
type GoalEntry struct {
	ID       string `json:"id"`
	Goal     string `json:"goal"`
	Kind     string `json:"kind"`
	Class    string `json:"class"`
	Method   string `json:"method"`
	BranchID int    `json:"branch_id,omitempty"`
	Value    *bool  `json:"value,omitempty"`
	Line     int    `json:"line,omitempty"`
	Context  string `json:"context,omitempty"`
}

// RunGoal is a goal with its outcome in a run. CoveredBy lists the
// indices of the tests covering it.
type RunGoal struct {
	GoalEntry
	Covered   bool  `json:"covered"`
	CoveredBy []int `json:"covered_by"`
}

// NewGoalEntry describes g.
func NewGoalEntry(g goal.Goal) GoalEntry {
	e := GoalEntry{
		ID:      g.ID(),
		Goal:    g.String(),
		Kind:    g.Kind.String(),
		Class:   g.Class,
		Method:  g.Method,
		Line:    g.Line,
		Context: g.Context.String(),
	}
	if g.Kind == goal.Branch {
		v := g.Value
		e.BranchID = g.BranchID
		e.Value = &v
	}
	return e
}

// NewJSONReport builds the report of a finished search.
func NewJSONReport(meta Meta, res *search.Result) JSONReport {
	r := JSONReport{
		Version:     Version,
		RunID:       meta.RunID,
		Subject:     meta.Subject,
		Criteria:    meta.Criteria,
		Seed:        meta.Seed,
		Fitness:     []CriterionFitness{},
		Tests:       []Test{},
		Goals:       []RunGoal{},
		Generations: res.History,
	}
	if r.Criteria == nil {
		r.Criteria = []string{}
	}
	if r.Generations == nil {
		r.Generations = []search.GenerationStats{}
	}

	suite := res.Suite
	if suite == nil {
		suite = chromosome.NewTestSuite()
	}
	coveredBy := make(map[string][]int)
	for i, t := range suite.Tests() {
		test := Test{Index: i, Code: t.String(), Length: t.Size(), Covers: []string{}}
		for _, g := range t.CoveredGoals() {
			test.Covers = append(test.Covers, g.ID())
			coveredBy[g.Key()] = append(coveredBy[g.Key()], i)
		}
		r.Tests = append(r.Tests, test)
	}
	for _, name := range suite.FitnessNames() {
		f, _ := suite.Fitness(name)
		cf := CriterionFitness{Name: name, Value: f, Ratio: 1}
		if c, ok := suite.Coverage(name); ok {
			cf.Covered, cf.NotCovered, cf.Ratio = c.Covered, c.NotCovered, c.Ratio
		}
		r.Fitness = append(r.Fitness, cf)
	}

	all := append(slices.Clone(res.Covered), res.Uncovered...)
	slices.SortFunc(all, goal.Compare)
	covered := make(map[string]bool, len(res.Covered))
	for _, g := range res.Covered {
		covered[g.Key()] = true
	}
	goals := make([]RunGoal, 0, len(all))
	for _, g := range all {
		by := coveredBy[g.Key()]
		if by == nil {
			by = []int{}
		}
		goals = append(goals, RunGoal{GoalEntry: NewGoalEntry(g), Covered: covered[g.Key()], CoveredBy: by})
	}
	r.Goals = goals

	r.Summary = Summary{
		Goals:           len(goals),
		Covered:         len(res.Covered),
		Coverage:        ratio(len(res.Covered), len(goals)),
		Tests:           suite.Len(),
		Statements:      res.Statements,
		Generations:     res.Generations,
		StoppedBy:       res.StoppedBy,
		ElapsedMS:       res.Elapsed.Milliseconds(),
		SelectionDigest: res.SelectionDigest,
	}
	return r
}

// Elapsed returns the run duration.
func (r JSONReport) Elapsed() time.Duration {
	return time.Duration(r.Summary.ElapsedMS) * time.Millisecond
}

// WriteJSON writes a run report as formatted JSON to the writer.
func WriteJSON(w io.Writer, r JSONReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func ratio(covered, total int) float64 {
	if total == 0 {
		return 1
	}
	return float64(covered) / float64(total)
}
