package fitness

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/unbound-force/mosaic/internal/chromosome"
	"github.com/unbound-force/mosaic/internal/execution"
	"github.com/unbound-force/mosaic/internal/goal"
)

// RhoStrategy selects how test rows are counted by RhoFitness.
type RhoStrategy string

// Rho strategies.
const (
	// RhoDefault counts every informative test.
	RhoDefault RhoStrategy = "default"

	// RhoEntbug counts a test only if its coverage fingerprint was not
	// seen before, locally or in the previous coverage matrix.
	RhoEntbug RhoStrategy = "entbug"
)

// ParseRhoStrategy validates a strategy name. The empty string selects
// RhoDefault.
func ParseRhoStrategy(s string) (RhoStrategy, error) {
	switch RhoStrategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", RhoDefault:
		return RhoDefault, nil
	case RhoEntbug:
		return RhoEntbug, nil
	default:
		return "", fmt.Errorf("unknown rho strategy %q: must be 'default' or 'entbug'", s)
	}
}

// CoverageMatrix is a tests × goals 0/1 matrix with a pass/fail verdict
// per test.
type CoverageMatrix struct {
	Rows    [][]bool
	Passed  []bool
	NumCols int
}

// Ones counts the covered cells.
func (m *CoverageMatrix) Ones() int {
	n := 0
	for _, row := range m.Rows {
		for _, v := range row {
			if v {
				n++
			}
		}
	}
	return n
}

// AddRow appends a test row.
func (m *CoverageMatrix) AddRow(row []bool, passed bool) error {
	if len(m.Rows) == 0 && m.NumCols == 0 {
		m.NumCols = len(row)
	}
	if len(row) != m.NumCols {
		return fmt.Errorf("row has %d columns, matrix has %d", len(row), m.NumCols)
	}
	m.Rows = append(m.Rows, append([]bool(nil), row...))
	m.Passed = append(m.Passed, passed)
	return nil
}

// LoadMatrix parses the plain text matrix format: one test per line,
// space separated 0/1 tokens followed by a "+" (passed) or "-"
// (failed) verdict. Blank lines are skipped.
func LoadMatrix(r io.Reader) (*CoverageMatrix, error) {
	m := &CoverageMatrix{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		verdict := fields[len(fields)-1]
		if verdict != "+" && verdict != "-" {
			return nil, fmt.Errorf("matrix line %d: missing +/- verdict", lineNo)
		}
		row := make([]bool, len(fields)-1)
		for i, tok := range fields[:len(fields)-1] {
			switch tok {
			case "0":
			case "1":
				row[i] = true
			default:
				return nil, fmt.Errorf("matrix line %d: invalid token %q", lineNo, tok)
			}
		}
		if err := m.AddRow(row, verdict == "+"); err != nil {
			return nil, fmt.Errorf("matrix line %d: %w", lineNo, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading matrix: %w", err)
	}
	return m, nil
}

// WriteMatrix writes m in the format read by LoadMatrix.
func WriteMatrix(w io.Writer, m *CoverageMatrix) error {
	bw := bufio.NewWriter(w)
	for i, row := range m.Rows {
		for _, v := range row {
			if v {
				bw.WriteString("1 ")
			} else {
				bw.WriteString("0 ")
			}
		}
		if m.Passed[i] {
			bw.WriteString("+\n")
		} else {
			bw.WriteString("-\n")
		}
	}
	return bw.Flush()
}

// Rho is |0.5 - ones/(tests*goals)|. An empty matrix scores 0.5.
func Rho(ones, tests, goals int) float64 {
	if tests <= 0 || goals <= 0 {
		return 0.5
	}
	return math.Abs(0.5 - float64(ones)/float64(tests*goals))
}

// RhoFitness scores the coverage density of a suite over the rho
// goals. Coverage bookkeeping and goal removal follow the embedded
// SuiteFitness; only the recorded fitness value differs.
type RhoFitness struct {
	*SuiteFitness

	strategy RhoStrategy
	previous *CoverageMatrix
	prevSeen map[string]bool

	last *CoverageMatrix
}

// NewRhoFitness returns the rho suite fitness over goals. previous may
// be nil; with RhoEntbug its rows seed the totals and the set of known
// fingerprints, and its width must match the number of goals.
func NewRhoFitness(goals []goal.Goal, scorer *Scorer, strategy RhoStrategy, previous *CoverageMatrix) (*RhoFitness, error) {
	if previous != nil && len(previous.Rows) > 0 && previous.NumCols != len(goals) {
		return nil, fmt.Errorf("previous matrix has %d columns, criterion has %d goals", previous.NumCols, len(goals))
	}
	f := &RhoFitness{
		SuiteFitness: NewSuiteFitness(string(goal.CriterionRho), goals, scorer, Options{}),
		strategy:     strategy,
		previous:     previous,
		prevSeen:     make(map[string]bool),
	}
	if previous != nil {
		for _, row := range previous.Rows {
			f.prevSeen[fingerprint(row)] = true
		}
	}
	return f, nil
}

// Evaluate implements SuiteFunction.
func (f *RhoFitness) Evaluate(suite *chromosome.TestSuiteChromosome, results []*execution.Result) float64 {
	f.SuiteFitness.Evaluate(suite, results)

	goals := f.Goals()
	m := &CoverageMatrix{NumCols: len(goals)}
	for _, res := range results {
		if !res.Informative() {
			continue
		}
		row := make([]bool, len(goals))
		for j, g := range goals {
			row[j] = f.scorer.Distance(g, res) == 0
		}
		m.Rows = append(m.Rows, row)
		m.Passed = append(m.Passed, res.Exception == "")
	}
	f.last = m

	value := f.Compute(m)
	suite.SetFitness(f.Name(), value)
	return value
}

// Compute returns the rho value of a matrix under the strategy.
func (f *RhoFitness) Compute(m *CoverageMatrix) float64 {
	if f.strategy != RhoEntbug {
		return Rho(m.Ones(), len(m.Rows), m.NumCols)
	}
	ones, tests := 0, 0
	if f.previous != nil {
		ones, tests = f.previous.Ones(), len(f.previous.Rows)
	}
	seen := make(map[string]bool)
	for _, row := range m.Rows {
		fp := fingerprint(row)
		if seen[fp] || f.prevSeen[fp] {
			continue
		}
		seen[fp] = true
		tests++
		for _, v := range row {
			if v {
				ones++
			}
		}
	}
	return Rho(ones, tests, m.NumCols)
}

// LastMatrix returns the matrix of the latest evaluation.
func (f *RhoFitness) LastMatrix() *CoverageMatrix { return f.last }

func fingerprint(row []bool) string {
	var sb strings.Builder
	sb.Grow(len(row))
	for _, v := range row {
		if v {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}
