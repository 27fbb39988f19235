package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
)

// tableWidth leaves 4 columns of an 80-column terminal for the indent.
const tableWidth = 76

// maxGoalText is the widest goal description shown in tables.
const maxGoalText = 44

// WriteText writes a run report as human-readable styled text to the
// writer. Output uses lipgloss for color and formatting when the output
// is a TTY; degrades gracefully for pipes and CI.
func WriteText(w io.Writer, r JSONReport) error {
	s := DefaultStyles()

	title := r.Subject
	if r.RunID != "" {
		title = fmt.Sprintf("%s (run %s)", r.Subject, shortID(r.RunID))
	}
	fmt.Fprintln(w, s.Header.Render(fmt.Sprintf("=== %s ===", title)))
	fmt.Fprintln(w, s.SubHeader.Render(fmt.Sprintf("    criteria %s, seed %d",
		strings.Join(r.Criteria, "+"), r.Seed)))
	fmt.Fprintln(w, s.SubHeader.Render(fmt.Sprintf("    %s: %s generations, %s statements, %s",
		r.Summary.StoppedBy,
		humanize.Comma(int64(r.Summary.Generations)),
		humanize.Comma(r.Summary.Statements),
		r.Elapsed())))
	fmt.Fprintln(w)

	if len(r.Goals) > 0 {
		fmt.Fprintln(w, goalTable(r.Goals, s))
	}

	for _, f := range r.Fitness {
		fmt.Fprintf(w, "    %s %s\n",
			s.SummaryLabel.Render(f.Name),
			s.SummaryValue.Render(fmt.Sprintf("fitness %s, %d/%d covered",
				strconv.FormatFloat(f.Value, 'g', 4, 64), f.Covered, f.Covered+f.NotCovered)))
	}

	if len(r.Tests) == 0 {
		fmt.Fprintln(w, s.Muted.Render("    No tests generated."))
	}
	for _, t := range r.Tests {
		fmt.Fprintln(w)
		fmt.Fprintln(w, s.SubHeader.Render(fmt.Sprintf("    test %d: %s, covers %s",
			t.Index, plural(t.Length, "call"), plural(len(t.Covers), "goal"))))
		for _, line := range strings.Split(strings.TrimRight(t.Code, "\n"), "\n") {
			fmt.Fprintln(w, s.Code.Render("      "+line))
		}
	}

	status := s.StatusStyle(r.Summary.Covered == r.Summary.Goals)
	fmt.Fprintf(w, "\n%s\n", status.Render(fmt.Sprintf(
		"%d/%d goal(s) covered (%.1f%%) by %s",
		r.Summary.Covered, r.Summary.Goals, 100*r.Summary.Coverage,
		plural(r.Summary.Tests, "test"))))
	return nil
}

func goalTable(goals []RunGoal, s Styles) *table.Table {
	rows := make([][]string, 0, len(goals))
	for _, g := range goals {
		status := "MISS"
		if g.Covered {
			status = "OK"
		}
		by := make([]string, len(g.CoveredBy))
		for i, idx := range g.CoveredBy {
			by[i] = strconv.Itoa(idx)
		}
		rows = append(rows, []string{status, g.Kind, truncate(g.Goal, maxGoalText), strings.Join(by, ",")})
	}

	return table.New().
		Width(tableWidth).
		Border(lipgloss.NormalBorder()).
		BorderStyle(s.Border).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.TableHeader
			}
			if row >= 0 && row < len(rows) {
				switch col {
				case 0:
					return s.StatusStyle(rows[row][0] == "OK")
				case 1:
					return s.KindStyle(rows[row][1])
				}
			}
			return s.TableCell
		}).
		Headers("STATUS", "KIND", "GOAL", "TESTS").
		Rows(rows...)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return humanize.Comma(int64(n)) + " " + noun + "s"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
