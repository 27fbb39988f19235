package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/unbound-force/mosaic/internal/goal"
)

// GoalListing is the JSON output of the goals command.
type GoalListing struct {
	Version  string      `json:"version"`
	Subject  string      `json:"subject"`
	Criteria []string    `json:"criteria"`
	Goals    []GoalEntry `json:"goals"`
}

// NewGoalListing describes goals in their given order.
func NewGoalListing(subject string, criteria []string, goals []goal.Goal) GoalListing {
	l := GoalListing{
		Version:  Version,
		Subject:  subject,
		Criteria: criteria,
		Goals:    make([]GoalEntry, 0, len(goals)),
	}
	if l.Criteria == nil {
		l.Criteria = []string{}
	}
	for _, g := range goals {
		l.Goals = append(l.Goals, NewGoalEntry(g))
	}
	return l
}

// WriteGoalsJSON writes a goal listing as formatted JSON.
func WriteGoalsJSON(w io.Writer, l GoalListing) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(l)
}

// WriteGoalsText writes a goal listing as a styled table followed by
// per-kind counts.
func WriteGoalsText(w io.Writer, l GoalListing) error {
	s := DefaultStyles()
	fmt.Fprintln(w, s.Header.Render(fmt.Sprintf("=== %s ===", l.Subject)))
	fmt.Fprintln(w, s.SubHeader.Render("    criteria "+strings.Join(l.Criteria, "+")))

	if len(l.Goals) == 0 {
		fmt.Fprintln(w, s.Muted.Render("    No goals."))
		return nil
	}

	rows := make([][]string, 0, len(l.Goals))
	counts := make(map[string]int)
	var kinds []string
	for _, g := range l.Goals {
		rows = append(rows, []string{g.ID, g.Kind, truncate(g.Goal, 50)})
		if counts[g.Kind] == 0 {
			kinds = append(kinds, g.Kind)
		}
		counts[g.Kind]++
	}
	t := table.New().
		Width(tableWidth).
		Border(lipgloss.NormalBorder()).
		BorderStyle(s.Border).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.TableHeader
			}
			if col == 1 && row >= 0 && row < len(rows) {
				return s.KindStyle(rows[row][1])
			}
			return s.TableCell
		}).
		Headers("ID", "KIND", "GOAL").
		Rows(rows...)
	fmt.Fprintln(w, t)

	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, s.KindStyle(k).Render(fmt.Sprintf("%s: %d", k, counts[k])))
	}
	fmt.Fprintf(w, "    %s goal(s): %s\n", humanize.Comma(int64(len(l.Goals))), strings.Join(parts, ", "))
	return nil
}
