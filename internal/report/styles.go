package report

import (
	"github.com/charmbracelet/lipgloss"
)

// Styles defines the visual theme for terminal report output.
// Lipgloss automatically degrades to no-color when output is not a TTY.
type Styles struct {
	// Header is used for section headers (e.g. "=== Sign ===").
	Header lipgloss.Style

	// SubHeader is used for secondary information lines.
	SubHeader lipgloss.Style

	// Goal kinds.
	KindBranch      lipgloss.Style
	KindLine        lipgloss.Style
	KindMethod      lipgloss.Style
	KindMethodTrace lipgloss.Style
	KindRho         lipgloss.Style

	TableHeader lipgloss.Style
	TableCell   lipgloss.Style

	// Covered and Uncovered mark goal outcomes.
	Covered   lipgloss.Style
	Uncovered lipgloss.Style

	SummaryLabel lipgloss.Style
	SummaryValue lipgloss.Style

	// Code renders test source.
	Code lipgloss.Style

	Border lipgloss.Style
	Muted  lipgloss.Style
}

// DefaultStyles returns the default color scheme for terminal reports.
func DefaultStyles() Styles {
	return Styles{
		Header:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")),
		SubHeader: lipgloss.NewStyle().Foreground(lipgloss.Color("241")),

		KindBranch:      lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
		KindLine:        lipgloss.NewStyle().Foreground(lipgloss.Color("75")),
		KindMethod:      lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		KindMethodTrace: lipgloss.NewStyle().Foreground(lipgloss.Color("178")),
		KindRho:         lipgloss.NewStyle().Foreground(lipgloss.Color("170")),

		TableHeader: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")),
		TableCell:   lipgloss.NewStyle().PaddingRight(1),

		Covered:   lipgloss.NewStyle().Foreground(lipgloss.Color("40")).Bold(true),
		Uncovered: lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),

		SummaryLabel: lipgloss.NewStyle().Bold(true).Width(14),
		SummaryValue: lipgloss.NewStyle(),

		Code: lipgloss.NewStyle().Foreground(lipgloss.Color("252")),

		Border: lipgloss.NewStyle().Foreground(lipgloss.Color("63")),

		Muted: lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

// KindStyle returns the style for a goal kind name.
func (s Styles) KindStyle(kind string) lipgloss.Style {
	switch kind {
	case "branch":
		return s.KindBranch
	case "line":
		return s.KindLine
	case "method":
		return s.KindMethod
	case "methodtrace":
		return s.KindMethodTrace
	case "rho":
		return s.KindRho
	default:
		return s.Muted
	}
}

// StatusStyle returns the style for a goal outcome.
func (s Styles) StatusStyle(covered bool) lipgloss.Style {
	if covered {
		return s.Covered
	}
	return s.Uncovered
}
