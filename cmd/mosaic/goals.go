package main

import (
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/unbound-force/mosaic/internal/factory"
	"github.com/unbound-force/mosaic/internal/goal"
	"github.com/unbound-force/mosaic/internal/goanalysis"
	"github.com/unbound-force/mosaic/internal/report"
	"github.com/unbound-force/mosaic/internal/static"
	"github.com/unbound-force/mosaic/internal/subject"
)

// goalsParams holds the parsed flags for the goals command.
type goalsParams struct {
	target            string
	criteria          []string
	format            string
	methods           string
	includeUnexported bool
	contextDepth      int
	coverProfile      string
	stdout            io.Writer
}

// isSubjectFile reports whether target names a subject file rather
// than a Go package pattern.
func isSubjectFile(target string) bool {
	ext := strings.ToLower(filepath.Ext(target))
	return ext == ".yaml" || ext == ".yml"
}

// runGoals is the extracted, testable body of the goals command.
func runGoals(p goalsParams) error {
	if err := validateFormat(p.format); err != nil {
		return err
	}
	if len(p.criteria) == 0 {
		return fmt.Errorf("at least one criterion is required")
	}
	filter := factory.Filter{
		IncludeUnexported: p.includeUnexported,
		ContextDepth:      p.contextDepth,
	}
	if p.methods != "" {
		re, err := regexp.Compile(p.methods)
		if err != nil {
			return fmt.Errorf("invalid --methods pattern: %w", err)
		}
		filter.Methods = re
	}

	var (
		program *static.Program
		name    string
	)
	if isSubjectFile(p.target) {
		if p.coverProfile != "" {
			return fmt.Errorf("--coverprofile applies to Go packages only")
		}
		class, err := subject.Load(p.target)
		if err != nil {
			return err
		}
		if program, err = class.Program(); err != nil {
			return err
		}
		name = class.Name
	} else {
		logger.Info("analyzing package", "pkg", p.target)
		a, err := goanalysis.Analyze(".", p.target)
		if err != nil {
			return err
		}
		if p.coverProfile != "" {
			if filter.Baseline, err = a.Baseline(p.coverProfile); err != nil {
				return err
			}
		}
		program, name = a.Program, a.PkgPath
	}

	var (
		all      []goal.Goal
		criteria []string
	)
	for _, s := range p.criteria {
		c, err := goal.ParseCriterion(s)
		if err != nil {
			return err
		}
		goals, err := factory.Goals(c, program, filter)
		if err != nil {
			return err
		}
		criteria = append(criteria, string(c))
		all = append(all, goals...)
	}

	listing := report.NewGoalListing(name, criteria, all)
	if p.format == "json" {
		return report.WriteGoalsJSON(p.stdout, listing)
	}
	return report.WriteGoalsText(p.stdout, listing)
}

func newGoalsCmd() *cobra.Command {
	var (
		criteria          []string
		format            string
		methods           string
		includeUnexported bool
		contextDepth      int
		coverProfile      string
	)

	cmd := &cobra.Command{
		Use:   "goals <subject.yaml | package>",
		Short: "List the coverage goals of a class or Go package",
		Long: `List the coverage goals the selected criteria derive from a
subject file or from a Go package. For Go packages, branches come from
the SSA form, control dependencies from the post-dominator tree, and
--coverprofile drops lines the existing tests already cover.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGoals(goalsParams{
				target:            args[0],
				criteria:          criteria,
				format:            format,
				methods:           methods,
				includeUnexported: includeUnexported,
				contextDepth:      contextDepth,
				coverProfile:      coverProfile,
				stdout:            cmd.OutOrStdout(),
			})
		},
	}

	cmd.Flags().StringSliceVarP(&criteria, "criteria", "c", []string{string(goal.CriterionBranch)},
		"coverage criteria: line, branch, cbranch, ibranch, method, methodtrace, rho")
	cmd.Flags().StringVar(&format, "format", "text",
		"output format: text or json")
	cmd.Flags().StringVar(&methods, "methods", "",
		"regular expression on Class.method names to keep")
	cmd.Flags().BoolVar(&includeUnexported, "include-unexported", false,
		"add method goals for private methods")
	cmd.Flags().IntVar(&contextDepth, "context-depth", 0,
		"maximum call context length (0 = default)")
	cmd.Flags().StringVar(&coverProfile, "coverprofile", "",
		"go test coverage profile; covered lines get no line goals")

	return cmd
}
