package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/unbound-force/mosaic/internal/config"
	"github.com/unbound-force/mosaic/internal/report"
	"github.com/unbound-force/mosaic/internal/search"
	"github.com/unbound-force/mosaic/internal/storage"
)

// runsParams holds the parsed flags for the runs command.
type runsParams struct {
	store  string
	runID  string
	format string
	now    func() time.Time
	stdout io.Writer
}

// runDetail is the JSON output of runs <id>.
type runDetail struct {
	Run         storage.Run              `json:"run"`
	Generations []search.GenerationStats `json:"generations"`
}

// runRuns is the extracted, testable body of the runs command.
func runRuns(ctx context.Context, p runsParams) error {
	if err := validateFormat(p.format); err != nil {
		return err
	}
	if p.now == nil {
		p.now = time.Now
	}
	store := storage.NewStore(p.store)
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("opening run history: %w", err)
	}
	defer store.Close()

	if p.runID != "" {
		run, err := store.GetRun(ctx, p.runID)
		if err != nil {
			return err
		}
		gens, err := store.GetGenerations(ctx, p.runID)
		if err != nil {
			return err
		}
		if p.format == "json" {
			return writeIndentedJSON(p.stdout, runDetail{Run: run, Generations: gens})
		}
		return writeRunText(p.stdout, run, gens)
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		return err
	}
	if p.format == "json" {
		if runs == nil {
			runs = []storage.Run{}
		}
		return writeIndentedJSON(p.stdout, runs)
	}
	return writeRunsText(p.stdout, runs, p.now())
}

func writeIndentedJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeRunsText(w io.Writer, runs []storage.Run, now time.Time) error {
	s := report.DefaultStyles()
	if len(runs) == 0 {
		fmt.Fprintln(w, s.Muted.Render("No stored runs."))
		return nil
	}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			shortRunID(r.ID),
			r.Subject,
			strings.Join(r.Criteria, "+"),
			fmt.Sprintf("%d/%d", r.Covered, r.Goals),
			r.StoppedBy,
			humanize.RelTime(r.StartedAt, now, "ago", "from now"),
		})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(s.Border).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.TableHeader
			}
			if col == 3 && row >= 0 && row < len(runs) {
				return s.StatusStyle(runs[row].Covered == runs[row].Goals)
			}
			return s.TableCell
		}).
		Headers("RUN", "SUBJECT", "CRITERIA", "COVERED", "STOPPED BY", "STARTED").
		Rows(rows...)
	fmt.Fprintln(w, t)
	fmt.Fprintf(w, "%s run(s)\n", humanize.Comma(int64(len(runs))))
	return nil
}

func writeRunText(w io.Writer, run storage.Run, gens []search.GenerationStats) error {
	s := report.DefaultStyles()
	fmt.Fprintln(w, s.Header.Render(fmt.Sprintf("=== %s (run %s) ===", run.Subject, run.ID)))
	fmt.Fprintln(w, s.SubHeader.Render(fmt.Sprintf("    criteria %s, seed %d, digest %s",
		strings.Join(run.Criteria, "+"), run.Seed, shortRunID(run.Digest))))
	fmt.Fprintln(w, s.SubHeader.Render(fmt.Sprintf("    %s: %d/%d goals, %s tests, %s statements, %s",
		run.StoppedBy, run.Covered, run.Goals, humanize.Comma(int64(run.Tests)),
		humanize.Comma(run.Statements), run.Elapsed.Round(time.Millisecond))))
	fmt.Fprintln(w, generationTable(gens, s))
	return nil
}

// generationTable renders the per-generation statistics of a run.
func generationTable(gens []search.GenerationStats, s report.Styles) *table.Table {
	rows := make([][]string, 0, len(gens))
	for _, g := range gens {
		rows = append(rows, []string{
			strconv.Itoa(g.Generation),
			strconv.Itoa(g.Offspring),
			strconv.Itoa(g.Trash),
			strconv.Itoa(g.FrontZero),
			strconv.Itoa(g.Covered),
			strconv.Itoa(g.Live),
			humanize.Comma(g.Statements),
		})
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(s.Border).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.TableHeader
			}
			return s.TableCell
		}).
		Headers("GEN", "OFFSPRING", "TRASH", "FRONT 0", "COVERED", "LIVE", "STATEMENTS").
		Rows(rows...)
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func newRunsCmd() *cobra.Command {
	var (
		store  string
		format string
	)

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List stored generation runs",
		Long: `List the runs recorded in the run history, most recent first,
or show the per-generation statistics of one run. Only a SQLite store
keeps runs across invocations.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("store") {
				if path := config.Find("."); path != "" {
					cfg, err := config.Load(path)
					if err != nil {
						return err
					}
					store = cfg.Store
				}
			}
			p := runsParams{
				store:  store,
				format: format,
				stdout: cmd.OutOrStdout(),
			}
			if len(args) == 1 {
				p.runID = args[0]
			}
			return runRuns(cmd.Context(), p)
		},
	}

	cmd.Flags().StringVar(&store, "store", config.Default().Store,
		`run history: "memory" or a SQLite database path`)
	cmd.Flags().StringVar(&format, "format", "text",
		"output format: text or json")

	return cmd
}
