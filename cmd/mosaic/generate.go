package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"github.com/unbound-force/mosaic/internal/archive"
	"github.com/unbound-force/mosaic/internal/config"
	"github.com/unbound-force/mosaic/internal/factory"
	"github.com/unbound-force/mosaic/internal/fitness"
	"github.com/unbound-force/mosaic/internal/goal"
	"github.com/unbound-force/mosaic/internal/report"
	"github.com/unbound-force/mosaic/internal/search"
	"github.com/unbound-force/mosaic/internal/storage"
	"github.com/unbound-force/mosaic/internal/subject"
)

// generateParams holds the parsed flags for the generate command.
type generateParams struct {
	subjectPath string
	cfg         config.Config
	format      string
	output      string
	interactive bool
	now         func() time.Time
	stdout      io.Writer
	stderr      io.Writer
}

// generation is everything a run of the engine needs, built from the
// subject and the configuration.
type generation struct {
	class  *subject.Class
	engine *search.MOSA
	rho    *fitness.RhoFitness
	meta   report.Meta
}

// runGenerate is the extracted, testable body of the generate command.
// Cancelling ctx stops the search; the suite found so far is still
// reported and stored.
func runGenerate(ctx context.Context, p generateParams) error {
	if err := validateFormat(p.format); err != nil {
		return err
	}
	if p.now == nil {
		p.now = time.Now
	}

	// History is read and written even after a signal cancelled ctx.
	storeCtx := context.WithoutCancel(ctx)
	store := storage.NewStore(p.cfg.Store)
	if err := store.Init(storeCtx); err != nil {
		return fmt.Errorf("opening run history: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing run history", "err", err)
		}
	}()

	gen, err := prepareGeneration(storeCtx, p.subjectPath, p.cfg, store)
	if err != nil {
		return err
	}
	gen.meta.RunID = storage.NewRunID()

	started := p.now()
	logger.Info("generating tests", "subject", gen.class.Name, "criteria", p.cfg.Criteria, "run", gen.meta.RunID)
	res, err := gen.engine.Run(ctx)
	if err != nil {
		return err
	}
	rpt := report.NewJSONReport(gen.meta, res)
	logger.Info("generation complete",
		"stopped_by", res.StoppedBy,
		"covered", rpt.Summary.Covered,
		"goals", rpt.Summary.Goals,
		"tests", rpt.Summary.Tests)

	if err := saveRun(storeCtx, store, gen, rpt, res, started); err != nil {
		return err
	}

	if p.interactive {
		return runInteractiveReport(rpt)
	}
	return writeReport(p, rpt)
}

// prepareGeneration loads the subject and wires one suite fitness per
// criterion into a MOSA engine.
func prepareGeneration(ctx context.Context, subjectPath string, cfg config.Config, store storage.Store) (*generation, error) {
	class, err := subject.Load(subjectPath)
	if err != nil {
		return nil, err
	}
	program, err := class.Program()
	if err != nil {
		return nil, err
	}
	policy, err := goal.ParseMatchPolicy(cfg.ContextPolicy)
	if err != nil {
		return nil, err
	}

	var arch *archive.Archive
	if cfg.Archive {
		arch = archive.New()
	}
	scorer := fitness.NewScorer(program, arch, policy)
	filter := factory.Filter{
		IncludeUnexported: cfg.IncludeUnexported,
		ContextDepth:      cfg.ContextDepth,
	}

	gen := &generation{
		class: class,
		meta:  report.Meta{Subject: class.Name, Seed: cfg.Seed},
	}
	seen := make(map[goal.Criterion]bool)
	var fns []fitness.SuiteFunction
	for _, name := range cfg.Criteria {
		c, err := goal.ParseCriterion(name)
		if err != nil {
			return nil, err
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		gen.meta.Criteria = append(gen.meta.Criteria, string(c))

		goals, err := factory.Goals(c, program, filter)
		if err != nil {
			return nil, err
		}
		logger.Debug("goals", "criterion", c, "count", len(goals))
		if c != goal.CriterionRho {
			fns = append(fns, fitness.NewSuiteFitness(string(c), goals, scorer, fitness.DefaultOptions(c, scorer)))
			continue
		}

		strategy, err := fitness.ParseRhoStrategy(cfg.RhoStrategy)
		if err != nil {
			return nil, err
		}
		previous, err := previousMatrix(ctx, cfg, store, class.Name, strategy)
		if err != nil {
			return nil, err
		}
		gen.rho, err = fitness.NewRhoFitness(goals, scorer, strategy, previous)
		if err != nil {
			return nil, err
		}
		fns = append(fns, gen.rho)
	}

	ops, err := subject.NewOperators(class)
	if err != nil {
		return nil, err
	}
	ops.MaxLength = cfg.MaxLength
	exec := subject.NewExecutor(class)
	exec.StepLimit = cfg.StepLimit

	sc, err := searchConfig(cfg)
	if err != nil {
		return nil, err
	}
	gen.engine, err = search.New(sc, ops, exec, scorer, fns...)
	if err != nil {
		return nil, err
	}
	return gen, nil
}

// searchConfig maps the settings onto the engine configuration.
func searchConfig(cfg config.Config) (search.Config, error) {
	sc := search.DefaultConfig()
	sc.PopulationSize = cfg.Population
	sc.CrossoverRate = cfg.CrossoverRate
	sc.TestInsertionProbability = cfg.TestInsertion
	sc.Seed = cfg.Seed
	sc.Logger = logger
	sc.Stopping = nil
	if cfg.MaxGenerations > 0 {
		sc.Stopping = append(sc.Stopping, search.MaxGenerations{Limit: cfg.MaxGenerations})
	}
	d, err := cfg.MaxTimeDuration()
	if err != nil {
		return search.Config{}, err
	}
	if d > 0 {
		sc.Stopping = append(sc.Stopping, search.MaxTime{Limit: d})
	}
	if cfg.MaxStatements > 0 {
		sc.Stopping = append(sc.Stopping, search.MaxStatements{Limit: cfg.MaxStatements})
	}
	if cfg.Minimize {
		sc.LocalSearch = search.Minimize
	}
	return sc, nil
}

// previousMatrix returns the coverage matrix the ENTBUG strategy
// deduplicates against: the matrix file when one is given, otherwise
// the matrix stored by the latest run on the same subject.
func previousMatrix(ctx context.Context, cfg config.Config, store storage.Store, subjectName string, strategy fitness.RhoStrategy) (*fitness.CoverageMatrix, error) {
	if cfg.MatrixFile != "" {
		f, err := os.Open(cfg.MatrixFile)
		if err != nil {
			return nil, fmt.Errorf("opening matrix file: %w", err)
		}
		defer f.Close()
		return fitness.LoadMatrix(f)
	}
	if strategy != fitness.RhoEntbug {
		return nil, nil
	}
	m, err := store.LatestMatrix(ctx, subjectName)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	logger.Info("deduplicating against the previous coverage matrix", "tests", len(m.Rows))
	return m, nil
}

func saveRun(ctx context.Context, store storage.Store, gen *generation, rpt report.JSONReport, res *search.Result, started time.Time) error {
	run := storage.Run{
		ID:          gen.meta.RunID,
		Subject:     gen.meta.Subject,
		Criteria:    gen.meta.Criteria,
		Seed:        gen.meta.Seed,
		StartedAt:   started,
		Elapsed:     res.Elapsed,
		Generations: res.Generations,
		StoppedBy:   res.StoppedBy,
		Statements:  res.Statements,
		Goals:       rpt.Summary.Goals,
		Covered:     rpt.Summary.Covered,
		Tests:       rpt.Summary.Tests,
		Digest:      res.SelectionDigest,
	}
	if err := store.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	if err := store.SaveGenerations(ctx, run.ID, res.History); err != nil {
		return fmt.Errorf("saving generations: %w", err)
	}
	if gen.rho != nil && gen.rho.LastMatrix() != nil {
		if err := store.SaveMatrix(ctx, run.ID, run.Subject, gen.rho.LastMatrix()); err != nil {
			return fmt.Errorf("saving coverage matrix: %w", err)
		}
	}
	return nil
}

// writeReport renders the report to the output file, replaced
// atomically, or to stdout.
func writeReport(p generateParams, rpt report.JSONReport) error {
	var buf bytes.Buffer
	var err error
	switch p.format {
	case "json":
		err = report.WriteJSON(&buf, rpt)
	default:
		err = report.WriteText(&buf, rpt)
	}
	if err != nil {
		return err
	}
	if p.output == "" {
		_, err = buf.WriteTo(p.stdout)
		return err
	}
	if err := atomic.WriteFile(p.output, &buf); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	logger.Info("report written", "path", p.output)
	return nil
}

func newGenerateCmd() *cobra.Command {
	var (
		flags       config.Config
		configPath  string
		format      string
		output      string
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "generate <subject.yaml>",
		Short: "Evolve a test suite for a class under test",
		Long: `Evolve a unit test suite for the class described by a subject
file, covering the goals of the selected criteria. Settings come from
--config, or a .mosaic.yaml/.mosaic.json in the working directory, and
flags override them. SIGINT or SIGTERM stops the search early; the
best suite found so far is still reported.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(configPath, ".", cmd.Flags(), &flags)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runGenerate(ctx, generateParams{
				subjectPath: filepath.Clean(args[0]),
				cfg:         cfg,
				format:      format,
				output:      output,
				interactive: interactive,
				stdout:      cmd.OutOrStdout(),
				stderr:      cmd.ErrOrStderr(),
			})
		},
	}

	registerConfigFlags(cmd.Flags(), &flags)
	cmd.Flags().StringVar(&configPath, "config", "",
		"config file (default: .mosaic.yaml or .mosaic.json in the working directory)")
	cmd.Flags().StringVar(&format, "format", "text",
		"output format: text or json")
	cmd.Flags().StringVarP(&output, "output", "o", "",
		"write the report to a file instead of stdout")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false,
		"launch interactive TUI for browsing the run")

	return cmd
}
