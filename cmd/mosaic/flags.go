package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/unbound-force/mosaic/internal/config"
)

// registerConfigFlags binds one flag per config setting to f, with the
// built-in defaults.
func registerConfigFlags(fs *pflag.FlagSet, f *config.Config) {
	d := config.Default()
	fs.StringSliceVarP(&f.Criteria, "criteria", "c", d.Criteria,
		"coverage criteria: line, branch, cbranch, ibranch, method, methodtrace, rho")
	fs.Int64Var(&f.Seed, "seed", d.Seed, "random seed")
	fs.IntVar(&f.Population, "population", d.Population, "population size")
	fs.Float64Var(&f.CrossoverRate, "crossover-rate", d.CrossoverRate, "crossover probability")
	fs.Float64Var(&f.TestInsertion, "test-insertion", d.TestInsertion,
		"fraction of each generation inserted as new or archived tests")
	fs.IntVar(&f.MaxGenerations, "max-generations", d.MaxGenerations, "generation budget (0 = none)")
	fs.StringVar(&f.MaxTime, "max-time", d.MaxTime, "wall-clock budget, e.g. 30s (empty = none)")
	fs.Int64Var(&f.MaxStatements, "max-statements", d.MaxStatements, "executed statement budget (0 = none)")
	fs.StringVar(&f.ContextPolicy, "context-policy", d.ContextPolicy,
		"call context matching: exact or suffix")
	fs.IntVar(&f.ContextDepth, "context-depth", d.ContextDepth,
		"maximum call context length for cbranch/ibranch (0 = default)")
	fs.BoolVar(&f.IncludeUnexported, "include-unexported", d.IncludeUnexported,
		"add method goals for private methods")
	fs.BoolVar(&f.Archive, "archive", d.Archive, "keep covering tests in the archive")
	fs.BoolVar(&f.Minimize, "minimize", d.Minimize, "minimize the final suite")
	fs.StringVar(&f.RhoStrategy, "rho-strategy", d.RhoStrategy, "rho strategy: default or entbug")
	fs.StringVar(&f.MatrixFile, "matrix-file", d.MatrixFile,
		"previous coverage matrix for the entbug strategy")
	fs.IntVar(&f.StepLimit, "step-limit", d.StepLimit, "statements per test execution before timeout")
	fs.IntVar(&f.MaxLength, "max-length", d.MaxLength, "calls per random test")
	fs.StringVar(&f.Store, "store", d.Store, `run history: "memory" or a SQLite database path`)
}

// overrideFromFlags copies the settings whose flags were set on the
// command line from f into cfg.
func overrideFromFlags(cfg *config.Config, fs *pflag.FlagSet, f *config.Config) {
	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("criteria", func() { cfg.Criteria = f.Criteria })
	set("seed", func() { cfg.Seed = f.Seed })
	set("population", func() { cfg.Population = f.Population })
	set("crossover-rate", func() { cfg.CrossoverRate = f.CrossoverRate })
	set("test-insertion", func() { cfg.TestInsertion = f.TestInsertion })
	set("max-generations", func() { cfg.MaxGenerations = f.MaxGenerations })
	set("max-time", func() { cfg.MaxTime = f.MaxTime })
	set("max-statements", func() { cfg.MaxStatements = f.MaxStatements })
	set("context-policy", func() { cfg.ContextPolicy = f.ContextPolicy })
	set("context-depth", func() { cfg.ContextDepth = f.ContextDepth })
	set("include-unexported", func() { cfg.IncludeUnexported = f.IncludeUnexported })
	set("archive", func() { cfg.Archive = f.Archive })
	set("minimize", func() { cfg.Minimize = f.Minimize })
	set("rho-strategy", func() { cfg.RhoStrategy = f.RhoStrategy })
	set("matrix-file", func() { cfg.MatrixFile = f.MatrixFile })
	set("step-limit", func() { cfg.StepLimit = f.StepLimit })
	set("max-length", func() { cfg.MaxLength = f.MaxLength })
	set("store", func() { cfg.Store = f.Store })
}

// resolveConfig loads the explicit config file, or the first config
// file found in dir, and applies the flags set on the command line.
func resolveConfig(path, dir string, fs *pflag.FlagSet, f *config.Config) (config.Config, error) {
	if path == "" {
		path = config.Find(dir)
	}
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
		logger.Debug("loaded config", "path", filepath.Clean(path))
	}
	overrideFromFlags(&cfg, fs, f)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
