// Package config loads mosaic settings from a .mosaic.yaml or a
// .mosaic.json / .mosaic.jsonc file. Fields missing from the file keep
// their defaults; command-line flags override both.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/unbound-force/mosaic/internal/fitness"
	"github.com/unbound-force/mosaic/internal/goal"
)

// FileNames are the config files looked up by Find, in order.
var FileNames = []string{".mosaic.yaml", ".mosaic.yml", ".mosaic.json", ".mosaic.jsonc"}

// ErrUnsupportedFormat is returned for a config file with an unknown
// extension.
var ErrUnsupportedFormat = errors.New("unsupported config format")

// Config holds the settings of a generation run.
type Config struct {
	Criteria []string `yaml:"criteria" json:"criteria"`
	Seed     int64    `yaml:"seed" json:"seed"`

	Population    int     `yaml:"population" json:"population"`
	CrossoverRate float64 `yaml:"crossover_rate" json:"crossover_rate"`
	TestInsertion float64 `yaml:"test_insertion" json:"test_insertion"`

	// Budgets; zero disables a budget. At least one must be set.
	MaxGenerations int    `yaml:"max_generations" json:"max_generations"`
	MaxTime        string `yaml:"max_time" json:"max_time"`
	MaxStatements  int64  `yaml:"max_statements" json:"max_statements"`

	ContextPolicy     string `yaml:"context_policy" json:"context_policy"`
	ContextDepth      int    `yaml:"context_depth" json:"context_depth"`
	IncludeUnexported bool   `yaml:"include_unexported" json:"include_unexported"`
	Archive           bool   `yaml:"archive" json:"archive"`
	Minimize          bool   `yaml:"minimize" json:"minimize"`

	RhoStrategy string `yaml:"rho_strategy" json:"rho_strategy"`
	MatrixFile  string `yaml:"matrix_file" json:"matrix_file"`

	// StepLimit bounds the statements of one test execution.
	StepLimit int `yaml:"step_limit" json:"step_limit"`

	// MaxLength bounds the calls of a random test.
	MaxLength int `yaml:"max_length" json:"max_length"`

	// Store is "memory", or the path of a SQLite database.
	Store string `yaml:"store" json:"store"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Criteria:       []string{string(goal.CriterionBranch)},
		Seed:           1,
		Population:     50,
		CrossoverRate:  0.75,
		TestInsertion:  0.1,
		MaxGenerations: 100,
		ContextPolicy:  string(goal.MatchExact),
		Archive:        true,
		Minimize:       true,
		RhoStrategy:    string(fitness.RhoDefault),
		StepLimit:      10_000,
		MaxLength:      5,
		Store:          "memory",
	}
}

// Find returns the first config file present in dir, or "" when there
// is none.
func Find(dir string) string {
	for _, name := range FileNames {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// Load reads the config file at path over the defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a config document over the defaults. ext selects the
// format: ".yaml", ".yml", ".json" or ".jsonc". Unknown fields are
// errors.
func Parse(data []byte, ext string) (Config, error) {
	cfg := Default()
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("invalid YAML: %w", err)
		}
	case ".json", ".jsonc":
		standardized, err := hujson.Standardize(data)
		if err != nil {
			return Config{}, fmt.Errorf("invalid JSONC: %w", err)
		}
		dec := json.NewDecoder(bytes.NewReader(standardized))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("invalid JSON: %w", err)
		}
	default:
		return Config{}, fmt.Errorf("%w %q", ErrUnsupportedFormat, ext)
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if len(c.Criteria) == 0 {
		errs = append(errs, errors.New("at least one criterion is required"))
	}
	for _, name := range c.Criteria {
		if _, err := goal.ParseCriterion(name); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Population < 2 {
		errs = append(errs, fmt.Errorf("population must be >= 2, got %d", c.Population))
	}
	if c.CrossoverRate < 0 || c.CrossoverRate > 1 {
		errs = append(errs, fmt.Errorf("crossover_rate must be in [0, 1], got %v", c.CrossoverRate))
	}
	if c.TestInsertion < 0 || c.TestInsertion > 1 {
		errs = append(errs, fmt.Errorf("test_insertion must be in [0, 1], got %v", c.TestInsertion))
	}
	if c.MaxGenerations < 0 || c.MaxStatements < 0 {
		errs = append(errs, errors.New("budgets must not be negative"))
	}
	d, err := c.MaxTimeDuration()
	if err != nil {
		errs = append(errs, err)
	}
	if c.MaxGenerations == 0 && c.MaxStatements == 0 && d == 0 {
		errs = append(errs, errors.New("at least one of max_generations, max_time, max_statements is required"))
	}
	if _, err := goal.ParseMatchPolicy(c.ContextPolicy); err != nil {
		errs = append(errs, err)
	}
	if _, err := fitness.ParseRhoStrategy(c.RhoStrategy); err != nil {
		errs = append(errs, err)
	}
	if c.ContextDepth < 0 || c.StepLimit < 0 {
		errs = append(errs, errors.New("context_depth and step_limit must not be negative"))
	}
	if c.MaxLength < 1 {
		errs = append(errs, fmt.Errorf("max_length must be >= 1, got %d", c.MaxLength))
	}
	if c.Store == "" {
		errs = append(errs, errors.New("store must be \"memory\" or a database path"))
	}
	return errors.Join(errs...)
}

// MaxTimeDuration parses MaxTime; an empty value is 0.
func (c Config) MaxTimeDuration() (time.Duration, error) {
	if c.MaxTime == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.MaxTime)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("max_time %q is not a valid duration", c.MaxTime)
	}
	return d, nil
}
