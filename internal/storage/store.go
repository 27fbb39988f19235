// Package storage persists the history of generation runs: the run
// summary, its per-generation statistics and the coverage matrix of its
// final suite. The latest matrix of a subject seeds the ENTBUG
// strategy of the next run on the same subject.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/unbound-force/mosaic/internal/fitness"
	"github.com/unbound-force/mosaic/internal/search"
)

// ErrNotFound is returned when a run or matrix is not stored.
var ErrNotFound = errors.New("not found")

// Run summarizes one generation run.
type Run struct {
	VersionedRecord

	ID          string        `json:"id"`
	Subject     string        `json:"subject"`
	Criteria    []string      `json:"criteria"`
	Seed        int64         `json:"seed"`
	StartedAt   time.Time     `json:"started_at"`
	Elapsed     time.Duration `json:"elapsed_ns"`
	Generations int           `json:"generations"`
	StoppedBy   string        `json:"stopped_by"`
	Statements  int64         `json:"statements"`
	Goals       int           `json:"goals"`
	Covered     int           `json:"covered"`
	Tests       int           `json:"tests"`
	Digest      string        `json:"selection_digest"`
}

// Store is the run history persistence contract.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, id string) (Run, error)
	// ListRuns returns every run, most recent first.
	ListRuns(ctx context.Context) ([]Run, error)
	SaveGenerations(ctx context.Context, runID string, stats []search.GenerationStats) error
	GetGenerations(ctx context.Context, runID string) ([]search.GenerationStats, error)
	SaveMatrix(ctx context.Context, runID, subject string, m *fitness.CoverageMatrix) error
	// LatestMatrix returns the matrix saved last for subject.
	LatestMatrix(ctx context.Context, subject string) (*fitness.CoverageMatrix, error)
	Close() error
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}
