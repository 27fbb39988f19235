package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/unbound-force/mosaic/internal/fitness"
	"github.com/unbound-force/mosaic/internal/search"
)

var errNotInitialized = errors.New("store is not initialized")

type savedMatrix struct {
	runID   string
	subject string
	payload []byte
}

// MemoryStore keeps the history in process. Payloads go through the
// codec so callers never share slices with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string][]byte
	generations map[string][]byte
	matrices    []savedMatrix
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string][]byte)
	s.generations = make(map[string][]byte)
	s.matrices = nil
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run Run) error {
	payload, err := EncodeRun(run)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.runs[run.ID] = payload
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payload, ok := s.runs[id]
	if !ok {
		return Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return DecodeRun(payload)
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]Run, 0, len(s.runs))
	for id, payload := range s.runs {
		run, err := DecodeRun(payload)
		if err != nil {
			return nil, fmt.Errorf("decode run %s: %w", id, err)
		}
		runs = append(runs, run)
	}
	sortRuns(runs)
	return runs, nil
}

func (s *MemoryStore) SaveGenerations(_ context.Context, runID string, stats []search.GenerationStats) error {
	payload, err := EncodeGenerations(stats)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.generations[runID] = payload
	return nil
}

func (s *MemoryStore) GetGenerations(_ context.Context, runID string) ([]search.GenerationStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payload, ok := s.generations[runID]
	if !ok {
		return nil, fmt.Errorf("generations of run %s: %w", runID, ErrNotFound)
	}
	return DecodeGenerations(payload)
}

func (s *MemoryStore) SaveMatrix(_ context.Context, runID, subject string, m *fitness.CoverageMatrix) error {
	payload, err := EncodeMatrix(subject, m)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.matrices = slices.DeleteFunc(s.matrices, func(sm savedMatrix) bool { return sm.runID == runID })
	s.matrices = append(s.matrices, savedMatrix{runID: runID, subject: subject, payload: payload})
	return nil
}

func (s *MemoryStore) LatestMatrix(_ context.Context, subject string) (*fitness.CoverageMatrix, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.matrices) - 1; i >= 0; i-- {
		if s.matrices[i].subject == subject {
			return DecodeMatrix(s.matrices[i].payload)
		}
	}
	return nil, fmt.Errorf("matrix of %s: %w", subject, ErrNotFound)
}

func (s *MemoryStore) Close() error { return nil }

// sortRuns orders runs most recent first, then by id.
func sortRuns(runs []Run) {
	slices.SortFunc(runs, func(a, b Run) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
