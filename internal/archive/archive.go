// Package archive implements the coverage archive: the registry of
// every known goal and the best test found so far that covers it.
//
// An Archive is an explicit object owned by one search run; fitness
// functions and the engine receive it by injection. All methods are
// safe for concurrent use, so parallel executors cannot cover a goal
// twice.
package archive

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/unbound-force/mosaic/internal/chromosome"
	"github.com/unbound-force/mosaic/internal/goal"
)

// ErrUnknownTarget is returned when removing a goal the archive never
// registered, or one that is not covered yet.
var ErrUnknownTarget = errors.New("unknown archive target")

type entry struct {
	goal   goal.Goal
	best   *chromosome.TestChromosome
	purged bool
}

// Archive maps goals to their best covering test.
type Archive struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   []string
}

// New returns an empty archive.
func New() *Archive {
	return &Archive{entries: make(map[string]*entry)}
}

// AddTarget registers g as uncovered. Registering a known goal is a
// no-op.
func (a *Archive) AddTarget(g goal.Goal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := g.Key()
	if _, ok := a.entries[key]; ok {
		return
	}
	a.entries[key] = &entry{goal: g}
	a.order = append(a.order, key)
}

// Update offers t as a solution for g at the given distance. Only a
// zero distance covers. The stored test is replaced when the goal was
// uncovered or t is strictly shorter; on equal length the earlier test
// is kept. Unknown goals are registered first. Update reports whether
// t was stored.
func (a *Archive) Update(g goal.Goal, t *chromosome.TestChromosome, distance float64) bool {
	if distance != 0 || t == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	key := g.Key()
	e, ok := a.entries[key]
	if !ok {
		e = &entry{goal: g}
		a.entries[key] = e
		a.order = append(a.order, key)
	}
	if e.best != nil && t.Size() >= e.best.Size() {
		return false
	}
	e.best = t
	return true
}

// IsCovered reports whether g has a covering test.
func (a *Archive) IsCovered(g goal.Goal) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[g.Key()]
	return ok && e.best != nil
}

// Contains reports whether g was registered.
func (a *Archive) Contains(g goal.Goal) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.entries[g.Key()]
	return ok
}

// Solution returns the stored covering test of g.
func (a *Archive) Solution(g goal.Goal) (*chromosome.TestChromosome, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[g.Key()]
	if !ok || e.best == nil {
		return nil, false
	}
	return e.best, true
}

// Covered returns the covered goals in registration order.
func (a *Archive) Covered() []goal.Goal {
	return a.collect(func(e *entry) bool { return e.best != nil })
}

// Uncovered returns the uncovered goals in registration order.
func (a *Archive) Uncovered() []goal.Goal {
	return a.collect(func(e *entry) bool { return e.best == nil })
}

func (a *Archive) collect(keep func(*entry) bool) []goal.Goal {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []goal.Goal
	for _, key := range a.order {
		if e := a.entries[key]; keep(e) {
			out = append(out, e.goal)
		}
	}
	return out
}

// NumTargets is the number of registered goals.
func (a *Archive) NumTargets() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.order)
}

// NumCovered is the number of covered goals.
func (a *Archive) NumCovered() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, e := range a.entries {
		if e.best != nil {
			n++
		}
	}
	return n
}

// Solutions returns the distinct covering tests, ordered by the
// registration order of the first goal each covers.
func (a *Archive) Solutions() []*chromosome.TestChromosome {
	a.mu.Lock()
	defer a.mu.Unlock()
	seen := make(map[*chromosome.TestChromosome]bool)
	var out []*chromosome.TestChromosome
	for _, key := range a.order {
		e := a.entries[key]
		if e.best == nil || seen[e.best] {
			continue
		}
		seen[e.best] = true
		out = append(out, e.best)
	}
	return out
}

// Remove purges a covered goal after its owning suite fitness flushed
// it. The covering test stays available through Solutions. Removing a
// goal that was never registered or is not covered is a bookkeeping
// error.
func (a *Archive) Remove(g goal.Goal) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[g.Key()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTarget, g)
	}
	if e.best == nil {
		return fmt.Errorf("%w: %s is not covered", ErrUnknownTarget, g)
	}
	e.purged = true
	return nil
}

// Purged returns the goals removed through Remove, in registration
// order.
func (a *Archive) Purged() []goal.Goal {
	return a.collect(func(e *entry) bool { return e.purged })
}

// Reset forgets all goals and solutions; used at the start of a run.
func (a *Archive) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = make(map[string]*entry)
	a.order = nil
}

// CoveredBy returns the goals whose stored solution is t, sorted.
func (a *Archive) CoveredBy(t *chromosome.TestChromosome) []goal.Goal {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []goal.Goal
	for _, key := range a.order {
		if e := a.entries[key]; e.best == t {
			out = append(out, e.goal)
		}
	}
	slices.SortFunc(out, goal.Compare)
	return out
}
