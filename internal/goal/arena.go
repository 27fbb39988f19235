package goal

import (
	"errors"
	"fmt"
)

// ErrNotIndexed is returned when removing a goal that is not live in
// an arena. It signals a bookkeeping bug, not a runtime condition.
var ErrNotIndexed = errors.New("goal not indexed")

// Arena stores goals under stable integer indices. Removing a goal
// only clears its live bit, so indices held in side tables stay valid.
type Arena struct {
	goals   []Goal
	live    []bool
	byKey   map[string]int
	removed int
}

// NewArena returns an arena holding goals in the given order.
// Duplicate goals are stored once.
func NewArena(goals []Goal) *Arena {
	a := &Arena{byKey: make(map[string]int, len(goals))}
	for _, g := range goals {
		a.Add(g)
	}
	return a
}

// Add stores g and returns its index. Adding an existing goal returns
// the original index.
func (a *Arena) Add(g Goal) int {
	key := g.Key()
	if idx, ok := a.byKey[key]; ok {
		return idx
	}
	idx := len(a.goals)
	a.goals = append(a.goals, g)
	a.live = append(a.live, true)
	a.byKey[key] = idx
	return idx
}

// Get returns the goal at index i.
func (a *Arena) Get(i int) Goal { return a.goals[i] }

// Index returns the index of g, if stored.
func (a *Arena) Index(g Goal) (int, bool) {
	idx, ok := a.byKey[g.Key()]
	return idx, ok
}

// IsLive reports whether index i is stored and not removed.
func (a *Arena) IsLive(i int) bool {
	return i >= 0 && i < len(a.live) && a.live[i]
}

// Remove clears the live bit of index i.
func (a *Arena) Remove(i int) error {
	if !a.IsLive(i) {
		return fmt.Errorf("%w: index %d", ErrNotIndexed, i)
	}
	a.live[i] = false
	a.removed++
	return nil
}

// Len is the number of goals ever stored.
func (a *Arena) Len() int { return len(a.goals) }

// LiveCount is the number of goals not removed.
func (a *Arena) LiveCount() int { return len(a.goals) - a.removed }

// RemovedCount is the number of removed goals.
func (a *Arena) RemovedCount() int { return a.removed }

// LiveIndices returns live indices in insertion order.
func (a *Arena) LiveIndices() []int {
	out := make([]int, 0, a.LiveCount())
	for i, ok := range a.live {
		if ok {
			out = append(out, i)
		}
	}
	return out
}

// Live returns the live goals in insertion order.
func (a *Arena) Live() []Goal {
	out := make([]Goal, 0, a.LiveCount())
	for i, ok := range a.live {
		if ok {
			out = append(out, a.goals[i])
		}
	}
	return out
}

// Removed returns the removed goals in insertion order.
func (a *Arena) Removed() []Goal {
	out := make([]Goal, 0, a.removed)
	for i, ok := range a.live {
		if !ok {
			out = append(out, a.goals[i])
		}
	}
	return out
}

// All returns every stored goal in insertion order.
func (a *Arena) All() []Goal {
	out := make([]Goal, len(a.goals))
	copy(out, a.goals)
	return out
}
