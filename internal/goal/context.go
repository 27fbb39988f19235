package goal

import (
	"fmt"
	"strings"
)

// Frame is one (class, method) entry of a call path.
type Frame struct {
	Class  string `json:"class" yaml:"class"`
	Method string `json:"method" yaml:"method"`
}

func (f Frame) String() string {
	return QualifiedName(f.Class, f.Method)
}

// CallContext is an ordered call path, outermost caller first and the
// target method last. The zero value is the empty,
// context-insensitive path.
type CallContext struct {
	frames []Frame
	key    string
}

// NewCallContext copies frames into an immutable call context.
func NewCallContext(frames ...Frame) CallContext {
	if len(frames) == 0 {
		return CallContext{}
	}
	cp := make([]Frame, len(frames))
	copy(cp, frames)
	parts := make([]string, len(cp))
	for i, f := range cp {
		parts[i] = f.String()
	}
	return CallContext{frames: cp, key: strings.Join(parts, "->")}
}

// ParseCallContext parses the "A.m1->B.m2" form produced by String.
func ParseCallContext(s string) (CallContext, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CallContext{}, nil
	}
	var frames []Frame
	for _, part := range strings.Split(s, "->") {
		part = strings.TrimSpace(part)
		idx := strings.LastIndex(part, ".")
		if idx <= 0 || idx == len(part)-1 {
			return CallContext{}, fmt.Errorf("invalid call frame %q", part)
		}
		frames = append(frames, Frame{Class: part[:idx], Method: part[idx+1:]})
	}
	return NewCallContext(frames...), nil
}

// Frames returns a copy of the frames.
func (c CallContext) Frames() []Frame {
	cp := make([]Frame, len(c.frames))
	copy(cp, c.frames)
	return cp
}

// Len is the number of frames.
func (c CallContext) Len() int { return len(c.frames) }

// IsEmpty reports whether the context is context-insensitive.
func (c CallContext) IsEmpty() bool { return len(c.frames) == 0 }

// String renders the path as "A.m1->B.m2".
func (c CallContext) String() string { return c.key }

// Last returns the innermost frame.
func (c CallContext) Last() (Frame, bool) {
	if len(c.frames) == 0 {
		return Frame{}, false
	}
	return c.frames[len(c.frames)-1], true
}

// Push returns a new context with f appended as the innermost frame.
func (c CallContext) Push(f Frame) CallContext {
	frames := make([]Frame, len(c.frames), len(c.frames)+1)
	copy(frames, c.frames)
	return NewCallContext(append(frames, f)...)
}

// Equal is structural equality of the frame lists.
func (c CallContext) Equal(other CallContext) bool {
	return c.key == other.key
}

// MatchPolicy selects how a goal context is compared with the call
// path observed at runtime.
type MatchPolicy string

// Match policies.
const (
	// MatchExact requires the observed path to equal the goal path.
	MatchExact MatchPolicy = "exact"

	// MatchSuffix requires the goal path to be a suffix of the observed
	// path, so callers outside the goal's frames are ignored.
	MatchSuffix MatchPolicy = "suffix"
)

// ParseMatchPolicy validates a policy name. The empty string selects
// MatchExact.
func ParseMatchPolicy(s string) (MatchPolicy, error) {
	switch MatchPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", MatchExact:
		return MatchExact, nil
	case MatchSuffix:
		return MatchSuffix, nil
	default:
		return "", fmt.Errorf("unknown context match policy %q: must be 'exact' or 'suffix'", s)
	}
}

// Matches reports whether an execution observed along actual satisfies
// the goal context c. An empty goal context matches every path.
func (c CallContext) Matches(actual CallContext, policy MatchPolicy) bool {
	if c.IsEmpty() {
		return true
	}
	switch policy {
	case MatchSuffix:
		if len(c.frames) > len(actual.frames) {
			return false
		}
		offset := len(actual.frames) - len(c.frames)
		for i, f := range c.frames {
			if actual.frames[offset+i] != f {
				return false
			}
		}
		return true
	default:
		return c.Equal(actual)
	}
}
