// Package goal defines the coverage goal model: immutable descriptions
// of what a generated test suite must cover, the call contexts that
// qualify them, and a stable-index arena used by fitness functions to
// track which goals are still live.
package goal

import (
	"cmp"
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"
)

// Kind discriminates the goal variants.
type Kind int

// Goal kinds. Context-sensitive goals are Branch or Method goals with a
// non-empty CallContext.
const (
	Branch Kind = iota + 1
	Line
	Method
	MethodTrace
	Rho
)

func (k Kind) String() string {
	switch k {
	case Branch:
		return "branch"
	case Line:
		return "line"
	case Method:
		return "method"
	case MethodTrace:
		return "methodtrace"
	case Rho:
		return "rho"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Criterion names a coverage criterion selectable for a search.
type Criterion string

// Supported criteria.
const (
	CriterionLine        Criterion = "line"
	CriterionBranch      Criterion = "branch"
	CriterionCBranch     Criterion = "cbranch"
	CriterionIBranch     Criterion = "ibranch"
	CriterionMethod      Criterion = "method"
	CriterionMethodTrace Criterion = "methodtrace"
	CriterionRho         Criterion = "rho"
)

// Criteria lists every supported criterion in reporting order.
func Criteria() []Criterion {
	return []Criterion{
		CriterionLine,
		CriterionBranch,
		CriterionCBranch,
		CriterionIBranch,
		CriterionMethod,
		CriterionMethodTrace,
		CriterionRho,
	}
}

// ParseCriterion validates a criterion name.
func ParseCriterion(s string) (Criterion, error) {
	c := Criterion(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Criteria() {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown criterion %q", s)
}

// Goal is one coverage objective. Goals are values: they are never
// mutated after construction and carry no score.
type Goal struct {
	// Kind selects which of the remaining fields are meaningful.
	Kind Kind

	// Class is the class (Go: receiver type or package) declaring the
	// target method.
	Class string

	// Method is the target method name.
	Method string

	// BranchID identifies the predicate for Branch goals.
	BranchID int

	// Value is the required outcome of the predicate for Branch goals.
	Value bool

	// Line is the source line for Line and Rho goals.
	Line int

	// Context restricts coverage to a specific call path. The zero
	// value is context-insensitive.
	Context CallContext
}

// NewBranch returns a goal for one direction of a predicate.
func NewBranch(class, method string, branchID int, value bool) Goal {
	return Goal{Kind: Branch, Class: class, Method: method, BranchID: branchID, Value: value}
}

// NewLine returns a goal for a single source line.
func NewLine(class, method string, line int) Goal {
	return Goal{Kind: Line, Class: class, Method: method, Line: line}
}

// NewRho returns a line goal scored by the rho criterion.
func NewRho(class, method string, line int) Goal {
	return Goal{Kind: Rho, Class: class, Method: method, Line: line}
}

// NewMethod returns a goal requiring a direct call of the method from
// a test.
func NewMethod(class, method string) Goal {
	return Goal{Kind: Method, Class: class, Method: method}
}

// NewMethodTrace returns a goal requiring any invocation of the method.
func NewMethodTrace(class, method string) Goal {
	return Goal{Kind: MethodTrace, Class: class, Method: method}
}

// WithContext returns a copy of g qualified by the call context.
func (g Goal) WithContext(ctx CallContext) Goal {
	g.Context = ctx
	return g
}

// QualifiedMethod returns "Class.method".
func (g Goal) QualifiedMethod() string {
	return QualifiedName(g.Class, g.Method)
}

// QualifiedName joins a class and method name.
func QualifiedName(class, method string) string {
	if class == "" {
		return method
	}
	return class + "." + method
}

// ContextSensitive reports whether the goal is restricted to a call path.
func (g Goal) ContextSensitive() bool {
	return !g.Context.IsEmpty()
}

// Key returns a string that is equal for two goals iff the goals are
// equal. It is the map key used by the archive and the fitness caches.
func (g Goal) Key() string {
	var sb strings.Builder
	sb.WriteString(g.Kind.String())
	sb.WriteByte('|')
	sb.WriteString(g.QualifiedMethod())
	switch g.Kind {
	case Branch:
		sb.WriteByte('|')
		sb.WriteString(strconv.Itoa(g.BranchID))
		if g.Value {
			sb.WriteString("|T")
		} else {
			sb.WriteString("|F")
		}
	case Line, Rho:
		sb.WriteByte('|')
		sb.WriteString(strconv.Itoa(g.Line))
	}
	if !g.Context.IsEmpty() {
		sb.WriteByte('@')
		sb.WriteString(g.Context.String())
	}
	return sb.String()
}

// Equal reports whether two goals describe the same objective.
func (g Goal) Equal(other Goal) bool {
	return g.Key() == other.Key()
}

// ID is a stable, short identifier for diffing goals across runs.
// It is a sha256 hash of the key truncated to 8 hex characters,
// prefixed with "g-".
func (g Goal) ID() string {
	hash := sha256.Sum256([]byte(g.Key()))
	return fmt.Sprintf("g-%x", hash[:4])
}

// String renders the goal for reports, e.g.
// "Calc.sign:branch 1 true" or "Calc.sign:line 12 @Calc.run->Calc.sign".
func (g Goal) String() string {
	var s string
	switch g.Kind {
	case Branch:
		s = fmt.Sprintf("%s:branch %d %t", g.QualifiedMethod(), g.BranchID, g.Value)
	case Line, Rho:
		s = fmt.Sprintf("%s:%s %d", g.QualifiedMethod(), g.Kind, g.Line)
	default:
		s = fmt.Sprintf("%s:%s", g.QualifiedMethod(), g.Kind)
	}
	if !g.Context.IsEmpty() {
		s += " @" + g.Context.String()
	}
	return s
}

// Compare is the total order used for deterministic reporting: class,
// method, kind, line, branch id, direction (false first), context.
func Compare(a, b Goal) int {
	if c := cmp.Compare(a.Class, b.Class); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Method, b.Method); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Line, b.Line); c != 0 {
		return c
	}
	if c := cmp.Compare(a.BranchID, b.BranchID); c != 0 {
		return c
	}
	if a.Value != b.Value {
		if !a.Value {
			return -1
		}
		return 1
	}
	return cmp.Compare(a.Context.String(), b.Context.String())
}
