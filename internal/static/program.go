// Package static defines the results of static analysis that the
// search consumes: the methods, branches, lines, control dependencies,
// and call edges of a class under test. Instrumentation is not part
// of this package; providers (see internal/subject and
// internal/goanalysis) populate a Program.
package static

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/unbound-force/mosaic/internal/goal"
)

// DefaultMaxContextDepth bounds the call paths enumerated by Contexts.
const DefaultMaxContextDepth = 5

// Condition is one control dependency: reaching the dependent code
// requires predicate BranchID to evaluate to Value.
type Condition struct {
	BranchID int  `json:"branch_id"`
	Value    bool `json:"value"`
}

// Method describes one method of the class under test.
type Method struct {
	// Class is the declaring class.
	Class string `json:"class"`

	// Name is the method name.
	Name string `json:"name"`

	// Public reports whether a test can call the method directly.
	Public bool `json:"public"`

	// File is the source file, when known.
	File string `json:"file,omitempty"`

	// Line is the declaration line.
	Line int `json:"line"`

	// Lines are the executable lines of the body in ascending order.
	Lines []int `json:"lines"`

	// Complexity is the cyclomatic complexity, 0 when unknown.
	Complexity int `json:"complexity,omitempty"`
}

// Qualified returns "Class.name".
func (m Method) Qualified() string {
	return goal.QualifiedName(m.Class, m.Name)
}

// Branch describes one predicate of a method.
type Branch struct {
	// ID is unique within the program and greater than zero.
	ID int `json:"id"`

	Class  string `json:"class"`
	Method string `json:"method"`

	// Line is the line of the predicate.
	Line int `json:"line"`

	// Deps are the direct control dependencies of the predicate.
	Deps []Condition `json:"deps,omitempty"`
}

// CallEdge is a static call from one method to another within the
// class under test.
type CallEdge struct {
	Caller goal.Frame `json:"caller"`
	Callee goal.Frame `json:"callee"`
}

// Program is the static model of a class under test.
type Program struct {
	// Target is the class under test.
	Target string

	methods  []Method
	byName   map[string]int
	branches []Branch
	byID     map[int]int
	lineDeps map[lineKey][]Condition
	edges    []CallEdge
	callers  map[string][]goal.Frame
}

type lineKey struct {
	method string
	line   int
}

// NewProgram returns an empty program for the target class.
func NewProgram(target string) *Program {
	return &Program{
		Target:   target,
		byName:   make(map[string]int),
		byID:     make(map[int]int),
		lineDeps: make(map[lineKey][]Condition),
		callers:  make(map[string][]goal.Frame),
	}
}

// AddMethod registers a method. Lines are copied and sorted.
func (p *Program) AddMethod(m Method) error {
	key := m.Qualified()
	if _, ok := p.byName[key]; ok {
		return fmt.Errorf("duplicate method %s", key)
	}
	m.Lines = slices.Clone(m.Lines)
	slices.Sort(m.Lines)
	m.Lines = slices.Compact(m.Lines)
	p.byName[key] = len(p.methods)
	p.methods = append(p.methods, m)
	return nil
}

// AddBranch registers a predicate of an already registered method.
func (p *Program) AddBranch(b Branch) error {
	if b.ID <= 0 {
		return fmt.Errorf("branch id must be > 0, got %d", b.ID)
	}
	if _, ok := p.byID[b.ID]; ok {
		return fmt.Errorf("duplicate branch id %d", b.ID)
	}
	if _, ok := p.byName[goal.QualifiedName(b.Class, b.Method)]; !ok {
		return fmt.Errorf("branch %d: unknown method %s", b.ID, goal.QualifiedName(b.Class, b.Method))
	}
	b.Deps = slices.Clone(b.Deps)
	p.byID[b.ID] = len(p.branches)
	p.branches = append(p.branches, b)
	return nil
}

// SetLineDeps records the direct control dependencies of a line.
func (p *Program) SetLineDeps(class, method string, line int, deps []Condition) {
	key := lineKey{method: goal.QualifiedName(class, method), line: line}
	if len(deps) == 0 {
		delete(p.lineDeps, key)
		return
	}
	p.lineDeps[key] = slices.Clone(deps)
}

// AddCall records a static call edge. Duplicate edges are ignored.
func (p *Program) AddCall(caller, callee goal.Frame) {
	for _, e := range p.edges {
		if e.Caller == caller && e.Callee == callee {
			return
		}
	}
	p.edges = append(p.edges, CallEdge{Caller: caller, Callee: callee})
	key := callee.String()
	p.callers[key] = append(p.callers[key], caller)
}

// Methods returns all methods in registration order.
func (p *Program) Methods() []Method {
	return slices.Clone(p.methods)
}

// Method looks up a method by class and name.
func (p *Program) Method(class, name string) (Method, bool) {
	idx, ok := p.byName[goal.QualifiedName(class, name)]
	if !ok {
		return Method{}, false
	}
	return p.methods[idx], true
}

// Branches returns all branches in registration order.
func (p *Program) Branches() []Branch {
	return slices.Clone(p.branches)
}

// Branch looks up a branch by id.
func (p *Program) Branch(id int) (Branch, bool) {
	idx, ok := p.byID[id]
	if !ok {
		return Branch{}, false
	}
	return p.branches[idx], true
}

// BranchesIn returns the branches of one method.
func (p *Program) BranchesIn(class, method string) []Branch {
	var out []Branch
	for _, b := range p.branches {
		if b.Class == class && b.Method == method {
			out = append(out, b)
		}
	}
	return out
}

// LineDeps returns the direct control dependencies of a line; nil for
// lines executed whenever the method is entered.
func (p *Program) LineDeps(class, method string, line int) []Condition {
	return p.lineDeps[lineKey{method: goal.QualifiedName(class, method), line: line}]
}

// Edges returns the static call edges.
func (p *Program) Edges() []CallEdge {
	return slices.Clone(p.edges)
}

// Callers returns the methods that call the given method.
func (p *Program) Callers(class, method string) []goal.Frame {
	return slices.Clone(p.callers[goal.QualifiedName(class, method)])
}

// ApproachDepth is the number of control-dependence levels above the
// predicate: 0 for a predicate executed whenever its method runs.
// Cycles in malformed graphs are cut.
func (p *Program) ApproachDepth(branchID int) int {
	depth := 0
	seen := map[int]bool{branchID: true}
	frontier := []int{branchID}
	for len(frontier) > 0 {
		var next []int
		for _, id := range frontier {
			b, ok := p.Branch(id)
			if !ok {
				continue
			}
			for _, d := range b.Deps {
				if !seen[d.BranchID] {
					seen[d.BranchID] = true
					next = append(next, d.BranchID)
				}
			}
		}
		if len(next) == 0 {
			break
		}
		depth++
		frontier = next
	}
	return depth
}

// EntryFilter selects the methods call paths may start from.
type EntryFilter func(m Method, hasCallers bool) bool

// PublicEntries starts call paths at methods a test can call.
func PublicEntries(m Method, _ bool) bool { return m.Public }

// AllEntries starts call paths at public methods and at methods with
// no caller inside the class.
func AllEntries(m Method, hasCallers bool) bool { return m.Public || !hasCallers }

// Contexts enumerates acyclic call paths ending at the target method
// and starting at a method accepted by entry. Paths are at most
// maxDepth frames long (DefaultMaxContextDepth when <= 0). The result
// is sorted by its string form.
func (p *Program) Contexts(class, method string, entry EntryFilter, maxDepth int) []goal.CallContext {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxContextDepth
	}
	target := goal.Frame{Class: class, Method: method}
	seen := make(map[string]bool)
	var out []goal.CallContext

	// Walk callers backwards from the target; path holds frames
	// innermost first.
	var walk func(path []goal.Frame)
	walk = func(path []goal.Frame) {
		head := path[len(path)-1]
		m, ok := p.Method(head.Class, head.Method)
		callers := p.callers[head.String()]
		if ok && entry(m, len(callers) > 0) {
			frames := make([]goal.Frame, len(path))
			for i, f := range path {
				frames[len(path)-1-i] = f
			}
			ctx := goal.NewCallContext(frames...)
			if !seen[ctx.String()] {
				seen[ctx.String()] = true
				out = append(out, ctx)
			}
		}
		if len(path) >= maxDepth {
			return
		}
		for _, c := range callers {
			if slices.Contains(path, c) {
				continue
			}
			walk(append(slices.Clone(path), c))
		}
	}
	walk([]goal.Frame{target})

	slices.SortFunc(out, func(a, b goal.CallContext) int {
		return strings.Compare(a.String(), b.String())
	})
	return out
}

// Validate checks referential integrity: dependency targets exist and
// call edges connect known methods.
func (p *Program) Validate() error {
	var errs []error
	for _, b := range p.branches {
		for _, d := range b.Deps {
			if _, ok := p.byID[d.BranchID]; !ok {
				errs = append(errs, fmt.Errorf("branch %d depends on unknown branch %d", b.ID, d.BranchID))
			}
		}
	}
	for key, deps := range p.lineDeps {
		for _, d := range deps {
			if _, ok := p.byID[d.BranchID]; !ok {
				errs = append(errs, fmt.Errorf("line %s:%d depends on unknown branch %d", key.method, key.line, d.BranchID))
			}
		}
	}
	for _, e := range p.edges {
		for _, f := range []goal.Frame{e.Caller, e.Callee} {
			if _, ok := p.byName[f.String()]; !ok {
				errs = append(errs, fmt.Errorf("call edge references unknown method %s", f))
			}
		}
	}
	return errors.Join(errs...)
}
