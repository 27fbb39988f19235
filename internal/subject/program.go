package subject

import (
	"fmt"

	"github.com/unbound-force/mosaic/internal/goal"
	"github.com/unbound-force/mosaic/internal/static"
)

// Program builds the static model of the class. Predicates and lines
// depend on the condition of the innermost enclosing if or while.
func (c *Class) Program() (*static.Program, error) {
	p := static.NewProgram(c.Name)
	for i := range c.Methods {
		m := &c.Methods[i]
		var lines []int
		branches := 0
		visit(m.Body, func(s *Stmt, _ []static.Condition) {
			lines = append(lines, s.Line)
			if s.branch > 0 {
				branches++
			}
		}, nil)
		err := p.AddMethod(static.Method{
			Class:      c.Name,
			Name:       m.Name,
			Public:     m.Public,
			Line:       m.Line,
			Lines:      lines,
			Complexity: branches + 1,
		})
		if err != nil {
			return nil, err
		}
	}

	var errs []error
	for i := range c.Methods {
		m := &c.Methods[i]
		self := goal.Frame{Class: c.Name, Method: m.Name}
		visit(m.Body, func(s *Stmt, deps []static.Condition) {
			p.SetLineDeps(c.Name, m.Name, s.Line, deps)
			if s.branch > 0 {
				b := static.Branch{ID: s.branch, Class: c.Name, Method: m.Name, Line: s.Line, Deps: deps}
				if err := p.AddBranch(b); err != nil {
					errs = append(errs, err)
				}
			}
			if s.Call != nil {
				p.AddCall(self, goal.Frame{Class: c.Name, Method: s.Call.Method})
			}
		}, nil)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("building program for %s: %w", c.Name, errs[0])
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("building program for %s: %w", c.Name, err)
	}
	return p, nil
}

// visit walks statements in program order, passing each its direct
// control dependencies.
func visit(body []Stmt, fn func(s *Stmt, deps []static.Condition), deps []static.Condition) {
	for i := range body {
		s := &body[i]
		fn(s, deps)
		if s.branch == 0 {
			continue
		}
		onTrue := []static.Condition{{BranchID: s.branch, Value: true}}
		onFalse := []static.Condition{{BranchID: s.branch, Value: false}}
		visit(s.Then, fn, onTrue)
		visit(s.Else, fn, onFalse)
		visit(s.Do, fn, onTrue)
	}
}
