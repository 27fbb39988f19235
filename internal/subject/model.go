// Package subject provides a small, fully observable class under test
// described in YAML. It plays the three collaborator roles the search
// needs: it builds the static model (methods, branches, control
// dependencies, call edges), executes call-sequence tests while
// recording an execution trace with branch distances, and supplies
// the operators that create and vary those tests.
//
// A subject file looks like:
//
//	class: Calc
//	methods:
//	  - name: sign
//	    public: true
//	    params: [x]
//	    body:
//	      - if: {left: x, op: ">", right: 0}
//	        then:
//	          - return: 1
//	        else:
//	          - return: 0
package subject

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Operand is an integer literal or a variable reference.
type Operand struct {
	Var   string
	Value int
}

// IsConst reports whether the operand is a literal.
func (o Operand) IsConst() bool { return o.Var == "" }

func (o Operand) String() string {
	if o.IsConst() {
		return strconv.Itoa(o.Value)
	}
	return o.Var
}

// UnmarshalYAML accepts an integer scalar or an identifier.
func (o *Operand) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: operand must be a scalar", n.Line)
	}
	if v, err := strconv.Atoi(n.Value); err == nil {
		*o = Operand{Value: v}
		return nil
	}
	if !isIdent(n.Value) {
		return fmt.Errorf("line %d: invalid operand %q", n.Line, n.Value)
	}
	*o = Operand{Var: n.Value}
	return nil
}

// MarshalYAML renders the operand as a scalar.
func (o Operand) MarshalYAML() (any, error) {
	if o.IsConst() {
		return o.Value, nil
	}
	return o.Var, nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// Relational operators.
const (
	OpEq = "=="
	OpNe = "!="
	OpLt = "<"
	OpLe = "<="
	OpGt = ">"
	OpGe = ">="
)

// Cond is a relational predicate.
type Cond struct {
	Left  Operand `yaml:"left"`
	Op    string  `yaml:"op"`
	Right Operand `yaml:"right"`
}

func (c Cond) String() string {
	return c.Left.String() + " " + c.Op + " " + c.Right.String()
}

// CallStmt invokes another method of the class.
type CallStmt struct {
	Method string    `yaml:"method"`
	Args   []Operand `yaml:"args,omitempty"`

	// Into stores the return value in a local variable.
	Into string `yaml:"into,omitempty"`
}

// SetStmt assigns Value + Add to Var.
type SetStmt struct {
	Var   string  `yaml:"var"`
	Value Operand `yaml:"value"`
	Add   Operand `yaml:"add,omitempty"`
}

// Stmt is one statement; exactly one of the kind fields is set.
type Stmt struct {
	// Line is the source line; assigned in program order when zero.
	Line int `yaml:"line,omitempty"`

	If    *Cond  `yaml:"if,omitempty"`
	While *Cond  `yaml:"while,omitempty"`
	Then  []Stmt `yaml:"then,omitempty"`
	Else  []Stmt `yaml:"else,omitempty"`
	Do    []Stmt `yaml:"do,omitempty"`

	Call   *CallStmt `yaml:"call,omitempty"`
	Set    *SetStmt  `yaml:"set,omitempty"`
	Return *Operand  `yaml:"return,omitempty"`
	Throw  string    `yaml:"throw,omitempty"`

	// branch is the predicate id of If and While statements.
	branch int
}

func (s *Stmt) kinds() int {
	n := 0
	for _, set := range []bool{s.If != nil, s.While != nil, s.Call != nil, s.Set != nil, s.Return != nil, s.Throw != ""} {
		if set {
			n++
		}
	}
	return n
}

// MethodDecl declares one method.
type MethodDecl struct {
	Name   string   `yaml:"name"`
	Public bool     `yaml:"public"`
	Params []string `yaml:"params,omitempty"`
	Line   int      `yaml:"line,omitempty"`
	Body   []Stmt   `yaml:"body"`
}

// Class is a parsed subject.
type Class struct {
	Name      string       `yaml:"class"`
	Constants []int        `yaml:"constants,omitempty"`
	Methods   []MethodDecl `yaml:"methods"`

	byName   map[string]int
	branches int
}

// Load reads and parses a subject file.
func Load(path string) (*Class, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading subject: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes a subject, assigns missing line numbers and branch
// ids in program order, and validates it.
func Parse(data []byte) (*Class, error) {
	var c Class
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("parsing subject: %w", err)
	}
	if err := c.prepare(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Class) prepare() error {
	if c.Name == "" {
		return errors.New("subject: class name is required")
	}
	if len(c.Methods) == 0 {
		return fmt.Errorf("subject %s: no methods", c.Name)
	}
	c.byName = make(map[string]int, len(c.Methods))
	for i, m := range c.Methods {
		if !isIdent(m.Name) {
			return fmt.Errorf("subject %s: invalid method name %q", c.Name, m.Name)
		}
		if _, dup := c.byName[m.Name]; dup {
			return fmt.Errorf("subject %s: duplicate method %s", c.Name, m.Name)
		}
		c.byName[m.Name] = i
	}

	line := 0
	next := func(l int) int {
		if l > line {
			line = l
		} else {
			line++
		}
		return line
	}
	var errs []error
	var walk func(m *MethodDecl, body []Stmt)
	walk = func(m *MethodDecl, body []Stmt) {
		for i := range body {
			s := &body[i]
			s.Line = next(s.Line)
			if s.kinds() != 1 {
				errs = append(errs, fmt.Errorf("%s.%s line %d: statement must have exactly one kind", c.Name, m.Name, s.Line))
				continue
			}
			switch {
			case s.If != nil, s.While != nil:
				cond := s.If
				if cond == nil {
					cond = s.While
					if len(s.Then) > 0 || len(s.Else) > 0 {
						errs = append(errs, fmt.Errorf("%s.%s line %d: while takes do, not then/else", c.Name, m.Name, s.Line))
					}
				} else if len(s.Do) > 0 {
					errs = append(errs, fmt.Errorf("%s.%s line %d: if takes then/else, not do", c.Name, m.Name, s.Line))
				}
				if !validOp(cond.Op) {
					errs = append(errs, fmt.Errorf("%s.%s line %d: unknown operator %q", c.Name, m.Name, s.Line, cond.Op))
				}
				c.branches++
				s.branch = c.branches
				walk(m, s.Then)
				walk(m, s.Else)
				walk(m, s.Do)
			case s.Call != nil:
				idx, ok := c.byName[s.Call.Method]
				if !ok {
					errs = append(errs, fmt.Errorf("%s.%s line %d: call of unknown method %s", c.Name, m.Name, s.Line, s.Call.Method))
				} else if want := len(c.Methods[idx].Params); want != len(s.Call.Args) {
					errs = append(errs, fmt.Errorf("%s.%s line %d: %s takes %d arguments, got %d",
						c.Name, m.Name, s.Line, s.Call.Method, want, len(s.Call.Args)))
				}
			case s.Set != nil:
				if !isIdent(s.Set.Var) {
					errs = append(errs, fmt.Errorf("%s.%s line %d: invalid variable %q", c.Name, m.Name, s.Line, s.Set.Var))
				}
			}
		}
	}
	for i := range c.Methods {
		m := &c.Methods[i]
		m.Line = next(m.Line)
		walk(m, m.Body)
	}
	return errors.Join(errs...)
}

func validOp(op string) bool {
	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return true
	}
	return false
}

// Method looks up a method declaration.
func (c *Class) Method(name string) (*MethodDecl, bool) {
	idx, ok := c.byName[name]
	if !ok {
		return nil, false
	}
	return &c.Methods[idx], true
}

// PublicMethods returns the methods a test may call.
func (c *Class) PublicMethods() []*MethodDecl {
	var out []*MethodDecl
	for i := range c.Methods {
		if c.Methods[i].Public {
			out = append(out, &c.Methods[i])
		}
	}
	return out
}

// NumBranches is the number of predicates in the class.
func (c *Class) NumBranches() int { return c.branches }
