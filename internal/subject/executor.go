package subject

import (
	"context"
	"errors"
	"fmt"

	"github.com/unbound-force/mosaic/internal/chromosome"
	"github.com/unbound-force/mosaic/internal/execution"
	"github.com/unbound-force/mosaic/internal/goal"
)

// DefaultStepLimit bounds the statements one test may execute before
// it is reported as timed out.
const DefaultStepLimit = 10_000

var errTimeout = errors.New("step limit exceeded")

// thrown is an exception raised by the class under test.
type thrown struct{ msg string }

func (t *thrown) Error() string { return "exception: " + t.msg }

// Executor interprets call-sequence tests against a class.
type Executor struct {
	class *Class

	// StepLimit overrides DefaultStepLimit when positive.
	StepLimit int
}

// NewExecutor returns an executor for the class.
func NewExecutor(c *Class) *Executor {
	return &Executor{class: c}
}

var _ chromosome.Executor = (*Executor)(nil)

// Execute implements chromosome.Executor. Calls of unknown or
// unexported methods, or with the wrong number of arguments, are
// harness failures. An exception thrown by the class ends the test.
func (e *Executor) Execute(ctx context.Context, t chromosome.Test) (*execution.Result, error) {
	seq, ok := t.(*Sequence)
	if !ok {
		return nil, fmt.Errorf("subject executor cannot run %T", t)
	}
	limit := e.StepLimit
	if limit <= 0 {
		limit = DefaultStepLimit
	}
	res := execution.NewResult()
	r := &interp{class: e.class, trace: res.Trace, limit: limit}

	for _, call := range seq.Calls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, ok := e.class.Method(call.Method)
		if !ok || !m.Public || len(call.Args) != len(m.Params) {
			res.TestException = true
			break
		}
		_, err := r.invoke(m, call.Args, goal.CallContext{})
		var exc *thrown
		switch {
		case err == nil:
			continue
		case errors.Is(err, errTimeout):
			res.Timeout = true
		case errors.As(err, &exc):
			res.Exception = exc.msg
		default:
			return nil, err
		}
		break
	}
	res.Statements = r.steps
	return res, nil
}

type interp struct {
	class *Class
	trace *execution.Trace
	limit int
	steps int
}

func (r *interp) invoke(m *MethodDecl, args []int, caller goal.CallContext) (int, error) {
	ctx := caller.Push(goal.Frame{Class: r.class.Name, Method: m.Name})
	r.trace.EnterMethod(ctx)
	locals := make(map[string]int, len(m.Params))
	for i, p := range m.Params {
		locals[p] = args[i]
	}
	v, _, err := r.block(m.Body, locals, ctx)
	return v, err
}

// block runs statements and reports the return value and whether a
// return statement ended the method.
func (r *interp) block(body []Stmt, locals map[string]int, ctx goal.CallContext) (int, bool, error) {
	for i := range body {
		s := &body[i]
		if err := r.step(s); err != nil {
			return 0, false, err
		}
		switch {
		case s.If != nil:
			next := s.Else
			if r.predicate(s.branch, s.If, locals, ctx) {
				next = s.Then
			}
			if v, done, err := r.block(next, locals, ctx); done || err != nil {
				return v, done, err
			}
		case s.While != nil:
			for r.predicate(s.branch, s.While, locals, ctx) {
				if v, done, err := r.block(s.Do, locals, ctx); done || err != nil {
					return v, done, err
				}
				if err := r.step(s); err != nil {
					return 0, false, err
				}
			}
		case s.Call != nil:
			callee, _ := r.class.Method(s.Call.Method)
			args := make([]int, len(s.Call.Args))
			for j, a := range s.Call.Args {
				args[j] = eval(a, locals)
			}
			v, err := r.invoke(callee, args, ctx)
			if err != nil {
				return 0, false, err
			}
			if s.Call.Into != "" {
				locals[s.Call.Into] = v
			}
		case s.Set != nil:
			locals[s.Set.Var] = eval(s.Set.Value, locals) + eval(s.Set.Add, locals)
		case s.Return != nil:
			return eval(*s.Return, locals), true, nil
		case s.Throw != "":
			return 0, false, &thrown{msg: s.Throw}
		}
	}
	return 0, false, nil
}

func (r *interp) step(s *Stmt) error {
	r.steps++
	if r.steps > r.limit {
		return errTimeout
	}
	r.trace.Line(r.class.Name, s.Line)
	return nil
}

func (r *interp) predicate(id int, c *Cond, locals map[string]int, ctx goal.CallContext) bool {
	a, b := eval(c.Left, locals), eval(c.Right, locals)
	t, f := Distances(c.Op, a, b)
	r.trace.Predicate(id, ctx, t, f)
	return t == 0
}

// eval reads an operand; unset variables are 0.
func eval(o Operand, locals map[string]int) int {
	if o.IsConst() {
		return o.Value
	}
	return locals[o.Var]
}

// Distances returns the branch distances of a relational predicate
// towards true and towards false, with the failure constant K = 1.
// Exactly one of the two is 0.
func Distances(op string, a, b int) (trueDist, falseDist float64) {
	x, y := float64(a), float64(b)
	diff := x - y
	if diff < 0 {
		diff = -diff
	}
	switch op {
	case OpEq:
		if a == b {
			return 0, 1
		}
		return diff, 0
	case OpNe:
		if a != b {
			return 0, diff
		}
		return 1, 0
	case OpLt:
		if a < b {
			return 0, y - x
		}
		return x - y + 1, 0
	case OpLe:
		if a <= b {
			return 0, y - x + 1
		}
		return x - y, 0
	case OpGt:
		if a > b {
			return 0, x - y
		}
		return y - x + 1, 0
	case OpGe:
		if a >= b {
			return 0, x - y + 1
		}
		return y - x, 0
	}
	return 1, 0
}
