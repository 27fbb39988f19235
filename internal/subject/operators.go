package subject

import (
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"strconv"
	"strings"

	"github.com/unbound-force/mosaic/internal/chromosome"
	"github.com/unbound-force/mosaic/internal/static"
)

// ErrEmptyParent is returned when crossing over a test with no calls.
var ErrEmptyParent = errors.New("cannot cross over an empty test")

// Call is one test statement: a call of a method with literal
// arguments.
type Call struct {
	Method string `json:"method"`
	Args   []int  `json:"args,omitempty"`
}

func (c Call) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = strconv.Itoa(a)
	}
	return c.Method + "(" + strings.Join(args, ", ") + ")"
}

// Sequence is a test: calls issued in order on the class under test.
type Sequence struct {
	Calls []Call `json:"calls"`
}

// Size implements chromosome.Test.
func (s *Sequence) Size() int { return len(s.Calls) }

// Clone implements chromosome.Test.
func (s *Sequence) Clone() chromosome.Test {
	cp := &Sequence{Calls: make([]Call, len(s.Calls))}
	for i, c := range s.Calls {
		cp.Calls[i] = Call{Method: c.Method, Args: slices.Clone(c.Args)}
	}
	return cp
}

// String renders the test as "m(1); n(2, 3)".
func (s *Sequence) String() string {
	parts := make([]string, len(s.Calls))
	for i, c := range s.Calls {
		parts[i] = c.String()
	}
	return strings.Join(parts, "; ")
}

// ParseSequence reads the form produced by Sequence.String.
func ParseSequence(text string) (*Sequence, error) {
	seq := &Sequence{}
	for _, part := range strings.Split(text, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		open := strings.IndexByte(part, '(')
		if open <= 0 || !strings.HasSuffix(part, ")") {
			return nil, fmt.Errorf("malformed call %q", part)
		}
		call := Call{Method: part[:open]}
		inner := strings.TrimSpace(part[open+1 : len(part)-1])
		if inner != "" {
			for _, a := range strings.Split(inner, ",") {
				v, err := strconv.Atoi(strings.TrimSpace(a))
				if err != nil {
					return nil, fmt.Errorf("call %q: %w", part, err)
				}
				call.Args = append(call.Args, v)
			}
		}
		seq.Calls = append(seq.Calls, call)
	}
	return seq, nil
}

// DefaultMaxLength bounds the calls of a random test when
// Operators.MaxLength is not positive.
const DefaultMaxLength = 5

// Operators create and vary sequences for a class.
type Operators struct {
	class  *Class
	public []*MethodDecl
	pool   []int

	// MaxLength bounds the number of calls of a random test; mutation
	// lets tests grow to twice this length. It overrides
	// DefaultMaxLength when positive.
	MaxLength int

	// ArgRange bounds random arguments to [-ArgRange, ArgRange].
	ArgRange int
}

var _ chromosome.Operators = (*Operators)(nil)

// NewOperators returns the operators for a class. Random arguments
// are drawn half the time from the constants in the class and their
// neighbours.
func NewOperators(c *Class) (*Operators, error) {
	public := c.PublicMethods()
	if len(public) == 0 {
		return nil, fmt.Errorf("subject %s has no public methods", c.Name)
	}
	return &Operators{
		class:     c,
		public:    public,
		pool:      constantPool(c),
		MaxLength: DefaultMaxLength,
		ArgRange:  100,
	}, nil
}

// Pool returns the constant pool, sorted.
func (o *Operators) Pool() []int { return slices.Clone(o.pool) }

func constantPool(c *Class) []int {
	pool := append([]int{0}, c.Constants...)
	add := func(op Operand) {
		if op.IsConst() {
			pool = append(pool, op.Value-1, op.Value, op.Value+1)
		}
	}
	for i := range c.Methods {
		visit(c.Methods[i].Body, func(s *Stmt, _ []static.Condition) {
			for _, cond := range []*Cond{s.If, s.While} {
				if cond != nil {
					add(cond.Left)
					add(cond.Right)
				}
			}
			if s.Call != nil {
				for _, a := range s.Call.Args {
					add(a)
				}
			}
			if s.Set != nil {
				add(s.Set.Value)
			}
			if s.Return != nil {
				add(*s.Return)
			}
		}, nil)
	}
	slices.Sort(pool)
	return slices.Compact(pool)
}

func (o *Operators) randomArg(rng *rand.Rand) int {
	if rng.Float64() < 0.5 {
		return o.pool[rng.Intn(len(o.pool))]
	}
	return rng.Intn(2*o.ArgRange+1) - o.ArgRange
}

func (o *Operators) randomCall(rng *rand.Rand) Call {
	m := o.public[rng.Intn(len(o.public))]
	call := Call{Method: m.Name}
	for range m.Params {
		call.Args = append(call.Args, o.randomArg(rng))
	}
	return call
}

func (o *Operators) maxLength() int {
	if o.MaxLength <= 0 {
		return DefaultMaxLength
	}
	return o.MaxLength
}

// RandomTest implements chromosome.Operators.
func (o *Operators) RandomTest(rng *rand.Rand) chromosome.Test {
	n := 1 + rng.Intn(o.maxLength())
	seq := &Sequence{Calls: make([]Call, n)}
	for i := range seq.Calls {
		seq.Calls[i] = o.randomCall(rng)
	}
	return seq
}

// Mutate implements chromosome.Operators. Deletion, change, and
// insertion are each applied with probability 1/3.
func (o *Operators) Mutate(rng *rand.Rand, t chromosome.Test) bool {
	seq, ok := t.(*Sequence)
	if !ok {
		return false
	}
	before := seq.String()
	if rng.Float64() < 1.0/3 && len(seq.Calls) > 1 {
		i := rng.Intn(len(seq.Calls))
		seq.Calls = slices.Delete(seq.Calls, i, i+1)
	}
	if rng.Float64() < 1.0/3 && len(seq.Calls) > 0 {
		i := rng.Intn(len(seq.Calls))
		o.change(rng, &seq.Calls[i])
	}
	if rng.Float64() < 1.0/3 && len(seq.Calls) < 2*o.maxLength() {
		i := rng.Intn(len(seq.Calls) + 1)
		seq.Calls = slices.Insert(seq.Calls, i, o.randomCall(rng))
	}
	return seq.String() != before
}

// change perturbs one argument, or replaces an argumentless call.
func (o *Operators) change(rng *rand.Rand, c *Call) {
	if len(c.Args) == 0 {
		*c = o.randomCall(rng)
		return
	}
	j := rng.Intn(len(c.Args))
	if rng.Float64() < 0.5 {
		c.Args[j] = o.randomArg(rng)
		return
	}
	c.Args[j] += rng.Intn(21) - 10
}

// Crossover implements chromosome.Operators with a single cut point in
// each parent. Both offspring keep at least one call.
func (o *Operators) Crossover(rng *rand.Rand, a, b chromosome.Test) (chromosome.Test, chromosome.Test, error) {
	sa, okA := a.(*Sequence)
	sb, okB := b.(*Sequence)
	if !okA || !okB {
		return nil, nil, fmt.Errorf("subject crossover cannot combine %T and %T", a, b)
	}
	if len(sa.Calls) == 0 || len(sb.Calls) == 0 {
		return nil, nil, ErrEmptyParent
	}
	pa := 1 + rng.Intn(len(sa.Calls))
	pb := 1 + rng.Intn(len(sb.Calls))
	ca := sa.Clone().(*Sequence)
	cb := sb.Clone().(*Sequence)
	first := &Sequence{Calls: append(slices.Clone(ca.Calls[:pa]), cb.Calls[pb:]...)}
	second := &Sequence{Calls: append(slices.Clone(cb.Calls[:pb]), ca.Calls[pa:]...)}
	return first, second, nil
}

// CallsTarget implements chromosome.Operators: the test calls at least
// one exported method of the class.
func (o *Operators) CallsTarget(t chromosome.Test) bool {
	seq, ok := t.(*Sequence)
	if !ok {
		return false
	}
	for _, c := range seq.Calls {
		if m, ok := o.class.Method(c.Method); ok && m.Public {
			return true
		}
	}
	return false
}
