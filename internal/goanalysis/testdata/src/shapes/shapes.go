// Package shapes is a fixture for static analysis tests.
package shapes

// Counter accumulates positive values.
type Counter struct{ n int }

// Add adds x when it is positive.
func (c *Counter) Add(x int) int {
	if x > 0 {
		c.n += x
	}
	return c.n
}

// Value returns the total.
func (c Counter) Value() int { return c.n }

// Classify compares a and b.
func Classify(a, b int) string {
	if a == b {
		return "equal"
	}
	if a > b {
		if a > 2*b {
			return "much larger"
		}
		return "larger"
	}
	return distance(b - a)
}

func distance(d int) string {
	for i := 0; i < d; i++ {
		if i > 10 {
			return "far"
		}
	}
	return "near"
}
