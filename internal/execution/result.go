package execution

// Result is the outcome of executing one test.
type Result struct {
	// Trace is the coverage trace; never nil for results produced by
	// an executor.
	Trace *Trace

	// Timeout reports that the run exceeded the executor's limit.
	Timeout bool

	// TestException reports a failure of the test harness itself, as
	// opposed to an exception raised by the class under test.
	TestException bool

	// Exception is the message of an exception raised by the class
	// under test, if any. It is an expected outcome, not a failure.
	Exception string

	// Statements is the number of statements the run executed.
	Statements int
}

// NewResult returns a result wrapping an empty trace.
func NewResult() *Result {
	return &Result{Trace: NewTrace()}
}

// HasTimeout reports whether the run timed out.
func (r *Result) HasTimeout() bool { return r != nil && r.Timeout }

// HasTestException reports a harness-level failure.
func (r *Result) HasTestException() bool { return r != nil && r.TestException }

// Informative reports whether the result may be used to compute
// fitness: it exists, did not time out, and the harness did not fail.
func (r *Result) Informative() bool {
	return r != nil && r.Trace != nil && !r.Timeout && !r.TestException
}
