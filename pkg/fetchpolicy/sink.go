package fetchpolicy

// Record is the diagnostic view of a single decision.
type Record struct {
	Reason   Reason
	Current  Policy
	Next     Policy
	QueryID  string
	Strategy string
}

// Changed reports whether the decision moved the query to another policy.
func (r Record) Changed() bool { return r.Current != r.Next }

type Sink interface {
	Emit(rec Record) error
}

type SinkFunc func(rec Record) error

func (f SinkFunc) Emit(rec Record) error { return f(rec) }

// emission is fire-and-forget
func emit(s Sink, rec Record) {
	defer func() { _ = recover() }()
	_ = s.Emit(rec)
}
