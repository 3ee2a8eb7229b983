package fetchpolicy

type Reason string

const (
	AfterFetch       Reason = "after-fetch"
	VariablesChanged Reason = "variables-changed"
)

func (r Reason) Known() bool {
	return r == AfterFetch || r == VariablesChanged
}

// Context is built fresh for every decision and never retained.
type Context struct {
	Reason        Reason
	CurrentPolicy Policy
	// QueryID correlates diagnostics with the logical query. It is never
	// inspected by a strategy.
	QueryID string
}

type Decider interface {
	Next(current Policy, dc Context) Policy
}

type DeciderFunc func(current Policy, dc Context) Policy

func (f DeciderFunc) Next(current Policy, dc Context) Policy { return f(current, dc) }

type passThrough struct{}

func (passThrough) Next(current Policy, _ Context) Policy { return current }
func (passThrough) String() string                        { return StrategyPassThrough }

type narrowAfterChange struct{}

func (narrowAfterChange) Next(current Policy, dc Context) Policy {
	if dc.Reason == VariablesChanged {
		return CacheOnly
	}
	return current
}
func (narrowAfterChange) String() string { return StrategyNarrowAfterChange }

type pin struct{ p Policy }

func (s pin) Next(Policy, Context) Policy { return s.p }
func (s pin) String() string              { return StrategyPinPrefix + s.p.String() }

// PassThrough keeps the current policy for every reason.
func PassThrough() Decider { return passThrough{} }

// NarrowAfterChange serves a new variable set from the cache only and leaves
// the policy alone after a fetch.
func NarrowAfterChange() Decider { return narrowAfterChange{} }

// Pin returns p on every call regardless of reason.
func Pin(p Policy) Decider { return pin{p: p} }

// Decide asks d for the next policy. It never fails: an unknown reason, a nil
// or panicking decider, or an invalid answer all yield current. One record is
// offered to sink afterwards; whatever the sink does is ignored.
func Decide(d Decider, current Policy, dc Context, sink Sink) Policy {
	dc.CurrentPolicy = current
	next := current
	if d != nil && dc.Reason.Known() {
		next = safeNext(d, current, dc)
	}
	if sink != nil {
		emit(sink, Record{
			Reason:   dc.Reason,
			Current:  current,
			Next:     next,
			QueryID:  dc.QueryID,
			Strategy: StrategyName(d),
		})
	}
	return next
}

func safeNext(d Decider, current Policy, dc Context) (next Policy) {
	defer func() {
		if recover() != nil {
			next = current
		}
	}()
	next = d.Next(current, dc)
	if !next.Valid() {
		return current
	}
	return next
}
