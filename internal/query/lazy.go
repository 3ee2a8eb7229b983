package query

import (
	"context"
	"maps"
	"sync"

	"github.com/mohammed-shakir/dogquery/internal/gql"
)

// LazyQuery does nothing until Execute is called. The first call creates the
// logical query; later calls reuse it, so new variables go through the
// variables-changed decision.
type LazyQuery struct {
	c    *Client
	doc  *gql.Document
	opts WatchOptions

	mu sync.Mutex
	q  *ObservableQuery
}

func (l *LazyQuery) Execute(ctx context.Context, vars map[string]any) (Result, error) {
	l.mu.Lock()
	q := l.q
	if q == nil {
		o := l.opts
		o.Variables = maps.Clone(vars)
		var err error
		q, err = l.c.Watch(l.doc, o)
		if err != nil {
			l.mu.Unlock()
			return Result{}, err
		}
		l.q = q
		l.mu.Unlock()
		return q.Result(ctx)
	}
	l.mu.Unlock()
	return q.SetVariables(ctx, vars)
}

// Called reports whether Execute has run at least once.
func (l *LazyQuery) Called() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.q != nil
}

// Current is the latest result; ok is false before the first Execute.
func (l *LazyQuery) Current() (Result, bool) {
	l.mu.Lock()
	q := l.q
	l.mu.Unlock()
	if q == nil {
		return Result{}, false
	}
	return q.Current(), true
}

// Query exposes the underlying logical query once it exists.
func (l *LazyQuery) Query() *ObservableQuery {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.q
}
