package query

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mohammed-shakir/dogquery/internal/cache/keys"
	"github.com/mohammed-shakir/dogquery/internal/core/observability"
	"github.com/mohammed-shakir/dogquery/internal/gql"
	"github.com/mohammed-shakir/dogquery/internal/logger"
	"github.com/mohammed-shakir/dogquery/pkg/fetchpolicy"
)

// Observer receives every result a query emits. It runs on the goroutine
// driving the fetch cycle and must not call back into the same query.
type Observer func(Result)

type mode int

const (
	modeFetch mode = iota
	modeSetVariables
	modeRefetch
)

// ObservableQuery is one logical query: a document plus its current
// variables and fetch policy.
type ObservableQuery struct {
	c    *Client
	doc  *gql.Document
	id   string
	opts WatchOptions

	// cycle serializes fetch cycles and decisions for this query.
	cycle sync.Mutex

	mu        sync.RWMutex
	policy    fetchpolicy.Policy
	vars      map[string]any
	last      Result
	observers map[int]Observer
	nextObs   int
}

func newObservable(c *Client, doc *gql.Document, o WatchOptions) *ObservableQuery {
	return &ObservableQuery{
		c:         c,
		doc:       doc,
		id:        uuid.NewString(),
		opts:      o,
		policy:    o.FetchPolicy,
		vars:      o.Variables,
		last:      Result{Loading: true, NetworkStatus: StatusLoading, Source: SourceNone, Policy: o.FetchPolicy},
		observers: map[int]Observer{},
	}
}

func (q *ObservableQuery) ID() string { return q.id }

func (q *ObservableQuery) Document() *gql.Document { return q.doc }

// Policy is the fetch policy the next cycle will run under.
func (q *ObservableQuery) Policy() fetchpolicy.Policy {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.policy
}

func (q *ObservableQuery) Variables() map[string]any {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return maps.Clone(q.vars)
}

// Current returns the latest emitted result.
func (q *ObservableQuery) Current() Result {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.last
}

// Subscribe adds an observer and returns a func removing it.
func (q *ObservableQuery) Subscribe(fn Observer) func() {
	q.mu.Lock()
	id := q.nextObs
	q.nextObs++
	q.observers[id] = fn
	q.mu.Unlock()
	return func() {
		q.mu.Lock()
		delete(q.observers, id)
		q.mu.Unlock()
	}
}

// Result runs one fetch cycle under the current policy.
func (q *ObservableQuery) Result(ctx context.Context) (Result, error) {
	q.cycle.Lock()
	defer q.cycle.Unlock()
	return q.run(ctx, modeFetch)
}

// SetVariables switches the query to vars. A real change asks the decider
// for the policy to use with the new variables before fetching.
func (q *ObservableQuery) SetVariables(ctx context.Context, vars map[string]any) (Result, error) {
	q.cycle.Lock()
	defer q.cycle.Unlock()

	q.mu.RLock()
	same := keys.VarsHash(vars) == keys.VarsHash(q.vars)
	cur := q.policy
	q.mu.RUnlock()
	if same {
		return q.run(ctx, modeFetch)
	}

	next := q.decide(ctx, cur, fetchpolicy.VariablesChanged)
	q.mu.Lock()
	q.vars = maps.Clone(vars)
	q.policy = next
	q.mu.Unlock()
	return q.run(ctx, modeSetVariables)
}

// Refetch forces a network round-trip for this cycle without changing the
// query's policy.
func (q *ObservableQuery) Refetch(ctx context.Context) (Result, error) {
	q.cycle.Lock()
	defer q.cycle.Unlock()
	return q.run(ctx, modeRefetch)
}

func (q *ObservableQuery) decide(ctx context.Context, cur fetchpolicy.Policy, reason fetchpolicy.Reason) fetchpolicy.Policy {
	next := fetchpolicy.Decide(q.opts.NextFetchPolicy, cur, fetchpolicy.Context{
		Reason:  reason,
		QueryID: q.id,
	}, q.c.sink)
	if next != cur {
		q.c.log.LogAttrs(ctx, slog.LevelDebug, "fetch policy changed",
			slog.String("reason", string(reason)),
			slog.String("from", cur.String()),
			slog.String("to", next.String()))
	}
	return next
}

func (q *ObservableQuery) run(ctx context.Context, m mode) (Result, error) {
	ctx = logger.WithQueryID(logger.WithOperation(ctx, q.doc.Name()), q.id)

	q.mu.RLock()
	pol := q.policy
	vars := maps.Clone(q.vars)
	prev := q.last
	q.mu.RUnlock()

	if err := q.doc.CheckVariables(vars); err != nil {
		return q.finish(ctx, pol, Result{Err: err, NetworkStatus: StatusError, Source: SourceNone}), err
	}

	if q.opts.NotifyOnNetworkStatusChange {
		loading := Result{Loading: true, NetworkStatus: statusFor(m), Source: SourceNone, Policy: pol, Variables: vars}
		if m == modeRefetch {
			loading.Data = prev.Data
		}
		q.publish(loading)
	}

	key := keys.Key(q.doc.Operation, q.doc.Source, vars)
	var res Result

	switch {
	case m == modeRefetch || pol == fetchpolicy.NetworkOnly:
		res = q.network(ctx, key, vars)

	case pol == fetchpolicy.CacheOnly:
		if cached, ok := q.read(ctx, key); ok {
			res = cached
		} else {
			res = Result{NetworkStatus: StatusReady, Source: SourceNone}
		}

	case pol == fetchpolicy.CacheFirst:
		if cached, ok := q.read(ctx, key); ok {
			res = cached
		} else {
			res = q.network(ctx, key, vars)
		}

	case pol == fetchpolicy.CacheAndNetwork:
		if cached, ok := q.read(ctx, key); ok {
			cached.Loading = true
			cached.NetworkStatus = StatusLoading
			cached.Policy = pol
			cached.Variables = vars
			q.publish(cached)
		}
		res = q.network(ctx, key, vars)
	}

	res.Policy = pol
	res.Variables = vars
	return q.finish(ctx, pol, res), res.Err
}

// finish records the result, applies the after-fetch decision and notifies
// observers.
func (q *ObservableQuery) finish(ctx context.Context, pol fetchpolicy.Policy, res Result) Result {
	next := q.decide(ctx, pol, fetchpolicy.AfterFetch)
	q.mu.Lock()
	q.policy = next
	q.mu.Unlock()

	observability.IncFetch(q.doc.Name(), pol.String(), string(res.Source))
	q.c.log.LogAttrs(ctx, slog.LevelDebug, "fetch done",
		slog.String("policy", pol.String()),
		slog.String("source", string(res.Source)),
		slog.String("status", res.NetworkStatus.String()),
		slog.Bool("has_data", res.HasData()),
		slog.Any("err", res.Err))

	q.publish(res)
	return res
}

func (q *ObservableQuery) publish(r Result) {
	q.mu.Lock()
	q.last = r
	obs := make([]Observer, 0, len(q.observers))
	for _, fn := range q.observers {
		obs = append(obs, fn)
	}
	q.mu.Unlock()
	for _, fn := range obs {
		fn(r)
	}
}

func statusFor(m mode) NetworkStatus {
	switch m {
	case modeRefetch:
		return StatusRefetch
	case modeSetVariables:
		return StatusSetVariables
	default:
		return StatusLoading
	}
}

func (q *ObservableQuery) read(ctx context.Context, key string) (Result, bool) {
	sctx, cancel := q.c.storeCtx(ctx)
	defer cancel()
	b, ok, err := q.c.store.Get(sctx, key)
	if err != nil {
		q.c.log.WarnContext(ctx, "cache read failed; treating as miss", "key", key, "err", err)
		ok = false
	}
	if !ok {
		observability.IncCacheMiss()
		return Result{}, false
	}
	observability.IncCacheHit()
	return Result{Data: b, NetworkStatus: StatusReady, Source: SourceCache}, true
}

func (q *ObservableQuery) write(ctx context.Context, key string, data []byte) {
	sctx, cancel := q.c.storeCtx(ctx)
	defer cancel()
	if err := q.c.store.Set(sctx, key, data, q.opts.CacheTTL); err != nil {
		q.c.log.WarnContext(ctx, "cache write failed", "key", key, "err", err)
	}
}

func (q *ObservableQuery) network(ctx context.Context, key string, vars map[string]any) Result {
	rctx, cancel := q.c.requestCtx(ctx)
	defer cancel()

	start := time.Now()
	resp, err := q.c.transport.Do(rctx, gql.Request{
		Query:         q.doc.Source,
		OperationName: q.doc.Operation,
		Variables:     vars,
	})
	if err != nil {
		q.c.log.WarnContext(ctx, "graphql request failed", "err", err, "duration", time.Since(start).String())
		return Result{Err: err, NetworkStatus: StatusError, Source: SourceNetwork}
	}
	if resp == nil {
		return Result{Err: errors.New("transport returned no response"), NetworkStatus: StatusError, Source: SourceNetwork}
	}

	res := Result{Data: resp.Data, NetworkStatus: StatusReady, Source: SourceNetwork}
	if len(resp.Errors) > 0 {
		switch q.opts.ErrorPolicy {
		case ErrorPolicyAll:
			res.Errors = resp.Errors
		case ErrorPolicyIgnore:
		default:
			res.Data = nil
			res.Errors = resp.Errors
			res.Err = resp.Errors
			res.NetworkStatus = StatusError
		}
	}
	if res.HasData() {
		q.write(ctx, key, res.Data)
	}
	return res
}
