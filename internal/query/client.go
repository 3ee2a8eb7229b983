// Package query runs GraphQL documents against a transport with a response
// cache, applying a fetch policy per cycle and asking a decider for the
// policy of the next cycle.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/mohammed-shakir/dogquery/internal/cache"
	"github.com/mohammed-shakir/dogquery/internal/cache/keys"
	"github.com/mohammed-shakir/dogquery/internal/cache/memstore"
	"github.com/mohammed-shakir/dogquery/internal/gql"
	"github.com/mohammed-shakir/dogquery/pkg/fetchpolicy"
)

var (
	ErrNoTransport = errors.New("query client: transport is required")
	ErrNoData      = errors.New("result has no data")

	ErrPrefixUnsupported = errors.New("store does not support prefix eviction")
)

// WatchOptions configures one logical query. Zero values fall back to the
// client's defaults.
type WatchOptions struct {
	FetchPolicy                 fetchpolicy.Policy
	NextFetchPolicy             fetchpolicy.Decider
	ErrorPolicy                 ErrorPolicy
	NotifyOnNetworkStatusChange bool
	Variables                   map[string]any
	CacheTTL                    time.Duration
}

type Options struct {
	Transport      gql.Transport
	Store          cache.Store
	Logger         *slog.Logger
	Sink           fetchpolicy.Sink
	Defaults       WatchOptions
	CacheOpTimeout time.Duration
	RequestTimeout time.Duration
}

// Client is safe for concurrent use. Each instance owns its store; nothing
// is shared between clients.
type Client struct {
	transport  gql.Transport
	store      cache.Store
	log        *slog.Logger
	sink       fetchpolicy.Sink
	defaults   WatchOptions
	opTimeout  time.Duration
	reqTimeout time.Duration
}

func New(opts Options) (*Client, error) {
	if opts.Transport == nil {
		return nil, ErrNoTransport
	}
	if opts.Store == nil {
		opts.Store = memstore.New(1024, 0)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	d := opts.Defaults
	if d.FetchPolicy == 0 {
		d.FetchPolicy = fetchpolicy.CacheFirst
	}
	if !d.FetchPolicy.Valid() {
		return nil, fmt.Errorf("query client: invalid default fetch policy %d", int(d.FetchPolicy))
	}
	if d.NextFetchPolicy == nil {
		d.NextFetchPolicy = fetchpolicy.PassThrough()
	}
	if d.ErrorPolicy == "" {
		d.ErrorPolicy = ErrorPolicyNone
	}
	return &Client{
		transport:  opts.Transport,
		store:      opts.Store,
		log:        opts.Logger,
		sink:       opts.Sink,
		defaults:   d,
		opTimeout:  opts.CacheOpTimeout,
		reqTimeout: opts.RequestTimeout,
	}, nil
}

func (c *Client) Defaults() WatchOptions { return c.defaults }

func (c *Client) Store() cache.Store { return c.store }

func (c *Client) merge(o WatchOptions) (WatchOptions, error) {
	if o.FetchPolicy == 0 {
		o.FetchPolicy = c.defaults.FetchPolicy
	}
	if !o.FetchPolicy.Valid() {
		return o, fmt.Errorf("invalid fetch policy %d", int(o.FetchPolicy))
	}
	if o.NextFetchPolicy == nil {
		o.NextFetchPolicy = c.defaults.NextFetchPolicy
	}
	if o.ErrorPolicy == "" {
		o.ErrorPolicy = c.defaults.ErrorPolicy
	}
	if _, err := ParseErrorPolicy(string(o.ErrorPolicy)); err != nil {
		return o, err
	}
	if o.CacheTTL == 0 {
		o.CacheTTL = c.defaults.CacheTTL
	}
	o.Variables = maps.Clone(o.Variables)
	return o, nil
}

// Watch registers a logical query without running it.
func (c *Client) Watch(doc *gql.Document, opts WatchOptions) (*ObservableQuery, error) {
	if doc == nil {
		return nil, gql.ErrNoOperation
	}
	o, err := c.merge(opts)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", doc.Name(), err)
	}
	return newObservable(c, doc, o), nil
}

// Query runs doc once under opts and returns the final result.
func (c *Client) Query(ctx context.Context, doc *gql.Document, opts WatchOptions) (Result, error) {
	q, err := c.Watch(doc, opts)
	if err != nil {
		return Result{}, err
	}
	return q.Result(ctx)
}

// Lazy prepares a query that runs only when executed.
func (c *Client) Lazy(doc *gql.Document, opts WatchOptions) *LazyQuery {
	return &LazyQuery{c: c, doc: doc, opts: opts}
}

// Evict drops the cached response for doc with vars and reports whether
// one was stored.
func (c *Client) Evict(ctx context.Context, doc *gql.Document, vars map[string]any) (bool, error) {
	ctx, cancel := c.storeCtx(ctx)
	defer cancel()
	key := keys.Key(doc.Operation, doc.Source, vars)
	_, found, err := c.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("evict %s: %w", doc.Name(), err)
	}
	if err := c.store.Del(ctx, key); err != nil {
		return false, fmt.Errorf("evict %s: %w", doc.Name(), err)
	}
	return found, nil
}

// EvictOperation drops every cached response of doc's operation, whatever
// the variables. The store must support prefix deletion.
func (c *Client) EvictOperation(ctx context.Context, doc *gql.Document) (int, error) {
	pd, ok := c.store.(cache.PrefixDeleter)
	if !ok {
		return 0, ErrPrefixUnsupported
	}
	ctx, cancel := c.storeCtx(ctx)
	defer cancel()
	n, err := pd.DelPrefix(ctx, keys.OperationPrefix(doc.Operation))
	if err != nil {
		return n, fmt.Errorf("evict %s: %w", doc.Name(), err)
	}
	return n, nil
}

func (c *Client) Close() error {
	if err := c.store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}

func (c *Client) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.opTimeout)
}

func (c *Client) requestCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.reqTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.reqTimeout)
}
