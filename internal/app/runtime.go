package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/mohammed-shakir/dogquery/internal/cache"
	"github.com/mohammed-shakir/dogquery/internal/cache/memstore"
	"github.com/mohammed-shakir/dogquery/internal/cache/redisstore"
	"github.com/mohammed-shakir/dogquery/internal/core/config"
	"github.com/mohammed-shakir/dogquery/internal/core/httpclient"
	"github.com/mohammed-shakir/dogquery/internal/diag"
	"github.com/mohammed-shakir/dogquery/internal/gql"
	"github.com/mohammed-shakir/dogquery/internal/invalidation"
	"github.com/mohammed-shakir/dogquery/internal/query"
)

// Runtime owns everything built from a Config.
type Runtime struct {
	App    *App
	Client *query.Client
	Store  cache.Store

	kafka *diag.KafkaSink
}

// OpenStore returns the response store selected by cfg.CacheDriver.
func OpenStore(ctx context.Context, cfg config.Config) (cache.Store, error) {
	switch cfg.CacheDriver {
	case "", config.CacheDriverMemory:
		return memstore.New(cfg.CacheSize, cfg.CacheTTL), nil
	case config.CacheDriverRedis:
		s, err := redisstore.New(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("open redis store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.CacheDriver)
	}
}

// Build wires store, transport, decision sinks, query client and demo from
// cfg. transport may be nil to use HTTP against cfg.GraphQLURL.
func Build(ctx context.Context, cfg config.Config, log *slog.Logger, transport gql.Transport) (*Runtime, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if transport == nil {
		t, err := gql.NewHTTPTransport(cfg.GraphQLURL, gql.WithHTTPClient(httpclient.NewOutbound(cfg.RequestTimeout)))
		if err != nil {
			return nil, err
		}
		transport = t
	}

	defaults, err := WatchOptions(config.QueryPolicy{
		FetchPolicy:     cfg.DefaultPolicy,
		NextFetchPolicy: cfg.DefaultNext,
	})
	if err != nil {
		return nil, fmt.Errorf("default policies: %w", err)
	}
	defaults.CacheTTL = cfg.CacheTTL

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Store: store}
	sinks := diag.Multi{diag.LogSink{Log: log.With("component", "decisions")}}
	if cfg.MetricsEnabled {
		sinks = append(sinks, diag.MetricsSink{})
	}
	if cfg.Diagnostics.KafkaEnabled {
		ks, err := diag.NewKafkaSink(cfg.Diagnostics.Brokers(), cfg.Diagnostics.KafkaTopic, cfg.Diagnostics.QueueSize, log)
		if err != nil {
			// decisions still go to the other sinks
			log.Warn("kafka decision sink disabled", "err", err)
		} else {
			rt.kafka = ks
			sinks = append(sinks, ks)
		}
	}

	client, err := query.New(query.Options{
		Transport:      transport,
		Store:          store,
		Logger:         log.With("component", "query"),
		Sink:           sinks,
		Defaults:       defaults,
		CacheOpTimeout: cfg.CacheOpTimeout,
		RequestTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Client = client

	a, err := New(client, cfg, log.With("component", "app"))
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.App = a
	return rt, nil
}

// Documents maps operation names carried by invalidation events to the
// documents whose cached responses they target.
var Documents = map[string]*gql.Document{
	QueryDogs:            DogsQuery,
	DogsQuery.Name():     DogsQuery,
	QueryDogPhoto:        DogPhotoQuery,
	DogPhotoQuery.Name(): DogPhotoQuery,
}

// Evict drops the cached responses ev targets.
func (rt *Runtime) Evict(ctx context.Context, ev invalidation.Event) (int, error) {
	doc, ok := Documents[ev.Operation]
	if !ok {
		return 0, fmt.Errorf("unknown operation %q", ev.Operation)
	}
	if ev.Whole() {
		return rt.Client.EvictOperation(ctx, doc)
	}
	found, err := rt.Client.Evict(ctx, doc, eventVariables(ev.Variables))
	if err != nil || !found {
		return 0, err
	}
	return 1, nil
}

// eventVariables brings event variables to the form the app queries with.
func eventVariables(vars map[string]any) map[string]any {
	b, ok := vars["breed"].(string)
	if !ok {
		return vars
	}
	out := maps.Clone(vars)
	out["breed"] = normalizeBreed(b)
	return out
}

// Ping checks the store when it is remote.
func (rt *Runtime) Ping(ctx context.Context) error {
	if p, ok := rt.Store.(cache.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (rt *Runtime) Close() error {
	var errs []error
	if rt.kafka != nil {
		errs = append(errs, rt.kafka.Close())
	}
	if rt.Client != nil {
		errs = append(errs, rt.Client.Close())
	} else if rt.Store != nil {
		errs = append(errs, rt.Store.Close())
	}
	return errors.Join(errs...)
}

// readyTimeout bounds the readiness probe.
const readyTimeout = 2 * time.Second
