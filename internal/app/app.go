// Package app is the dog demo: a breed list, a photo for the selected breed
// with manual refetch, and a lazily triggered photo query.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mohammed-shakir/dogquery/internal/core/config"
	"github.com/mohammed-shakir/dogquery/internal/gql"
	"github.com/mohammed-shakir/dogquery/internal/query"
	"github.com/mohammed-shakir/dogquery/pkg/fetchpolicy"
)

var (
	DogsQuery = gql.MustParse(`
  {
    dogs {
      id
      breed
    }
  }
`)

	DogPhotoQuery = gql.MustParse(`
  query dog($breed: String!) {
    dog(breed: $breed) {
      id
      displayImage
    }
  }
`)
)

// Names used to look up per-query settings in the policies file.
const (
	QueryDogs     = "dogs"
	QueryDogPhoto = "dogPhoto"
	QueryDelayed  = "delayed"
)

var ErrNoSelection = errors.New("no breed selected")

const historySize = 16

type Dog struct {
	ID    string `json:"id"`
	Breed string `json:"breed"`
}

// View is what a component renders for its latest result.
type View struct {
	Status        string   `json:"status"`
	NetworkStatus int      `json:"network_status"`
	Breed         string   `json:"breed,omitempty"`
	Image         string   `json:"image,omitempty"`
	Dogs          []Dog    `json:"dogs,omitempty"`
	Source        string   `json:"source"`
	FetchPolicy   string   `json:"fetch_policy"`
	NextPolicy    string   `json:"next_fetch_policy"`
	Errors        []string `json:"errors,omitempty"`
	Error         string   `json:"error,omitempty"`
	History       []string `json:"history,omitempty"`
	Called        *bool    `json:"called,omitempty"`
}

type App struct {
	client *query.Client
	log    *slog.Logger

	dogs *query.ObservableQuery

	photoOpts query.WatchOptions
	mu        sync.Mutex
	photo     *query.ObservableQuery
	history   []string

	delayed   *query.LazyQuery
	lazyBreed string
}

// New builds the demo's queries from cfg. Nothing is fetched until a method
// is called.
func New(client *query.Client, cfg config.Config, log *slog.Logger) (*App, error) {
	if client == nil {
		return nil, errors.New("app: query client is required")
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	notify := true

	dogsOpts, err := WatchOptions(cfg.Query(QueryDogs, config.QueryPolicy{}))
	if err != nil {
		return nil, fmt.Errorf("app: %s: %w", QueryDogs, err)
	}
	dogs, err := client.Watch(DogsQuery, dogsOpts)
	if err != nil {
		return nil, err
	}

	photoOpts, err := WatchOptions(cfg.Query(QueryDogPhoto, config.QueryPolicy{
		FetchPolicy:     cfg.PhotoPolicy,
		NextFetchPolicy: cfg.PhotoNext,
		ErrorPolicy:     cfg.PhotoErrPolicy,
		NotifyOnStatus:  &notify,
	}))
	if err != nil {
		return nil, fmt.Errorf("app: %s: %w", QueryDogPhoto, err)
	}

	lazyOpts, err := WatchOptions(cfg.Query(QueryDelayed, config.QueryPolicy{}))
	if err != nil {
		return nil, fmt.Errorf("app: %s: %w", QueryDelayed, err)
	}

	breed := strings.TrimSpace(cfg.LazyBreed)
	if breed == "" {
		breed = "bulldog"
	}
	return &App{
		client:    client,
		log:       log,
		dogs:      dogs,
		photoOpts: photoOpts,
		delayed:   client.Lazy(DogPhotoQuery, lazyOpts),
		lazyBreed: breed,
	}, nil
}

// WatchOptions turns a configured query policy into query options. Empty
// fields stay zero so the client defaults apply.
func WatchOptions(qp config.QueryPolicy) (query.WatchOptions, error) {
	var o query.WatchOptions
	if qp.FetchPolicy != "" {
		p, err := fetchpolicy.ParsePolicy(qp.FetchPolicy)
		if err != nil {
			return o, err
		}
		o.FetchPolicy = p
	}
	if qp.NextFetchPolicy != "" {
		d, err := fetchpolicy.ParseStrategy(qp.NextFetchPolicy)
		if err != nil {
			return o, err
		}
		o.NextFetchPolicy = d
	}
	if qp.ErrorPolicy != "" {
		ep, err := query.ParseErrorPolicy(qp.ErrorPolicy)
		if err != nil {
			return o, err
		}
		o.ErrorPolicy = ep
	}
	if qp.NotifyOnStatus != nil {
		o.NotifyOnNetworkStatusChange = *qp.NotifyOnStatus
	}
	return o, nil
}

// Dogs runs one cycle of the breed list query.
func (a *App) Dogs(ctx context.Context) View {
	r, _ := a.dogs.Result(ctx)
	v := baseView(r, a.dogs.Policy())
	switch {
	case r.Err != nil:
		v.Status = "Error! " + r.Err.Error()
	case r.Loading:
		v.Status = "Loading..."
	default:
		var data struct {
			Dogs []Dog `json:"dogs"`
		}
		if err := r.Decode(&data); err == nil {
			v.Dogs = data.Dogs
		}
	}
	return v
}

func normalizeBreed(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Select shows the photo for breed. The first selection creates the photo
// query; later ones change its variables.
func (a *App) Select(ctx context.Context, breed string) (View, error) {
	breed = normalizeBreed(breed)
	if breed == "" {
		return View{}, errors.New("breed is required")
	}
	vars := map[string]any{"breed": breed}

	a.mu.Lock()
	q := a.photo
	if q == nil {
		o := a.photoOpts
		o.Variables = vars
		var err error
		q, err = a.client.Watch(DogPhotoQuery, o)
		if err != nil {
			a.mu.Unlock()
			return View{}, err
		}
		q.Subscribe(a.record)
		a.photo = q
		a.mu.Unlock()
		a.log.Info("dog selected", "breed", breed, "query_id", q.ID())
		r, _ := q.Result(ctx)
		return a.photoView(r, q), nil
	}
	a.mu.Unlock()

	a.log.Info("dog selected", "breed", breed, "query_id", q.ID())
	r, _ := q.SetVariables(ctx, vars)
	return a.photoView(r, q), nil
}

// Photo is the latest photo result without running a cycle.
func (a *App) Photo() (View, error) {
	q := a.photoQuery()
	if q == nil {
		return View{}, ErrNoSelection
	}
	return a.photoView(q.Current(), q), nil
}

// Refetch re-requests the selected photo from the network.
func (a *App) Refetch(ctx context.Context) (View, error) {
	q := a.photoQuery()
	if q == nil {
		return View{}, ErrNoSelection
	}
	r, _ := q.Refetch(ctx)
	return a.photoView(r, q), nil
}

// Delayed triggers the lazy photo query; an empty breed uses the configured
// default.
func (a *App) Delayed(ctx context.Context, breed string) View {
	breed = normalizeBreed(breed)
	if breed == "" {
		breed = a.lazyBreed
	}
	r, _ := a.delayed.Execute(ctx, map[string]any{"breed": breed})
	return a.delayedView(r)
}

// DelayedState reports the lazy query without triggering it.
func (a *App) DelayedState() View {
	r, ok := a.delayed.Current()
	if !ok {
		called := false
		return View{Status: "idle", Source: string(query.SourceNone), Called: &called}
	}
	return a.delayedView(r)
}

func (a *App) delayedView(r query.Result) View {
	pol := r.Policy
	if q := a.delayed.Query(); q != nil {
		pol = q.Policy()
	}
	v := baseView(r, pol)
	called := true
	v.Called = &called
	v.Breed = breedOf(r)
	switch {
	case r.Loading:
		v.Status = "Loading ..."
	case r.Err != nil:
		v.Status = "Error! " + r.Err.Error()
	default:
		v.Image = imageOf(r)
	}
	return v
}

func (a *App) photoQuery() *query.ObservableQuery {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.photo
}

func (a *App) record(r query.Result) {
	label := photoStatus(r)
	if label == "" {
		label = r.NetworkStatus.String()
	}
	a.mu.Lock()
	a.history = append(a.history, label)
	if n := len(a.history); n > historySize {
		a.history = a.history[n-historySize:]
	}
	a.mu.Unlock()
}

func (a *App) photoView(r query.Result, q *query.ObservableQuery) View {
	v := baseView(r, q.Policy())
	v.Breed = breedOf(r)
	v.Status = photoStatus(r)
	if r.Err == nil && r.NetworkStatus != query.StatusRefetch {
		v.Image = imageOf(r)
	}
	a.mu.Lock()
	v.History = append([]string(nil), a.history...)
	a.mu.Unlock()
	return v
}

// photoStatus mirrors the photo component: a refetch in flight wins over
// everything, loading renders nothing, errors render their message.
func photoStatus(r query.Result) string {
	switch {
	case r.NetworkStatus == query.StatusRefetch:
		return "Refetching!"
	case r.Loading:
		return ""
	case r.Err != nil:
		return "Error!: " + r.Err.Error()
	case !r.HasData():
		return "empty"
	default:
		return "ready"
	}
}

func baseView(r query.Result, next fetchpolicy.Policy) View {
	v := View{
		Status:        "ready",
		NetworkStatus: int(r.NetworkStatus),
		Source:        string(r.Source),
		FetchPolicy:   r.Policy.String(),
		NextPolicy:    next.String(),
	}
	if r.Err != nil {
		v.Error = r.Err.Error()
	}
	for _, e := range r.Errors {
		v.Errors = append(v.Errors, e.Message)
	}
	if v.Status == "ready" && !r.HasData() && r.Err == nil && !r.Loading {
		v.Status = "empty"
	}
	return v
}

func breedOf(r query.Result) string {
	if b, ok := r.Variables["breed"].(string); ok {
		return b
	}
	return ""
}

func imageOf(r query.Result) string {
	var data struct {
		Dog *struct {
			DisplayImage *string `json:"displayImage"`
		} `json:"dog"`
	}
	if err := r.Decode(&data); err != nil || data.Dog == nil || data.Dog.DisplayImage == nil {
		return ""
	}
	return *data.Dog.DisplayImage
}
