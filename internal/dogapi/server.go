package dogapi

import (
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	graphql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"
)

type Server struct {
	Resolver *Resolver

	schema   *graphql.Schema
	requests atomic.Int64
	down     atomic.Bool
}

func NewServer(breeds ...string) *Server {
	res := NewResolver(breeds...)
	return &Server{
		Resolver: res,
		schema:   graphql.MustParseSchema(Schema, res),
	}
}

// Requests counts POSTs that reached the GraphQL handler.
func (s *Server) Requests() int64 { return s.requests.Load() }

// SetDown makes the endpoint answer 503 until cleared.
func (s *Server) SetDown(down bool) { s.down.Store(down) }

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	gql := &relay.Handler{Schema: s.schema}

	r.Post("/graphql", func(w http.ResponseWriter, req *http.Request) {
		if s.down.Load() {
			http.Error(w, "dog api unavailable", http.StatusServiceUnavailable)
			return
		}
		s.requests.Add(1)
		gql.ServeHTTP(w, req)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	return r
}
