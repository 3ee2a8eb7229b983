package app

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"

	"github.com/mohammed-shakir/dogquery/internal/core/health"
	"github.com/mohammed-shakir/dogquery/internal/invalidation"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Mount registers the demo endpoints, the readiness probe and, when
// metrics is non-nil, /metrics on r.
func (rt *Runtime) Mount(r chi.Router, metrics http.Handler) {
	a := rt.App

	r.Get("/readyz", health.Readiness(readyTimeout, health.Check{Name: "cache", Ping: rt.Ping}))
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Get("/dogs", func(w http.ResponseWriter, req *http.Request) {
		v := a.Dogs(req.Context())
		writeView(w, v)
	})

	r.Post("/select", func(w http.ResponseWriter, req *http.Request) {
		breed, err := breedParam(w, req)
		if err != nil || breed == "" {
			http.Error(w, "breed is required", http.StatusBadRequest)
			return
		}
		v, err := a.Select(req.Context(), breed)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeView(w, v)
	})

	r.Get("/photo", func(w http.ResponseWriter, _ *http.Request) {
		v, err := a.Photo()
		if errors.Is(err, ErrNoSelection) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeView(w, v)
	})

	r.Post("/photo/refetch", func(w http.ResponseWriter, req *http.Request) {
		v, err := a.Refetch(req.Context())
		if errors.Is(err, ErrNoSelection) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		writeView(w, v)
	})

	r.Post("/delayed", func(w http.ResponseWriter, req *http.Request) {
		breed, err := breedParam(w, req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeView(w, a.Delayed(req.Context(), breed))
	})

	r.Get("/delayed", func(w http.ResponseWriter, _ *http.Request) {
		writeView(w, a.DelayedState())
	})

	r.Post("/evict", func(w http.ResponseWriter, req *http.Request) {
		var ev invalidation.Event
		if err := codec.NewDecoder(http.MaxBytesReader(w, req.Body, 16<<10)).Decode(&ev); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if ev.Version == 0 {
			ev.Version = 1
		}
		if ev.Op == "" {
			ev.Op = "update"
		}
		if ev.TS.IsZero() {
			ev.TS = time.Now().UTC()
		}
		if err := ev.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		n, err := rt.Evict(req.Context(), ev)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = codec.NewEncoder(w).Encode(map[string]any{"operation": ev.Operation, "evicted": n})
	})
}

// breedParam reads breed from a JSON body or, failing that, the query string
// or form.
func breedParam(w http.ResponseWriter, req *http.Request) (string, error) {
	if strings.HasPrefix(req.Header.Get("Content-Type"), "application/json") {
		var body struct {
			Breed string `json:"breed"`
		}
		if err := codec.NewDecoder(http.MaxBytesReader(w, req.Body, 4<<10)).Decode(&body); err != nil {
			if errors.Is(err, io.EOF) {
				return "", nil
			}
			return "", errors.New("invalid JSON body")
		}
		return strings.TrimSpace(body.Breed), nil
	}
	return strings.TrimSpace(req.FormValue("breed")), nil
}

// writeView answers 502 when the upstream failed and nothing else is shown.
func writeView(w http.ResponseWriter, v View) {
	w.Header().Set("Content-Type", "application/json")
	if v.Error != "" && v.Image == "" && len(v.Dogs) == 0 {
		w.WriteHeader(http.StatusBadGateway)
	}
	_ = codec.NewEncoder(w).Encode(v)
}
