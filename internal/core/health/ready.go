// Package health serves liveness and readiness probes.
package health

import (
	"context"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
)

func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// Check is one named dependency probed by Readiness.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Readiness runs every check with a shared timeout and answers 503 when any
// of them fails.
func Readiness(timeout time.Duration, checks ...Check) http.HandlerFunc {
	if timeout <= 0 {
		timeout = time.Second
	}
	return func(w http.ResponseWriter, r *http.Request) {
		type resp struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks,omitempty"`
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		out := resp{Status: "ready", Checks: make(map[string]string, len(checks))}
		for _, c := range checks {
			if c.Ping == nil {
				continue
			}
			if err := c.Ping(ctx); err != nil {
				out.Status = "not_ready"
				out.Checks[c.Name] = err.Error()
				continue
			}
			out.Checks[c.Name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		if out.Status != "ready" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = jsoniter.NewEncoder(w).Encode(out)
	}
}
