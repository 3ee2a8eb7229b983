package gql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/mohammed-shakir/dogquery/internal/core/observability"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

type Error struct {
	Message    string         `json:"message"`
	Locations  []Location     `json:"locations,omitempty"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Errors is the errors array of a GraphQL response.
type Errors []Error

func (e Errors) Error() string {
	switch len(e) {
	case 0:
		return "graphql: no errors"
	case 1:
		return "graphql: " + e[0].Message
	}
	msgs := make([]string, len(e))
	for i, x := range e {
		msgs[i] = x.Message
	}
	return fmt.Sprintf("graphql: %d errors: %s", len(e), strings.Join(msgs, "; "))
}

type Response struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Errors Errors          `json:"errors,omitempty"`
}

// HasData reports whether data is present and not JSON null.
func (r *Response) HasData() bool {
	d := bytes.TrimSpace(r.Data)
	return len(d) > 0 && !bytes.Equal(d, []byte("null"))
}

// Transport executes one GraphQL request. GraphQL-level errors are returned
// inside the Response, not as the error value.
type Transport interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

type TransportFunc func(ctx context.Context, req Request) (*Response, error)

func (f TransportFunc) Do(ctx context.Context, req Request) (*Response, error) { return f(ctx, req) }

type HTTPTransport struct {
	endpoint string
	client   *http.Client
	header   http.Header
	startNow func() time.Time // for tests
}

type HTTPOption func(*HTTPTransport)

func WithHeader(k, v string) HTTPOption {
	return func(t *HTTPTransport) { t.header.Set(k, v) }
}

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *HTTPTransport) { t.client = c }
}

func NewHTTPTransport(endpoint string, opts ...HTTPOption) (*HTTPTransport, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, fmt.Errorf("graphql endpoint is required")
	}
	t := &HTTPTransport{
		endpoint: endpoint,
		client:   http.DefaultClient,
		header:   http.Header{},
		startNow: time.Now,
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

func (t *HTTPTransport) Do(ctx context.Context, gr Request) (*Response, error) {
	start := t.startNow()
	resp, err := t.do(ctx, gr)
	observability.ObserveUpstreamLatency(gr.OperationName, err, time.Since(start).Seconds())
	return resp, err
}

func (t *HTTPTransport) do(ctx context.Context, gr Request) (*Response, error) {
	body, err := codec.Marshal(gr)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range t.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/graphql-response+json, application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var out Response
	decodeErr := codec.Unmarshal(b, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// a GraphQL-over-HTTP server may answer 4xx with a well-formed errors array
		if decodeErr == nil && len(out.Errors) > 0 {
			return &out, nil
		}
		return nil, &StatusError{Code: resp.StatusCode, Body: truncate(b, 8<<10)}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode response: %w", decodeErr)
	}
	return &out, nil
}

type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Code, e.Body)
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
