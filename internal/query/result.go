package query

import (
	"encoding/json"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/mohammed-shakir/dogquery/internal/gql"
	"github.com/mohammed-shakir/dogquery/pkg/fetchpolicy"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// NetworkStatus uses the numeric codes query UIs conventionally switch on.
type NetworkStatus int

const (
	StatusLoading      NetworkStatus = 1
	StatusSetVariables NetworkStatus = 2
	StatusRefetch      NetworkStatus = 4
	StatusReady        NetworkStatus = 7
	StatusError        NetworkStatus = 8
)

func (s NetworkStatus) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusSetVariables:
		return "setVariables"
	case StatusRefetch:
		return "refetch"
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// InFlight reports whether a request is outstanding.
func (s NetworkStatus) InFlight() bool { return s < StatusReady }

type ErrorPolicy string

const (
	ErrorPolicyNone   ErrorPolicy = "none"
	ErrorPolicyAll    ErrorPolicy = "all"
	ErrorPolicyIgnore ErrorPolicy = "ignore"
)

func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch p := ErrorPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return ErrorPolicyNone, nil
	case ErrorPolicyNone, ErrorPolicyAll, ErrorPolicyIgnore:
		return p, nil
	default:
		return "", fmt.Errorf("unknown error policy %q", s)
	}
}

type Source string

const (
	SourceNone    Source = "none"
	SourceCache   Source = "cache"
	SourceNetwork Source = "network"
)

// Result is one emission of a logical query.
type Result struct {
	Data          json.RawMessage
	Errors        gql.Errors
	Err           error
	Loading       bool
	NetworkStatus NetworkStatus
	Source        Source
	// Policy is the fetch policy the emitting cycle ran under.
	Policy    fetchpolicy.Policy
	Variables map[string]any
}

// HasData reports whether the result carries a non-null data payload.
func (r Result) HasData() bool {
	return (&gql.Response{Data: r.Data}).HasData()
}

// Decode unmarshals Data into v.
func (r Result) Decode(v any) error {
	if !r.HasData() {
		return ErrNoData
	}
	if err := codec.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}
