package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func decodeLine(t *testing.T, b []byte) map[string]any {
	t.Helper()
	line := bytes.TrimSpace(b)
	if i := bytes.LastIndexByte(line, '\n'); i >= 0 {
		line = line[i+1:]
	}
	m := map[string]any{}
	if err := json.Unmarshal(line, &m); err != nil {
		t.Fatalf("decode %q: %v", line, err)
	}
	return m
}

func TestSlog_CarriesContextFields(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "debug", Component: "query"}, &buf)
	l := NewSlog(&zl)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithQueryID(ctx, "q-42")
	ctx = WithOperation(ctx, "dog")
	l.InfoContext(ctx, "fetch done", "policy", "cache-first", "hits", 3, "err", errors.New("x"))

	m := decodeLine(t, buf.Bytes())
	for k, want := range map[string]any{
		"msg": "fetch done", "request_id": "req-1", "query_id": "q-42",
		"operation": "dog", "component": "query", "policy": "cache-first",
		"service": "dogquery", "err": "x",
	} {
		if m[k] != want {
			t.Fatalf("field %s=%v want %v (line=%s)", k, m[k], want, buf.String())
		}
	}
	if m["hits"] != float64(3) {
		t.Fatalf("hits=%v", m["hits"])
	}
}

func TestSlog_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "warn"}, &buf)
	l := NewSlog(&zl)

	l.Debug("hidden")
	l.Info("hidden too")
	if buf.Len() != 0 {
		t.Fatalf("expected nothing below warn, got %s", buf.String())
	}
	l.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("warn record missing: %s", buf.String())
	}
}

func TestSlog_GroupsAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "info"}, &buf)
	l := NewSlog(&zl).With("query", "dogs").WithGroup("decision")
	l.Info("next policy", "from", "network-only", "to", "cache-only")

	m := decodeLine(t, buf.Bytes())
	if m["query"] != "dogs" || m["decision.from"] != "network-only" || m["decision.to"] != "cache-only" {
		t.Fatalf("unexpected fields: %v", m)
	}
}

func TestNewID_Unique(t *testing.T) {
	a, b := NewID(), NewID()
	if len(a) != 16 || a == b {
		t.Fatalf("ids %q %q", a, b)
	}
}
