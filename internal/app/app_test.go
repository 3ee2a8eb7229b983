package app

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/dogquery/internal/core/config"
	"github.com/mohammed-shakir/dogquery/internal/core/server"
	"github.com/mohammed-shakir/dogquery/internal/dogapi"
	"github.com/mohammed-shakir/dogquery/internal/gql"
)

func testConfig() config.Config {
	return config.Config{
		CacheDriver:    config.CacheDriverMemory,
		CacheSize:      64,
		CacheOpTimeout: time.Second,
		RequestTimeout: 5 * time.Second,
		DefaultPolicy:  "cache-first",
		DefaultNext:    "pass-through",
		PhotoPolicy:    "network-only",
		PhotoNext:      "narrow-after-change",
		PhotoErrPolicy: "all",
		LazyBreed:      "bulldog",
		Queries:        map[string]config.QueryPolicy{},
	}
}

type harness struct {
	api    *dogapi.Server
	rt     *Runtime
	router chi.Router
}

func newHarness(t *testing.T, cfg config.Config) *harness {
	t.Helper()
	api := dogapi.NewServer()
	up := httptest.NewServer(api.Handler())
	t.Cleanup(up.Close)

	tr, err := gql.NewHTTPTransport(up.URL+"/graphql", gql.WithHTTPClient(up.Client()))
	if err != nil {
		t.Fatalf("transport: %v", err)
	}
	rt, err := Build(context.Background(), cfg, nil, tr)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })

	r := server.NewRouter(slog.New(slog.DiscardHandler))
	rt.Mount(r, nil)
	return &harness{api: api, rt: rt, router: r}
}

func (h *harness) do(t *testing.T, method, target, body string) (int, View) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)

	var v View
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		if err := codec.Unmarshal(rr.Body.Bytes(), &v); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, target, rr.Body.String(), err)
		}
	}
	return rr.Code, v
}

func TestTour_PhotoNarrowsToCacheOnly(t *testing.T) {
	h := newHarness(t, testConfig())

	if code, _ := h.do(t, http.MethodGet, "/photo", ""); code != http.StatusNotFound {
		t.Fatalf("photo before select: %d", code)
	}

	code, v := h.do(t, http.MethodGet, "/dogs", "")
	if code != http.StatusOK || len(v.Dogs) != len(dogapi.DefaultBreeds) || v.Source != "network" {
		t.Fatalf("dogs: %d %+v", code, v)
	}
	if _, v = h.do(t, http.MethodGet, "/dogs", ""); v.Source != "cache" {
		t.Fatalf("second dogs should be cached: %+v", v)
	}

	_, v = h.do(t, http.MethodPost, "/select", `{"breed":"husky"}`)
	if v.Image != dogapi.ImageURL("husky", 1) || v.FetchPolicy != "network-only" || v.NextPolicy != "network-only" {
		t.Fatalf("select husky: %+v", v)
	}

	_, v = h.do(t, http.MethodPost, "/select?breed=poodle", "")
	if v.Status != "empty" || v.Image != "" || v.FetchPolicy != "cache-only" || v.NextPolicy != "cache-only" {
		t.Fatalf("select poodle: %+v", v)
	}

	_, v = h.do(t, http.MethodPost, "/select", `{"breed":"husky"}`)
	if v.Image != dogapi.ImageURL("husky", 1) || v.Source != "cache" {
		t.Fatalf("reselect husky: %+v", v)
	}

	_, v = h.do(t, http.MethodPost, "/photo/refetch", "")
	if v.Image != dogapi.ImageURL("husky", 2) || v.Source != "network" || v.NextPolicy != "cache-only" {
		t.Fatalf("refetch: %+v", v)
	}
	if !slices.Contains(v.History, "Refetching!") {
		t.Fatalf("history missing refetch: %v", v.History)
	}

	_, cur := h.do(t, http.MethodGet, "/photo", "")
	if cur.Image != v.Image {
		t.Fatalf("photo=%+v", cur)
	}

	// list once + husky fetched once + refetched once
	dogs, dog := h.api.Resolver.Calls()
	if dogs != 1 || dog != 2 {
		t.Fatalf("upstream calls dogs=%d dog=%d", dogs, dog)
	}
}

func TestDelayed_LazyTrigger(t *testing.T) {
	h := newHarness(t, testConfig())

	_, v := h.do(t, http.MethodGet, "/delayed", "")
	if v.Called == nil || *v.Called || h.api.Requests() != 0 {
		t.Fatalf("lazy query ran early: %+v", v)
	}

	_, v = h.do(t, http.MethodPost, "/delayed", "")
	if v.Image != dogapi.ImageURL("bulldog", 1) || v.Breed != "bulldog" {
		t.Fatalf("delayed: %+v", v)
	}

	_, v = h.do(t, http.MethodPost, "/delayed", `{"breed":"akita"}`)
	if v.Image != dogapi.ImageURL("akita", 1) {
		t.Fatalf("delayed akita: %+v", v)
	}

	_, v = h.do(t, http.MethodGet, "/delayed", "")
	if v.Called == nil || !*v.Called || v.Breed != "akita" {
		t.Fatalf("delayed state: %+v", v)
	}
}

func TestPerQueryPolicyOverride(t *testing.T) {
	cfg := testConfig()
	cfg.Queries[QueryDogPhoto] = config.QueryPolicy{NextFetchPolicy: "pass-through"}
	h := newHarness(t, cfg)

	h.do(t, http.MethodPost, "/select", `{"breed":"husky"}`)
	_, v := h.do(t, http.MethodPost, "/select", `{"breed":"poodle"}`)
	if v.Image != dogapi.ImageURL("poodle", 1) || v.FetchPolicy != "network-only" {
		t.Fatalf("pass-through should keep fetching: %+v", v)
	}
}

func TestUpstreamDown(t *testing.T) {
	h := newHarness(t, testConfig())
	h.api.SetDown(true)

	code, v := h.do(t, http.MethodGet, "/dogs", "")
	if code != http.StatusBadGateway || !strings.HasPrefix(v.Status, "Error! ") {
		t.Fatalf("dogs with upstream down: %d %+v", code, v)
	}

	code, v = h.do(t, http.MethodPost, "/select", `{"breed":"husky"}`)
	if code != http.StatusBadGateway || !strings.HasPrefix(v.Status, "Error!: ") {
		t.Fatalf("select with upstream down: %d %+v", code, v)
	}
}

func TestUnknownBreed_ErrorPolicyAll(t *testing.T) {
	h := newHarness(t, testConfig())
	code, v := h.do(t, http.MethodPost, "/select", `{"breed":"wolf"}`)
	if code != http.StatusOK || len(v.Errors) != 1 || v.Image != "" {
		t.Fatalf("wolf: %d %+v", code, v)
	}
}

func TestSelect_RequiresBreed(t *testing.T) {
	h := newHarness(t, testConfig())
	if code, _ := h.do(t, http.MethodPost, "/select", `{}`); code != http.StatusBadRequest {
		t.Fatalf("status=%d want 400", code)
	}
	if code, _ := h.do(t, http.MethodPost, "/photo/refetch", ""); code != http.StatusConflict {
		t.Fatalf("refetch before select: %d want 409", code)
	}
}

func TestRedisStore_Readiness(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.CacheDriver = config.CacheDriverRedis
	cfg.RedisAddr = mr.Addr()
	h := newHarness(t, cfg)

	if code, _ := h.do(t, http.MethodGet, "/readyz", ""); code != http.StatusOK {
		t.Fatalf("readyz=%d want 200", code)
	}
	h.do(t, http.MethodGet, "/dogs", "")
	if len(mr.Keys()) != 1 || !strings.HasPrefix(mr.Keys()[0], "gql:anonymous:") {
		t.Fatalf("redis keys=%v", mr.Keys())
	}

	mr.Close()
	if code, _ := h.do(t, http.MethodGet, "/readyz", ""); code != http.StatusServiceUnavailable {
		t.Fatalf("readyz=%d want 503", code)
	}
}

func TestWatchOptions_RejectsUnknown(t *testing.T) {
	for _, qp := range []config.QueryPolicy{
		{FetchPolicy: "sometimes"},
		{NextFetchPolicy: "pin:nowhere"},
		{ErrorPolicy: "loud"},
	} {
		if _, err := WatchOptions(qp); err == nil {
			t.Fatalf("expected error for %+v", qp)
		}
	}
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	cfg := testConfig()
	cfg.CacheDriver = "disk"
	if _, err := OpenStore(context.Background(), cfg); err == nil {
		t.Fatalf("expected error")
	}
}

func TestEvict_NextSelectionRefetches(t *testing.T) {
	cfg := testConfig()
	cfg.PhotoNext = "pin:cache-first"
	h := newHarness(t, cfg)

	h.do(t, http.MethodPost, "/select", `{"breed":"husky"}`)
	_, v := h.do(t, http.MethodPost, "/select", `{"breed":"husky"}`)
	if v.Source != "cache" {
		t.Fatalf("expected cached photo: %+v", v)
	}

	req := httptest.NewRequest(http.MethodPost, "/evict", strings.NewReader(`{"operation":"dog","variables":{"breed":"husky"}}`))
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"evicted":1`) {
		t.Fatalf("evict: %d %s", rr.Code, rr.Body.String())
	}

	_, v = h.do(t, http.MethodPost, "/select", `{"breed":"husky"}`)
	if v.Source != "network" || v.Image != dogapi.ImageURL("husky", 2) {
		t.Fatalf("expected refetch after evict: %+v", v)
	}
}

func TestEvict_WholeOperationAndUnknown(t *testing.T) {
	h := newHarness(t, testConfig())
	h.do(t, http.MethodGet, "/dogs", "")

	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/evict", strings.NewReader(`{"operation":"dogs"}`)))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"evicted":1`) {
		t.Fatalf("evict dogs: %d %s", rr.Code, rr.Body.String())
	}
	if _, v := h.do(t, http.MethodGet, "/dogs", ""); v.Source != "network" {
		t.Fatalf("dogs should be refetched: %+v", v)
	}

	rr = httptest.NewRecorder()
	h.router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/evict", strings.NewReader(`{"operation":"cats"}`)))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unknown operation: %d", rr.Code)
	}
}

func TestEvict_BreedMatchesSelection(t *testing.T) {
	cfg := testConfig()
	cfg.PhotoNext = "pin:cache-first"
	h := newHarness(t, cfg)
	h.do(t, http.MethodPost, "/select", `{"breed":"bulldog"}`)

	evict := func() string {
		rr := httptest.NewRecorder()
		body := `{"operation":"dog","variables":{"breed":" Bulldog "}}`
		h.router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/evict", strings.NewReader(body)))
		if rr.Code != http.StatusOK {
			t.Fatalf("evict: %d %s", rr.Code, rr.Body.String())
		}
		return rr.Body.String()
	}
	if body := evict(); !strings.Contains(body, `"evicted":1`) {
		t.Fatalf("first evict: %s", body)
	}
	if body := evict(); !strings.Contains(body, `"evicted":0`) {
		t.Fatalf("nothing left to evict: %s", body)
	}

	_, v := h.do(t, http.MethodPost, "/select", `{"breed":"bulldog"}`)
	if v.Source != "network" || v.Image != dogapi.ImageURL("bulldog", 2) {
		t.Fatalf("expected refetch after evict: %+v", v)
	}
}

func TestTour_PinnedCacheOnly(t *testing.T) {
	cfg := testConfig()
	cfg.PhotoNext = "pin:cache-only"
	h := newHarness(t, cfg)

	_, v := h.do(t, http.MethodPost, "/select", `{"breed":"husky"}`)
	if v.Image != dogapi.ImageURL("husky", 1) || v.FetchPolicy != "network-only" || v.NextPolicy != "cache-only" {
		t.Fatalf("select husky: %+v", v)
	}
	_, v = h.do(t, http.MethodPost, "/select", `{"breed":"poodle"}`)
	if v.Status != "empty" || v.FetchPolicy != "cache-only" {
		t.Fatalf("select poodle: %+v", v)
	}
	_, v = h.do(t, http.MethodPost, "/photo/refetch", "")
	if v.Source != "network" || v.NextPolicy != "cache-only" {
		t.Fatalf("refetch: %+v", v)
	}
}
