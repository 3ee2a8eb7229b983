package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg := FromEnv()
	if cfg.CacheDriver != CacheDriverMemory {
		t.Fatalf("driver=%q", cfg.CacheDriver)
	}
	if cfg.PhotoPolicy != "network-only" || cfg.PhotoNext != "narrow-after-change" {
		t.Fatalf("photo defaults %q/%q", cfg.PhotoPolicy, cfg.PhotoNext)
	}
	if cfg.DefaultNext != "pass-through" || cfg.LazyBreed != "bulldog" {
		t.Fatalf("defaults %q/%q", cfg.DefaultNext, cfg.LazyBreed)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("CACHE_DRIVER", "REDIS")
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("CACHE_SIZE", "not-a-number")
	t.Setenv("DIAG_KAFKA_ENABLED", "yes")
	t.Setenv("KAFKA_BROKERS", " a:9092, ,b:9092 ")

	cfg := FromEnv()
	if cfg.CacheDriver != CacheDriverRedis {
		t.Fatalf("driver=%q", cfg.CacheDriver)
	}
	if cfg.CacheTTL != 90*time.Second {
		t.Fatalf("ttl=%v", cfg.CacheTTL)
	}
	if cfg.CacheSize != 1024 {
		t.Fatalf("bad int should keep default, got %d", cfg.CacheSize)
	}
	if !cfg.Diagnostics.KafkaEnabled {
		t.Fatalf("kafka diagnostics should be enabled")
	}
	if b := cfg.Diagnostics.Brokers(); len(b) != 2 || b[0] != "a:9092" || b[1] != "b:9092" {
		t.Fatalf("brokers=%v", b)
	}
}

func TestLoad_MergesPoliciesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policies.yaml")
	body := `
queries:
  dog:
    fetch_policy: cache-and-network
    next_fetch_policy: pin:cache-only
  dogs:
    error_policy: ignore
    notify_on_network_status_change: true
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("QUERY_POLICIES_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	def := QueryPolicy{FetchPolicy: "cache-first", NextFetchPolicy: "pass-through", ErrorPolicy: "none"}
	dog := cfg.Query("dog", def)
	if dog.FetchPolicy != "cache-and-network" || dog.NextFetchPolicy != "pin:cache-only" || dog.ErrorPolicy != "none" {
		t.Fatalf("dog=%+v", dog)
	}
	dogs := cfg.Query("dogs", def)
	if dogs.FetchPolicy != "cache-first" || dogs.ErrorPolicy != "ignore" {
		t.Fatalf("dogs=%+v", dogs)
	}
	if dogs.NotifyOnStatus == nil || !*dogs.NotifyOnStatus {
		t.Fatalf("dogs notify flag not parsed")
	}
	if got := cfg.Query("other", def); got != def {
		t.Fatalf("unknown query should get defaults, got %+v", got)
	}
}

func TestParsePolicies_Invalid(t *testing.T) {
	if _, err := ParsePolicies([]byte("queries: [1, 2")); err == nil {
		t.Fatalf("expected yaml error")
	}
	if _, err := LoadPolicies(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected read error")
	}
}
