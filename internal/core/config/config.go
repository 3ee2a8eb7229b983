// Package config loads runtime settings from the environment and an
// optional YAML file of per-query fetch policies.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	CacheDriverMemory = "memory"
	CacheDriverRedis  = "redis"
)

// QueryPolicy configures one named query. Empty fields fall back to the
// client defaults.
type QueryPolicy struct {
	FetchPolicy     string `yaml:"fetch_policy"`
	NextFetchPolicy string `yaml:"next_fetch_policy"`
	ErrorPolicy     string `yaml:"error_policy"`
	NotifyOnStatus  *bool  `yaml:"notify_on_network_status_change"`
}

type DiagnosticsCfg struct {
	KafkaEnabled bool
	KafkaBrokers string
	KafkaTopic   string
	QueueSize    int
}

type Config struct {
	Addr           string
	LogLevel       string
	LogConsole     bool
	GraphQLURL     string
	CacheDriver    string
	RedisAddr      string
	CacheSize      int
	CacheTTL       time.Duration
	CacheOpTimeout time.Duration
	RequestTimeout time.Duration
	DefaultPolicy  string
	DefaultNext    string
	PhotoPolicy    string
	PhotoNext      string
	PhotoErrPolicy string
	LazyBreed      string
	MetricsEnabled bool
	// InvalidationEnabled starts the Kafka consumer that evicts cached
	// responses; see kafkaconsumer.FromEnv for its settings.
	InvalidationEnabled bool
	PoliciesFile        string
	Queries             map[string]QueryPolicy
	Diagnostics         DiagnosticsCfg
}

func FromEnv() Config {
	return Config{
		Addr:                getenv("ADDR", ":8090"),
		LogLevel:            getenv("LOG_LEVEL", "info"),
		LogConsole:          getbool("LOG_CONSOLE", false),
		GraphQLURL:          getenv("GRAPHQL_URL", "http://localhost:8081/graphql"),
		CacheDriver:         strings.ToLower(getenv("CACHE_DRIVER", CacheDriverMemory)),
		RedisAddr:           getenv("REDIS_ADDR", "localhost:6379"),
		CacheSize:           getint("CACHE_SIZE", 1024),
		CacheTTL:            getduration("CACHE_TTL", 5*time.Minute),
		CacheOpTimeout:      getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		RequestTimeout:      getduration("REQUEST_TIMEOUT", 10*time.Second),
		DefaultPolicy:       getenv("DEFAULT_FETCH_POLICY", "cache-first"),
		DefaultNext:         getenv("DEFAULT_NEXT_FETCH_POLICY", "pass-through"),
		PhotoPolicy:         getenv("PHOTO_FETCH_POLICY", "network-only"),
		PhotoNext:           getenv("PHOTO_NEXT_FETCH_POLICY", "narrow-after-change"),
		PhotoErrPolicy:      getenv("PHOTO_ERROR_POLICY", "all"),
		LazyBreed:           getenv("LAZY_BREED", "bulldog"),
		MetricsEnabled:      getbool("METRICS_ENABLED", true),
		InvalidationEnabled: getbool("INVALIDATION_ENABLED", false),
		PoliciesFile:        getenv("QUERY_POLICIES_FILE", ""),
		Queries:             map[string]QueryPolicy{},
		Diagnostics: DiagnosticsCfg{
			KafkaEnabled: getbool("DIAG_KAFKA_ENABLED", false),
			KafkaBrokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			KafkaTopic:   getenv("DIAG_KAFKA_TOPIC", "fetch-policy-decisions"),
			QueueSize:    getint("DIAG_QUEUE_SIZE", 1024),
		},
	}
}

// Load reads the environment and, when PoliciesFile is set, merges the
// per-query policies found there.
func Load() (Config, error) {
	cfg := FromEnv()
	if cfg.PoliciesFile == "" {
		return cfg, nil
	}
	qs, err := LoadPolicies(cfg.PoliciesFile)
	if err != nil {
		return cfg, err
	}
	cfg.Queries = qs
	return cfg, nil
}

type policiesFile struct {
	Queries map[string]QueryPolicy `yaml:"queries"`
}

func LoadPolicies(path string) (map[string]QueryPolicy, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policies file: %w", err)
	}
	return ParsePolicies(b)
}

func ParsePolicies(b []byte) (map[string]QueryPolicy, error) {
	var f policiesFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse policies file: %w", err)
	}
	out := make(map[string]QueryPolicy, len(f.Queries))
	for name, q := range f.Queries {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("policies file: empty query name")
		}
		out[name] = q
	}
	return out, nil
}

// Query returns the settings for name layered over the given defaults.
func (c Config) Query(name string, def QueryPolicy) QueryPolicy {
	q, ok := c.Queries[name]
	if !ok {
		return def
	}
	if q.FetchPolicy == "" {
		q.FetchPolicy = def.FetchPolicy
	}
	if q.NextFetchPolicy == "" {
		q.NextFetchPolicy = def.NextFetchPolicy
	}
	if q.ErrorPolicy == "" {
		q.ErrorPolicy = def.ErrorPolicy
	}
	if q.NotifyOnStatus == nil {
		q.NotifyOnStatus = def.NotifyOnStatus
	}
	return q
}

func (d DiagnosticsCfg) Brokers() []string {
	var out []string
	for p := range strings.SplitSeq(d.KafkaBrokers, ",") {
		if x := strings.TrimSpace(p); x != "" {
			out = append(out, x)
		}
	}
	return out
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
