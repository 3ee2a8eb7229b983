package kafkaconsumer

import (
	"os"
	"strings"
	"time"
)

type Config struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool
}

func FromEnv() Config {
	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		brokers = "localhost:9092"
	}
	topic := os.Getenv("INVALIDATION_TOPIC")
	if topic == "" {
		topic = "dog-invalidation"
	}
	group := os.Getenv("INVALIDATION_GROUP_ID")
	if group == "" {
		group = "dogquery-cache"
	}
	return Config{
		Brokers:          splitCSV(brokers),
		Topic:            topic,
		GroupID:          group,
		SessionTimeout:   30 * time.Second,
		Heartbeat:        3 * time.Second,
		RebalanceTimeout: 30 * time.Second,
		// cached responses only matter from now on
		InitialOffsetOldest: false,
	}
}

func splitCSV(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
