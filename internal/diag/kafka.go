package diag

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	jsoniter "github.com/json-iterator/go"

	"github.com/mohammed-shakir/dogquery/pkg/fetchpolicy"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Event is the JSON value published for each decision record.
type Event struct {
	Reason   string    `json:"reason"`
	From     string    `json:"from"`
	To       string    `json:"to"`
	Changed  bool      `json:"changed"`
	Strategy string    `json:"strategy,omitempty"`
	QueryID  string    `json:"query_id,omitempty"`
	TS       time.Time `json:"ts"`
}

// KafkaSink publishes records through a sarama async producer. Emit never
// blocks: when the queue is full the record is dropped and counted.
type KafkaSink struct {
	topic string
	prod  sarama.AsyncProducer
	log   *slog.Logger
	now   func() time.Time

	mu      sync.RWMutex
	closed  bool
	events  chan Event
	stopped chan struct{}
	errDone chan struct{}

	dropped atomic.Uint64
	failed  atomic.Uint64
}

func NewKafkaSink(brokers []string, topic string, queueSize int, log *slog.Logger) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("diag: no kafka brokers")
	}
	if topic == "" {
		return nil, fmt.Errorf("diag: kafka topic is required")
	}
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false
	cfg.Producer.RequiredAcks = sarama.WaitForLocal

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("diag: create async producer: %w", err)
	}
	s := newKafkaSink(prod, topic, queueSize, log)
	s.start()
	return s, nil
}

func newKafkaSink(prod sarama.AsyncProducer, topic string, queueSize int, log *slog.Logger) *KafkaSink {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &KafkaSink{
		topic:   topic,
		prod:    prod,
		log:     log,
		now:     time.Now,
		events:  make(chan Event, queueSize),
		stopped: make(chan struct{}),
		errDone: make(chan struct{}),
	}
}

func (s *KafkaSink) start() {
	go func() {
		defer close(s.stopped)
		for ev := range s.events {
			b, err := codec.Marshal(ev)
			if err != nil {
				s.log.Warn("diag: marshal decision event", "err", err)
				continue
			}
			msg := &sarama.ProducerMessage{
				Topic: s.topic,
				Value: sarama.ByteEncoder(b),
			}
			if ev.QueryID != "" {
				msg.Key = sarama.StringEncoder(ev.QueryID)
			}
			s.prod.Input() <- msg
		}
	}()

	go func() {
		defer close(s.errDone)
		for err := range s.prod.Errors() {
			if err != nil {
				s.failed.Add(1)
				s.log.Warn("diag: producer error", "err", err)
			}
		}
	}()
}

func (s *KafkaSink) Emit(rec fetchpolicy.Record) error {
	ev := Event{
		Reason:   string(rec.Reason),
		From:     rec.Current.String(),
		To:       rec.Next.String(),
		Changed:  rec.Changed(),
		Strategy: rec.Strategy,
		QueryID:  rec.QueryID,
		TS:       s.now().UTC(),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return nil
	}
	select {
	case s.events <- ev:
	default:
		s.dropped.Add(1)
	}
	return nil
}

// Dropped is the number of records discarded because the queue was full or
// the sink was closed.
func (s *KafkaSink) Dropped() uint64 { return s.dropped.Load() }

// Failed is the number of messages the producer reported as failed.
func (s *KafkaSink) Failed() uint64 { return s.failed.Load() }

// Close flushes queued records and closes the producer. It is safe to call
// more than once.
func (s *KafkaSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.events)
	s.mu.Unlock()

	<-s.stopped
	if err := s.prod.Close(); err != nil {
		return fmt.Errorf("diag: close producer: %w", err)
	}
	<-s.errDone
	return nil
}
