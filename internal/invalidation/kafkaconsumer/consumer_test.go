package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/dogquery/internal/invalidation"
)

type fakeEvictor struct {
	failFirst atomic.Bool
	mu        sync.Mutex
	seen      []invalidation.Event
}

func (f *fakeEvictor) Evict(_ context.Context, ev invalidation.Event) (int, error) {
	f.mu.Lock()
	f.seen = append(f.seen, ev)
	f.mu.Unlock()
	if f.failFirst.Load() {
		f.failFirst.Store(false)
		return 0, errors.New("boom")
	}
	return 1, nil
}

func (f *fakeEvictor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

type sess struct {
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *sess) Claims() map[string][]int32 { return nil }
func (s *sess) MemberID() string           { return "" }
func (s *sess) GenerationID() int32        { return 0 }
func (s *sess) MarkMessage(m *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	s.marked = append(s.marked, m.Offset)
	s.mu.Unlock()
}
func (s *sess) ResetOffset(_ string, _ int32, _ int64, _ string) {}
func (s *sess) MarkOffset(_ string, _ int32, _ int64, _ string)  {}
func (s *sess) Context() context.Context                         { return s.ctx }
func (s *sess) Commit()                                          {}

type claim struct {
	part int32
	msgs chan *sarama.ConsumerMessage
}

func (c *claim) Topic() string                            { return "dog-invalidation" }
func (c *claim) Partition() int32                         { return c.part }
func (c *claim) InitialOffset() int64                     { return 0 }
func (c *claim) HighWaterMarkOffset() int64               { return 0 }
func (c *claim) Messages() <-chan *sarama.ConsumerMessage { return c.msgs }

func eventBytes(breed string) []byte {
	ev := invalidation.Event{
		Version: 1, Op: "update", Operation: "dog", TS: time.Now().UTC(),
		Variables: map[string]any{"breed": breed},
	}
	b, _ := json.Marshal(ev)
	return b
}

func newConsumerForTest(ev Evictor) *Consumer {
	cfg := Config{Brokers: []string{"x"}, Topic: "dog-invalidation", GroupID: "g"}
	return New(cfg, slog.New(slog.DiscardHandler), ev)
}

func TestSinglePartition_OrderAndCommitAfterWork(t *testing.T) {
	fe := &fakeEvictor{}
	c := newConsumerForTest(fe)

	g := &groupHandler{process: c.ProcessOne}
	s := &sess{ctx: t.Context()}
	ch := make(chan *sarama.ConsumerMessage, 2)
	ch <- &sarama.ConsumerMessage{Topic: "dog-invalidation", Partition: 0, Offset: 10, Value: eventBytes("husky")}
	ch <- &sarama.ConsumerMessage{Topic: "dog-invalidation", Partition: 0, Offset: 11, Value: eventBytes("poodle")}
	close(ch)

	if err := g.ConsumeClaim(s, &claim{part: 0, msgs: ch}); err != nil {
		t.Fatalf("ConsumeClaim: %v", err)
	}
	if len(s.marked) != 2 || s.marked[0] != 10 || s.marked[1] != 11 {
		t.Fatalf("marked offsets=%v want [10 11]", s.marked)
	}
	if fe.count() != 2 || fe.seen[0].Variables["breed"] != "husky" {
		t.Fatalf("evictions=%+v", fe.seen)
	}
}

func TestRetry_CommitOnceAfterSuccess(t *testing.T) {
	fe := &fakeEvictor{}
	fe.failFirst.Store(true)
	c := newConsumerForTest(fe)
	ctx := context.Background()

	msg := &sarama.ConsumerMessage{Topic: "dog-invalidation", Partition: 0, Offset: 5, Value: eventBytes("akita")}
	if err := c.ProcessOne(ctx, msg); err == nil {
		t.Fatalf("expected error on first attempt")
	}

	s := &sess{ctx: ctx}
	g := &groupHandler{process: c.ProcessOne}
	ch := make(chan *sarama.ConsumerMessage, 1)
	ch <- msg
	close(ch)
	if err := g.ConsumeClaim(s, &claim{part: 0, msgs: ch}); err != nil {
		t.Fatalf("ConsumeClaim second attempt: %v", err)
	}
	if len(s.marked) != 1 || s.marked[0] != 5 {
		t.Fatalf("offset was not marked after success; marked=%v", s.marked)
	}
}

func TestFailure_StopsClaimWithoutMarking(t *testing.T) {
	fe := &fakeEvictor{}
	fe.failFirst.Store(true)
	c := newConsumerForTest(fe)
	g := &groupHandler{process: c.ProcessOne}

	s := &sess{ctx: t.Context()}
	ch := make(chan *sarama.ConsumerMessage, 2)
	ch <- &sarama.ConsumerMessage{Partition: 0, Offset: 1, Value: eventBytes("husky")}
	ch <- &sarama.ConsumerMessage{Partition: 0, Offset: 2, Value: eventBytes("husky")}
	close(ch)

	if err := g.ConsumeClaim(s, &claim{msgs: ch}); err == nil {
		t.Fatalf("expected claim to stop on failure")
	}
	if len(s.marked) != 0 {
		t.Fatalf("nothing should be marked, got %v", s.marked)
	}
}

func TestMalformedEvents_AreSkipped(t *testing.T) {
	fe := &fakeEvictor{}
	c := newConsumerForTest(fe)
	g := &groupHandler{process: c.ProcessOne}

	bad, _ := json.Marshal(invalidation.Event{Version: 1, Op: "upsert", Operation: "dog", TS: time.Now()})
	s := &sess{ctx: t.Context()}
	ch := make(chan *sarama.ConsumerMessage, 3)
	ch <- &sarama.ConsumerMessage{Offset: 1, Value: []byte("{not json")}
	ch <- &sarama.ConsumerMessage{Offset: 2, Value: bad}
	ch <- &sarama.ConsumerMessage{Offset: 3, Value: eventBytes("beagle")}
	close(ch)

	if err := g.ConsumeClaim(s, &claim{msgs: ch}); err != nil {
		t.Fatalf("ConsumeClaim: %v", err)
	}
	if len(s.marked) != 3 || fe.count() != 1 {
		t.Fatalf("marked=%v evictions=%d", s.marked, fe.count())
	}
}

func TestMultiPartition_Parallel_NoCrossOrdering(t *testing.T) {
	fe := &fakeEvictor{}
	c := newConsumerForTest(fe)
	g := &groupHandler{process: c.ProcessOne}
	s := &sess{ctx: t.Context()}

	p0 := make(chan *sarama.ConsumerMessage, 2)
	p1 := make(chan *sarama.ConsumerMessage, 2)
	p0 <- &sarama.ConsumerMessage{Topic: "t", Partition: 0, Offset: 1, Value: eventBytes("husky")}
	p0 <- &sarama.ConsumerMessage{Topic: "t", Partition: 0, Offset: 2, Value: eventBytes("husky")}
	p1 <- &sarama.ConsumerMessage{Topic: "t", Partition: 1, Offset: 1, Value: eventBytes("akita")}
	p1 <- &sarama.ConsumerMessage{Topic: "t", Partition: 1, Offset: 2, Value: eventBytes("akita")}
	close(p0)
	close(p1)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = g.ConsumeClaim(s, &claim{part: 0, msgs: p0}) }()
	go func() { defer wg.Done(); _ = g.ConsumeClaim(s, &claim{part: 1, msgs: p1}) }()
	wg.Wait()

	if len(s.marked) != 4 {
		t.Fatalf("expected 4 marks total; got %v", s.marked)
	}
}

func TestStart_RequiresEvictor(t *testing.T) {
	if err := New(Config{}, nil, nil).Start(context.Background()); err == nil {
		t.Fatalf("expected error without evictor")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("INVALIDATION_TOPIC", "")
	cfg := FromEnv()
	if len(cfg.Brokers) != 2 || cfg.Brokers[1] != "b:9092" || cfg.Topic != "dog-invalidation" {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestObserve_ReportsEveryMessageOutcome(t *testing.T) {
	fe := &fakeEvictor{}
	fe.failFirst.Store(true)
	c := newConsumerForTest(fe)

	var mu sync.Mutex
	var outcomes []error
	g := &groupHandler{process: c.ProcessOne, observe: func(topic string, err error, d time.Duration) {
		if topic != "dog-invalidation" || d < 0 {
			t.Errorf("observe topic=%q d=%v", topic, d)
		}
		mu.Lock()
		outcomes = append(outcomes, err)
		mu.Unlock()
	}}

	msg := &sarama.ConsumerMessage{Topic: "dog-invalidation", Offset: 7, Value: eventBytes("husky")}
	for range 2 {
		ch := make(chan *sarama.ConsumerMessage, 1)
		ch <- msg
		close(ch)
		_ = g.ConsumeClaim(&sess{ctx: t.Context()}, &claim{msgs: ch})
	}
	if len(outcomes) != 2 || outcomes[0] == nil || outcomes[1] != nil {
		t.Fatalf("outcomes=%v want [error <nil>]", outcomes)
	}
}
