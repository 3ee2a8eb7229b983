// Package kafkaconsumer evicts cached query responses when invalidation
// events arrive on a Kafka topic.
package kafkaconsumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	jsoniter "github.com/json-iterator/go"

	obs "github.com/mohammed-shakir/dogquery/internal/core/observability"
	"github.com/mohammed-shakir/dogquery/internal/invalidation"
	mylog "github.com/mohammed-shakir/dogquery/internal/logger"
)

// Evictor drops the cached responses an event targets and reports how many
// went.
type Evictor interface {
	Evict(ctx context.Context, ev invalidation.Event) (int, error)
}

type Consumer struct {
	cfg     Config
	logger  *slog.Logger
	evictor Evictor
}

func New(cfg Config, logger *slog.Logger, ev Evictor) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		cfg:     cfg,
		logger:  logger,
		evictor: ev,
	}
}

// Start consumes invalidation events until ctx is canceled.
func (c *Consumer) Start(ctx context.Context) error {
	if c.evictor == nil {
		return errors.New("kafkaconsumer: missing evictor")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	ctx = mylog.WithComponent(ctx, "kafka_consumer")
	handler := &groupHandler{process: c.ProcessOne, observe: observeMessage}
	c.logger.InfoContext(ctx, "kafka invalidation consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "kafka invalidation consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return nil
				}
				obs.IncKafkaConsumerError("consume")
				c.logger.ErrorContext(ctx, "kafka consumer error",
					"err", err, "brokers", c.cfg.Brokers, "topic", c.cfg.Topic)
				select {
				case <-ctx.Done():
				case <-time.After(2 * time.Second):
				}
			}
		}
	}
}

// ProcessOne handles a single message. Malformed events are logged and
// skipped so they do not block the partition; eviction failures are returned
// so the message is redelivered.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev invalidation.Event
	if err := jsoniter.Unmarshal(msg.Value, &ev); err != nil {
		obs.IncKafkaConsumerError("decode")
		c.logger.WarnContext(ctx, "skipping undecodable invalidation event",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	if err := ev.Validate(); err != nil {
		obs.IncKafkaConsumerError("invalid")
		c.logger.WarnContext(ctx, "skipping invalid invalidation event",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}

	n, err := c.evictor.Evict(ctx, ev)
	obs.ObserveInvalidation(ev.Op, n, err)
	if err != nil {
		obs.IncKafkaConsumerError("evict")
		return fmt.Errorf("evict %s: %w", ev.Operation, err)
	}
	c.logger.DebugContext(ctx, "invalidated cached responses",
		"op", ev.Op, "operation", ev.Operation, "whole", ev.Whole(), "keys", n)
	return nil
}

func observeMessage(topic string, err error, d time.Duration) {
	obs.ObserveKafkaMessage(topic, err, d.Seconds())
}
