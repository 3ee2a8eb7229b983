package kafkaconsumer

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

type messageProcessor func(context.Context, *sarama.ConsumerMessage) error

// groupHandler applies the messages of a claim one at a time, in offset
// order. An offset is marked only once its eviction went through; the first
// failure ends the claim so the group rebalances and redelivers it.
type groupHandler struct {
	process messageProcessor
	// observe receives the outcome and latency of every message. Optional.
	observe func(topic string, err error, d time.Duration)
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("claim %s/%d: %w", claim.Topic(), claim.Partition(), ctx.Err())
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.handle(ctx, msg); err != nil {
				return fmt.Errorf("evict at %s/%d@%d: %w", msg.Topic, msg.Partition, msg.Offset, err)
			}
			sess.MarkMessage(msg, "")
		}
	}
}

func (h *groupHandler) handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()
	err := h.process(ctx, msg)
	if h.observe != nil {
		h.observe(msg.Topic, err, time.Since(start))
	}
	return err
}
