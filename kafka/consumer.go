package kafka

import (
	"context"
	"errors"

	"github.com/IBM/sarama"
	"github.com/labstack/gommon/log"
)

type MessageHandler interface {
	Handle(ctx context.Context, message *sarama.ConsumerMessage) error
}

type Consumer struct {
	consumerGroup sarama.ConsumerGroup
	topics        []string
	handler       MessageHandler
}

func NewConsumer(brokers []string, groupID string, topics []string,
	config *sarama.Config, handler MessageHandler) (*Consumer, error) {
	consumerGroup, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, err
	}
	return NewConsumerWithGroup(consumerGroup, topics, handler), nil
}

func NewConsumerWithGroup(group sarama.ConsumerGroup, topics []string, handler MessageHandler) *Consumer {
	return &Consumer{
		consumerGroup: group,
		topics:        topics,
		handler:       handler,
	}
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim handles each message in order. A record the handler
// fails on is logged and skipped: it is left unmarked, but marking the
// next record commits past it, so it is not redelivered.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := c.handler.Handle(session.Context(), message); err != nil {
				log.Errorf("Failed to process message at offset %d: %v", message.Offset, err)
				continue
			}
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// Start consumes until ctx is cancelled or the group is closed.
func (c *Consumer) Start(ctx context.Context) error {
	go func() {
		for err := range c.consumerGroup.Errors() {
			log.Warnf("Consumer group error: %v", err)
		}
	}()
	for {
		if err := c.consumerGroup.Consume(ctx, c.topics, c); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			log.Errorf("Consume failed: %v", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) Close() error {
	return c.consumerGroup.Close()
}
