package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"
)

// Config holds broker addresses and the topic/group used for batch messages
type Config struct {
	Brokers  []string
	Topic    string
	GroupID  string
	ClientID string
}

// Producer publishes keyed messages to a single topic
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

// NewProducer creates a synchronous producer that waits for all in-sync replicas
func NewProducer(cfg *Config, logger *slog.Logger) (*Producer, error) {
	config := sarama.NewConfig()
	config.ClientID = cfg.ClientID
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true

	p, err := sarama.NewSyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return newProducer(p, cfg.Topic, logger), nil
}

func newProducer(p sarama.SyncProducer, topic string, logger *slog.Logger) *Producer {
	return &Producer{producer: p, topic: topic, logger: logger}
}

// Send publishes value under key; ctx is checked before the blocking send
func (p *Producer) Send(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	})
	if err != nil {
		return fmt.Errorf("failed to send kafka message: %w", err)
	}

	p.logger.Debug("Message published to Kafka",
		slog.String("topic", p.topic),
		slog.String("key", key),
		slog.Int("partition", int(partition)),
		slog.Int64("offset", offset),
	)
	return nil
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.producer.Close()
}

// MessageHandler processes one message value; returning an error leaves the offset unmarked
type MessageHandler func(ctx context.Context, key string, value []byte) error

// Consumer reads a topic as part of a consumer group
type Consumer struct {
	group  sarama.ConsumerGroup
	topic  string
	logger *slog.Logger
}

// NewConsumer joins the configured consumer group
func NewConsumer(cfg *Config, logger *slog.Logger) (*Consumer, error) {
	config := sarama.NewConfig()
	config.ClientID = cfg.ClientID
	config.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	config.Consumer.Offsets.Initial = sarama.OffsetOldest

	g, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer group: %w", err)
	}

	return &Consumer{group: g, topic: cfg.Topic, logger: logger}, nil
}

// Consume blocks, re-joining the group after each rebalance, until ctx is cancelled
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	h := &groupHandler{fn: handler, logger: c.logger}
	for {
		if err := c.group.Consume(ctx, []string{c.topic}, h); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return fmt.Errorf("kafka consume: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Close leaves the consumer group
func (c *Consumer) Close() error {
	return c.group.Close()
}

type groupHandler struct {
	fn     MessageHandler
	logger *slog.Logger
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		if err := h.fn(session.Context(), string(msg.Key), msg.Value); err != nil {
			h.logger.Error("Failed to handle kafka message",
				slog.String("topic", msg.Topic),
				slog.Int64("offset", msg.Offset),
				slog.Any("error", err),
			)
		}
		// No redelivery: a failed batch item is reported through the tracker instead.
		session.MarkMessage(msg, "")
	}
	return nil
}
