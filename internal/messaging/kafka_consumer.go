package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/cypherlabdev/odds-arbitrage-service/internal/models"
	"github.com/cypherlabdev/odds-arbitrage-service/internal/service"
)

// messageReader is the subset of *kafka.Reader the consumer uses
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer consumes raw bookmaker feeds from Kafka and runs a cycle per message
type KafkaConsumer struct {
	reader    messageReader
	processor service.FeedProcessor
	topic     string
	groupID   string
	logger    zerolog.Logger
}

// KafkaConsumerConfig holds Kafka consumer configuration
type KafkaConsumerConfig struct {
	Brokers []string // e.g., ["localhost:9092"]
	Topic   string   // e.g., "raw_odds"
	GroupID string   // e.g., "odds-arbitrage"
}

// NewKafkaConsumer creates a new Kafka consumer
func NewKafkaConsumer(
	config KafkaConsumerConfig,
	processor service.FeedProcessor,
	logger zerolog.Logger,
) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        config.Brokers,
		Topic:          config.Topic,
		GroupID:        config.GroupID,
		MinBytes:       1e3,  // 1KB
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
	})

	return newKafkaConsumer(reader, config, processor, logger)
}

func newKafkaConsumer(reader messageReader, config KafkaConsumerConfig, processor service.FeedProcessor, logger zerolog.Logger) *KafkaConsumer {
	return &KafkaConsumer{
		reader:    reader,
		processor: processor,
		topic:     config.Topic,
		groupID:   config.GroupID,
		logger:    logger.With().Str("component", "kafka_consumer").Logger(),
	}
}

// Start consumes until ctx is cancelled. A message is committed only after
// its cycle succeeds.
func (c *KafkaConsumer) Start(ctx context.Context) error {
	c.logger.Info().
		Str("topic", c.topic).
		Str("group_id", c.groupID).
		Msg("started consuming from Kafka")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.Info().Msg("stopping Kafka consumer")
				return nil
			}
			c.logger.Error().Err(err).Msg("failed to fetch message")
			continue
		}

		if err := c.processMessage(ctx, msg); err != nil {
			c.logger.Error().
				Err(err).
				Int64("offset", msg.Offset).
				Str("key", string(msg.Key)).
				Msg("failed to process message")
			// Don't commit if processing failed
			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error().Err(err).Int64("offset", msg.Offset).Msg("failed to commit message")
		}
	}
}

// processMessage runs one cycle over a feed message
func (c *KafkaConsumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var feed models.KafkaOddsFeedMessage
	if err := json.Unmarshal(msg.Value, &feed); err != nil {
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}

	fetchedAt := feed.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = msg.Time
	}

	c.logger.Debug().
		Int("event_count", len(feed.Events)).
		Str("batch_id", feed.BatchID).
		Msg("processing raw odds batch")

	snapshot, err := c.processor.ProcessFeed(ctx, feed.Events, fetchedAt)
	if err != nil {
		return fmt.Errorf("failed to process feed: %w", err)
	}

	c.logger.Info().
		Str("batch_id", feed.BatchID).
		Str("cycle_id", snapshot.CycleID.String()).
		Int("event_count", len(feed.Events)).
		Msg("processed raw odds batch")

	return nil
}

// Close closes the Kafka reader
func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
