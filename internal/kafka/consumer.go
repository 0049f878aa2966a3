package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/devcode-git/stream-reactor/internal/sink"
	"github.com/devcode-git/stream-reactor/pkg/models"
	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Writer receives each decoded record batch.
type Writer interface {
	Write(ctx context.Context, records []models.Record) error
}

// Config holds the consumer's connection settings.
type Config struct {
	Brokers  []string
	GroupID  string
	ClientID string
	Topics   []string
}

// Consumer hosts the sink writer: it polls the configured topics, decodes
// record values, delivers each batch to the writer and commits offsets only
// after the writer settles the batch. A retriable verdict re-delivers the
// same batch; any other error stops the consumer.
type Consumer struct {
	client *kgo.Client
	writer Writer
	logger zerolog.Logger
}

// NewConsumer creates a consumer for the route table's topics.
func NewConsumer(cfg Config, writer Writer, logger zerolog.Logger) (*Consumer, error) {
	if len(cfg.Topics) == 0 {
		return nil, fmt.Errorf("no topics to consume")
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumeTopics(cfg.Topics...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ClientID(cfg.ClientID),
		kgo.DisableAutoCommit(),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	return &Consumer{
		client: client,
		writer: writer,
		logger: logger.With().Str("component", "kafka-consumer").Logger(),
	}, nil
}

// Run polls until the context is canceled or the writer escalates a fatal
// failure.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info().Msg("Kafka consumer started")

	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, e := range errs {
				c.logger.Error().
					Str("topic", e.Topic).
					Int32("partition", e.Partition).
					Err(e.Err).
					Msg("Kafka fetch error")
			}
			continue
		}

		var raw []*kgo.Record
		var batch []models.Record
		fetches.EachRecord(func(rec *kgo.Record) {
			raw = append(raw, rec)
			decoded, err := decodeRecord(rec)
			if err != nil {
				c.logger.Warn().
					Str("topic", rec.Topic).
					Int32("partition", rec.Partition).
					Int64("offset", rec.Offset).
					Err(err).
					Msg("Skipping undecodable record")
				return
			}
			batch = append(batch, decoded)
		})

		if err := c.deliver(ctx, batch); err != nil {
			return err
		}

		if len(raw) > 0 {
			if err := c.client.CommitRecords(ctx, raw...); err != nil {
				c.logger.Error().Err(err).Msg("Offset commit failed")
			}
		}
	}
}

// deliver hands a batch to the writer, re-delivering while the error policy
// asks for a retry.
func (c *Consumer) deliver(ctx context.Context, batch []models.Record) error {
	for {
		err := c.writer.Write(ctx, batch)
		if err == nil {
			return nil
		}

		var retriable *sink.RetriableError
		if errors.As(err, &retriable) {
			c.logger.Warn().
				Int("records", len(batch)).
				Msg("Re-delivering batch")
			continue
		}
		return err
	}
}

// Close shuts down the underlying Kafka client.
func (c *Consumer) Close() {
	c.client.Close()
}

// decodeRecord converts one Kafka record into the sink's internal format.
// Values are JSON objects.
func decodeRecord(rec *kgo.Record) (models.Record, error) {
	var value map[string]interface{}
	if err := json.Unmarshal(rec.Value, &value); err != nil {
		return models.Record{}, fmt.Errorf("decode record value: %w", err)
	}
	return models.Record{
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
		Key:       rec.Key,
		Value:     value,
		Timestamp: rec.Timestamp,
	}, nil
}
