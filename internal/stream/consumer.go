//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package stream ingests sales facts from a Kafka topic, one fact per
// message, and publishes generated facts to it.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/pgEdge/pgedge-salesdw/internal/catalog"
	"github.com/pgEdge/pgedge-salesdw/internal/loader"
	"github.com/pgEdge/pgedge-salesdw/internal/logging"
	"github.com/pgEdge/pgedge-salesdw/internal/metrics"
	"github.com/pgEdge/pgedge-salesdw/internal/model"
)

// Ingester loads one fact. *loader.Loader implements it.
type Ingester interface {
	Ingest(ctx context.Context, in model.FactInput) (loader.RowResult, error)
}

// Stats counts handled messages by outcome.
type Stats struct {
	Messages int64
	Outcomes map[loader.Outcome]int64
}

// Consumer reads fact messages from a consumer group.
type Consumer struct {
	reader   *kafka.Reader
	ingester Ingester
	stats    Stats
	log      zerolog.Logger
}

// NewConsumer creates a consumer for topic in groupID.
func NewConsumer(brokers []string, topic, groupID string, ingester Ingester) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
	})
	return newConsumer(reader, ingester)
}

func newConsumer(reader *kafka.Reader, ingester Ingester) *Consumer {
	return &Consumer{
		reader:   reader,
		ingester: ingester,
		stats:    Stats{Outcomes: make(map[loader.Outcome]int64)},
		log:      logging.Component("stream"),
	}
}

// Stats returns the counts so far. It is not safe to call while Run is
// active.
func (c *Consumer) Stats() Stats {
	return c.stats
}

// Run consumes until ctx is cancelled or ingestion fails outside a row.
// The offset of a message is committed once the message is handled,
// whatever its outcome; the log line is the dead-letter record of a fact
// that was not accepted.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info().
		Str("topic", c.reader.Config().Topic).
		Str("group", c.reader.Config().GroupID).
		Msg("Starting fact consumer")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info().Int64("messages", c.stats.Messages).Msg("Fact consumer stopped")
				return nil
			}
			c.log.Warn().Err(err).Msg("Failed to fetch message")
			if !sleep(ctx, time.Second) {
				return nil
			}
			continue
		}

		if _, err := c.Handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to ingest message at offset %d: %w", msg.Offset, err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.log.Warn().Err(err).Int64("offset", msg.Offset).Msg("Failed to commit message")
		}
	}
}

// Handle decodes and ingests one message. An undecodable message is
// rejected without an error so it is committed and skipped.
func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) (loader.RowResult, error) {
	in, err := Decode(msg.Value)
	if err != nil {
		res := loader.RowResult{
			Table:   catalog.Sales,
			Key:     string(msg.Key),
			Outcome: loader.Rejected,
			Errors:  []string{err.Error()},
		}
		metrics.RowsTotal.WithLabelValues(res.Table, string(res.Outcome)).Inc()
		c.count(res)
		c.log.Warn().
			Err(err).
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("Rejected undecodable fact message")
		return res, nil
	}

	res, err := c.ingester.Ingest(ctx, in)
	if err != nil {
		return res, err
	}
	c.count(res)

	if res.Outcome != loader.Accepted {
		c.log.Warn().
			Str("key", res.Key).
			Str("outcome", string(res.Outcome)).
			Strs("errors", res.Errors).
			Int64("offset", msg.Offset).
			Msg("Fact not accepted")
	} else {
		c.log.Debug().
			Str("key", res.Key).
			Int64("sales_key", res.SurrogateKey).
			Msg("Fact accepted")
	}
	return res, nil
}

func (c *Consumer) count(res loader.RowResult) {
	c.stats.Messages++
	c.stats.Outcomes[res.Outcome]++
}

// Close closes the reader and leaves the group.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// Decode parses a JSON fact message.
func Decode(data []byte) (model.FactInput, error) {
	var in model.FactInput
	if len(data) == 0 {
		return in, fmt.Errorf("%w: empty message", model.ErrMalformedBatch)
	}
	if err := json.Unmarshal(data, &in); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return in, fmt.Errorf("%w: invalid JSON at byte %d", model.ErrMalformedBatch, syntaxErr.Offset)
		}
		return in, fmt.Errorf("%w: %w", model.ErrMalformedBatch, err)
	}
	return in, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
