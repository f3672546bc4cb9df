//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/pgEdge/pgedge-salesdw/internal/logging"
	"github.com/pgEdge/pgedge-salesdw/internal/model"
)

// Producer publishes facts to a topic.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a producer for topic.
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
	return &Producer{writer: writer}
}

// Encode builds the message for a fact. Messages are keyed by order id so
// every line of an order lands on the same partition.
func Encode(in model.FactInput) (kafka.Message, error) {
	value, err := json.Marshal(in)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal fact %s: %w", in.Key(), err)
	}
	return kafka.Message{
		Key:   []byte(in.OrderID),
		Value: value,
		Time:  time.Now(),
	}, nil
}

// Publish writes facts in one call.
func (p *Producer) Publish(ctx context.Context, facts ...model.FactInput) error {
	msgs := make([]kafka.Message, 0, len(facts))
	for _, in := range facts {
		msg, err := Encode(in)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to write messages to kafka: %w", err)
	}
	logging.Debug().Int("messages", len(msgs)).Str("topic", p.writer.Topic).Msg("Published facts")
	return nil
}

// Close flushes and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
