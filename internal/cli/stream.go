//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package cli

import (
	"context"
	"errors"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pgEdge/pgedge-salesdw/internal/logging"
	"github.com/pgEdge/pgedge-salesdw/internal/stream"
)

var (
	streamBrokers     string
	streamTopic       string
	streamGroup       string
	streamMetricsAddr string
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Consume sales facts from Kafka",
	Long: `Consume sales facts from a Kafka topic, one JSON fact per message,
and load each one as it arrives. Facts whose customer, product, store or
date is not loaded yet are retried with exponential backoff before they are
reported as retry. The consumer runs until interrupted with Ctrl+C.

Example:
  pgedge-salesdw stream --brokers kafka:9092 --topic sales-facts --metrics-addr :9102`,
	RunE: runStream,
}

func init() {
	streamCmd.Flags().StringVar(&streamBrokers, "brokers", "",
		"comma separated Kafka brokers")
	streamCmd.Flags().StringVar(&streamTopic, "topic", "",
		"topic carrying sales facts")
	streamCmd.Flags().StringVar(&streamGroup, "group", "",
		"consumer group id")
	streamCmd.Flags().StringVar(&streamMetricsAddr, "metrics-addr", "",
		"serve Prometheus metrics on this address (e.g. :9102)")
}

func runStream(cmd *cobra.Command, args []string) error {
	// Override config with CLI flags
	if streamBrokers != "" {
		cfg.Stream.Brokers = strings.Split(streamBrokers, ",")
	}
	if streamTopic != "" {
		cfg.Stream.Topic = streamTopic
	}
	if streamGroup != "" {
		cfg.Stream.GroupID = streamGroup
	}
	if streamMetricsAddr != "" {
		cfg.Stream.MetricsAddr = streamMetricsAddr
	}

	// Validate configuration
	if err := cfg.ValidateStream(); err != nil {
		return err
	}

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	w, err := openWarehouse(ctx, 0)
	if err != nil {
		return err
	}
	defer w.Close()

	l, err := w.newLoader(ctx, cfg.Load.Hydrate)
	if err != nil {
		return err
	}

	consumer := stream.NewConsumer(cfg.Stream.Brokers, cfg.Stream.Topic, cfg.Stream.GroupID, l)
	defer consumer.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return stream.ServeMetrics(gctx, cfg.Stream.MetricsAddr)
	})
	g.Go(func() error {
		err := consumer.Run(gctx)
		// Stop the metrics server with the consumer.
		cancel()
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	stats := consumer.Stats()
	event := logging.Info().Int64("messages", stats.Messages)
	for outcome, n := range stats.Outcomes {
		event = event.Int64(string(outcome), n)
	}
	event.Msg("Stream stopped")
	return nil
}
