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
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-salesdw/internal/catalog"
	"github.com/pgEdge/pgedge-salesdw/internal/config"
	"github.com/pgEdge/pgedge-salesdw/internal/datagen"
	"github.com/pgEdge/pgedge-salesdw/internal/loader"
	"github.com/pgEdge/pgedge-salesdw/internal/logging"
	"github.com/pgEdge/pgedge-salesdw/internal/stream"
)

var (
	genOutput    string
	genCustomers int
	genDays      int
	genOrders    int
	genProfile   string
	genSeed      uint64
	genPublish   bool
	genBrokers   string
	genTopic     string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a sample sales batch",
	Long: `Generate a realistic sample batch: a calendar, customers (some of
whom change segment during the period), products, stores and order lines
shaped by a traffic profile. A small share of fact rows is deliberately
broken so every validation outcome shows up when the batch is loaded.

With --publish the dimension files are still written to the output
directory, and the facts are published to the Kafka topic instead of
being written to facts.csv.

Example:
  pgedge-salesdw generate --output ./batch --days 30 --seed 42
  pgedge-salesdw generate --output ./dims --publish --brokers kafka:9092`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&genOutput, "output", "",
		"directory receiving the batch files")
	generateCmd.Flags().IntVar(&genCustomers, "customers", 0,
		"number of customers")
	generateCmd.Flags().IntVar(&genDays, "days", 0,
		"number of trading days")
	generateCmd.Flags().IntVar(&genOrders, "orders", 0,
		"orders on an average weekday")
	generateCmd.Flags().StringVar(&genProfile, "profile", "",
		"traffic profile: store-regional, store-global, in-store")
	generateCmd.Flags().Uint64Var(&genSeed, "seed", 0,
		"random seed for reproducible batches (0 = random)")
	generateCmd.Flags().BoolVar(&genPublish, "publish", false,
		"publish facts to Kafka instead of writing facts.csv")
	generateCmd.Flags().StringVar(&genBrokers, "brokers", "",
		"comma separated Kafka brokers (with --publish)")
	generateCmd.Flags().StringVar(&genTopic, "topic", "",
		"topic to publish facts to (with --publish)")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	// Override config with CLI flags
	g := &cfg.Generate
	if genOutput != "" {
		g.OutputDir = genOutput
	}
	if genCustomers > 0 {
		g.Customers = genCustomers
	}
	if genDays > 0 {
		g.Days = genDays
	}
	if genOrders > 0 {
		g.Orders = genOrders
	}
	if genProfile != "" {
		g.Profile = genProfile
	}
	if genSeed > 0 {
		g.Seed = genSeed
	}
	if genPublish {
		g.Publish = true
	}
	if genBrokers != "" {
		cfg.Stream.Brokers = strings.Split(genBrokers, ",")
	}
	if genTopic != "" {
		cfg.Stream.Topic = genTopic
	}

	// Validate configuration
	if err := cfg.ValidateGenerate(); err != nil {
		return err
	}

	gen, err := datagen.NewGenerator(generatorConfig(*g))
	if err != nil {
		return err
	}
	ds := gen.Generate()

	batch, err := ds.Batch(g.OutputDir)
	if err != nil {
		return err
	}
	if g.Publish {
		delete(batch.Tables, catalog.Sales)
	}
	if err := loader.WriteBatchDir(g.OutputDir, batch); err != nil {
		return err
	}
	logging.Info().
		Str("dir", g.OutputDir).
		Int("rows", batch.Rows()).
		Msg("Wrote batch files")

	if !g.Publish {
		return nil
	}

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	producer := stream.NewProducer(cfg.Stream.Brokers, cfg.Stream.Topic)
	defer producer.Close()

	if err := producer.Publish(ctx, ds.Facts...); err != nil {
		return fmt.Errorf("failed to publish facts: %w", err)
	}
	logging.Info().
		Str("topic", cfg.Stream.Topic).
		Int("facts", len(ds.Facts)).
		Msg("Published facts")
	return nil
}

// generatorConfig maps the generate settings onto the generator. The
// start date was checked by ValidateGenerate.
func generatorConfig(g config.GenerateConfig) datagen.Config {
	start, _ := time.Parse(config.DateLayout, g.Start)
	return datagen.Config{
		Customers:    g.Customers,
		Products:     g.Products,
		Stores:       g.Stores,
		Days:         g.Days,
		Orders:       g.Orders,
		InvalidRatio: g.InvalidRatio,
		ReturnRatio:  g.ReturnRatio,
		ChangeRatio:  g.ChangeRatio,
		Profile:      g.Profile,
		Timezone:     g.Timezone,
		Seed:         g.Seed,
		Start:        start,
	}
}
