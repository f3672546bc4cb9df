//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-salesdw/internal/config"
	"github.com/pgEdge/pgedge-salesdw/internal/db"
	"github.com/pgEdge/pgedge-salesdw/internal/logging"
	"github.com/pgEdge/pgedge-salesdw/internal/olap"
)

var initDropExisting bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the star schema",
	Long: `Create the sales star schema in the configured sink: the four
dimension tables, the fact table and the bookkeeping tables.

Example:
  pgedge-salesdw init --connection "postgres://..."
  pgedge-salesdw init --sink duckdb --duckdb sales.duckdb`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initDropExisting, "drop-existing", false,
		"drop existing schema before initialization (postgres sink)")
}

func runInit(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	switch cfg.Sink {
	case config.SinkDuckDB:
		store, err := olap.New(ctx, cfg.DuckDBPath)
		if err != nil {
			return err
		}
		logging.Info().Str("path", cfg.DuckDBPath).Msg("DuckDB schema ready")
		return store.Close()
	case config.SinkNone:
		return fmt.Errorf("the none sink has no schema to initialize")
	}

	// Validate configuration
	if err := cfg.ValidateInit(); err != nil {
		return err
	}

	// Connect to database
	pool, err := db.Connect(ctx, cfg.Connection, 0)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	exists, err := db.MetadataExists(ctx, pool)
	if err != nil {
		return fmt.Errorf("failed to check metadata: %w", err)
	}
	if exists && !initDropExisting {
		existing, err := db.GetMetadataValue(ctx, pool, db.MetaSchemaVersion)
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
		if existing != "" && existing != db.SchemaVersion {
			return fmt.Errorf(
				"database has schema version %s but this build uses %s; "+
					"use --drop-existing to reinitialize",
				existing, db.SchemaVersion)
		}
	}

	// Drop existing schema if requested
	if initDropExisting {
		logging.Warn().Msg("Dropping existing schema")
		if err := db.DropSchema(ctx, pool); err != nil {
			return fmt.Errorf("failed to drop schema: %w", err)
		}
	}

	if err := db.CreateSchema(ctx, pool); err != nil {
		return err
	}

	logging.Info().
		Str("schema_version", db.SchemaVersion).
		Msg("Database initialization complete")
	return nil
}
