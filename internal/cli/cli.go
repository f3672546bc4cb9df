//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package cli implements the command-line interface for pgedge-salesdw.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-salesdw/internal/catalog"
	"github.com/pgEdge/pgedge-salesdw/internal/config"
	"github.com/pgEdge/pgedge-salesdw/internal/datagen/traffic"
	"github.com/pgEdge/pgedge-salesdw/internal/logging"
	"github.com/pgEdge/pgedge-salesdw/pkg/version"
)

var (
	// Global flags
	cfgFile    string
	connection string
	sink       string
	duckdbPath string
	logLevel   string

	// Global config
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "pgedge-salesdw",
		Short: "Sales data warehouse loader for PostgreSQL and DuckDB",
		Long: `pgedge-salesdw loads retail sales data into a star schema: a customer
dimension with SCD Type 2 history, product, store and date dimensions, and
a sales transaction fact table with derived measures.

Batches of CSV files are loaded with 'load', single facts are consumed from
Kafka with 'stream', and realistic sample batches are produced with
'generate'. Accepted rows are written to PostgreSQL or to a DuckDB file.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ./pgedge-salesdw.yaml)")
	rootCmd.PersistentFlags().StringVar(&connection, "connection", "",
		"PostgreSQL connection string")
	rootCmd.PersistentFlags().StringVar(&sink, "sink", "",
		"where accepted rows are written: postgres, duckdb or none")
	rootCmd.PersistentFlags().StringVar(&duckdbPath, "duckdb", "",
		"DuckDB database file (duckdb sink)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level (debug, info, warn, error)")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(tablesCmd)
	rootCmd.AddCommand(profilesCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(queryCmd)
}

func initConfig() error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return err
	}

	// Override with CLI flags
	if connection != "" {
		cfg.Connection = connection
	}
	if sink != "" {
		cfg.Sink = sink
	}
	if duckdbPath != "" {
		cfg.DuckDBPath = duckdbPath
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	// Reinitialize logger with config
	logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})

	return nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logging.Info().
				Str("signal", sig.String()).
				Msg("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println(version.Info())
	},
}

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List the star schema tables and their batch files",
	Long: `List the tables of the star schema in load order, with the batch
file each one is read from and the columns a file must carry.`,
	Run: func(cmd *cobra.Command, args []string) {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		defer w.Flush()

		fmt.Fprintln(w, "TABLE\tFILE\tHISTORY\tDESCRIPTION")
		for _, def := range catalog.All() {
			history := "in place"
			if def.Versioned {
				history = "SCD Type 2"
			}
			if def.IsFact() {
				history = "fact"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", def.Table, def.File, history, def.Description)
		}
	},
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List available traffic profiles",
	Long: `List the traffic profiles that shape generated order timestamps and
the pacing of the sample query workload.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println("Available traffic profiles:")
		cmd.Println()
		for _, name := range traffic.List() {
			p, err := traffic.Get(name, "")
			if err != nil {
				continue
			}
			marker := ""
			if name == traffic.DefaultProfile {
				marker = " (default)"
			}
			cmd.Printf("  %-15s - %s%s\n", name, p.Description(), marker)
		}
	},
}
