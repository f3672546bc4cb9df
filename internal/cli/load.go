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
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-salesdw/internal/catalog"
	"github.com/pgEdge/pgedge-salesdw/internal/loader"
	"github.com/pgEdge/pgedge-salesdw/internal/logging"
)

var (
	loadAsOf      string
	loadReport    string
	loadWorkers   int
	loadNoHydrate bool
)

var loadCmd = &cobra.Command{
	Use:   "load <batch-dir>",
	Short: "Load a batch directory of CSV files",
	Long: `Load a batch directory into the warehouse. The directory holds one
CSV file per table (dates.csv, customers.csv, products.csv, stores.csv and
facts.csv); missing files are skipped. Dimensions load before facts.

Rows that fail validation never stop the batch: each one is reported as
rejected, quarantined or retry. Use --report to keep the per-row outcome.

Example:
  pgedge-salesdw load ./batch --report batch-report.json
  pgedge-salesdw load ./batch --sink duckdb --duckdb sales.duckdb --as-of 2024-06-01`,
	Args: cobra.ExactArgs(1),
	RunE: runLoad,
}

func init() {
	loadCmd.Flags().StringVar(&loadAsOf, "as-of", "",
		"change date (YYYY-MM-DD) for dimension rows without as_of (default: today)")
	loadCmd.Flags().StringVar(&loadReport, "report", "",
		"write the JSON batch report to this file")
	loadCmd.Flags().IntVar(&loadWorkers, "workers", 0,
		"number of concurrent fact workers")
	loadCmd.Flags().BoolVar(&loadNoHydrate, "no-hydrate", false,
		"do not restore registries from the sink before loading; the sink must be empty")
}

func runLoad(cmd *cobra.Command, args []string) error {
	// Override config with CLI flags
	if loadAsOf != "" {
		cfg.Load.AsOf = loadAsOf
	}
	if loadReport != "" {
		cfg.Load.ReportFile = loadReport
	}
	if loadWorkers > 0 {
		cfg.Load.Workers = loadWorkers
	}
	if loadNoHydrate {
		cfg.Load.Hydrate = false
	}

	// Validate configuration
	if err := cfg.ValidateLoad(); err != nil {
		return err
	}

	batch, err := loader.ReadBatchDir(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	w, err := openWarehouse(ctx, int32(cfg.Load.Workers)+1)
	if err != nil {
		return err
	}
	defer w.Close()

	l, err := w.newLoader(ctx, cfg.Load.Hydrate)
	if err != nil {
		return err
	}

	report, loadErr := l.LoadBatch(ctx, batch)
	if report != nil {
		if cfg.Load.ReportFile != "" {
			if err := report.WriteFile(cfg.Load.ReportFile); err != nil {
				return err
			}
			logging.Info().Str("file", cfg.Load.ReportFile).Msg("Wrote batch report")
		}
		printReport(cmd, report)
	}
	return loadErr
}

// printReport writes the outcome counts per table.
func printReport(cmd *cobra.Command, r *loader.Report) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', tabwriter.AlignRight)
	defer tw.Flush()

	fmt.Fprintf(tw, "TABLE\t")
	for _, o := range loader.Outcomes {
		fmt.Fprintf(tw, "%s\t", o)
	}
	fmt.Fprintln(tw)

	for _, def := range catalog.All() {
		if _, ok := r.Counts[def.Name]; !ok {
			continue
		}
		fmt.Fprintf(tw, "%s\t", def.Name)
		for _, o := range loader.Outcomes {
			fmt.Fprintf(tw, "%d\t", r.Count(def.Name, o))
		}
		fmt.Fprintln(tw)
	}
}
