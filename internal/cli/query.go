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
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-salesdw/internal/db"
	"github.com/pgEdge/pgedge-salesdw/internal/logging"
	"github.com/pgEdge/pgedge-salesdw/internal/workload"
)

var (
	queryWorkload       bool
	queryWorkers        int
	queryProfile        string
	queryTimezone       string
	queryDuration       int
	queryReportInterval int
	queryOnly           string
)

var queryCmd = &cobra.Command{
	Use:   "query [name]",
	Short: "Run sample analytical queries",
	Long: `Run the sample analytical queries against the warehouse.

Without arguments the available queries are listed. With a query name the
query runs once and its result is printed. With --workload a weighted mix
of the queries runs continuously, paced by a traffic profile, until
interrupted with Ctrl+C or until the duration expires.

Example:
  pgedge-salesdw query segment_migrations
  pgedge-salesdw query --workload --workers 8 --profile store-global --duration 10`,
	Args: cobra.MaximumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().BoolVar(&queryWorkload, "workload", false,
		"run the weighted query mix continuously")
	queryCmd.Flags().IntVar(&queryWorkers, "workers", 0,
		"number of concurrent query workers")
	queryCmd.Flags().StringVar(&queryProfile, "profile", "",
		"traffic profile pacing the workload")
	queryCmd.Flags().StringVar(&queryTimezone, "timezone", "",
		"timezone for profile calculations")
	queryCmd.Flags().IntVar(&queryDuration, "duration", 0,
		"duration to run in minutes (0 = run indefinitely)")
	queryCmd.Flags().IntVar(&queryReportInterval, "report-interval", 0,
		"statistics reporting interval in seconds")
	queryCmd.Flags().StringVar(&queryOnly, "queries", "",
		"comma separated query names restricting the mix")
}

func runQuery(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !queryWorkload {
		listQueries(cmd)
		return nil
	}

	// Override config with CLI flags
	if queryWorkers > 0 {
		cfg.Query.Workers = queryWorkers
	}
	if queryProfile != "" {
		cfg.Query.Profile = queryProfile
	}
	if queryTimezone != "" {
		cfg.Query.Timezone = queryTimezone
	}
	if queryDuration > 0 {
		cfg.Query.Duration = queryDuration
	}
	if queryReportInterval > 0 {
		cfg.Query.ReportInterval = queryReportInterval
	}
	if queryOnly != "" {
		cfg.Query.Queries = strings.Split(queryOnly, ",")
	}

	// Validate configuration
	if err := cfg.ValidateQuery(); err != nil {
		return err
	}

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	w, err := openWarehouse(ctx, int32(cfg.Query.Workers)+1)
	if err != nil {
		return err
	}
	defer w.Close()

	if !queryWorkload {
		res, err := w.queryFunc()(ctx, args[0])
		if err != nil {
			return err
		}
		printResult(cmd, res)
		return nil
	}
	return runWorkload(ctx, w.queryFunc())
}

func runWorkload(ctx context.Context, run workload.QueryFunc) error {
	if cfg.Query.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.Query.Duration)*time.Minute)
		defer cancel()
	}

	runner, err := workload.NewRunner(run, workload.Config{
		Workers:        cfg.Query.Workers,
		Profile:        cfg.Query.Profile,
		Timezone:       cfg.Query.Timezone,
		ReportInterval: time.Duration(cfg.Query.ReportInterval) * time.Second,
		Queries:        cfg.Query.Queries,
	})
	if err != nil {
		return fmt.Errorf("failed to create runner: %w", err)
	}

	logging.Info().
		Str("sink", cfg.Sink).
		Int("duration_minutes", cfg.Query.Duration).
		Msg("Query workload target")

	// Run until context is cancelled (signal or timeout)
	if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("workload error: %w", err)
	}

	if ctx.Err() == context.DeadlineExceeded {
		logging.Info().Msg("Duration limit reached, stopping workload")
	} else {
		logging.Info().Msg("Query workload stopped")
	}
	runner.PrintSummary()
	return nil
}

func listQueries(cmd *cobra.Command) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "QUERY\tWEIGHT\tDESCRIPTION")
	for _, q := range db.Queries() {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", q.Name, q.Weight, q.Description)
	}
}

func printResult(cmd *cobra.Command, res *db.Result) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, strings.Join(res.Columns, "\t"))
	for _, row := range res.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
}
