// Command ingress extracts the retail sources, cleans each entity and loads the star schema.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/cleaner"
	"github.com/David-Botos/retail-ingress/pkg/config"
	"github.com/David-Botos/retail-ingress/pkg/converter"
	"github.com/David-Botos/retail-ingress/pkg/extract"
	"github.com/David-Botos/retail-ingress/pkg/loader"
	"github.com/David-Botos/retail-ingress/pkg/logging"
	"github.com/David-Botos/retail-ingress/pkg/migrate"
	"github.com/David-Botos/retail-ingress/pkg/transfer"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		envFile string
		a       *app
	)

	root := &cobra.Command{
		Use:           "ingress",
		Short:         "Centralise retail sales data into a star schema",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadEnvFile(envFile); err != nil {
				return err
			}
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			a = newApp(cfg, logger)
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a != nil {
				a.close()
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional dotenv file")

	appFn := func() *app { return a }
	root.AddCommand(
		newRunCmd(appFn),
		newCleanCmd(appFn),
		newTablesCmd(appFn),
		newMigrateCmd(appFn),
	)
	return root
}

func newRunCmd(getApp func() *app) *cobra.Command {
	var (
		policyName string
		skipVerify bool
		dests      map[string]string
	)

	cmd := &cobra.Command{
		Use:   "run [entity...]",
		Short: "Extract, clean and load entities (all when none are named)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			ctx := cmd.Context()

			if policyName == "" {
				policyName = a.cfg.LoadPolicy
			}
			policy, err := loader.ParsePolicy(policyName)
			if err != nil {
				return err
			}
			entities, err := parseEntities(args)
			if err != nil {
				return err
			}
			jobs, err := buildJobs(a.cfg, entities, policy)
			if err != nil {
				return err
			}
			if jobs, err = applyDestinations(jobs, dests); err != nil {
				return err
			}

			router, err := a.router(ctx, sourceKinds(jobSources(jobs)...))
			if err != nil {
				return err
			}
			target, err := a.target(ctx)
			if err != nil {
				return err
			}

			runID := uuid.NewString()
			var recorder cleaner.Recorder
			if r, err := cleaner.NewPostgresRecorder(ctx, target.DB(), a.logger); err != nil {
				a.logger.Warn("Cleaning operations will not be recorded", zap.Error(err))
			} else {
				recorder = r
			}
			c := cleaner.NewCleaner(a.logger, recorder)
			c.RunID = runID

			pg := loader.NewPostgresWriter(target.DB(), a.cfg.TargetSchema, a.cfg.BatchSize,
				converter.NewTypeConverter(a.logger), a.logger)
			writer := loader.Writer(pg)
			if a.cfg.BigQuery.Enabled() {
				bq, err := loader.NewBigQueryWriter(ctx, a.cfg.BigQuery.Project, a.cfg.BigQuery.Dataset, a.logger)
				if err != nil {
					return err
				}
				a.closers = append(a.closers, bq.Close)
				writer = loader.MultiWriter{Primary: pg, Secondaries: []loader.Writer{bq}}
			}

			runner := transfer.NewRunner(runID, router, c, writer, a.logger)
			if !skipVerify {
				runner.WithVerifier(loader.NewVerifier(target.DB(), a.logger), pg)
			}

			summary := runner.Run(ctx, jobs)
			printSummary(cmd.OutOrStdout(), summary)
			logErrorSamples(a.logger, runner.Errors())
			if !summary.OK() {
				return fmt.Errorf("run %s finished with %d failed and %d skipped entities",
					runID, summary.Failed, len(summary.Skipped))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&policyName, "policy", "", "fail, replace or append (default LOAD_POLICY)")
	cmd.Flags().BoolVar(&skipVerify, "no-verify", false, "skip post-load verification")
	cmd.Flags().StringToStringVar(&dests, "dest", nil, "destination table override, e.g. --dest user=dim_users_staging")
	return cmd
}

func newCleanCmd(getApp func() *app) *cobra.Command {
	var (
		entityName string
		kind       string
		location   string
		table      string
		format     string
		sheet      string
		preview    int
	)

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Extract and clean one entity without loading it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := getApp()
			ctx := cmd.Context()

			entity, err := cleaner.ParseEntity(entityName)
			if err != nil {
				return err
			}

			src, err := entitySource(a.cfg, entity)
			if kind != "" {
				src = extract.Source{Kind: extract.Kind(kind), Location: location, Table: table}
				err = nil
			}
			if err != nil {
				return err
			}
			if src.Options == nil {
				src.Options = map[string]string{}
			}
			if format != "" {
				src.Options["format"] = format
			}
			if sheet != "" {
				src.Options["sheet"] = sheet
			}

			router, err := a.router(ctx, sourceKinds(src))
			if err != nil {
				return err
			}

			start := time.Now()
			raw, err := router.Extract(ctx, src)
			if err != nil && (!errors.Is(err, extract.ErrInterrupted) || raw == nil) {
				return err
			}
			if err != nil {
				a.logger.Warn("Cleaning a partial extraction", zap.Error(err))
				ctx = context.WithoutCancel(ctx)
			}

			cleaned, report, err := cleaner.NewCleaner(a.logger, nil).Clean(ctx, entity, raw)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d rows in, %d rows out, %d columns in %s\n\n",
				entity, report.RowsIn, report.RowsOut, report.ColumnsOut, time.Since(start).Round(time.Millisecond))
			renderTable(out, cleaned, preview)

			if len(report.Operations) > 0 {
				ops := operationsTable(report.Operations)
				fmt.Fprintln(out)
				renderTable(out, ops, -1)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&entityName, "entity", "", "entity whose cleaning policy applies")
	cmd.Flags().StringVar(&kind, "source", "", "source kind: rds, snowflake, pdf, api or object (default from config)")
	cmd.Flags().StringVar(&location, "location", "", "path, URI or base URL of the source")
	cmd.Flags().StringVar(&table, "table", "", "source table for database kinds")
	cmd.Flags().StringVar(&format, "format", "", "object format override: csv, json or xlsx")
	cmd.Flags().StringVar(&sheet, "sheet", "", "xlsx sheet name")
	cmd.Flags().IntVar(&preview, "preview", 10, "rows to print, -1 for all")
	_ = cmd.MarkFlagRequired("entity")
	return cmd
}

func newTablesCmd(getApp func() *app) *cobra.Command {
	var snowflakeSchema string

	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List the tables in the source database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := getApp()
			ctx := cmd.Context()

			var (
				tables []string
				err    error
			)
			if snowflakeSchema != "" {
				sf, serr := a.snowflake(ctx)
				if serr != nil {
					return serr
				}
				tables, err = sf.GetTables(ctx, snowflakeSchema)
			} else {
				src, serr := a.source(ctx)
				if serr != nil {
					return serr
				}
				tables, err = src.ListTables(ctx)
			}
			if err != nil {
				return err
			}
			for _, t := range tables {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&snowflakeSchema, "snowflake", "", "list tables of this Snowflake schema instead")
	return cmd
}

func newMigrateCmd(getApp func() *app) *cobra.Command {
	runner := func(cmd *cobra.Command) (*migrate.Runner, error) {
		a := getApp()
		target, err := a.target(cmd.Context())
		if err != nil {
			return nil, err
		}
		return migrate.NewRunner(target.DB(), a.cfg.TargetSchema, migrate.StarSchema(), a.logger)
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending star-schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := runner(cmd)
			if err != nil {
				return err
			}
			applied, err := r.Up(cmd.Context())
			for _, m := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %d %s\n", m.Version, m.Name)
			}
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to apply")
			}
			return nil
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show which migrations are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := runner(cmd)
			if err != nil {
				return err
			}
			statuses, err := r.Status(cmd.Context())
			if err != nil {
				return err
			}
			renderTable(cmd.OutOrStdout(), statusTable(statuses), -1)
			return nil
		},
	}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the star-schema migrations",
		// Bare "migrate" applies pending migrations
		RunE: up.RunE,
	}
	cmd.AddCommand(up, status)
	return cmd
}

// logErrorSamples logs the per-category error counts and a few examples of each
func logErrorSamples(logger *zap.Logger, eh *transfer.ErrorHandler) {
	summary := eh.GetErrorSummary()
	if len(summary) == 0 {
		return
	}
	samples := eh.GetErrorSamples()
	for category, count := range summary {
		msgs := make([]string, 0, len(samples[category]))
		for _, rec := range samples[category] {
			msgs = append(msgs, rec.String())
		}
		logger.Info("Run errors",
			zap.String("category", category.String()),
			zap.Int("count", count),
			zap.Strings("samples", msgs))
	}
}
