// Command hootjobs tracks job status and progress, finds stale datasets and tears down their
// generated tables.  "hootjobs serve" runs the periodic stale sweep; the rest of the commands
// operate on the database directly.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/dlmiddlecote/sqlstats"
	"github.com/hootenanny/jobtrack/src/internal/cmdutil"
	"github.com/hootenanny/jobtrack/src/internal/errors"
	"github.com/hootenanny/jobtrack/src/internal/hootconfig"
	"github.com/hootenanny/jobtrack/src/internal/hootctl"
	"github.com/hootenanny/jobtrack/src/internal/hootsql"
	"github.com/hootenanny/jobtrack/src/internal/log"
	"github.com/hootenanny/jobtrack/src/internal/migrations"
	"github.com/hootenanny/jobtrack/src/internal/pctx"
	"github.com/hootenanny/jobtrack/src/internal/schema"
	"github.com/hootenanny/jobtrack/src/internal/signals"
	catalogcmds "github.com/hootenanny/jobtrack/src/server/catalog/cmds"
	"github.com/hootenanny/jobtrack/src/server/jobstatus"
	jobcmds "github.com/hootenanny/jobtrack/src/server/jobstatus/cmds"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	env, err := hootconfig.New()
	if err != nil {
		cmdutil.ErrorAndExit("%v", err)
	}
	if err := log.InitLogger(env.LogLevel, env.LogFormat); err != nil {
		cmdutil.ErrorAndExit("%v", err)
	}
	ctx, cancel := signal.NotifyContext(pctx.Background("hootjobs"), signals.TerminationSignals...)
	defer cancel()
	if err := rootCmd(ctx, env).ExecuteContext(ctx); err != nil {
		cmdutil.ErrorAndExit("%v", err)
	}
}

func rootCmd(ctx context.Context, env *hootconfig.Configuration) *cobra.Command {
	cfg := &hootctl.Config{Env: env}
	root := &cobra.Command{
		Use:           os.Args[0],
		Short:         "Track job status and progress, and clean up stale datasets.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if cfg.Verbose {
				log.SetLevel(zap.DebugLevel)
			}
		},
	}
	root.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", false, "Output verbose logs.")
	root.PersistentFlags().DurationVar(&cfg.Timeout, "timeout", 0, "Abandon the command after this long; 0 means no limit.")

	subcommands := []*cobra.Command{
		cmdutil.CreateAlias(migrateCmd(ctx, cfg), "migrate"),
		cmdutil.CreateAlias(serveCmd(ctx, cfg), "serve"),
	}
	subcommands = append(subcommands, jobcmds.Cmds(ctx, cfg)...)
	subcommands = append(subcommands, catalogcmds.Cmds(ctx, cfg)...)
	cmdutil.MergeCommands(root, subcommands)
	return root
}

func migrate(ctx context.Context, db *hootsql.DB) error {
	if err := migrations.ApplyMigrations(ctx, db, migrations.Env{}, schema.DesiredState); err != nil {
		return errors.Wrap(err, "apply migrations")
	}
	log.Info(ctx, "database schema is up to date")
	return nil
}

func migrateCmd(ctx context.Context, cfg *hootctl.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "{{alias}}",
		Short: "Bring the database schema up to date.",
		Run: cmdutil.RunFixedArgs(0, func([]string) error {
			ctx, db, done, err := cfg.Connect(ctx)
			if err != nil {
				return err
			}
			defer done()
			return migrate(ctx, db)
		}),
	}
}

func serveCmd(ctx context.Context, cfg *hootctl.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "{{alias}}",
		Short: "Run the stale sweep on its schedule and export metrics.",
		Long: "Run the stale sweep on the schedule in STALE_SWEEP_SCHEDULE, marking the jobs of " +
			"datasets unaccessed for STALE_MAP_AGE as stale, and serve Prometheus metrics on METRICS_PORT.",
		Run: cmdutil.RunFixedArgs(0, func([]string) error {
			// The command timeout bounds startup only.
			startCtx, db, done, err := cfg.Connect(ctx)
			if err != nil {
				return err
			}
			defer done()
			if err := migrate(startCtx, db); err != nil {
				return err
			}
			return serve(ctx, db, cfg.Env)
		}),
	}
}

func serve(ctx context.Context, db *hootsql.DB, env *hootconfig.Configuration) error {
	sweeper, err := jobstatus.NewSweeper(jobstatus.NewTracker(jobstatus.EnvFromConfig(db, env)), env.Sweep.Schedule, env.Sweep.StaleMapAge)
	if err != nil {
		return err
	}
	if err := prometheus.Register(sqlstats.NewStatsCollector(env.Database.PostgresDBName, db.DB)); err != nil {
		return errors.Wrap(err, "register database stats collector")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", env.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		log.Info(ctx, "serving metrics", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "metrics server")
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return errors.EnsureStack(srv.Shutdown(shutdownCtx))
	})
	eg.Go(func() error {
		err := sweeper.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	return errors.EnsureStack(eg.Wait())
}
