package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mohtion/mohtion/internal/config"
	"github.com/mohtion/mohtion/internal/webhook"
	"github.com/mohtion/mohtion/internal/worker"
)

var (
	serveWatch     []string
	serveInterval  time.Duration
	serveMaxPerDay int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server and bounty workers",
	Long: `Serve GitHub webhooks (when MOHTION_WEBHOOK_SECRET is set) and run bounty
jobs on a worker pool. Pushes to a repository's default branch queue a scan.
Repositories given with --watch are also scanned on a fixed interval.

Outcomes are published to MQTT when MOHTION_MQTT_BROKER is set, and logged
otherwise.`,
	Example: `  mohtion serve
  mohtion serve --watch acme/calc --watch acme/web@develop --interval 6h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if settings.WebhookSecret == "" && len(serveWatch) == 0 {
			return fmt.Errorf("nothing to serve: set MOHTION_WEBHOOK_SECRET or pass --watch")
		}
		jobs := make([]worker.Job, 0, len(serveWatch))
		for _, w := range serveWatch {
			job, err := worker.ParseJob(w)
			if err != nil {
				return err
			}
			jobs = append(jobs, job)
		}
		interval := serveInterval
		if interval <= 0 {
			d, err := config.DefaultRepoConfig().ScanEvery()
			if err != nil {
				return err
			}
			interval = d
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, jobs, interval)
	},
}

func init() {
	serveCmd.Flags().StringArrayVar(&serveWatch, "watch", nil, "Scan owner/repo[@branch] periodically (repeatable)")
	serveCmd.Flags().DurationVar(&serveInterval, "interval", 0, "Interval for --watch scans (default: scan_interval default, 24h)")
	serveCmd.Flags().IntVar(&serveMaxPerDay, "max-per-day", config.DefaultRepoConfig().MaxPRsPerDay, "Bounty attempts per repository per 24h (0 = unlimited)")
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, jobs []worker.Job, interval time.Duration) error {
	store, err := openStore(ctx, settings)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	notifier, closeNotifier, err := buildNotifier(settings)
	if err != nil {
		return err
	}
	defer closeNotifier()

	orch, err := buildOrchestrator(ctx, settings, store, nil, false)
	if err != nil {
		return err
	}

	pool, err := worker.NewPool(orch, worker.Config{
		Workers:      settings.Workers,
		JobTimeout:   settings.JobTimeout,
		MaxPerPeriod: serveMaxPerDay,
		Period:       24 * time.Hour,
		Counter:      store,
		Notifier:     notifier,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	// running bounties outlive the signal; Stop bounds how long they get
	pool.Start(context.WithoutCancel(ctx))

	g, gctx := errgroup.WithContext(ctx)
	if settings.WebhookSecret != "" {
		srv, err := webhook.NewServer(webhook.Config{
			Addr:   settings.ListenAddr,
			Secret: settings.WebhookSecret,
			Queue:  pool,
			Logger: logger,
		})
		if err != nil {
			return err
		}
		g.Go(func() error { return srv.ListenAndServe(gctx) })
	}
	if len(jobs) > 0 {
		g.Go(func() error { return worker.Schedule(gctx, pool, jobs, interval, logger) })
	}

	runErr := g.Wait()
	logger.Info("shutting down, waiting for running bounties")

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settings.JobTimeout)
	defer cancel()
	if err := pool.Stop(stopCtx); err != nil {
		logger.WithError(err).Warn("bounties cancelled during shutdown")
	}
	return runErr
}
