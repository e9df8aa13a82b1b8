package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vibast-solutions/ms-go-payment-gateway/config"
)

var (
	workerMode bool
)

var requestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "Run outbound payment request commands",
}

var requestsExpireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Fail processing STK push requests that never received a provider callback",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"requests_expire",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.ExpireRequestsInterval },
			func(app *gatewayApp, ctx context.Context) error {
				n, err := app.requests.RunExpireBatch(ctx, app.cfg.Jobs.BatchSize)
				logrus.WithField("expired", n).Debug("Expire batch finished")
				return err
			},
		)
	},
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Run reconciliation queue commands",
}

var queuePublishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish reconciliation entries that were not handed off to the ledger",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"queue_publish",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.PublishQueueInterval },
			func(app *gatewayApp, ctx context.Context) error {
				n, err := app.gateway.RunPublishBatch(ctx, app.cfg.Jobs.BatchSize)
				logrus.WithField("published", n).Debug("Publish batch finished")
				return err
			},
		)
	},
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run integration health commands",
}

var monitorEvaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Classify integration health and raise service_down alerts",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"monitor_evaluate",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.EvaluateMonitorInterval },
			func(app *gatewayApp, ctx context.Context) error {
				return app.newHealthEvaluator(nil).RunEvaluateBatch(ctx)
			},
		)
	},
}

func init() {
	rootCmd.AddCommand(requestsCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(monitorCmd)
	requestsCmd.AddCommand(requestsExpireCmd)
	queueCmd.AddCommand(queuePublishCmd)
	monitorCmd.AddCommand(monitorEvaluateCmd)

	rootCmd.PersistentFlags().BoolVar(&workerMode, "worker", false, "Run continuously using configured interval")
}

func runCommand(
	name string,
	intervalResolver func(cfg *config.Config) time.Duration,
	fn func(app *gatewayApp, ctx context.Context) error,
) {
	app, cleanup := mustCreateApp()
	defer cleanup()

	if workerMode {
		runWorker(name, intervalResolver(app.cfg), app, fn)
		return
	}

	ctx := context.Background()
	runJob(name, func() error { return fn(app, ctx) })
}

func runWorker(
	name string,
	interval time.Duration,
	app *gatewayApp,
	fn func(app *gatewayApp, ctx context.Context) error,
) {
	if interval <= 0 {
		logrus.WithField("job", name).Fatal("invalid worker interval")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runJob(name, func() error { return fn(app, ctx) })

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case <-quit:
			logrus.WithField("job", name).Info("Worker shutdown requested")
			return
		case <-ticker.C:
			runJob(name, func() error { return fn(app, ctx) })
		}
	}
}

func runJob(name string, fn func() error) {
	start := time.Now()
	err := fn()
	latency := time.Since(start)
	if err != nil {
		logrus.WithError(err).WithField("job", name).WithField("latency", latency.String()).Error("job_failed")
		return
	}
	logrus.WithField("job", name).WithField("latency", latency.String()).Info("job_completed")
}
