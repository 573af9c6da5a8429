package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	config "github.com/maheshrc27/reelqueue/configs"
	job "github.com/maheshrc27/reelqueue/internal/jobs"
	"github.com/maheshrc27/reelqueue/internal/queue"
	"github.com/maheshrc27/reelqueue/pkg/logger"
)

var (
	version   = "0.1.0"
	gitCommit = "unknown"
	buildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:          "reelqueue",
	Short:        "reelqueue - scheduled Instagram Reels publisher",
	Long:         `reelqueue stores scheduled Reels and publishes them through the Instagram Graph API when they come due.`,
	RunE:         runServer,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the cron trigger and the task worker",
	RunE:  runServer,
}

var runBatchCmd = &cobra.Command{
	Use:   "run-batch",
	Short: "Publish every due post once and exit",
	RunE:  runBatch,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("reelqueue %s\n", version)
		fmt.Printf("Git commit: %s\n", gitCommit)
		fmt.Printf("Build time: %s\n", buildTime)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, runBatchCmd, versionCmd)
}

func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	appLogger, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, appLogger, nil
}

func runBatch(cmd *cobra.Command, _ []string) error {
	cfg, appLogger, err := setup()
	if err != nil {
		return err
	}
	defer appLogger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg, appLogger)
	if err != nil {
		return err
	}
	defer app.close()

	ctx, cancel := context.WithTimeout(ctx, app.batchTimeout())
	defer cancel()

	summary, err := app.batch.Run(ctx)
	if err != nil {
		return fmt.Errorf("publish batch failed: %w", err)
	}
	fmt.Printf("processed=%d succeeded=%d failed=%d\n", summary.Processed, summary.Succeeded, summary.Failed)
	return nil
}

func runServer(cmd *cobra.Command, _ []string) error {
	cfg, appLogger, err := setup()
	if err != nil {
		return err
	}
	defer appLogger.Sync()

	appLogger.Info("Starting reelqueue", zap.String("version", version))

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	app, err := newApplication(ctx, cfg, appLogger)
	if err != nil {
		return err
	}
	defer app.close()

	var (
		asynqClient *asynq.Client
		asynqServer *asynq.Server
	)
	if cfg.RedisURI != "" {
		asynqClient = asynq.NewClient(app.asynqConn)
		defer asynqClient.Close()

		asynqServer = asynq.NewServer(app.asynqConn, asynq.Config{
			Concurrency: 1,
		})
		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypePublishDue, queue.NewQueue(app.batch, appLogger).HandlePublishDueTask)

		if err := asynqServer.Start(mux); err != nil {
			return fmt.Errorf("could not start asynq worker: %w", err)
		}
		appLogger.Info("Asynq worker started")
	} else {
		appLogger.Info("REDIS_URI is empty, due-time tasks are disabled")
	}

	var c *cron.Cron
	if cfg.Publish.CronSchedule != "" {
		batchJob := job.NewBatchJob(app.batch, app.batchTimeout(), appLogger)
		c = cron.New()
		if err := c.AddFunc(cfg.Publish.CronSchedule, batchJob.Run); err != nil {
			return fmt.Errorf("invalid CRON_SCHEDULE %q: %w", cfg.Publish.CronSchedule, err)
		}
		c.Start()
		appLogger.Info("Publish batch scheduled", zap.String("schedule", cfg.Publish.CronSchedule))
	}

	httpApp := app.newHTTPApp(asynqClient)
	go func() {
		if err := httpApp.Listen(":" + cfg.Port); err != nil {
			appLogger.Error("HTTP server failed", zap.Error(err))
			cancel()
		}
	}()
	appLogger.Info("Server is running", zap.String("port", cfg.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		appLogger.Info("Shutting down server...")
	case <-ctx.Done():
		appLogger.Info("Server context cancelled")
	}

	if c != nil {
		c.Stop()
	}
	if asynqServer != nil {
		asynqServer.Shutdown()
	}
	if err := httpApp.Shutdown(); err != nil {
		appLogger.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	appLogger.Info("Server exited")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
