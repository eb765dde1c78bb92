// Package main is the entrypoint for the admin API server. It exposes the
// task status workflow, recurrence rule lifecycle, and manual report
// triggers over HTTP; the scheduled sweeps run in the worker Lambda.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"agencydesk/internal/api"
	"agencydesk/internal/config"
	"agencydesk/internal/db"
	"agencydesk/internal/external"
	"agencydesk/internal/notify"
	"agencydesk/internal/scheduler"
	"agencydesk/internal/types"
	"agencydesk/internal/workflow"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database.URL.Unmask(), cfg.Database.MaxConns)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Error("failed to load AWS configuration", "error", err)
		os.Exit(1)
	}
	if cfg.AWS.EndpointURL != "" {
		// LocalStack in development.
		awsCfg.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
	}

	taskRepo := db.NewTaskRepository(pool)
	ruleRepo := db.NewRecurringTaskRuleRepository(pool)
	scheduleRepo := db.NewReportScheduleRepository(pool)
	clientRepo := db.NewClientRepository(pool)
	userRepo := db.NewUserRepository(pool)
	notifRepo := db.NewNotificationRepository(pool)

	sesClient := external.NewSESClient(awsCfg, external.SESClientConfig{
		ConfigSetName: cfg.Email.ConfigSetName,
		Logger:        logger,
	})

	dispatcher := notify.NewDispatcher(notify.DispatcherConfig{
		Email: sesClient,
		InApp: notifRepo,
		Users: userRepo,
		Sender: types.SenderIdentity{
			Name:    cfg.Email.FromName,
			Address: cfg.Email.FromAddress,
		},
		Concurrency: cfg.Worker.FanoutConcurrency,
		Logger:      logger,
	})

	reportClient := external.NewReportServiceClient(external.ReportServiceConfig{
		BaseURL: cfg.ReportService.BaseURL,
		APIKey:  cfg.ReportService.APIKey.Unmask(),
		Logger:  logger,
	})

	workflowSvc := workflow.NewService(workflow.ServiceConfig{
		Tasks:    taskRepo,
		Clients:  clientRepo,
		Notifier: dispatcher,
		Logger:   logger,
	})

	taskScheduler := scheduler.NewRecurringTaskScheduler(scheduler.RecurringTaskSchedulerConfig{
		Rules:     ruleRepo,
		BatchSize: cfg.Worker.BatchSize,
		Logger:    logger,
	})

	reportRunner := scheduler.NewReportScheduleRunner(scheduler.ReportScheduleRunnerConfig{
		Schedules: scheduleRepo,
		Delivery:  reportClient,
		Clients:   clientRepo,
		Notifier:  dispatcher,
		BatchSize: cfg.Worker.BatchSize,
		Logger:    logger,
	})

	handler := api.NewHandler(api.HandlerConfig{
		Workflow: workflowSvc,
		Rules:    taskScheduler,
		Reports:  reportRunner,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      api.NewRouter(handler, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("api server listening",
			"port", cfg.Server.Port,
			"environment", cfg.Environment,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
