// Package main is the entrypoint for the scheduler worker Lambda.
//
// The worker is a sweep multiplexer: EventBridge rules deliver a JSON payload
// naming the sweep to run, and the handler routes to the matching service.
// Each invocation takes a distributed job lock so a double-fired timer never
// runs the same sweep concurrently, and records the run in job_history.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/google/uuid"

	"agencydesk/internal/config"
	"agencydesk/internal/db"
	"agencydesk/internal/external"
	"agencydesk/internal/notify"
	"agencydesk/internal/scheduler"
	"agencydesk/internal/telemetry"
	"agencydesk/internal/types"
)

// TaskSweeper spawns tasks from due recurrence rules.
type TaskSweeper interface {
	ProcessDueRules(ctx context.Context, now time.Time) (int, error)
}

// ReportSweeper runs due report schedules.
type ReportSweeper interface {
	ProcessDueSchedules(ctx context.Context, now time.Time) (int, error)
}

// ArchiveSweeper runs the client lifecycle sweeps.
type ArchiveSweeper interface {
	SweepCanceled(ctx context.Context, today time.Time) (int64, error)
	SweepScheduled(ctx context.Context, today time.Time) (int, error)
}

// JobLocker abstracts distributed lock acquisition.
type JobLocker interface {
	Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error)
}

// JobHistorian records sweep executions.
type JobHistorian interface {
	Start(ctx context.Context, jobType string) (int64, error)
	Finish(ctx context.Context, id int64, status string, items int, err error) error
}

// SweepRecorder publishes sweep metrics. Nil-able; metrics are optional.
type SweepRecorder interface {
	RecordSweep(ctx context.Context, jobType string, items int)
	RecordDuration(ctx context.Context, jobType string, duration time.Duration)
}

// Handler holds the worker's dependencies, wired once at cold start.
type Handler struct {
	Tasks      TaskSweeper
	Reports    ReportSweeper
	Archiver   ArchiveSweeper
	JobLock    JobLocker
	JobHistory JobHistorian
	Metrics    SweepRecorder
	LockTTL    time.Duration
	// SweepTimeout bounds a single dispatch so a wedged sweep cannot hold
	// the Lambda until its hard kill. Zero disables the bound.
	SweepTimeout time.Duration
	WorkerID     string
	Logger       *slog.Logger
}

// Handle processes one EventBridge invocation.
func (h *Handler) Handle(ctx context.Context, payload scheduler.SweepPayload) (string, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := time.Now().UTC()
	if payload.ReferenceTime != nil {
		now = payload.ReferenceTime.UTC()
	}

	if payload.Task == "" {
		return "", fmt.Errorf("empty task in sweep payload")
	}
	taskStr := string(payload.Task)

	logger.InfoContext(ctx, "sweep invoked",
		"task", taskStr,
		"reference_time", now.Format(time.RFC3339),
		"worker_id", h.WorkerID,
	)

	// Lock key includes the hour so a retried invocation within the same
	// window is skipped but the next window runs fresh.
	lockID := fmt.Sprintf("%s:%s", taskStr, now.Truncate(time.Hour).Format("2006-01-02T15"))
	acquired, err := h.JobLock.Acquire(ctx, lockID, h.WorkerID, h.LockTTL)
	if err != nil {
		return "", fmt.Errorf("acquiring job lock %s: %w", lockID, err)
	}
	if !acquired {
		logger.InfoContext(ctx, "job lock held by another worker, skipping",
			"lock_id", lockID,
		)
		return fmt.Sprintf("skipped: lock %s held by another worker", lockID), nil
	}

	jobID, err := h.JobHistory.Start(ctx, taskStr)
	if err != nil {
		logger.ErrorContext(ctx, "failed to start job history",
			"task", taskStr,
			"error", err,
		)
		// History is observability, not a gate; the sweep still runs.
		jobID = 0
	}

	sweepCtx := ctx
	if h.SweepTimeout > 0 {
		var cancel context.CancelFunc
		sweepCtx, cancel = context.WithTimeout(ctx, h.SweepTimeout)
		defer cancel()
	}

	start := time.Now()
	items, execErr := h.dispatch(sweepCtx, payload.Task, now)

	status := "success"
	if execErr != nil {
		status = "failed"
	}
	if jobID != 0 {
		if finishErr := h.JobHistory.Finish(ctx, jobID, status, items, execErr); finishErr != nil {
			logger.ErrorContext(ctx, "failed to finish job history",
				"job_id", jobID,
				"task", taskStr,
				"error", finishErr,
			)
		}
	}

	if h.Metrics != nil {
		h.Metrics.RecordSweep(ctx, taskStr, items)
		h.Metrics.RecordDuration(ctx, taskStr, time.Since(start))
	}

	if execErr != nil {
		logger.ErrorContext(ctx, "sweep failed",
			"task", taskStr,
			"error", execErr,
			"items_before_error", items,
		)
		return "", fmt.Errorf("sweep %s failed: %w", taskStr, execErr)
	}

	result := fmt.Sprintf("sweep %s complete: %d items", taskStr, items)
	logger.InfoContext(ctx, result, "task", taskStr, "items", items)
	return result, nil
}

// dispatch routes a sweep task to its service.
func (h *Handler) dispatch(ctx context.Context, task scheduler.SweepTask, now time.Time) (int, error) {
	switch task {
	case scheduler.SweepRecurringTasks:
		return h.Tasks.ProcessDueRules(ctx, now)

	case scheduler.SweepReportSchedules:
		return h.Reports.ProcessDueSchedules(ctx, now)

	case scheduler.SweepClientArchive:
		// Both lifecycle sweeps run in one invocation; the counts add up.
		canceled, err := h.Archiver.SweepCanceled(ctx, now)
		if err != nil {
			return int(canceled), fmt.Errorf("sweeping canceled clients: %w", err)
		}
		scheduled, err := h.Archiver.SweepScheduled(ctx, now)
		if err != nil {
			return int(canceled) + scheduled, fmt.Errorf("sweeping scheduled archives: %w", err)
		}
		return int(canceled) + scheduled, nil

	default:
		return 0, fmt.Errorf("unknown sweep task: %q", task)
	}
}

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

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Error("failed to load AWS configuration", "error", err)
		os.Exit(1)
	}
	if cfg.AWS.EndpointURL != "" {
		// LocalStack in development.
		awsCfg.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
	}

	ruleRepo := db.NewRecurringTaskRuleRepository(pool)
	scheduleRepo := db.NewReportScheduleRepository(pool)
	clientRepo := db.NewClientRepository(pool)
	userRepo := db.NewUserRepository(pool)
	notifRepo := db.NewNotificationRepository(pool)
	jobLockRepo := db.NewJobLockRepository(pool)
	jobHistoryRepo := db.NewJobHistoryRepository(pool)

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

	var metrics SweepRecorder
	if cfg.Observability.EnableMetrics {
		metrics = telemetry.NewSweepMetrics(
			cloudwatch.NewFromConfig(awsCfg),
			cfg.Observability.MetricNamespace,
			logger,
		)
	}

	handler := &Handler{
		Tasks: scheduler.NewRecurringTaskScheduler(scheduler.RecurringTaskSchedulerConfig{
			Rules:     ruleRepo,
			BatchSize: cfg.Worker.BatchSize,
			Logger:    logger,
		}),
		Reports: scheduler.NewReportScheduleRunner(scheduler.ReportScheduleRunnerConfig{
			Schedules: scheduleRepo,
			Delivery:  reportClient,
			Clients:   clientRepo,
			Notifier:  dispatcher,
			BatchSize: cfg.Worker.BatchSize,
			Logger:    logger,
		}),
		Archiver: scheduler.NewClientArchiver(scheduler.ClientArchiverConfig{
			Clients:  clientRepo,
			Notifier: dispatcher,
			Logger:   logger,
		}),
		JobLock:      jobLockRepo,
		JobHistory:   jobHistoryRepo,
		Metrics:      metrics,
		LockTTL:      cfg.Worker.LockTTL,
		SweepTimeout: cfg.Worker.SweepTimeout,
		WorkerID:     uuid.NewString(),
		Logger:       logger,
	}

	logger.Info("scheduler worker initialized",
		"worker_id", handler.WorkerID,
		"environment", cfg.Environment,
	)

	lambda.Start(handler.Handle)
}
