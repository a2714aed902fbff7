package scheduler

import (
	"context"
	"fmt"
	"time"

	"contract_alert_engine/internal/app"
	"contract_alert_engine/internal/infra/config"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	reconcileTimeout = 10 * time.Minute
	dispatchTimeout  = 30 * time.Minute
	sweepTimeout     = 10 * time.Minute
)

// Job is one periodic task.
type Job struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// JobScheduler runs jobs on cron schedules. A job still running when its next
// tick arrives is skipped for that tick.
type JobScheduler struct {
	cronEngine *cron.Cron
	jobs       []Job
	logger     *logrus.Entry
	baseCtx    context.Context
	cancel     context.CancelFunc
}

func NewJobScheduler(logger *logrus.Entry, jobs ...Job) *JobScheduler {
	cronLogger := cron.PrintfLogger(logger)
	ctx, cancel := context.WithCancel(context.Background())
	return &JobScheduler{
		cronEngine: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		jobs:    jobs,
		logger:  logger,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// NewAlertScheduler wires the reconcile, dispatch and sweep jobs.
func NewAlertScheduler(
	cfg *config.AppConfig,
	schedulerService *app.SchedulerService,
	dispatchService *app.DispatchService,
	sweepService *app.SweepService,
	logger *logrus.Entry,
) *JobScheduler {
	return NewJobScheduler(logger,
		Job{
			Name:    "reconcile",
			Spec:    cfg.CronSpecReconcile,
			Timeout: reconcileTimeout,
			Run: func(ctx context.Context) error {
				_, err := schedulerService.ReconcileAll(ctx)
				return err
			},
		},
		Job{
			Name:    "dispatch",
			Spec:    cfg.CronSpecDispatch,
			Timeout: dispatchTimeout,
			Run: func(ctx context.Context) error {
				_, err := dispatchService.RunOnce(ctx)
				return err
			},
		},
		Job{
			Name:    "sweep",
			Spec:    cfg.CronSpecSweep,
			Timeout: sweepTimeout,
			Run: func(ctx context.Context) error {
				_, err := sweepService.RunOnce(ctx)
				return err
			},
		},
	)
}

// Start registers every job and starts the cron engine. An invalid schedule
// fails the whole start; no job runs in that case.
func (s *JobScheduler) Start() error {
	s.logger.Info("Starting job scheduler...")

	for _, job := range s.jobs {
		if _, err := s.cronEngine.AddFunc(job.Spec, func() { s.RunJob(job) }); err != nil {
			return fmt.Errorf("could not add %s cron job with spec %q: %w", job.Name, job.Spec, err)
		}
		s.logger.WithFields(logrus.Fields{"job": job.Name, "spec": job.Spec}).Info("Cron job registered")
	}

	s.cronEngine.Start()
	s.logger.WithField("jobs", len(s.jobs)).Info("Job scheduler started")
	return nil
}

// RunJob executes one job synchronously with its timeout.
func (s *JobScheduler) RunJob(job Job) {
	log := s.logger.WithField("job", job.Name)
	log.Info("Cron job triggered")

	ctx := s.baseCtx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	started := time.Now()
	if err := job.Run(ctx); err != nil {
		log.WithError(err).WithField("elapsed", time.Since(started)).Error("Cron job failed")
		return
	}
	log.WithField("elapsed", time.Since(started)).Info("Cron job finished")
}

// Stop stops scheduling, cancels running jobs and waits for them to return.
func (s *JobScheduler) Stop() {
	s.logger.Info("Stopping job scheduler...")
	ctx := s.cronEngine.Stop()
	s.cancel()
	<-ctx.Done()
	s.logger.Info("Job scheduler gracefully stopped")
}
