package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"contract_alert_engine/internal/app"
	"contract_alert_engine/internal/infra/config"
	"contract_alert_engine/internal/infra/logger"
	"contract_alert_engine/internal/infra/memory"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartRejectsInvalidSpec(t *testing.T) {
	s := NewJobScheduler(logger.Discard(), Job{
		Name: "broken",
		Spec: "every tuesday",
		Run:  func(context.Context) error { return nil },
	})
	err := s.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestRunJobAppliesTimeout(t *testing.T) {
	var sawDeadline atomic.Bool
	s := NewJobScheduler(logger.Discard())
	s.RunJob(Job{
		Name:    "timed",
		Timeout: time.Minute,
		Run: func(ctx context.Context) error {
			_, ok := ctx.Deadline()
			sawDeadline.Store(ok)
			return nil
		},
	})
	assert.True(t, sawDeadline.Load())
}

func TestRunJobLogsFailure(t *testing.T) {
	l, hook := test.NewNullLogger()
	s := NewJobScheduler(logrus.NewEntry(l))
	s.RunJob(Job{Name: "failing", Run: func(context.Context) error { return errors.New("db down") }})

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "failing", entry.Data["job"])
}

func TestStopCancelsRunningJobs(t *testing.T) {
	started := make(chan struct{})
	var cancelled atomic.Bool
	s := NewJobScheduler(logger.Discard(), Job{
		Name: "long",
		Spec: "@every 1s",
		Run: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			cancelled.Store(true)
			return ctx.Err()
		},
	})
	require.NoError(t, s.Start())

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not start")
	}
	s.Stop()
	assert.True(t, cancelled.Load())
}

func TestNewAlertSchedulerRegistersJobs(t *testing.T) {
	contracts := memory.NewContractRepository()
	owners := memory.NewOwnerRepository()
	log := logger.Discard()
	cfg := &config.AppConfig{
		CronSpecReconcile: "15 * * * *",
		CronSpecDispatch:  "0 * * * *",
		CronSpecSweep:     "0 3 * * *",
	}

	bridge := app.NewExtractionBridge(nil, 0, log)
	s := NewAlertScheduler(cfg,
		app.NewSchedulerService(contracts, bridge, 0, nil, log),
		app.NewDispatchService(contracts, owners, nil, app.RetryPolicy{ClaimTTL: time.Minute}, time.Second, 1, nil, log),
		app.NewSweepService(contracts, nil, log),
		log,
	)
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Len(t, s.cronEngine.Entries(), 3)
	for _, job := range s.jobs {
		s.RunJob(job) // Empty stores: every job succeeds without touching the notifier
	}
}
