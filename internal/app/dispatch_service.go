// internal/app/dispatch_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"contract_alert_engine/internal/domain/contract"
	"contract_alert_engine/internal/domain/notify"
	"contract_alert_engine/internal/domain/owner"
	"contract_alert_engine/internal/infra/metrics"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// bookkeepingTimeout bounds the writes made after a send, which run detached
// from the job context so a send that succeeded is still recorded.
const bookkeepingTimeout = 10 * time.Second

// RetryPolicy controls what happens to an alert whose send failed.
type RetryPolicy struct {
	// MaxAttempts deactivates the alert after this many failed sends.
	// Zero retries on every run until the date expires and is swept.
	MaxAttempts int
	// Backoff delays the next attempt after a failure.
	Backoff time.Duration
	// ClaimTTL is how long a claim blocks other workers. A claim older than
	// this belongs to a worker that died mid-send and may be taken over.
	ClaimTTL time.Duration
}

// DispatchReport summarizes one dispatcher run.
type DispatchReport struct {
	Due       int
	Sent      int
	Failed    int
	Skipped   int // Claimed by another worker first
	Abandoned int // Deactivated after exhausting MaxAttempts
	Held      int // Owner inactive, left pending
}

type DispatchService struct {
	contracts   contract.Repository
	owners      owner.Repository
	notifier    notify.Notifier
	policy      RetryPolicy
	timeout     time.Duration
	concurrency int
	metrics     *metrics.Collector
	logger      *logrus.Entry
	now         func() time.Time
}

func NewDispatchService(
	contracts contract.Repository,
	owners owner.Repository,
	notifier notify.Notifier,
	policy RetryPolicy,
	notifierTimeout time.Duration,
	concurrency int,
	collector *metrics.Collector,
	logger *logrus.Entry,
) *DispatchService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &DispatchService{
		contracts:   contracts,
		owners:      owners,
		notifier:    notifier,
		policy:      policy,
		timeout:     notifierTimeout,
		concurrency: concurrency,
		metrics:     collector,
		logger:      logger,
		now:         time.Now,
	}
}

// SetClock replaces the time source. Intended for tests.
func (s *DispatchService) SetClock(now func() time.Time) {
	s.now = now
}

// RunOnce fires every alert that is due now. Each alert is claimed with a
// single conditional update before the notifier is called, so concurrent runs
// never send the same alert twice.
func (s *DispatchService) RunOnce(ctx context.Context) (DispatchReport, error) {
	started := time.Now()
	defer s.metrics.ObserveJob("dispatch", started)

	now := s.now()
	staleClaimBefore := now.Add(-s.policy.ClaimTTL)

	due, err := s.contracts.ListDueAlerts(ctx, now, staleClaimBefore)
	if err != nil {
		return DispatchReport{}, fmt.Errorf("failed to list due alerts: %w", err)
	}

	report := DispatchReport{Due: len(due)}
	if len(due) == 0 {
		s.logger.Debug("No due alerts")
		return report, nil
	}
	s.logger.WithField("due", len(due)).Info("Dispatching due alerts")

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, item := range due {
		item := item
		g.Go(func() error {
			outcome := s.dispatchOne(gctx, item, now, staleClaimBefore)
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeSent:
				report.Sent++
			case outcomeFailed:
				report.Failed++
			case outcomeAbandoned:
				report.Failed++
				report.Abandoned++
			case outcomeSkipped:
				report.Skipped++
			case outcomeHeld:
				report.Held++
			}
			return nil
		})
	}
	_ = g.Wait() // Workers report through outcomes, never errors

	s.logger.WithFields(logrus.Fields{
		"due":       report.Due,
		"sent":      report.Sent,
		"failed":    report.Failed,
		"skipped":   report.Skipped,
		"abandoned": report.Abandoned,
		"held":      report.Held,
	}).Info("Dispatch run complete")
	return report, nil
}

type dispatchOutcome int

const (
	outcomeSkipped dispatchOutcome = iota
	outcomeSent
	outcomeFailed
	outcomeAbandoned
	outcomeHeld
)

func (s *DispatchService) dispatchOne(ctx context.Context, item *contract.DueAlert, now, staleClaimBefore time.Time) dispatchOutcome {
	log := s.logger.WithFields(logrus.Fields{
		"alert_id":    item.Alert.ID,
		"contract_id": item.ContractID,
		"date_id":     item.Date.ID,
		"offset_days": item.Alert.OffsetDays,
	})

	// A contract never changes owner, so the listed owner id is current.
	o, err := s.owners.GetByID(ctx, item.OwnerID)
	if err != nil {
		log.WithError(err).WithField("owner_id", item.OwnerID).Error("Failed to resolve alert recipient")
		s.metrics.AlertFailed()
		return outcomeFailed
	}
	if !o.IsActive {
		log.WithField("owner_id", o.ID).Debug("Owner is inactive, holding alert")
		return outcomeHeld
	}

	// The claim re-checks the alert against the stored rows; everything sent
	// below comes from the claimed copy, not from the listing.
	claimed, err := s.contracts.ClaimAlert(ctx, item.Alert.ID, now, staleClaimBefore)
	if err != nil {
		if errors.Is(err, contract.ErrAlertNotFound) {
			log.Debug("Alert removed since it was listed, skipping")
		} else {
			log.WithError(err).Error("Failed to claim alert")
		}
		return outcomeSkipped
	}
	if claimed == nil {
		log.Debug("Alert claimed elsewhere or no longer due, skipping")
		s.metrics.ClaimLost()
		return outcomeSkipped
	}
	attempts := claimed.Alert.Attempts

	msg := notify.DateAlert{
		AlertID:      claimed.Alert.ID,
		ContractID:   claimed.ContractID,
		ContractType: claimed.ContractType,
		DateType:     claimed.Date.DateType,
		Date:         claimed.Date.Date,
		Description:  claimed.Date.Description,
		Clause:       claimed.Date.SourceClause,
		OffsetDays:   claimed.Alert.OffsetDays,
		DaysUntil:    DaysUntil(claimed.Date.Date, now),
	}
	to := notify.Recipient{Address: o.Email, Name: o.Name}
	if o.TelegramID.Valid {
		to.TelegramID = o.TelegramID.Int64
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
	err = s.notifier.SendDateAlert(sendCtx, to, msg)
	cancel()
	if err != nil {
		log.WithError(err).WithField("attempt", attempts).Warn("Notifier failed to send alert")
		return s.handleFailure(ctx, log, item, attempts, now)
	}

	bookCtx, cancelBook := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancelBook()
	if err := s.contracts.MarkDispatched(bookCtx, claimed.Alert.ID, s.now()); err != nil {
		// The claim stays in place until ClaimTTL, after which the alert may be
		// sent again.
		log.WithError(err).Error("Alert sent but failed to mark dispatched")
		return outcomeSent
	}
	s.metrics.AlertSent()
	log.WithField("days_until", msg.DaysUntil).Info("Alert dispatched")
	return outcomeSent
}

func (s *DispatchService) handleFailure(ctx context.Context, log *logrus.Entry, item *contract.DueAlert, attempts int, now time.Time) dispatchOutcome {
	deactivate := s.policy.MaxAttempts > 0 && attempts >= s.policy.MaxAttempts
	nextAttemptAt := now.Add(s.policy.Backoff)

	bookCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()
	if err := s.contracts.ReleaseClaim(bookCtx, item.Alert.ID, nextAttemptAt, deactivate); err != nil {
		log.WithError(err).Error("Failed to release alert claim, it will be retried after the claim expires")
	}

	s.metrics.AlertFailed()
	if deactivate {
		s.metrics.AlertAbandoned()
		log.WithField("attempts", attempts).Error("Alert deactivated after exhausting retry attempts")
		return outcomeAbandoned
	}
	return outcomeFailed
}

// DaysUntil is the number of whole days, rounded up, from now until date.
// Dates in the past yield zero.
func DaysUntil(date, now time.Time) int {
	d := date.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Hours() / 24))
}
