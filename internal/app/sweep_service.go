package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"contract_alert_engine/internal/domain/contract"
	"contract_alert_engine/internal/infra/metrics"

	"github.com/sirupsen/logrus"
)

// SweepReport summarizes one sweeper run.
type SweepReport struct {
	Contracts     int
	DatesRemoved  int
	AlertsRemoved int
}

// SweepService deletes contract dates that have passed, with their alerts.
// Dates at or after now are never touched.
type SweepService struct {
	contracts contract.Repository
	metrics   *metrics.Collector
	logger    *logrus.Entry
	now       func() time.Time
}

func NewSweepService(contracts contract.Repository, collector *metrics.Collector, logger *logrus.Entry) *SweepService {
	return &SweepService{contracts: contracts, metrics: collector, logger: logger, now: time.Now}
}

// SetClock replaces the time source. Intended for tests.
func (s *SweepService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *SweepService) RunOnce(ctx context.Context) (SweepReport, error) {
	started := time.Now()
	defer s.metrics.ObserveJob("sweep", started)

	ids, err := s.contracts.ListContractIDs(ctx)
	if err != nil {
		return SweepReport{}, fmt.Errorf("failed to list contracts: %w", err)
	}

	report := SweepReport{Contracts: len(ids)}
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		dates, alerts, err := s.sweepContract(ctx, id)
		if err != nil {
			s.logger.WithError(err).WithField("contract_id", id).Error("Sweep failed for contract")
			errs = append(errs, err)
			continue
		}
		report.DatesRemoved += dates
		report.AlertsRemoved += alerts
	}

	s.metrics.Swept(report.DatesRemoved, report.AlertsRemoved)
	s.logger.WithFields(logrus.Fields{
		"contracts":      report.Contracts,
		"dates_removed":  report.DatesRemoved,
		"alerts_removed": report.AlertsRemoved,
	}).Info("Sweep run complete")
	return report, errors.Join(errs...)
}

func (s *SweepService) sweepContract(ctx context.Context, contractID string) (int, int, error) {
	var dates, alerts int
	_, err := mutateContract(ctx, s.contracts, contractID, s.logger, func(c *contract.Contract) (bool, error) {
		dates, alerts = 0, 0
		now := s.now()
		for _, d := range c.FindExpired(now) {
			alerts += len(c.AlertsForDate(d.ID))
			if err := c.RemoveDate(d.ID); err != nil {
				return false, err
			}
			dates++
		}
		// Alerts whose date vanished without the cascade.
		alerts += c.PruneDanglingAlerts()
		return dates > 0 || alerts > 0, nil
	})
	if err != nil {
		return 0, 0, err
	}
	return dates, alerts, nil
}
