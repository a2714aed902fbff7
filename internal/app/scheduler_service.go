// internal/app/scheduler_service.go
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

// DefaultHorizon is the reconciliation look-ahead when none is configured.
const DefaultHorizon = 90 * 24 * time.Hour

// SchedulerService keeps each contract's alert set in step with its dates and
// implements the user and admin operations on dates and alerts.
//
// Reconciliation is conservative: it never creates an alert whose firing time
// has already passed and never touches an existing alert. Explicit toggles are
// permissive: they always upsert, so re-activating a past offset yields an
// alert that is due on the next dispatch run.
type SchedulerService struct {
	contracts contract.Repository
	bridge    *ExtractionBridge
	horizon   time.Duration
	metrics   *metrics.Collector
	logger    *logrus.Entry
	now       func() time.Time
}

func NewSchedulerService(
	contracts contract.Repository,
	bridge *ExtractionBridge,
	horizon time.Duration,
	collector *metrics.Collector,
	logger *logrus.Entry,
) *SchedulerService {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	return &SchedulerService{
		contracts: contracts,
		bridge:    bridge,
		horizon:   horizon,
		metrics:   collector,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock replaces the time source. Intended for tests.
func (s *SchedulerService) SetClock(now func() time.Time) {
	s.now = now
}

// Reconcile creates the missing alerts of c's active dates within the horizon
// and returns how many were created. Running it twice without an intervening
// change creates nothing the second time.
func (s *SchedulerService) Reconcile(c *contract.Contract, now time.Time) int {
	created := 0
	for _, d := range c.ListActiveDates(now, s.horizon) {
		for _, offset := range contract.Offsets {
			if d.Date.AddDate(0, 0, -offset).Before(now) {
				continue
			}
			if _, exists := c.FindAlert(d.ID, offset); exists {
				continue
			}
			if _, err := c.UpsertAlert(d.ID, offset, true); err != nil {
				// Offsets are valid and d belongs to c, so this cannot fail.
				s.logger.WithError(err).WithField("date_id", d.ID).Error("Failed to create alert during reconciliation")
				continue
			}
			created++
		}
	}
	return created
}

// ReconcileContract runs reconciliation for one stored contract.
func (s *SchedulerService) ReconcileContract(ctx context.Context, contractID string) (int, error) {
	created := 0
	_, err := mutateContract(ctx, s.contracts, contractID, s.logger, func(c *contract.Contract) (bool, error) {
		created = s.Reconcile(c, s.now())
		return created > 0, nil
	})
	if err != nil {
		return 0, err
	}
	s.metrics.AlertsScheduled(created)
	return created, nil
}

// ReconcileAll reconciles every contract. A failing contract is logged and the
// pass continues; the joined errors are returned at the end.
func (s *SchedulerService) ReconcileAll(ctx context.Context) (int, error) {
	started := time.Now()
	defer s.metrics.ObserveJob("reconcile", started)

	ids, err := s.contracts.ListContractIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list contracts: %w", err)
	}

	total := 0
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		n, err := s.ReconcileContract(ctx, id)
		if err != nil {
			s.logger.WithError(err).WithField("contract_id", id).Error("Reconciliation failed for contract")
			errs = append(errs, err)
			continue
		}
		total += n
	}
	s.logger.WithFields(logrus.Fields{
		"contracts":      len(ids),
		"alerts_created": total,
	}).Info("Reconciliation pass complete")
	return total, errors.Join(errs...)
}

// ToggleAlert activates or deactivates one offset of a date. It always upserts,
// recomputing ScheduledAt from the current date, even when that time has passed.
func (s *SchedulerService) ToggleAlert(ctx context.Context, contractID, dateID string, offsetDays int, isActive bool) (*contract.Alert, error) {
	if err := contract.ValidateOffset(offsetDays); err != nil {
		return nil, err
	}

	var result contract.Alert
	_, err := mutateContract(ctx, s.contracts, contractID, s.logger, func(c *contract.Contract) (bool, error) {
		a, err := c.UpsertAlert(dateID, offsetDays, isActive)
		if err != nil {
			return false, err
		}
		result = *a
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	log := s.logger.WithFields(logrus.Fields{
		"contract_id":  contractID,
		"date_id":      dateID,
		"offset_days":  offsetDays,
		"is_active":    isActive,
		"scheduled_at": result.ScheduledAt,
	})
	if isActive && !result.Dispatched && !result.ScheduledAt.After(s.now()) {
		log.Warn("Alert toggled on with a firing time already passed, it will fire on the next dispatch run")
	} else {
		log.Info("Alert toggled")
	}
	return &result, nil
}

// MuteAlert deactivates an alert identified only by its id. Alerts on
// contracts of another owner are reported as not found.
func (s *SchedulerService) MuteAlert(ctx context.Context, alertID string, ownerID int64) (*contract.Alert, error) {
	contractID, err := s.contracts.FindContractIDByAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}
	c, err := s.contracts.GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	a, ok := c.AlertByID(alertID)
	if !ok || c.OwnerID != ownerID {
		return nil, contract.ErrAlertNotFound
	}
	return s.ToggleAlert(ctx, contractID, a.ContractDateID, a.OffsetDays, false)
}

// ForceCreateAlert creates or re-activates an alert ignoring the horizon and
// the past-firing-time rule. For operational testing.
func (s *SchedulerService) ForceCreateAlert(ctx context.Context, contractID, dateID string, offsetDays int) (*contract.Alert, error) {
	s.logger.WithFields(logrus.Fields{
		"contract_id": contractID,
		"date_id":     dateID,
		"offset_days": offsetDays,
	}).Warn("Force-creating alert")
	return s.ToggleAlert(ctx, contractID, dateID, offsetDays, true)
}

// AddDate adds an active user date and schedules its alerts.
func (s *SchedulerService) AddDate(ctx context.Context, contractID string, dateType contract.DateType, date time.Time, description, clause string) (*contract.ContractDate, error) {
	if !dateType.Valid() {
		return nil, fmt.Errorf("%w: %q", contract.ErrInvalidDateType, dateType)
	}

	var added contract.ContractDate
	created := 0
	_, err := mutateContract(ctx, s.contracts, contractID, s.logger, func(c *contract.Contract) (bool, error) {
		added = *c.AddDate(dateType, date, description, clause)
		created = s.Reconcile(c, s.now())
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.AlertsScheduled(created)
	s.logger.WithFields(logrus.Fields{
		"contract_id":    contractID,
		"date_id":        added.ID,
		"date_type":      dateType,
		"alerts_created": created,
	}).Info("Date added")
	return &added, nil
}

// RemoveDate deletes a date together with its alerts.
func (s *SchedulerService) RemoveDate(ctx context.Context, contractID, dateID string) error {
	_, err := mutateContract(ctx, s.contracts, contractID, s.logger, func(c *contract.Contract) (bool, error) {
		if err := c.RemoveDate(dateID); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{"contract_id": contractID, "date_id": dateID}).Info("Date removed")
	return nil
}

// EditDate applies a user edit and reconciles, so a date moved into the horizon
// or re-activated gets its alerts.
func (s *SchedulerService) EditDate(ctx context.Context, contractID, dateID string, edit contract.DateEdit) (*contract.ContractDate, error) {
	var edited contract.ContractDate
	created := 0
	_, err := mutateContract(ctx, s.contracts, contractID, s.logger, func(c *contract.Contract) (bool, error) {
		if err := c.UpdateDate(dateID, edit); err != nil {
			return false, err
		}
		created = s.Reconcile(c, s.now())
		d, _ := c.Date(dateID)
		edited = *d
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.AlertsScheduled(created)
	return &edited, nil
}

// ProcessContractForDates runs date extraction and then reconciliation for one
// contract. Extraction failures leave the contract without extracted dates but
// do not fail the call.
func (s *SchedulerService) ProcessContractForDates(ctx context.Context, contractID string) (*contract.Contract, error) {
	c, err := s.contracts.GetContract(ctx, contractID)
	if err != nil {
		return nil, fmt.Errorf("failed to load contract %s: %w", contractID, err)
	}

	// The extractor call is slow; it runs outside the save loop.
	candidates := s.bridge.Extract(ctx, c.ID, c.Text, c.ContractType)

	added, created := 0, 0
	c, err = mutateContract(ctx, s.contracts, contractID, s.logger, func(c *contract.Contract) (bool, error) {
		added = s.bridge.Apply(c, candidates)
		created = s.Reconcile(c, s.now())
		return added > 0 || created > 0, nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.AlertsScheduled(created)
	s.logger.WithFields(logrus.Fields{
		"contract_id":    contractID,
		"dates_added":    added,
		"alerts_created": created,
	}).Info("Contract processed for dates")
	return c, nil
}

// RegisterContract stores a new contract and processes it for dates.
func (s *SchedulerService) RegisterContract(ctx context.Context, ownerID int64, contractType, text string) (*contract.Contract, error) {
	c := contract.New(ownerID, contractType, text)
	if err := s.contracts.CreateContract(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create contract: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"contract_id":   c.ID,
		"owner_id":      ownerID,
		"contract_type": contractType,
	}).Info("Contract registered")
	return s.ProcessContractForDates(ctx, c.ID)
}

// GetContract returns the stored contract.
func (s *SchedulerService) GetContract(ctx context.Context, contractID string) (*contract.Contract, error) {
	return s.contracts.GetContract(ctx, contractID)
}
