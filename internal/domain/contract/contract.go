// internal/domain/contract/contract.go
package contract

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

type alertKey struct {
	dateID string
	offset int
}

// Contract is the aggregate owning a contract's dates and their alerts.
// Dates and alerts keep insertion order and are indexed by id and by
// (date id, offset). None of the methods read the clock; callers pass now.
type Contract struct {
	ID           string
	OwnerID      int64
	ContractType string
	Text         string // Analyzed contract text, input to date extraction
	Version      int    // Optimistic concurrency counter, bumped on every save
	CreatedAt    time.Time

	dates     []*ContractDate
	alerts    []*Alert
	dateIdx   map[string]*ContractDate
	alertIdx  map[alertKey]*Alert
	alertByID map[string]*Alert
}

// New creates an empty contract aggregate with a fresh id.
func New(ownerID int64, contractType, text string) *Contract {
	c := &Contract{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		ContractType: contractType,
		Text:         text,
	}
	c.Load(nil, nil)
	return c
}

// Load replaces the aggregate's dates and alerts, rebuilding the indexes.
// Repositories use it when hydrating a contract from storage.
func (c *Contract) Load(dates []*ContractDate, alerts []*Alert) {
	c.dates = make([]*ContractDate, 0, len(dates))
	c.alerts = make([]*Alert, 0, len(alerts))
	c.dateIdx = make(map[string]*ContractDate, len(dates))
	c.alertIdx = make(map[alertKey]*Alert, len(alerts))
	c.alertByID = make(map[string]*Alert, len(alerts))
	for _, d := range dates {
		c.dates = append(c.dates, d)
		c.dateIdx[d.ID] = d
	}
	for _, a := range alerts {
		k := alertKey{a.ContractDateID, a.OffsetDays}
		if _, dup := c.alertIdx[k]; dup {
			continue
		}
		c.alerts = append(c.alerts, a)
		c.alertIdx[k] = a
		c.alertByID[a.ID] = a
	}
}

// Dates returns the contract's dates in insertion order.
func (c *Contract) Dates() []*ContractDate {
	return append([]*ContractDate(nil), c.dates...)
}

// Alerts returns the contract's alerts in insertion order.
func (c *Contract) Alerts() []*Alert {
	return append([]*Alert(nil), c.alerts...)
}

func (c *Contract) Date(id string) (*ContractDate, bool) {
	d, ok := c.dateIdx[id]
	return d, ok
}

// AlertsForDate returns the alerts of one date ordered by offset.
func (c *Contract) AlertsForDate(dateID string) []*Alert {
	var out []*Alert
	for _, a := range c.alerts {
		if a.ContractDateID == dateID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OffsetDays < out[j].OffsetDays })
	return out
}

// AddDate adds an active date.
func (c *Contract) AddDate(dateType DateType, date time.Time, description, clause string) *ContractDate {
	return c.AddDateWithActivation(dateType, date, description, clause, true)
}

func (c *Contract) AddDateWithActivation(dateType DateType, date time.Time, description, clause string, active bool) *ContractDate {
	if c.dateIdx == nil {
		c.Load(nil, nil)
	}
	d := &ContractDate{
		ID:           uuid.NewString(),
		DateType:     dateType,
		Date:         date,
		Description:  description,
		SourceClause: clause,
		IsActive:     active,
	}
	c.dates = append(c.dates, d)
	c.dateIdx[d.ID] = d
	return d
}

// RemoveDate deletes a date and every alert it owns.
func (c *Contract) RemoveDate(dateID string) error {
	if _, ok := c.dateIdx[dateID]; !ok {
		return ErrDateNotFound
	}
	delete(c.dateIdx, dateID)
	for i, d := range c.dates {
		if d.ID == dateID {
			c.dates = append(c.dates[:i], c.dates[i+1:]...)
			break
		}
	}
	c.removeAlertsWhere(func(a *Alert) bool { return a.ContractDateID == dateID })
	return nil
}

// UpdateDate applies a user edit. Moving the date recomputes ScheduledAt for all
// of its alerts.
func (c *Contract) UpdateDate(dateID string, edit DateEdit) error {
	d, ok := c.dateIdx[dateID]
	if !ok {
		return ErrDateNotFound
	}
	if edit.Description != nil {
		d.Description = *edit.Description
	}
	if edit.IsActive != nil {
		d.IsActive = *edit.IsActive
	}
	if edit.Date != nil && !edit.Date.Equal(d.Date) {
		d.Date = *edit.Date
		for _, a := range c.alerts {
			if a.ContractDateID == dateID {
				a.ScheduledAt = scheduledFor(d.Date, a.OffsetDays)
			}
		}
	}
	return nil
}

// ListActiveDates returns active dates falling in [now, now+horizon].
func (c *Contract) ListActiveDates(now time.Time, horizon time.Duration) []*ContractDate {
	end := now.Add(horizon)
	var out []*ContractDate
	for _, d := range c.dates {
		if !d.IsActive || d.Date.Before(now) || d.Date.After(end) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// FindAlert returns the alert for a (date, offset) pair, if any.
func (c *Contract) FindAlert(dateID string, offsetDays int) (*Alert, bool) {
	a, ok := c.alertIdx[alertKey{dateID, offsetDays}]
	return a, ok
}

func (c *Contract) AlertByID(id string) (*Alert, bool) {
	a, ok := c.alertByID[id]
	return a, ok
}

// UpsertAlert keeps at most one alert per (date, offset). An existing alert gets
// its IsActive updated and ScheduledAt recomputed; otherwise a new undispatched
// alert is created. Dispatched is never touched. Activating clears any retry
// bookkeeping so the alert is considered afresh.
func (c *Contract) UpsertAlert(dateID string, offsetDays int, isActive bool) (*Alert, error) {
	if err := ValidateOffset(offsetDays); err != nil {
		return nil, err
	}
	d, ok := c.dateIdx[dateID]
	if !ok {
		return nil, ErrDateNotFound
	}
	scheduledAt := scheduledFor(d.Date, offsetDays)
	if a, ok := c.alertIdx[alertKey{dateID, offsetDays}]; ok {
		a.IsActive = isActive
		a.ScheduledAt = scheduledAt
		if isActive && !a.Dispatched {
			a.Attempts = 0
			a.NextAttemptAt = nil
		}
		return a, nil
	}
	a := &Alert{
		ID:             uuid.NewString(),
		ContractDateID: dateID,
		OffsetDays:     offsetDays,
		ScheduledAt:    scheduledAt,
		IsActive:       isActive,
	}
	c.alerts = append(c.alerts, a)
	c.alertIdx[alertKey{dateID, offsetDays}] = a
	c.alertByID[a.ID] = a
	return a, nil
}

// FindDueAlerts returns active, unsent alerts of active dates whose time has come.
func (c *Contract) FindDueAlerts(now time.Time) []*Alert {
	var out []*Alert
	for _, a := range c.alerts {
		d, ok := c.dateIdx[a.ContractDateID]
		if !ok || !d.IsActive {
			continue
		}
		if a.IsDue(now) {
			out = append(out, a)
		}
	}
	return out
}

// FindExpired returns dates strictly before now.
func (c *Contract) FindExpired(now time.Time) []*ContractDate {
	var out []*ContractDate
	for _, d := range c.dates {
		if d.Date.Before(now) {
			out = append(out, d)
		}
	}
	return out
}

// PruneDanglingAlerts drops alerts whose date is gone and reports how many.
func (c *Contract) PruneDanglingAlerts() int {
	return c.removeAlertsWhere(func(a *Alert) bool {
		_, ok := c.dateIdx[a.ContractDateID]
		return !ok
	})
}

// HasDate reports whether a date of the given type already exists on the same
// calendar day.
func (c *Contract) HasDate(dateType DateType, date time.Time) bool {
	y, m, day := date.Date()
	for _, d := range c.dates {
		dy, dm, dd := d.Date.Date()
		if d.DateType == dateType && dy == y && dm == m && dd == day {
			return true
		}
	}
	return false
}

func (c *Contract) removeAlertsWhere(match func(*Alert) bool) int {
	kept := c.alerts[:0]
	removed := 0
	for _, a := range c.alerts {
		if match(a) {
			delete(c.alertIdx, alertKey{a.ContractDateID, a.OffsetDays})
			delete(c.alertByID, a.ID)
			removed++
			continue
		}
		kept = append(kept, a)
	}
	c.alerts = kept
	return removed
}
