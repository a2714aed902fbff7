// Package memory provides in-process repositories with the same concurrency
// semantics as the PostgreSQL ones. Used for local runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"contract_alert_engine/internal/domain/contract"
)

type ContractRepository struct {
	mu         sync.RWMutex
	contracts  map[string]*contract.Contract
	order      []string
	alertOwner map[string]string // alert id -> contract id
	now        func() time.Time
}

func NewContractRepository() *ContractRepository {
	return &ContractRepository{
		contracts:  make(map[string]*contract.Contract),
		alertOwner: make(map[string]string),
		now:        time.Now,
	}
}

func (r *ContractRepository) CreateContract(_ context.Context, c *contract.Contract) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.contracts[c.ID]; exists {
		return contract.ErrVersionConflict
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.now()
	}
	c.Version = 1
	stored := cloneContract(c)
	r.contracts[c.ID] = stored
	r.order = append(r.order, c.ID)
	r.indexAlerts(stored)
	return nil
}

func (r *ContractRepository) GetContract(_ context.Context, id string) (*contract.Contract, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.contracts[id]
	if !ok {
		return nil, contract.ErrContractNotFound
	}
	return cloneContract(stored), nil
}

func (r *ContractRepository) ListContractIDs(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...), nil
}

func (r *ContractRepository) SaveContract(_ context.Context, c *contract.Contract) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.contracts[c.ID]
	if !ok {
		return contract.ErrContractNotFound
	}
	if stored.Version != c.Version {
		return contract.ErrVersionConflict
	}

	next := cloneContract(c)
	for _, a := range next.Alerts() {
		prev, ok := stored.AlertByID(a.ID)
		if !ok {
			continue
		}
		if prev.Dispatched {
			a.Dispatched = true
			a.DispatchedAt = copyTime(prev.DispatchedAt)
		}
		a.ClaimedAt = copyTime(prev.ClaimedAt)
	}
	next.PruneDanglingAlerts()

	for _, a := range stored.Alerts() {
		delete(r.alertOwner, a.ID)
	}
	next.Version = stored.Version + 1
	r.contracts[c.ID] = next
	r.indexAlerts(next)
	c.Version = next.Version
	return nil
}

func (r *ContractRepository) FindContractIDByAlert(_ context.Context, alertID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.alertOwner[alertID]
	if !ok {
		return "", contract.ErrAlertNotFound
	}
	return id, nil
}

func (r *ContractRepository) ListDueAlerts(_ context.Context, now, staleClaimBefore time.Time) ([]*contract.DueAlert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var due []*contract.DueAlert
	for _, id := range r.order {
		c := r.contracts[id]
		for _, a := range c.FindDueAlerts(now) {
			if claimHeld(a, staleClaimBefore) {
				continue
			}
			d, _ := c.Date(a.ContractDateID)
			due = append(due, &contract.DueAlert{
				Alert:        *copyAlert(a),
				Date:         *d,
				ContractID:   c.ID,
				ContractType: c.ContractType,
				OwnerID:      c.OwnerID,
			})
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].Alert.ScheduledAt.Before(due[j].Alert.ScheduledAt)
	})
	return due, nil
}

func (r *ContractRepository) ClaimAlert(_ context.Context, alertID string, now, staleClaimBefore time.Time) (*contract.DueAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, a, err := r.lookupAlert(alertID)
	if err != nil {
		return nil, err
	}
	d, ok := c.Date(a.ContractDateID)
	if !ok || !d.IsActive || !a.IsDue(now) || claimHeld(a, staleClaimBefore) {
		return nil, nil
	}
	a.ClaimedAt = &now
	a.Attempts++
	c.Version++
	return &contract.DueAlert{
		Alert:        *copyAlert(a),
		Date:         *d,
		ContractID:   c.ID,
		ContractType: c.ContractType,
		OwnerID:      c.OwnerID,
	}, nil
}

func (r *ContractRepository) MarkDispatched(_ context.Context, alertID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, a, err := r.lookupAlert(alertID)
	if err != nil {
		return err
	}
	a.Dispatched = true
	a.DispatchedAt = &at
	a.ClaimedAt = nil
	c.Version++
	return nil
}

func (r *ContractRepository) ReleaseClaim(_ context.Context, alertID string, nextAttemptAt time.Time, deactivate bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, a, err := r.lookupAlert(alertID)
	if err != nil {
		return err
	}
	if a.Dispatched {
		return nil
	}
	a.ClaimedAt = nil
	a.NextAttemptAt = &nextAttemptAt
	if deactivate {
		a.IsActive = false
	}
	c.Version++
	return nil
}

func (r *ContractRepository) lookupAlert(alertID string) (*contract.Contract, *contract.Alert, error) {
	contractID, ok := r.alertOwner[alertID]
	if !ok {
		return nil, nil, contract.ErrAlertNotFound
	}
	c := r.contracts[contractID]
	a, ok := c.AlertByID(alertID)
	if !ok {
		return nil, nil, contract.ErrAlertNotFound
	}
	return c, a, nil
}

func (r *ContractRepository) indexAlerts(c *contract.Contract) {
	for _, a := range c.Alerts() {
		r.alertOwner[a.ID] = c.ID
	}
}

func claimHeld(a *contract.Alert, staleClaimBefore time.Time) bool {
	return a.ClaimedAt != nil && !a.ClaimedAt.Before(staleClaimBefore)
}

func cloneContract(c *contract.Contract) *contract.Contract {
	n := &contract.Contract{
		ID:           c.ID,
		OwnerID:      c.OwnerID,
		ContractType: c.ContractType,
		Text:         c.Text,
		Version:      c.Version,
		CreatedAt:    c.CreatedAt,
	}
	src := c.Dates()
	dates := make([]*contract.ContractDate, 0, len(src))
	for _, d := range src {
		cp := *d
		dates = append(dates, &cp)
	}
	srcAlerts := c.Alerts()
	alerts := make([]*contract.Alert, 0, len(srcAlerts))
	for _, a := range srcAlerts {
		alerts = append(alerts, copyAlert(a))
	}
	n.Load(dates, alerts)
	return n
}

func copyAlert(a *contract.Alert) *contract.Alert {
	cp := *a
	cp.DispatchedAt = copyTime(a.DispatchedAt)
	cp.ClaimedAt = copyTime(a.ClaimedAt)
	cp.NextAttemptAt = copyTime(a.NextAttemptAt)
	return &cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
