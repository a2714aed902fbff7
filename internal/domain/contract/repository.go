// internal/domain/contract/repository.go
package contract

import (
	"context"
	"time"
)

// Repository persists Contract aggregates.
//
// SaveContract is a whole-aggregate write and is only safe for paths that can
// re-derive their changes (scheduling, sweeping, user edits). The dispatch path
// must use the single-alert operations below.
type Repository interface {
	CreateContract(ctx context.Context, c *Contract) error
	GetContract(ctx context.Context, id string) (*Contract, error)
	ListContractIDs(ctx context.Context) ([]string, error)
	// SaveContract writes dates and alerts if c.Version still matches the stored
	// version, returning ErrVersionConflict otherwise. Removed dates are deleted
	// with their alerts. Dispatched is never lowered and claim state is never
	// overwritten.
	SaveContract(ctx context.Context, c *Contract) error
	FindContractIDByAlert(ctx context.Context, alertID string) (string, error)

	// ListDueAlerts returns alerts that are active, undispatched, scheduled at or
	// before now, belong to an active date, are past their retry backoff and are
	// not held by a claim newer than staleClaimBefore.
	ListDueAlerts(ctx context.Context, now, staleClaimBefore time.Time) ([]*DueAlert, error)
	// ClaimAlert atomically takes the right to send an alert and returns the
	// alert as stored at claim time. It returns nil if the alert is no longer
	// due at now (dispatched, deactivated, rescheduled, in backoff or on an
	// inactive date) or another worker holds a live claim.
	ClaimAlert(ctx context.Context, alertID string, now, staleClaimBefore time.Time) (*DueAlert, error)
	// MarkDispatched confirms a claimed alert as sent. Terminal.
	MarkDispatched(ctx context.Context, alertID string, at time.Time) error
	// ReleaseClaim gives a failed alert back for a later retry, or deactivates it
	// when the retry budget is spent.
	ReleaseClaim(ctx context.Context, alertID string, nextAttemptAt time.Time, deactivate bool) error
}
