// internal/domain/contract/alert.go
package contract

import (
	"fmt"
	"time"
)

// Offsets is the closed set of reminder offsets, in days before the date.
var Offsets = []int{1, 3, 7, 14, 30}

// ValidateOffset rejects any offset outside Offsets.
func ValidateOffset(days int) error {
	for _, o := range Offsets {
		if o == days {
			return nil
		}
	}
	return fmt.Errorf("%w: %d (allowed: %v)", ErrInvalidOffset, days, Offsets)
}

// Alert is one reminder for one (date, offset) pair.
type Alert struct {
	ID             string
	ContractDateID string
	OffsetDays     int
	ScheduledAt    time.Time // Always Date - OffsetDays, recomputed on change
	IsActive       bool
	Dispatched     bool // false -> true only
	DispatchedAt   *time.Time

	// Claim bookkeeping used by the dispatcher. A claimed alert is being sent
	// by some worker; it becomes Dispatched only once the send is confirmed.
	ClaimedAt     *time.Time
	Attempts      int
	NextAttemptAt *time.Time
}

// AlertState is the externally visible state of an alert.
type AlertState string

const (
	AlertStateInactive      AlertState = "inactive"
	AlertStateActivePending AlertState = "active_pending"
	AlertStateSent          AlertState = "sent"
)

func (a *Alert) State() AlertState {
	switch {
	case a.Dispatched:
		return AlertStateSent
	case !a.IsActive:
		return AlertStateInactive
	default:
		return AlertStateActivePending
	}
}

// scheduledFor computes the firing instant of an offset relative to a date.
func scheduledFor(date time.Time, offsetDays int) time.Time {
	return date.AddDate(0, 0, -offsetDays)
}

// IsDue reports whether the alert should be fired at now, ignoring the state of
// its owning date.
func (a *Alert) IsDue(now time.Time) bool {
	if !a.IsActive || a.Dispatched {
		return false
	}
	if a.ScheduledAt.After(now) {
		return false
	}
	if a.NextAttemptAt != nil && a.NextAttemptAt.After(now) {
		return false
	}
	return true
}

// DueAlert is a due alert joined with everything the dispatcher needs to send it.
type DueAlert struct {
	Alert        Alert
	Date         ContractDate
	ContractID   string
	ContractType string
	OwnerID      int64
}
