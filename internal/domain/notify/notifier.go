// internal/domain/notify/notifier.go
package notify

import (
	"context"
	"time"

	"contract_alert_engine/internal/domain/contract"
)

// Recipient identifies who an alert is delivered to.
type Recipient struct {
	Address    string // Email address
	Name       string
	TelegramID int64 // Zero when the owner has no linked chat
}

// DateAlert is the payload of one alert firing.
type DateAlert struct {
	AlertID      string
	ContractID   string
	ContractType string
	DateType     contract.DateType
	Date         time.Time
	Description  string
	Clause       string
	OffsetDays   int
	DaysUntil    int
}

// Notifier delivers a single alert. One call per firing.
type Notifier interface {
	SendDateAlert(ctx context.Context, to Recipient, alert DateAlert) error
}
