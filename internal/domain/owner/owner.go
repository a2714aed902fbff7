package owner

import (
	"database/sql"
	"time"
)

// Owner is the user who receives alerts for their contracts.
type Owner struct {
	ID         int64
	Email      string
	Name       string
	TelegramID sql.NullInt64 // Set once the owner has linked a Telegram chat
	IsActive   bool          // Inactive owners receive no alerts
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
