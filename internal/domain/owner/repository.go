package owner

import (
	"context"
	"errors"
)

var (
	ErrOwnerNotFound       = errors.New("owner not found")
	ErrDuplicateTelegramID = errors.New("owner with this Telegram ID already exists")
)

// Repository defines the operations for persisting and retrieving Owner entities.
type Repository interface {
	Create(ctx context.Context, owner *Owner) error
	GetByID(ctx context.Context, id int64) (*Owner, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*Owner, error)
	Update(ctx context.Context, owner *Owner) error // Email, Name and IsActive
	ListAll(ctx context.Context) ([]*Owner, error)
}
