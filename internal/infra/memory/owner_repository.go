package memory

import (
	"context"
	"sync"
	"time"

	"contract_alert_engine/internal/domain/owner"
)

type OwnerRepository struct {
	mu     sync.RWMutex
	owners []*owner.Owner
	nextID int64
}

func NewOwnerRepository() *OwnerRepository {
	return &OwnerRepository{nextID: 1}
}

func (r *OwnerRepository) Create(_ context.Context, o *owner.Owner) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if o.TelegramID.Valid {
		for _, existing := range r.owners {
			if existing.TelegramID.Valid && existing.TelegramID.Int64 == o.TelegramID.Int64 {
				return owner.ErrDuplicateTelegramID
			}
		}
	}
	now := time.Now()
	o.ID = r.nextID
	r.nextID++
	o.CreatedAt, o.UpdatedAt = now, now
	cp := *o
	r.owners = append(r.owners, &cp)
	return nil
}

func (r *OwnerRepository) GetByID(_ context.Context, id int64) (*owner.Owner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.owners {
		if o.ID == id {
			cp := *o
			return &cp, nil
		}
	}
	return nil, owner.ErrOwnerNotFound
}

func (r *OwnerRepository) GetByTelegramID(_ context.Context, telegramID int64) (*owner.Owner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.owners {
		if o.TelegramID.Valid && o.TelegramID.Int64 == telegramID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, owner.ErrOwnerNotFound
}

func (r *OwnerRepository) Update(_ context.Context, o *owner.Owner) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.owners {
		if existing.ID == o.ID {
			existing.Email = o.Email
			existing.Name = o.Name
			existing.IsActive = o.IsActive
			existing.UpdatedAt = time.Now()
			o.UpdatedAt = existing.UpdatedAt
			return nil
		}
	}
	return owner.ErrOwnerNotFound
}

func (r *OwnerRepository) ListAll(_ context.Context) ([]*owner.Owner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*owner.Owner, 0, len(r.owners))
	for _, o := range r.owners {
		cp := *o
		out = append(out, &cp)
	}
	return out, nil
}
