package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"contract_alert_engine/internal/domain/owner"
)

type AdminService struct {
	ownerRepo       owner.Repository
	adminTelegramID int64
}

func NewAdminService(or owner.Repository, adminID int64) *AdminService {
	return &AdminService{
		ownerRepo:       or,
		adminTelegramID: adminID,
	}
}

// IsAdmin reports whether the Telegram user may run administrative commands.
func (s *AdminService) IsAdmin(telegramID int64) bool {
	return s.adminTelegramID != 0 && telegramID == s.adminTelegramID
}

// AddOwner registers a new alert recipient.
func (s *AdminService) AddOwner(ctx context.Context, performingAdminID int64, telegramID int64, email, name string) (*owner.Owner, error) {
	if !s.IsAdmin(performingAdminID) {
		return nil, ErrAdminNotAuthorized
	}
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("invalid email address %q", email)
	}

	if telegramID != 0 {
		_, err := s.ownerRepo.GetByTelegramID(ctx, telegramID)
		if err == nil {
			return nil, ErrOwnerAlreadyExists
		}
		if !errors.Is(err, owner.ErrOwnerNotFound) {
			return nil, fmt.Errorf("failed to check existing owner: %w", err)
		}
	}

	newOwner := &owner.Owner{
		Email:      email,
		Name:       strings.TrimSpace(name),
		TelegramID: sql.NullInt64{Int64: telegramID, Valid: telegramID != 0},
		IsActive:   true,
	}
	if err := s.ownerRepo.Create(ctx, newOwner); err != nil {
		if errors.Is(err, owner.ErrDuplicateTelegramID) {
			return nil, ErrOwnerAlreadyExists
		}
		return nil, fmt.Errorf("failed to create owner in repository: %w", err)
	}
	return newOwner, nil
}

// SetOwnerActive pauses or resumes alerts for an owner. Alerts of an inactive
// owner stay pending and are sent once the owner is active again, unless their
// date has been swept by then.
func (s *AdminService) SetOwnerActive(ctx context.Context, performingAdminID, ownerID int64, active bool) (*owner.Owner, error) {
	if !s.IsAdmin(performingAdminID) {
		return nil, ErrAdminNotAuthorized
	}
	target, err := s.ownerRepo.GetByID(ctx, ownerID)
	if err != nil {
		if errors.Is(err, owner.ErrOwnerNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get owner %d: %w", ownerID, err)
	}
	if target.IsActive == active {
		return target, nil
	}
	target.IsActive = active
	if err := s.ownerRepo.Update(ctx, target); err != nil {
		return nil, fmt.Errorf("failed to update owner %d: %w", ownerID, err)
	}
	return target, nil
}

// ListOwners returns every registered owner.
func (s *AdminService) ListOwners(ctx context.Context, performingAdminID int64) ([]*owner.Owner, error) {
	if !s.IsAdmin(performingAdminID) {
		return nil, ErrAdminNotAuthorized
	}
	return s.ownerRepo.ListAll(ctx)
}
