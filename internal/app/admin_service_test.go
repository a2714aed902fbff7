package app

import (
	"context"
	"testing"

	"contract_alert_engine/internal/domain/owner"
	"contract_alert_engine/internal/infra/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminService(t *testing.T) {
	ctx := context.Background()
	const adminID = int64(1000)
	s := NewAdminService(memory.NewOwnerRepository(), adminID)

	assert.True(t, s.IsAdmin(adminID))
	assert.False(t, s.IsAdmin(1))

	_, err := s.AddOwner(ctx, 1, 200, "ann@example.com", "Ann")
	assert.ErrorIs(t, err, ErrAdminNotAuthorized)

	_, err = s.AddOwner(ctx, adminID, 200, "not-an-email", "Ann")
	assert.Error(t, err)

	o, err := s.AddOwner(ctx, adminID, 200, " ann@example.com ", " Ann ")
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", o.Email)
	assert.Equal(t, "Ann", o.Name)
	assert.True(t, o.TelegramID.Valid)
	assert.True(t, o.IsActive)

	_, err = s.AddOwner(ctx, adminID, 200, "other@example.com", "Other")
	assert.ErrorIs(t, err, ErrOwnerAlreadyExists)

	noChat, err := s.AddOwner(ctx, adminID, 0, "bob@example.com", "Bob")
	require.NoError(t, err)
	assert.False(t, noChat.TelegramID.Valid)

	_, err = s.ListOwners(ctx, 1)
	assert.ErrorIs(t, err, ErrAdminNotAuthorized)
	owners, err := s.ListOwners(ctx, adminID)
	require.NoError(t, err)
	assert.Len(t, owners, 2)
}

func TestAdminServiceSetOwnerActive(t *testing.T) {
	ctx := context.Background()
	const adminID = int64(1000)
	repo := memory.NewOwnerRepository()
	s := NewAdminService(repo, adminID)

	o, err := s.AddOwner(ctx, adminID, 200, "ann@example.com", "Ann")
	require.NoError(t, err)

	_, err = s.SetOwnerActive(ctx, 1, o.ID, false)
	assert.ErrorIs(t, err, ErrAdminNotAuthorized)
	_, err = s.SetOwnerActive(ctx, adminID, 99, false)
	assert.ErrorIs(t, err, owner.ErrOwnerNotFound)

	paused, err := s.SetOwnerActive(ctx, adminID, o.ID, false)
	require.NoError(t, err)
	assert.False(t, paused.IsActive)
	stored, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	resumed, err := s.SetOwnerActive(ctx, adminID, o.ID, true)
	require.NoError(t, err)
	assert.True(t, resumed.IsActive)
}

func TestAdminServiceWithoutConfiguredAdmin(t *testing.T) {
	s := NewAdminService(memory.NewOwnerRepository(), 0)
	assert.False(t, s.IsAdmin(0))
}
