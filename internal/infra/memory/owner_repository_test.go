package memory

import (
	"context"
	"database/sql"
	"testing"

	"contract_alert_engine/internal/domain/owner"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOwnerRepository(t *testing.T) {
	ctx := context.Background()
	r := NewOwnerRepository()

	ann := &owner.Owner{Email: "ann@example.com", Name: "Ann", TelegramID: sql.NullInt64{Int64: 100, Valid: true}, IsActive: true}
	require.NoError(t, r.Create(ctx, ann))
	assert.Equal(t, int64(1), ann.ID)

	bob := &owner.Owner{Email: "bob@example.com", IsActive: true}
	require.NoError(t, r.Create(ctx, bob))
	assert.Equal(t, int64(2), bob.ID)

	dup := &owner.Owner{Email: "x@example.com", TelegramID: sql.NullInt64{Int64: 100, Valid: true}}
	assert.ErrorIs(t, r.Create(ctx, dup), owner.ErrDuplicateTelegramID)

	got, err := r.GetByTelegramID(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.Name)

	got, err = r.GetByID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", got.Email)

	_, err = r.GetByID(ctx, 99)
	assert.ErrorIs(t, err, owner.ErrOwnerNotFound)
	_, err = r.GetByTelegramID(ctx, 5)
	assert.ErrorIs(t, err, owner.ErrOwnerNotFound)

	got.IsActive = false
	got.Name = "Bob B."
	require.NoError(t, r.Update(ctx, got))
	got, err = r.GetByID(ctx, 2)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, "Bob B.", got.Name)
	assert.ErrorIs(t, r.Update(ctx, &owner.Owner{ID: 99}), owner.ErrOwnerNotFound)

	all, err := r.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
