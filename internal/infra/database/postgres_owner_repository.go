package database

import (
	"context"
	"database/sql"
	"fmt"

	"contract_alert_engine/internal/domain/owner"
)

type PostgresOwnerRepository struct {
	db *sql.DB
}

func NewPostgresOwnerRepository(db *sql.DB) *PostgresOwnerRepository {
	return &PostgresOwnerRepository{db: db}
}

const ownerColumns = `id, email, name, telegram_id, is_active, created_at, updated_at`

func scanOwner(row interface{ Scan(...any) error }) (*owner.Owner, error) {
	o := &owner.Owner{}
	err := row.Scan(&o.ID, &o.Email, &o.Name, &o.TelegramID, &o.IsActive, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (r *PostgresOwnerRepository) Create(ctx context.Context, o *owner.Owner) error {
	query := `INSERT INTO owners (email, name, telegram_id, is_active)
               VALUES ($1, $2, $3, $4)
               RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, o.Email, o.Name, o.TelegramID, o.IsActive).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if mapped := mapError(err, nil, owner.ErrDuplicateTelegramID); mapped != err {
			return mapped
		}
		return fmt.Errorf("error creating owner: %w", err)
	}
	return nil
}

func (r *PostgresOwnerRepository) GetByID(ctx context.Context, id int64) (*owner.Owner, error) {
	query := `SELECT ` + ownerColumns + ` FROM owners WHERE id = $1`
	o, err := scanOwner(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if mapped := mapError(err, owner.ErrOwnerNotFound, nil); mapped != err {
			return nil, mapped
		}
		return nil, fmt.Errorf("error getting owner by ID: %w", err)
	}
	return o, nil
}

func (r *PostgresOwnerRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*owner.Owner, error) {
	query := `SELECT ` + ownerColumns + ` FROM owners WHERE telegram_id = $1`
	o, err := scanOwner(r.db.QueryRowContext(ctx, query, telegramID))
	if err != nil {
		if mapped := mapError(err, owner.ErrOwnerNotFound, nil); mapped != err {
			return nil, mapped
		}
		return nil, fmt.Errorf("error getting owner by Telegram ID: %w", err)
	}
	return o, nil
}

func (r *PostgresOwnerRepository) Update(ctx context.Context, o *owner.Owner) error {
	query := `UPDATE owners
               SET email = $1, name = $2, is_active = $3, updated_at = NOW()
               WHERE id = $4
               RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, query, o.Email, o.Name, o.IsActive, o.ID).Scan(&o.UpdatedAt)
	if err != nil {
		if mapped := mapError(err, owner.ErrOwnerNotFound, nil); mapped != err {
			return mapped
		}
		return fmt.Errorf("error updating owner: %w", err)
	}
	return nil
}

func (r *PostgresOwnerRepository) ListAll(ctx context.Context) ([]*owner.Owner, error) {
	query := `SELECT ` + ownerColumns + ` FROM owners ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing owners: %w", err)
	}
	defer rows.Close()

	owners := make([]*owner.Owner, 0)
	for rows.Next() {
		o, err := scanOwner(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning owner: %w", err)
		}
		owners = append(owners, o)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating owners: %w", err)
	}
	return owners, nil
}
