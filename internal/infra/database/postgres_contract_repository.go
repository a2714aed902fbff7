// internal/infra/database/postgres_contract_repository.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"contract_alert_engine/internal/domain/contract"

	"github.com/lib/pq" // For pq.Array
)

type PostgresContractRepository struct {
	db *sql.DB
}

func NewPostgresContractRepository(db *sql.DB) *PostgresContractRepository {
	return &PostgresContractRepository{db: db}
}

const alertColumns = `a.id, a.contract_date_id, a.offset_days, a.scheduled_at, a.is_active,
       a.dispatched, a.dispatched_at, a.claimed_at, a.attempts, a.next_attempt_at`

const dateColumns = `d.id, d.date_type, d.date_value, d.description, d.source_clause, d.is_active`

type rowScanner interface {
	Scan(dest ...any) error
}

// --- Aggregate methods ---

func (r *PostgresContractRepository) CreateContract(ctx context.Context, c *contract.Contract) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		query := `INSERT INTO contracts (id, owner_id, contract_type, contract_text, version)
                   VALUES ($1, $2, $3, $4, 1)
                   RETURNING version, created_at`
		if err := tx.QueryRowContext(ctx, query, c.ID, c.OwnerID, c.ContractType, c.Text).Scan(&c.Version, &c.CreatedAt); err != nil {
			return fmt.Errorf("error creating contract: %w", err)
		}
		return writeDatesAndAlerts(ctx, tx, c)
	})
}

func (r *PostgresContractRepository) GetContract(ctx context.Context, id string) (*contract.Contract, error) {
	c := &contract.Contract{}
	query := `SELECT id, owner_id, contract_type, contract_text, version, created_at FROM contracts WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.OwnerID, &c.ContractType, &c.Text, &c.Version, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, contract.ErrContractNotFound
		}
		return nil, fmt.Errorf("error getting contract %s: %w", id, err)
	}

	dates, err := r.listDates(ctx, id)
	if err != nil {
		return nil, err
	}
	alerts, err := r.listAlerts(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Load(dates, alerts)
	return c, nil
}

func (r *PostgresContractRepository) listDates(ctx context.Context, contractID string) ([]*contract.ContractDate, error) {
	query := `SELECT ` + dateColumns + ` FROM contract_dates d WHERE d.contract_id = $1 ORDER BY d.position`
	rows, err := r.db.QueryContext(ctx, query, contractID)
	if err != nil {
		return nil, fmt.Errorf("error querying contract dates: %w", err)
	}
	defer rows.Close()

	dates := make([]*contract.ContractDate, 0)
	for rows.Next() {
		d, err := scanDate(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning contract date row: %w", err)
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contract date rows: %w", err)
	}
	return dates, nil
}

func (r *PostgresContractRepository) listAlerts(ctx context.Context, contractID string) ([]*contract.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM date_alerts a WHERE a.contract_id = $1 ORDER BY a.position`
	rows, err := r.db.QueryContext(ctx, query, contractID)
	if err != nil {
		return nil, fmt.Errorf("error querying alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]*contract.Alert, 0)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning alert row: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alert rows: %w", err)
	}
	return alerts, nil
}

func (r *PostgresContractRepository) ListContractIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM contracts ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("error listing contracts: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning contract id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contract ids: %w", err)
	}
	return ids, nil
}

func (r *PostgresContractRepository) SaveContract(ctx context.Context, c *contract.Contract) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var newVersion int
		err := tx.QueryRowContext(ctx,
			`UPDATE contracts SET version = version + 1 WHERE id = $1 AND version = $2 RETURNING version`,
			c.ID, c.Version,
		).Scan(&newVersion)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("error bumping contract version: %w", err)
			}
			var exists bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM contracts WHERE id = $1)`, c.ID).Scan(&exists); err != nil {
				return fmt.Errorf("error checking contract existence: %w", err)
			}
			if !exists {
				return contract.ErrContractNotFound
			}
			return contract.ErrVersionConflict
		}

		if err := writeDatesAndAlerts(ctx, tx, c); err != nil {
			return err
		}
		c.Version = newVersion
		return nil
	})
}

// writeDatesAndAlerts makes the stored dates and alerts match the aggregate.
// Removed dates are deleted (their alerts cascade). Dispatched is merged with
// OR so a stale aggregate can never un-send an alert, and claim columns are
// left to the dispatch path.
func writeDatesAndAlerts(ctx context.Context, tx *sql.Tx, c *contract.Contract) error {
	dates := c.Dates()
	alerts := c.Alerts()

	dateIDs := make([]string, 0, len(dates))
	for _, d := range dates {
		dateIDs = append(dateIDs, d.ID)
	}
	alertIDs := make([]string, 0, len(alerts))
	for _, a := range alerts {
		alertIDs = append(alertIDs, a.ID)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM contract_dates WHERE contract_id = $1 AND NOT (id = ANY($2::uuid[]))`,
		c.ID, pq.Array(dateIDs),
	); err != nil {
		return fmt.Errorf("error deleting removed contract dates: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM date_alerts WHERE contract_id = $1 AND NOT (id = ANY($2::uuid[]))`,
		c.ID, pq.Array(alertIDs),
	); err != nil {
		return fmt.Errorf("error deleting removed alerts: %w", err)
	}

	dateStmt, err := tx.PrepareContext(ctx, `INSERT INTO contract_dates
            (id, contract_id, position, date_type, date_value, description, source_clause, is_active)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (id) DO UPDATE SET
            position = EXCLUDED.position,
            date_type = EXCLUDED.date_type,
            date_value = EXCLUDED.date_value,
            description = EXCLUDED.description,
            source_clause = EXCLUDED.source_clause,
            is_active = EXCLUDED.is_active`)
	if err != nil {
		return fmt.Errorf("failed to prepare contract date upsert: %w", err)
	}
	defer dateStmt.Close()

	for i, d := range dates {
		if _, err := dateStmt.ExecContext(ctx, d.ID, c.ID, i, d.DateType, d.Date, d.Description, d.SourceClause, d.IsActive); err != nil {
			return fmt.Errorf("error upserting contract date %s: %w", d.ID, err)
		}
	}

	alertStmt, err := tx.PrepareContext(ctx, `INSERT INTO date_alerts
            (id, contract_id, contract_date_id, position, offset_days, scheduled_at, is_active,
             dispatched, dispatched_at, attempts, next_attempt_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (id) DO UPDATE SET
            position = EXCLUDED.position,
            scheduled_at = EXCLUDED.scheduled_at,
            is_active = EXCLUDED.is_active,
            dispatched = date_alerts.dispatched OR EXCLUDED.dispatched,
            dispatched_at = COALESCE(date_alerts.dispatched_at, EXCLUDED.dispatched_at),
            attempts = EXCLUDED.attempts,
            next_attempt_at = EXCLUDED.next_attempt_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare alert upsert: %w", err)
	}
	defer alertStmt.Close()

	for i, a := range alerts {
		_, err := alertStmt.ExecContext(ctx,
			a.ID, c.ID, a.ContractDateID, i, a.OffsetDays, a.ScheduledAt, a.IsActive,
			a.Dispatched, nullTime(a.DispatchedAt), a.Attempts, nullTime(a.NextAttemptAt),
		)
		if err != nil {
			if mapped := mapError(err, nil, contract.ErrDuplicateAlert); mapped != err {
				return fmt.Errorf("alert %s (date %s, offset %d): %w", a.ID, a.ContractDateID, a.OffsetDays, mapped)
			}
			return fmt.Errorf("error upserting alert %s: %w", a.ID, err)
		}
	}
	return nil
}

func (r *PostgresContractRepository) FindContractIDByAlert(ctx context.Context, alertID string) (string, error) {
	var contractID string
	err := r.db.QueryRowContext(ctx, `SELECT contract_id FROM date_alerts WHERE id = $1`, alertID).Scan(&contractID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", contract.ErrAlertNotFound
		}
		return "", fmt.Errorf("error finding contract for alert %s: %w", alertID, err)
	}
	return contractID, nil
}

// --- Dispatch path ---

func (r *PostgresContractRepository) ListDueAlerts(ctx context.Context, now, staleClaimBefore time.Time) ([]*contract.DueAlert, error) {
	query := `SELECT ` + alertColumns + `, ` + dateColumns + `, c.id, c.contract_type, c.owner_id
               FROM date_alerts a
               JOIN contract_dates d ON d.id = a.contract_date_id
               JOIN contracts c ON c.id = a.contract_id
               WHERE a.is_active = TRUE
                 AND a.dispatched = FALSE
                 AND d.is_active = TRUE
                 AND a.scheduled_at <= $1
                 AND (a.next_attempt_at IS NULL OR a.next_attempt_at <= $1)
                 AND (a.claimed_at IS NULL OR a.claimed_at < $2)
               ORDER BY a.scheduled_at ASC` // Oldest first
	rows, err := r.db.QueryContext(ctx, query, now, staleClaimBefore)
	if err != nil {
		return nil, fmt.Errorf("error querying due alerts: %w", err)
	}
	defer rows.Close()

	due := make([]*contract.DueAlert, 0)
	for rows.Next() {
		var (
			a                                      contract.Alert
			d                                      contract.ContractDate
			item                                   contract.DueAlert
			dispatchedAt, claimedAt, nextAttemptAt sql.NullTime
		)
		err := rows.Scan(
			&a.ID, &a.ContractDateID, &a.OffsetDays, &a.ScheduledAt, &a.IsActive,
			&a.Dispatched, &dispatchedAt, &claimedAt, &a.Attempts, &nextAttemptAt,
			&d.ID, &d.DateType, &d.Date, &d.Description, &d.SourceClause, &d.IsActive,
			&item.ContractID, &item.ContractType, &item.OwnerID,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning due alert row: %w", err)
		}
		a.DispatchedAt = timePtr(dispatchedAt)
		a.ClaimedAt = timePtr(claimedAt)
		a.NextAttemptAt = timePtr(nextAttemptAt)
		item.Alert = a
		item.Date = d
		due = append(due, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating due alert rows: %w", err)
	}
	return due, nil
}

// lockAlertContract locks the contracts row owning alertID and bumps its
// version. Dispatch-path writes take this lock before touching date_alerts,
// the same order SaveContract uses, so the two paths cannot deadlock. The
// version bump makes a concurrent whole-aggregate save fail with
// ErrVersionConflict instead of overwriting the dispatch write.
func lockAlertContract(ctx context.Context, tx *sql.Tx, alertID string) (contractID, contractType string, ownerID int64, err error) {
	query := `UPDATE contracts SET version = version + 1
              WHERE id = (SELECT contract_id FROM date_alerts WHERE id = $1)
              RETURNING id, contract_type, owner_id`
	err = tx.QueryRowContext(ctx, query, alertID).Scan(&contractID, &contractType, &ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", 0, contract.ErrAlertNotFound
		}
		return "", "", 0, fmt.Errorf("error locking contract of alert %s: %w", alertID, err)
	}
	return contractID, contractType, ownerID, nil
}

// ClaimAlert is a conditional update under the contract row lock: of two
// concurrent claimants the second waits for the first to commit and then
// matches nothing. The due conditions of ListDueAlerts are re-checked against
// the current rows, so an alert edited or deactivated since it was listed is
// not claimed.
func (r *PostgresContractRepository) ClaimAlert(ctx context.Context, alertID string, now, staleClaimBefore time.Time) (*contract.DueAlert, error) {
	var claimed *contract.DueAlert
	errNotClaimed := errors.New("alert not claimed")

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		contractID, contractType, ownerID, err := lockAlertContract(ctx, tx, alertID)
		if err != nil {
			return err
		}

		query := `UPDATE date_alerts a
                  SET claimed_at = $2, attempts = a.attempts + 1
                  FROM contract_dates d
                  WHERE a.id = $1
                    AND d.id = a.contract_date_id
                    AND d.is_active = TRUE
                    AND a.dispatched = FALSE
                    AND a.is_active = TRUE
                    AND a.scheduled_at <= $2
                    AND (a.next_attempt_at IS NULL OR a.next_attempt_at <= $2)
                    AND (a.claimed_at IS NULL OR a.claimed_at < $3)
                  RETURNING ` + alertColumns + `, ` + dateColumns
		var (
			a                                      contract.Alert
			d                                      contract.ContractDate
			dispatchedAt, claimedAt, nextAttemptAt sql.NullTime
		)
		err = tx.QueryRowContext(ctx, query, alertID, now, staleClaimBefore).Scan(
			&a.ID, &a.ContractDateID, &a.OffsetDays, &a.ScheduledAt, &a.IsActive,
			&a.Dispatched, &dispatchedAt, &claimedAt, &a.Attempts, &nextAttemptAt,
			&d.ID, &d.DateType, &d.Date, &d.Description, &d.SourceClause, &d.IsActive,
		)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				// Roll back the version bump.
				return errNotClaimed
			}
			return fmt.Errorf("error claiming alert %s: %w", alertID, err)
		}
		a.DispatchedAt = timePtr(dispatchedAt)
		a.ClaimedAt = timePtr(claimedAt)
		a.NextAttemptAt = timePtr(nextAttemptAt)
		claimed = &contract.DueAlert{
			Alert:        a,
			Date:         d,
			ContractID:   contractID,
			ContractType: contractType,
			OwnerID:      ownerID,
		}
		return nil
	})
	if errors.Is(err, errNotClaimed) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *PostgresContractRepository) MarkDispatched(ctx context.Context, alertID string, at time.Time) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, _, _, err := lockAlertContract(ctx, tx, alertID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE date_alerts SET dispatched = TRUE, dispatched_at = $2, claimed_at = NULL WHERE id = $1`,
			alertID, at,
		)
		if err != nil {
			return fmt.Errorf("error marking alert %s dispatched: %w", alertID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return contract.ErrAlertNotFound
		}
		return nil
	})
}

func (r *PostgresContractRepository) ReleaseClaim(ctx context.Context, alertID string, nextAttemptAt time.Time, deactivate bool) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, _, _, err := lockAlertContract(ctx, tx, alertID); err != nil {
			return err
		}
		// An already dispatched alert matches nothing and is left as is.
		_, err := tx.ExecContext(ctx,
			`UPDATE date_alerts
             SET claimed_at = NULL,
                 next_attempt_at = $2,
                 is_active = CASE WHEN $3 THEN FALSE ELSE is_active END
             WHERE id = $1 AND dispatched = FALSE`,
			alertID, nextAttemptAt, deactivate,
		)
		if err != nil {
			return fmt.Errorf("error releasing claim on alert %s: %w", alertID, err)
		}
		return nil
	})
}

// --- Helpers ---

func scanDate(row rowScanner) (*contract.ContractDate, error) {
	d := &contract.ContractDate{}
	if err := row.Scan(&d.ID, &d.DateType, &d.Date, &d.Description, &d.SourceClause, &d.IsActive); err != nil {
		return nil, err
	}
	return d, nil
}

func scanAlert(row rowScanner) (*contract.Alert, error) {
	a := &contract.Alert{}
	var dispatchedAt, claimedAt, nextAttemptAt sql.NullTime
	err := row.Scan(
		&a.ID, &a.ContractDateID, &a.OffsetDays, &a.ScheduledAt, &a.IsActive,
		&a.Dispatched, &dispatchedAt, &claimedAt, &a.Attempts, &nextAttemptAt,
	)
	if err != nil {
		return nil, err
	}
	a.DispatchedAt = timePtr(dispatchedAt)
	a.ClaimedAt = timePtr(claimedAt)
	a.NextAttemptAt = timePtr(nextAttemptAt)
	return a, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
