package database

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

const pgUniqueViolation = "23505"

// mapError translates database errors to domain errors: sql.ErrNoRows becomes
// notFoundErr and a unique violation becomes duplicateErr. Other errors pass
// through unchanged.
func mapError(err error, notFoundErr, duplicateErr error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) && notFoundErr != nil {
		return notFoundErr
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation && duplicateErr != nil {
		return duplicateErr
	}
	return err
}
