package app

import (
	"context"
	"errors"
	"fmt"

	"contract_alert_engine/internal/domain/contract"

	"github.com/sirupsen/logrus"
)

// Custom application-level errors
var (
	ErrAdminNotAuthorized = errors.New("performing user is not authorized as an admin")
	ErrOwnerAlreadyExists = errors.New("owner with this Telegram ID already exists")
)

// maxSaveAttempts bounds the load-modify-save loop on version conflicts.
const maxSaveAttempts = 5

// mutateContract loads a contract, applies fn and saves it, reloading and
// re-applying fn when a concurrent writer bumped the version first. fn reports
// whether it changed anything; unchanged contracts are not saved. fn must only
// touch the aggregate it is given.
func mutateContract(
	ctx context.Context,
	repo contract.Repository,
	contractID string,
	logger *logrus.Entry,
	fn func(c *contract.Contract) (bool, error),
) (*contract.Contract, error) {
	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		c, err := repo.GetContract(ctx, contractID)
		if err != nil {
			return nil, fmt.Errorf("failed to load contract %s: %w", contractID, err)
		}
		changed, err := fn(c)
		if err != nil {
			return nil, err
		}
		if !changed {
			return c, nil
		}
		err = repo.SaveContract(ctx, c)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, contract.ErrVersionConflict) {
			return nil, fmt.Errorf("failed to save contract %s: %w", contractID, err)
		}
		logger.WithFields(logrus.Fields{
			"contract_id": contractID,
			"attempt":     attempt,
		}).Debug("Version conflict on contract save, retrying")
	}
	return nil, fmt.Errorf("contract %s: %w after %d attempts", contractID, contract.ErrVersionConflict, maxSaveAttempts)
}
