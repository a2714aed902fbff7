package contract

import "errors"

var (
	ErrContractNotFound = errors.New("contract not found")
	ErrDateNotFound     = errors.New("contract date not found")
	ErrAlertNotFound    = errors.New("alert not found")
	ErrInvalidOffset    = errors.New("invalid alert offset")
	ErrInvalidDateType  = errors.New("invalid date type")
	ErrVersionConflict  = errors.New("contract was modified concurrently")
	ErrDuplicateAlert   = errors.New("duplicate alert (contract_date_id, offset_days)")
)
