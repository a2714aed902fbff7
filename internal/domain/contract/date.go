// internal/domain/contract/date.go
package contract

import "time"

// ContractDate is one significant date found in, or added to, a contract.
type ContractDate struct {
	ID           string
	DateType     DateType
	Date         time.Time
	Description  string
	SourceClause string // Excerpt shown to the user, no scheduling semantics
	IsActive     bool
}

// DateEdit carries a user edit. Nil fields are left unchanged.
type DateEdit struct {
	Date        *time.Time
	Description *string
	IsActive    *bool
}
