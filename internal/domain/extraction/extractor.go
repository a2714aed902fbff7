// internal/domain/extraction/extractor.go
package extraction

import (
	"context"

	"contract_alert_engine/internal/domain/contract"
)

// Candidate is a date proposed by the extractor. Date is YYYY-MM-DD as returned
// by the model and is parsed by the caller.
type Candidate struct {
	DateType    string              `json:"dateType"`
	Date        string              `json:"date"`
	Description string              `json:"description"`
	Clause      string              `json:"clause"`
	Confidence  contract.Confidence `json:"confidence"`
}

// Extractor finds significant dates in contract text. Implementations may be
// slow and may fail; callers must not treat failures as fatal.
type Extractor interface {
	ExtractDates(ctx context.Context, contractText, contractType string) ([]Candidate, error)
}
