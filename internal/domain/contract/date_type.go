// internal/domain/contract/date_type.go
package contract

import "fmt"

// DateType classifies a significant contract date.
type DateType string

const (
	DateTypeStart             DateType = "start_date"
	DateTypeEnd               DateType = "end_date"
	DateTypeRenewal           DateType = "renewal_date"
	DateTypeTerminationNotice DateType = "termination_notice"
	DateTypePaymentDue        DateType = "payment_due"
	DateTypeReview            DateType = "review_date"
	DateTypeWarrantyExpiry    DateType = "warranty_expiry"
	DateTypeOther             DateType = "other"
)

// DateTypes lists every valid DateType in display order.
var DateTypes = []DateType{
	DateTypeStart,
	DateTypeEnd,
	DateTypeRenewal,
	DateTypeTerminationNotice,
	DateTypePaymentDue,
	DateTypeReview,
	DateTypeWarrantyExpiry,
	DateTypeOther,
}

// ParseDateType validates a raw tag.
func ParseDateType(raw string) (DateType, error) {
	dt := DateType(raw)
	if !dt.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidDateType, raw)
	}
	return dt, nil
}

func (dt DateType) Valid() bool {
	switch dt {
	case DateTypeStart, DateTypeEnd, DateTypeRenewal, DateTypeTerminationNotice,
		DateTypePaymentDue, DateTypeReview, DateTypeWarrantyExpiry, DateTypeOther:
		return true
	}
	return false
}

// Label returns the human readable name used in notifications.
func (dt DateType) Label() string {
	switch dt {
	case DateTypeStart:
		return "Start date"
	case DateTypeEnd:
		return "End date"
	case DateTypeRenewal:
		return "Renewal date"
	case DateTypeTerminationNotice:
		return "Termination notice deadline"
	case DateTypePaymentDue:
		return "Payment due"
	case DateTypeReview:
		return "Review date"
	case DateTypeWarrantyExpiry:
		return "Warranty expiry"
	case DateTypeOther:
		return "Other date"
	}
	return string(dt)
}

// Confidence is the extractor's certainty about a candidate date.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ActivatesByDefault reports whether a date extracted with this confidence is
// scheduled without user confirmation. Only high confidence dates are.
func (c Confidence) ActivatesByDefault() bool {
	return c == ConfidenceHigh
}
