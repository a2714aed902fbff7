package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"contract_alert_engine/internal/domain/contract"
	"contract_alert_engine/internal/domain/extraction"
	"contract_alert_engine/internal/infra/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridgeActivationPolicy(t *testing.T) {
	b := NewExtractionBridge(&stubExtractor{}, time.Second, logger.Discard())
	c := contract.New(1, "lease", "")

	added := b.Apply(c, []extraction.Candidate{
		{DateType: "end_date", Date: "2026-12-31", Confidence: contract.ConfidenceHigh},
		{DateType: "renewal_date", Date: "2026-11-30", Confidence: contract.ConfidenceMedium},
		{DateType: "review_date", Date: "2026-10-01T00:00:00Z", Confidence: contract.ConfidenceLow},
	})
	require.Equal(t, 3, added)

	active := map[contract.DateType]bool{}
	for _, d := range c.Dates() {
		active[d.DateType] = d.IsActive
	}
	assert.Equal(t, map[contract.DateType]bool{
		contract.DateTypeEnd:     true,
		contract.DateTypeRenewal: false,
		contract.DateTypeReview:  false,
	}, active)
}

func TestBridgeSkipsBadAndDuplicateCandidates(t *testing.T) {
	b := NewExtractionBridge(&stubExtractor{}, time.Second, logger.Discard())
	c := contract.New(1, "lease", "")
	c.AddDate(contract.DateTypeEnd, time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC), "", "")

	added := b.Apply(c, []extraction.Candidate{
		{DateType: "end_date", Date: "2026-12-31", Confidence: contract.ConfidenceHigh},
		{DateType: "end_date", Date: "31 December 2026", Confidence: contract.ConfidenceHigh},
		{DateType: "Anniversary", Date: "2027-02-01", Confidence: contract.ConfidenceHigh},
		{DateType: " PAYMENT_DUE ", Date: "2027-03-01", Confidence: contract.ConfidenceHigh},
	})
	assert.Equal(t, 2, added)

	types := map[contract.DateType]int{}
	for _, d := range c.Dates() {
		types[d.DateType]++
	}
	assert.Equal(t, 1, types[contract.DateTypeEnd])
	assert.Equal(t, 1, types[contract.DateTypeOther], "unknown types are filed as other")
	assert.Equal(t, 1, types[contract.DateTypePaymentDue])
}

func TestBridgeSwallowsExtractorErrors(t *testing.T) {
	b := NewExtractionBridge(&stubExtractor{err: errors.New("upstream 529")}, time.Second, logger.Discard())
	assert.Nil(t, b.Extract(context.Background(), "c1", "some text", "lease"))
}

func TestBridgeSkipsEmptyText(t *testing.T) {
	ex := &stubExtractor{}
	b := NewExtractionBridge(ex, time.Second, logger.Discard())
	assert.Nil(t, b.Extract(context.Background(), "c1", "   ", "lease"))
	assert.Zero(t, ex.calls)
}

type deadlineExtractor struct {
	sawDeadline bool
}

func (e *deadlineExtractor) ExtractDates(ctx context.Context, _, _ string) ([]extraction.Candidate, error) {
	_, e.sawDeadline = ctx.Deadline()
	return nil, nil
}

func TestBridgeBoundsExtractorCall(t *testing.T) {
	ex := &deadlineExtractor{}
	b := NewExtractionBridge(ex, time.Minute, logger.Discard())
	b.Extract(context.Background(), "c1", "text", "lease")
	assert.True(t, ex.sawDeadline)
}
