// internal/app/extraction_bridge.go
package app

import (
	"context"
	"strings"
	"time"

	"contract_alert_engine/internal/domain/contract"
	"contract_alert_engine/internal/domain/extraction"

	"github.com/sirupsen/logrus"
)

// candidateDateLayouts are tried in order when parsing extracted dates.
var candidateDateLayouts = []string{"2006-01-02", time.RFC3339}

// ExtractionBridge turns extractor output into contract dates. Only high
// confidence candidates are activated; the rest wait for the user.
type ExtractionBridge struct {
	extractor extraction.Extractor
	timeout   time.Duration
	logger    *logrus.Entry
}

func NewExtractionBridge(extractor extraction.Extractor, timeout time.Duration, logger *logrus.Entry) *ExtractionBridge {
	return &ExtractionBridge{extractor: extractor, timeout: timeout, logger: logger}
}

// Extract calls the extractor. Failures are logged and yield no candidates;
// they are never returned to the caller.
func (b *ExtractionBridge) Extract(ctx context.Context, contractID, contractText, contractType string) []extraction.Candidate {
	log := b.logger.WithFields(logrus.Fields{"contract_id": contractID, "contract_type": contractType})

	if strings.TrimSpace(contractText) == "" {
		log.Warn("Contract has no text, skipping date extraction")
		return nil
	}

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	candidates, err := b.extractor.ExtractDates(ctx, contractText, contractType)
	if err != nil {
		log.WithError(err).Error("Date extraction failed, contract keeps no extracted dates")
		return nil
	}
	if len(candidates) == 0 {
		log.Info("Extractor returned no dates")
		return nil
	}
	log.WithField("candidates", len(candidates)).Info("Dates extracted")
	return candidates
}

// Apply adds the candidates to the contract and returns how many were added.
// Unparseable candidates and ones duplicating an existing (type, day) are skipped.
func (b *ExtractionBridge) Apply(c *contract.Contract, candidates []extraction.Candidate) int {
	added := 0
	for _, cand := range candidates {
		log := b.logger.WithFields(logrus.Fields{
			"contract_id": c.ID,
			"date_type":   cand.DateType,
			"date":        cand.Date,
		})

		date, ok := parseCandidateDate(cand.Date)
		if !ok {
			log.Warn("Skipping extracted date with unparseable value")
			continue
		}
		dateType, err := contract.ParseDateType(strings.ToLower(strings.TrimSpace(cand.DateType)))
		if err != nil {
			log.Debug("Unknown date type from extractor, filing as other")
			dateType = contract.DateTypeOther
		}
		if c.HasDate(dateType, date) {
			log.Debug("Skipping extracted date already present on contract")
			continue
		}

		active := cand.Confidence.ActivatesByDefault()
		d := c.AddDateWithActivation(dateType, date, cand.Description, cand.Clause, active)
		log.WithFields(logrus.Fields{
			"date_id":    d.ID,
			"confidence": cand.Confidence,
			"is_active":  active,
		}).Info("Extracted date added")
		added++
	}
	return added
}

func parseCandidateDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range candidateDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
