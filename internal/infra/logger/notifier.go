package logger

import (
	"context"

	"contract_alert_engine/internal/domain/notify"

	"github.com/sirupsen/logrus"
)

// Notifier writes alerts to the log instead of delivering them. Used for local
// runs without a Telegram bot.
type Notifier struct {
	entry *logrus.Entry
}

func NewNotifier(entry *logrus.Entry) *Notifier {
	return &Notifier{entry: entry}
}

func (n *Notifier) SendDateAlert(ctx context.Context, to notify.Recipient, alert notify.DateAlert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.entry.WithFields(logrus.Fields{
		"alert_id":      alert.AlertID,
		"contract_id":   alert.ContractID,
		"contract_type": alert.ContractType,
		"date_type":     alert.DateType,
		"date":          alert.Date.Format("2006-01-02"),
		"offset_days":   alert.OffsetDays,
		"days_until":    alert.DaysUntil,
		"recipient":     to.Address,
	}).Infof("ALERT: %s in %d days: %s", alert.DateType.Label(), alert.DaysUntil, alert.Description)
	return nil
}
