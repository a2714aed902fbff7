package logger

import (
	"context"
	"testing"
	"time"

	"contract_alert_engine/internal/domain/contract"
	"contract_alert_engine/internal/domain/notify"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifierLogsAlert(t *testing.T) {
	l, hook := test.NewNullLogger()
	n := NewNotifier(logrus.NewEntry(l))

	err := n.SendDateAlert(context.Background(), notify.Recipient{Address: "a@example.com"}, notify.DateAlert{
		AlertID:    "alert-1",
		ContractID: "contract-1",
		DateType:   contract.DateTypeRenewal,
		Date:       time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		OffsetDays: 7,
		DaysUntil:  7,
	})
	require.NoError(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "alert-1", entry.Data["alert_id"])
	assert.Equal(t, "2026-05-01", entry.Data["date"])
	assert.Contains(t, entry.Message, "Renewal date")
}

func TestNotifierHonorsCancelledContext(t *testing.T) {
	l, hook := test.NewNullLogger()
	n := NewNotifier(logrus.NewEntry(l))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := n.SendDateAlert(ctx, notify.Recipient{}, notify.DateAlert{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, hook.AllEntries())
}
