package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"contract_alert_engine/internal/domain/contract"
	"contract_alert_engine/internal/domain/notify"
	"contract_alert_engine/internal/infra/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/telebot.v3"
)

type sentMessage struct {
	chatID  int64
	text    string
	options *telebot.SendOptions
}

type fakeClient struct {
	mu    sync.Mutex
	sent  []sentMessage
	err   error
	delay time.Duration
}

func (f *fakeClient) SendMessage(chatID int64, text string, options *telebot.SendOptions) error {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text, options: options})
	return nil
}

func sampleAlert() notify.DateAlert {
	return notify.DateAlert{
		AlertID:      "a1b2",
		ContractID:   "c-42",
		ContractType: "lease",
		DateType:     contract.DateTypeTerminationNotice,
		Date:         time.Date(2026, 11, 30, 0, 0, 0, 0, time.UTC),
		Description:  "Notice must reach the landlord <in writing>",
		Clause:       "Either party may terminate with 60 days notice.",
		OffsetDays:   7,
		DaysUntil:    7,
	}
}

func TestNotifierSendsWithMuteButton(t *testing.T) {
	client := &fakeClient{}
	n := NewNotifier(client, logger.Discard())

	err := n.SendDateAlert(context.Background(), notify.Recipient{TelegramID: 555}, sampleAlert())
	require.NoError(t, err)

	require.Len(t, client.sent, 1)
	msg := client.sent[0]
	assert.Equal(t, int64(555), msg.chatID)
	assert.Equal(t, telebot.ModeHTML, msg.options.ParseMode)
	require.NotNil(t, msg.options.ReplyMarkup)
	require.Len(t, msg.options.ReplyMarkup.InlineKeyboard, 1)
	assert.Equal(t, "mute_a1b2", msg.options.ReplyMarkup.InlineKeyboard[0][0].Data)
}

func TestNotifierRequiresChat(t *testing.T) {
	client := &fakeClient{}
	n := NewNotifier(client, logger.Discard())

	err := n.SendDateAlert(context.Background(), notify.Recipient{Address: "x@example.com"}, sampleAlert())
	assert.ErrorIs(t, err, ErrNoTelegramChat)
	assert.Empty(t, client.sent)
}

func TestNotifierWrapsClientError(t *testing.T) {
	boom := errors.New("bot was blocked by the user")
	n := NewNotifier(&fakeClient{err: boom}, logger.Discard())

	err := n.SendDateAlert(context.Background(), notify.Recipient{TelegramID: 1}, sampleAlert())
	assert.ErrorIs(t, err, boom)
}

func TestNotifierHonorsTimeout(t *testing.T) {
	n := NewNotifier(&fakeClient{delay: 200 * time.Millisecond}, logger.Discard())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := n.SendDateAlert(ctx, notify.Recipient{TelegramID: 1}, sampleAlert())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFormatDateAlert(t *testing.T) {
	text := FormatDateAlert(sampleAlert())

	assert.Contains(t, text, "<b>Termination notice deadline in 7 days</b>")
	assert.Contains(t, text, "Mon, 30 Nov 2026")
	assert.Contains(t, text, "&lt;in writing&gt;")
	assert.Contains(t, text, "Either party may terminate")
	assert.Contains(t, text, "<code>c-42</code>")

	a := sampleAlert()
	a.DaysUntil = 1
	assert.Contains(t, FormatDateAlert(a), "is tomorrow")
	a.DaysUntil = 0
	assert.Contains(t, FormatDateAlert(a), "is today")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "ab…", truncate("abcdef", 2))
}
