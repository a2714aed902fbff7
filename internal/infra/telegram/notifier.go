// internal/infra/telegram/notifier.go
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"contract_alert_engine/internal/domain/notify"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// MuteCallbackPrefix prefixes the callback data of the mute button.
const MuteCallbackPrefix = "mute_"

// maxClauseRunes keeps the quoted clause from dominating the message.
const maxClauseRunes = 300

// ErrNoTelegramChat is returned for recipients without a linked chat.
var ErrNoTelegramChat = errors.New("recipient has no linked Telegram chat")

// MessageSender sends one message to a Telegram chat. TelebotAdapter is the
// production implementation.
type MessageSender interface {
	SendMessage(chatID int64, text string, options *telebot.SendOptions) error
}

// Notifier delivers date alerts as Telegram messages with a mute button.
type Notifier struct {
	client MessageSender
	logger *logrus.Entry
}

func NewNotifier(client MessageSender, logger *logrus.Entry) *Notifier {
	return &Notifier{client: client, logger: logger}
}

// SendDateAlert implements notify.Notifier. The send is abandoned when ctx
// expires; the message may still arrive if the request was already in flight.
func (n *Notifier) SendDateAlert(ctx context.Context, to notify.Recipient, alert notify.DateAlert) error {
	if to.TelegramID == 0 {
		return ErrNoTelegramChat
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	text := FormatDateAlert(alert)
	opts := &telebot.SendOptions{
		ParseMode:   telebot.ModeHTML,
		ReplyMarkup: muteMarkup(alert.AlertID),
	}

	done := make(chan error, 1)
	go func() {
		done <- n.client.SendMessage(to.TelegramID, text, opts)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send telegram alert to %d: %w", to.TelegramID, err)
		}
		n.logger.WithFields(logrus.Fields{
			"alert_id":    alert.AlertID,
			"telegram_id": to.TelegramID,
		}).Debug("Telegram alert sent")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("telegram send to %d: %w", to.TelegramID, ctx.Err())
	}
}

func muteMarkup(alertID string) *telebot.ReplyMarkup {
	return &telebot.ReplyMarkup{
		InlineKeyboard: [][]telebot.InlineButton{{
			{Text: "Mute this reminder", Data: MuteCallbackPrefix + alertID},
		}},
	}
}

// FormatDateAlert renders the HTML message body of an alert.
func FormatDateAlert(a notify.DateAlert) string {
	var b strings.Builder

	fmt.Fprintf(&b, "<b>%s %s</b>\n", escape(a.DateType.Label()), dueIn(a.DaysUntil))
	fmt.Fprintf(&b, "Date: %s\n", a.Date.Format("Mon, 2 Jan 2006"))
	if a.ContractType != "" {
		fmt.Fprintf(&b, "Contract: %s\n", escape(a.ContractType))
	}
	if a.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", escape(a.Description))
	}
	if clause := truncate(strings.TrimSpace(a.Clause), maxClauseRunes); clause != "" {
		fmt.Fprintf(&b, "\n<i>“%s”</i>\n", escape(clause))
	}
	fmt.Fprintf(&b, "\nReminder set %d days ahead. Contract ID: <code>%s</code>", a.OffsetDays, escape(a.ContractID))
	return b.String()
}

func dueIn(days int) string {
	switch days {
	case 0:
		return "is today"
	case 1:
		return "is tomorrow"
	default:
		return fmt.Sprintf("in %d days", days)
	}
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escape(s string) string {
	return htmlEscaper.Replace(s)
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max]) + "…"
}
