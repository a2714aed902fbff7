// internal/infra/telegram/callback_handlers.go
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"contract_alert_engine/internal/app"
	"contract_alert_engine/internal/domain/contract"
	"contract_alert_engine/internal/domain/owner"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// RegisterCallbackHandlers handles the inline buttons attached to alerts.
func RegisterCallbackHandlers(ctx context.Context, b *telebot.Bot, scheduler *app.SchedulerService, ownerRepo owner.Repository, baseLogger *logrus.Entry) {
	b.Handle(telebot.OnCallback, func(c telebot.Context) error {
		data := strings.TrimSpace(c.Callback().Data)
		log := baseLogger.WithFields(logrus.Fields{
			"handler":   "callback",
			"sender_id": c.Sender().ID,
		})

		alertID, ok := parseMuteCallback(data)
		if !ok {
			c.Bot().OnError(fmt.Errorf("unhandled callback data: %s", data), c)
			return c.Respond(&telebot.CallbackResponse{Text: "Unknown action."})
		}
		log = log.WithField("alert_id", alertID)

		o, err := ownerRepo.GetByTelegramID(ctx, c.Sender().ID)
		if err != nil {
			if !errors.Is(err, owner.ErrOwnerNotFound) {
				log.WithError(err).Error("Failed to resolve owner for mute")
			}
			return c.Respond(&telebot.CallbackResponse{Text: "You are not registered."})
		}

		_, err = scheduler.MuteAlert(ctx, alertID, o.ID)
		switch {
		case err == nil:
			log.Info("Alert muted by owner")
			return c.Respond(&telebot.CallbackResponse{Text: "Reminder muted."})
		case errors.Is(err, contract.ErrAlertNotFound):
			log.Warn("Mute requested for unknown alert")
			return c.Respond(&telebot.CallbackResponse{Text: "This reminder no longer exists."})
		default:
			c.Bot().OnError(fmt.Errorf("error muting alert %s: %w", alertID, err), c)
			return c.Respond(&telebot.CallbackResponse{Text: "Something went wrong."})
		}
	})
}

// parseMuteCallback extracts the alert id from mute button data. Telebot may
// prefix raw callback data with a form feed.
func parseMuteCallback(data string) (string, bool) {
	data = strings.TrimPrefix(data, "\f")
	if !strings.HasPrefix(data, MuteCallbackPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(data, MuteCallbackPrefix)
	if id == "" {
		return "", false
	}
	return id, true
}
