// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"contract_alert_engine/internal/app"
	"contract_alert_engine/internal/domain/owner"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func RegisterBotCommands(
	ctx context.Context,
	b *telebot.Bot,
	adminService *app.AdminService,
	ownerRepo owner.Repository,
	baseLogger *logrus.Entry, // For contextual logging
) {
	startHelpLogger := baseLogger.WithField("handler_group", "start_help")

	b.Handle("/start", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/start").WithField("sender_id", senderID)
		logCtx.Info("Processing /start command")

		if adminService.IsAdmin(senderID) {
			logCtx.Info("User identified as Admin")
			return c.Send(fmt.Sprintf("Hello, %s! The alert engine is running. Use /help for the list of commands.", c.Sender().FirstName))
		}

		userAsOwner, err := ownerRepo.GetByTelegramID(ctx, senderID)
		if err == nil {
			if userAsOwner.IsActive {
				logCtx.WithField("owner_id", userAsOwner.ID).Info("User identified as active owner")
				return c.Send(fmt.Sprintf("Hello, %s! I will remind you ahead of the important dates in your contracts.", userAsOwner.Name))
			}
			logCtx.WithField("owner_id", userAsOwner.ID).Info("User identified as inactive owner")
			return c.Send("Your account is inactive. Please contact the administrator.")
		} else if !errors.Is(err, owner.ErrOwnerNotFound) {
			logCtx.WithError(err).Error("Error checking owner status for /start command")
			return c.Send("Something went wrong while checking your account. Please try again later.")
		}

		logCtx.Info("User is unknown")
		return c.Send(fmt.Sprintf("Hello! I send reminders about contract dates. To receive them, ask the administrator to register your Telegram ID %d.", senderID))
	})

	b.Handle("/help", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/help").WithField("sender_id", senderID)
		logCtx.Info("Processing /help command")

		if adminService.IsAdmin(senderID) {
			logCtx.Info("User identified as Admin, sending admin help.")
			return c.Send(AdminHelp(), &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
		}

		userAsOwner, err := ownerRepo.GetByTelegramID(ctx, senderID)
		if err == nil && userAsOwner.IsActive {
			logCtx.WithField("owner_id", userAsOwner.ID).Info("User identified as active owner, sending owner help.")
			return c.Send("I send a reminder 30, 14, 7, 3 and 1 days before each important date of your contracts. " +
				"Press \"Mute this reminder\" under a message to stop that reminder.\n\n/help - Show this message.")
		}
		if err != nil && !errors.Is(err, owner.ErrOwnerNotFound) {
			logCtx.WithError(err).Error("Error checking owner status for /help command")
			return c.Send("Something went wrong while checking your account. Please try again later.")
		}

		logCtx.Info("User is unknown or inactive, sending restricted help.")
		return c.Send("No commands are available to you. Ask the administrator to register your account.")
	})
}

// AdminHelp is the command reference shown to the admin.
func AdminHelp() string {
	var helpText strings.Builder
	helpText.WriteString("Admin commands:\n\n")
	helpText.WriteString("`/add_owner <Email> [TelegramID] [Name]`\n - Register an alert recipient.\n\n")
	helpText.WriteString("`/list_owners`\n - List registered owners.\n\n")
	helpText.WriteString("`/owner_active <OwnerID> <on|off>`\n - Pause or resume alerts for an owner.\n\n")
	helpText.WriteString("`/add_contract <OwnerID> <Type> <Text>`\n - Register a contract and extract its dates.\n\n")
	helpText.WriteString("`/process_contract <ContractID>`\n - Re-run date extraction and scheduling.\n\n")
	helpText.WriteString("`/list_dates <ContractID>`\n - Show dates and alert states.\n\n")
	helpText.WriteString("`/add_date <ContractID> <Type> <YYYY-MM-DD> [Description]`\n - Add a date by hand.\n\n")
	helpText.WriteString("`/edit_date <ContractID> <DateID> <YYYY-MM-DD|on|off> [Description]`\n - Move a date, switch it on or off, or reword it.\n\n")
	helpText.WriteString("`/remove_date <ContractID> <DateID>`\n - Delete a date and its alerts.\n\n")
	helpText.WriteString("`/toggle_alert <ContractID> <DateID> <OffsetDays> <on|off>`\n - Switch one reminder on or off.\n\n")
	helpText.WriteString("`/force_alert <ContractID> <DateID> <OffsetDays>`\n - Create a reminder even if its time has passed.\n\n")
	helpText.WriteString("`/help`\n - Show this message.")
	return helpText.String()
}
