package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"contract_alert_engine/internal/app"
	"contract_alert_engine/internal/domain/contract"
	"contract_alert_engine/internal/domain/owner"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const msgUnauthorized = "Error: you are not allowed to run this command."

// RegisterAdminHandlers registers the administrative commands. Every command
// checks the sender against the configured admin before doing anything.
func RegisterAdminHandlers(ctx context.Context, b *telebot.Bot, adminService *app.AdminService, scheduler *app.SchedulerService, baseLogger *logrus.Entry) {
	admin := func(command, usage string, fn func(c telebot.Context, args []string, log *logrus.Entry) error) {
		b.Handle(command, func(c telebot.Context) error {
			handlerLogger := baseLogger.WithFields(logrus.Fields{
				"handler":   command,
				"sender_id": c.Sender().ID,
			})
			handlerLogger.Info("Command received")

			if !adminService.IsAdmin(c.Sender().ID) {
				handlerLogger.Warn("Unauthorized access attempt")
				return c.Send(msgUnauthorized)
			}
			err := fn(c, c.Args(), handlerLogger)
			var usageErr *usageError
			if errors.As(err, &usageErr) {
				handlerLogger.WithError(err).Warn("Invalid command format")
				return c.Send(fmt.Sprintf("%s\nUsage: %s", usageErr.Error(), usage))
			}
			return err
		})
	}

	admin("/add_contract", "/add_contract <OwnerID> <Type> <Text>", func(c telebot.Context, _ []string, log *logrus.Entry) error {
		ownerID, contractType, text, err := parseAddContractArgs(c.Message().Payload)
		if err != nil {
			return err
		}
		created, err := scheduler.RegisterContract(ctx, ownerID, contractType, text)
		if err != nil {
			return replyError(c, log, "Failed to register contract", err)
		}
		log.WithField("contract_id", created.ID).Info("Contract registered")
		return c.Send(fmt.Sprintf("Contract %s registered with %d dates.\n\n%s", created.ID, len(created.Dates()), FormatDates(created)))
	})

	admin("/process_contract", "/process_contract <ContractID>", func(c telebot.Context, args []string, log *logrus.Entry) error {
		if len(args) != 1 {
			return newUsageError("Invalid command format.")
		}
		processed, err := scheduler.ProcessContractForDates(ctx, args[0])
		if err != nil {
			return replyError(c, log, "Failed to process contract", err)
		}
		return c.Send(FormatDates(processed))
	})

	admin("/force_alert", "/force_alert <ContractID> <DateID> <OffsetDays>", func(c telebot.Context, args []string, log *logrus.Entry) error {
		if len(args) != 3 {
			return newUsageError("Invalid command format.")
		}
		offset, err := parseOffset(args[2])
		if err != nil {
			return err
		}
		a, err := scheduler.ForceCreateAlert(ctx, args[0], args[1], offset)
		if err != nil {
			return replyError(c, log, "Failed to force alert", err)
		}
		return c.Send(fmt.Sprintf("Alert %s active, scheduled at %s.", a.ID, a.ScheduledAt.Format(time.RFC3339)))
	})

	admin("/toggle_alert", "/toggle_alert <ContractID> <DateID> <OffsetDays> <on|off>", func(c telebot.Context, args []string, log *logrus.Entry) error {
		if len(args) != 4 {
			return newUsageError("Invalid command format.")
		}
		offset, err := parseOffset(args[2])
		if err != nil {
			return err
		}
		on, err := parseSwitch(args[3])
		if err != nil {
			return err
		}
		a, err := scheduler.ToggleAlert(ctx, args[0], args[1], offset, on)
		if err != nil {
			return replyError(c, log, "Failed to toggle alert", err)
		}
		return c.Send(fmt.Sprintf("Alert %d days before is now %s (scheduled at %s).", a.OffsetDays, a.State(), a.ScheduledAt.Format(time.RFC3339)))
	})

	admin("/add_date", "/add_date <ContractID> <Type> <YYYY-MM-DD> [Description]", func(c telebot.Context, args []string, log *logrus.Entry) error {
		contractID, dateType, date, description, err := parseAddDateArgs(args)
		if err != nil {
			return err
		}
		d, err := scheduler.AddDate(ctx, contractID, dateType, date, description, "")
		if err != nil {
			return replyError(c, log, "Failed to add date", err)
		}
		return c.Send(fmt.Sprintf("Date %s added: %s on %s.", d.ID, d.DateType.Label(), d.Date.Format("2006-01-02")))
	})

	admin("/edit_date", "/edit_date <ContractID> <DateID> <YYYY-MM-DD|on|off> [Description]", func(c telebot.Context, args []string, log *logrus.Entry) error {
		contractID, dateID, edit, err := parseEditDateArgs(args)
		if err != nil {
			return err
		}
		d, err := scheduler.EditDate(ctx, contractID, dateID, edit)
		if err != nil {
			return replyError(c, log, "Failed to edit date", err)
		}
		status := "active"
		if !d.IsActive {
			status = "inactive"
		}
		return c.Send(fmt.Sprintf("Date %s updated: %s on %s [%s].", d.ID, d.DateType.Label(), d.Date.Format("2006-01-02"), status))
	})

	admin("/remove_date", "/remove_date <ContractID> <DateID>", func(c telebot.Context, args []string, log *logrus.Entry) error {
		if len(args) != 2 {
			return newUsageError("Invalid command format.")
		}
		if err := scheduler.RemoveDate(ctx, args[0], args[1]); err != nil {
			return replyError(c, log, "Failed to remove date", err)
		}
		return c.Send("Date removed together with its alerts.")
	})

	admin("/list_dates", "/list_dates <ContractID>", func(c telebot.Context, args []string, log *logrus.Entry) error {
		if len(args) != 1 {
			return newUsageError("Invalid command format.")
		}
		found, err := scheduler.GetContract(ctx, args[0])
		if err != nil {
			return replyError(c, log, "Failed to load contract", err)
		}
		return c.Send(FormatDates(found))
	})

	admin("/add_owner", "/add_owner <Email> [TelegramID] [Name]", func(c telebot.Context, args []string, log *logrus.Entry) error {
		email, telegramID, name, err := parseAddOwnerArgs(args)
		if err != nil {
			return err
		}
		o, err := adminService.AddOwner(ctx, c.Sender().ID, telegramID, email, name)
		if err != nil {
			return replyError(c, log, "Failed to add owner", err)
		}
		log.WithField("owner_id", o.ID).Info("Owner added successfully")
		return c.Send(fmt.Sprintf("Owner %s <%s> added with ID %d.", o.Name, o.Email, o.ID))
	})

	admin("/owner_active", "/owner_active <OwnerID> <on|off>", func(c telebot.Context, args []string, log *logrus.Entry) error {
		if len(args) != 2 {
			return newUsageError("Invalid command format.")
		}
		ownerID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return newUsageError("Owner ID must be a number.")
		}
		on, err := parseSwitch(args[1])
		if err != nil {
			return err
		}
		o, err := adminService.SetOwnerActive(ctx, c.Sender().ID, ownerID, on)
		if err != nil {
			return replyError(c, log, "Failed to change owner status", err)
		}
		log.WithFields(logrus.Fields{"owner_id": o.ID, "is_active": o.IsActive}).Info("Owner status changed")
		if o.IsActive {
			return c.Send(fmt.Sprintf("Alerts for %s <%s> resumed.", o.Name, o.Email))
		}
		return c.Send(fmt.Sprintf("Alerts for %s <%s> paused.", o.Name, o.Email))
	})

	admin("/list_owners", "/list_owners", func(c telebot.Context, _ []string, log *logrus.Entry) error {
		owners, err := adminService.ListOwners(ctx, c.Sender().ID)
		if err != nil {
			return replyError(c, log, "Failed to list owners", err)
		}
		if len(owners) == 0 {
			return c.Send("No owners registered.")
		}
		var response strings.Builder
		response.WriteString("--- Owners ---\n")
		for _, o := range owners {
			tg := "-"
			if o.TelegramID.Valid {
				tg = strconv.FormatInt(o.TelegramID.Int64, 10)
			}
			status := "inactive"
			if o.IsActive {
				status = "active"
			}
			fmt.Fprintf(&response, "ID: %d, Email: %s, Name: %s, Telegram ID: %s, Status: %s\n", o.ID, o.Email, o.Name, tg, status)
		}
		return c.Send(response.String())
	})
}

type usageError struct {
	msg string
}

func newUsageError(format string, args ...any) *usageError {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

func (e *usageError) Error() string { return e.msg }

func replyError(c telebot.Context, log *logrus.Entry, what string, err error) error {
	msg, expected := describeError(err)
	if expected {
		log.WithError(err).Warn(what)
	} else {
		log.WithError(err).Error(what)
	}
	return c.Send("Error: " + msg)
}

// describeError turns a service error into a reply. expected is false for
// errors that indicate a fault rather than bad input.
func describeError(err error) (msg string, expected bool) {
	switch {
	case errors.Is(err, app.ErrAdminNotAuthorized):
		return "you are not allowed to run this command.", true
	case errors.Is(err, app.ErrOwnerAlreadyExists):
		return "an owner with this Telegram ID already exists.", true
	case errors.Is(err, owner.ErrOwnerNotFound):
		return "owner not found.", true
	case errors.Is(err, contract.ErrContractNotFound):
		return "contract not found.", true
	case errors.Is(err, contract.ErrDateNotFound):
		return "date not found on this contract.", true
	case errors.Is(err, contract.ErrAlertNotFound):
		return "alert not found.", true
	case errors.Is(err, contract.ErrInvalidOffset):
		return fmt.Sprintf("offset must be one of %v.", contract.Offsets), true
	case errors.Is(err, contract.ErrInvalidDateType):
		return fmt.Sprintf("date type must be one of %v.", contract.DateTypes), true
	case errors.Is(err, contract.ErrVersionConflict):
		return "the contract is being changed concurrently, try again.", true
	}
	return "internal error, see logs.", false
}

func parseOffset(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, newUsageError("Offset must be a number of days.")
	}
	if err := contract.ValidateOffset(n); err != nil {
		return 0, newUsageError("Offset must be one of %v.", contract.Offsets)
	}
	return n, nil
}

func parseSwitch(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "on", "true", "1", "yes":
		return true, nil
	case "off", "false", "0", "no":
		return false, nil
	}
	return false, newUsageError("Expected on or off, got %q.", raw)
}

func parseDay(raw string) (time.Time, error) {
	d, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
	if err != nil {
		return time.Time{}, newUsageError("Date must be formatted as YYYY-MM-DD.")
	}
	return d, nil
}

func parseAddDateArgs(args []string) (contractID string, dateType contract.DateType, date time.Time, description string, err error) {
	if len(args) < 3 {
		return "", "", time.Time{}, "", newUsageError("Invalid command format.")
	}
	dateType, err = contract.ParseDateType(strings.ToLower(args[1]))
	if err != nil {
		return "", "", time.Time{}, "", newUsageError("Date type must be one of %v.", contract.DateTypes)
	}
	date, err = parseDay(args[2])
	if err != nil {
		return "", "", time.Time{}, "", err
	}
	return args[0], dateType, date, strings.Join(args[3:], " "), nil
}

// parseEditDateArgs reads either a new day or an on/off switch as the third
// argument. Any further words replace the description.
func parseEditDateArgs(args []string) (contractID, dateID string, edit contract.DateEdit, err error) {
	if len(args) < 3 {
		return "", "", contract.DateEdit{}, newUsageError("Invalid command format.")
	}
	if on, switchErr := parseSwitch(args[2]); switchErr == nil {
		edit.IsActive = &on
	} else {
		day, dayErr := parseDay(args[2])
		if dayErr != nil {
			return "", "", contract.DateEdit{}, newUsageError("Expected a YYYY-MM-DD date or on/off, got %q.", args[2])
		}
		edit.Date = &day
	}
	if len(args) > 3 {
		description := strings.Join(args[3:], " ")
		edit.Description = &description
	}
	return args[0], args[1], edit, nil
}

// parseAddOwnerArgs accepts an email followed by an optional numeric Telegram
// ID and an optional free-form name.
func parseAddOwnerArgs(args []string) (email string, telegramID int64, name string, err error) {
	if len(args) < 1 {
		return "", 0, "", newUsageError("Invalid command format.")
	}
	email = args[0]
	rest := args[1:]
	if len(rest) > 0 {
		if id, convErr := strconv.ParseInt(rest[0], 10, 64); convErr == nil {
			if id <= 0 {
				return "", 0, "", newUsageError("Telegram ID must be positive.")
			}
			telegramID = id
			rest = rest[1:]
		}
	}
	return email, telegramID, strings.Join(rest, " "), nil
}

// parseAddContractArgs splits the raw payload so the contract text keeps its
// line breaks.
func parseAddContractArgs(payload string) (ownerID int64, contractType, text string, err error) {
	head := strings.Fields(payload)
	if len(head) < 3 {
		return 0, "", "", newUsageError("Invalid command format.")
	}
	ownerID, err = strconv.ParseInt(head[0], 10, 64)
	if err != nil {
		return 0, "", "", newUsageError("Owner ID must be a number.")
	}
	contractType = head[1]

	rest := strings.TrimSpace(payload)
	for _, field := range head[:2] {
		rest = strings.TrimSpace(strings.TrimPrefix(rest, field))
	}
	return ownerID, contractType, rest, nil
}

// FormatDates lists a contract's dates with the state of each alert offset.
func FormatDates(c *contract.Contract) string {
	dates := c.Dates()
	if len(dates) == 0 {
		return fmt.Sprintf("Contract %s has no dates.", c.ID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "--- Dates of %s (%s) ---\n", c.ID, c.ContractType)
	for _, d := range dates {
		status := "active"
		if !d.IsActive {
			status = "inactive"
		}
		fmt.Fprintf(&b, "\n%s: %s [%s]\nID: %s\n", d.Date.Format("2006-01-02"), d.DateType.Label(), status, d.ID)
		if d.Description != "" {
			fmt.Fprintf(&b, "%s\n", d.Description)
		}
		alerts := c.AlertsForDate(d.ID)
		if len(alerts) == 0 {
			b.WriteString("Alerts: none\n")
			continue
		}
		parts := make([]string, 0, len(alerts))
		for _, a := range alerts {
			parts = append(parts, fmt.Sprintf("%dd %s", a.OffsetDays, a.State()))
		}
		fmt.Fprintf(&b, "Alerts: %s\n", strings.Join(parts, ", "))
	}
	return b.String()
}
