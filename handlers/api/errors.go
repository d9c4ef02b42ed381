package api

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"mailcopy/mailbox"
	"mailcopy/storage"
	"mailcopy/utils"
)

// toAppError maps domain and storage errors to client facing errors
func toAppError(err error) error {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, mailbox.ErrUnknownRecipient):
		var recipientErr *mailbox.RecipientError
		if errors.As(err, &recipientErr) {
			return utils.UnknownRecipientError("User with email "+recipientErr.Address+" does not exist.", nil).
				Localized("error_unknown_recipient").
				WithContext("Email", recipientErr.Address)
		}
		return utils.UnknownRecipientError("Unknown recipient.", err)
	case errors.Is(err, mailbox.ErrValidation):
		return utils.ValidationError(unwrapMessage(err), err)
	case errors.Is(err, mailbox.ErrInvalidMailbox):
		return utils.InvalidMailboxError("Invalid mailbox.", err).Localized("error_invalid_mailbox")
	case errors.Is(err, mailbox.ErrNotFound):
		return utils.NotFoundError("Email not found.", nil).Localized("error_email_not_found")
	case errors.Is(err, mailbox.ErrPreconditionFailed):
		return utils.PreconditionFailedError("Email must be in trash before permanent deletion.", nil).Localized("error_must_trash_first")
	case errors.Is(err, storage.ErrEmailTaken):
		return utils.ValidationError("Email address already taken.", nil).Localized("error_email_taken")
	case errors.Is(err, storage.ErrInvalidCredentials):
		return utils.UnauthorizedError("Invalid email and/or password.", nil).Localized("error_invalid_credentials")
	case errors.Is(err, storage.ErrAccountNotFound):
		return utils.UnauthorizedError("User not authenticated", nil).Localized("error_unauthorized")
	}
	return utils.InternalServerError("Internal server error", err).Localized("error_500")
}

// unwrapMessage returns the text after the sentinel prefix, capitalized
func unwrapMessage(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, ": "); i >= 0 {
		msg = msg[i+2:]
	}
	if msg == "" {
		return msg
	}
	return strings.ToUpper(msg[:1]) + msg[1:] + "."
}

// ErrorResponse renders any handler error as {"error": ..., "kind": ...},
// translating the message into the request language when possible.
func ErrorResponse(c *fiber.Ctx, err error) error {
	appErr := utils.AsAppError(err)

	message := appErr.Message
	if appErr.MessageID != "" {
		lang, _ := c.Locals("lang").(string)
		translated := utils.TWithData(utils.GetLocalizer(lang), appErr.MessageID, appErr.Context)
		if translated != appErr.MessageID {
			message = translated
		}
	}

	if appErr.Code >= fiber.StatusInternalServerError {
		utils.Log.WithFields(map[string]interface{}{
			"method": c.Method(),
			"path":   c.Path(),
		}).Error("Application error: %v", appErr)
	} else {
		utils.Log.Debug("Request rejected: %v", appErr)
	}

	return c.Status(appErr.Code).JSON(fiber.Map{
		"error": message,
		"kind":  appErr.Kind,
	})
}
