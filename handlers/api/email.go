package api

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"mailcopy/mailbox"
	"mailcopy/metrics"
	"mailcopy/models"
	"mailcopy/storage"
	"mailcopy/utils"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// EmailHandler serves the per-account mailbox routes
type EmailHandler struct {
	emails   *storage.EmailStorage
	accounts *storage.AccountStorage
	metrics  *metrics.Metrics
}

// NewEmailHandler creates a new email handler
func NewEmailHandler(emails *storage.EmailStorage, accounts *storage.AccountStorage, m *metrics.Metrics) *EmailHandler {
	return &EmailHandler{
		emails:   emails,
		accounts: accounts,
		metrics:  m,
	}
}

// RecipientList accepts either "a@x, b@x" or ["a@x", "b@x"]
type RecipientList []string

func (r *RecipientList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*r = RecipientList{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return errors.New("recipients must be a string or a list of strings")
	}
	*r = list
	return nil
}

// ComposeRequest is the body of POST /emails
type ComposeRequest struct {
	Recipients RecipientList `json:"recipients"`
	Subject    string        `json:"subject"`
	Body       string        `json:"body"`
}

// Compose fans a new message out to the sender and every recipient
func (h *EmailHandler) Compose(c *fiber.Ctx) error {
	sender, err := h.currentAccount(c)
	if err != nil {
		return err
	}

	var req ComposeRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ValidationError("Invalid request body.", err).Localized("error_invalid_request")
	}

	recipients := mailbox.ParseRecipients(req.Recipients...)
	if len(recipients) == 0 {
		h.metrics.Composed(0, mailbox.ErrValidation)
		return utils.ValidationError("At least one recipient required.", nil).Localized("error_no_recipients")
	}

	copies, err := h.emails.Compose(c.UserContext(), storage.ComposeRequest{
		Sender:     sender,
		Recipients: recipients,
		Subject:    utils.NormalizeSubject(req.Subject),
		Body:       req.Body,
	})
	h.metrics.Composed(len(copies), err)
	if err != nil {
		return toAppError(err)
	}

	utils.Log.WithFields(map[string]interface{}{
		"sender":     sender.Email,
		"copies":     len(copies),
		"message_id": copies[0].MessageID,
	}).Info("Email composed")

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": utils.T(localizer(c), "message_sent_success"),
		"copies":  len(copies),
	})
}

// ListMailbox returns the account's copies in the named mailbox, newest first
func (h *EmailHandler) ListMailbox(c *fiber.Ctx) error {
	accountID, err := currentAccountID(c)
	if err != nil {
		return err
	}

	m, err := mailbox.Parse(c.Params("mailbox"))
	if err != nil {
		return toAppError(err)
	}
	opts, err := listOptions(c)
	if err != nil {
		return err
	}

	emails, err := h.emails.List(c.UserContext(), accountID, m, opts)
	if err != nil {
		return toAppError(err)
	}
	for _, e := range emails {
		withPreview(e)
	}
	return c.JSON(emails)
}

// GetEmail returns one copy owned by the account
func (h *EmailHandler) GetEmail(c *fiber.Ctx) error {
	accountID, err := currentAccountID(c)
	if err != nil {
		return err
	}
	id, err := emailID(c)
	if err != nil {
		return err
	}

	email, err := h.emails.Get(c.UserContext(), accountID, id)
	if err != nil {
		return toAppError(err)
	}
	return c.JSON(withPreview(email))
}

// UpdateEmail applies a partial flag update to one copy
func (h *EmailHandler) UpdateEmail(c *fiber.Ctx) error {
	accountID, err := currentAccountID(c)
	if err != nil {
		return err
	}
	id, err := emailID(c)
	if err != nil {
		return err
	}

	var patch models.EmailPatch
	if err := c.BodyParser(&patch); err != nil {
		return utils.ValidationError("Invalid request body.", err).Localized("error_invalid_request")
	}

	email, transition, err := h.emails.Update(c.UserContext(), accountID, id, patch)
	if err != nil {
		return toAppError(err)
	}

	h.metrics.Transition(string(transition))
	if transition != mailbox.Unchanged {
		utils.Log.WithFields(map[string]interface{}{
			"email_id":   email.ID,
			"transition": transition,
		}).Debug("Trash state changed")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// DeleteEmail permanently removes a copy that is already in the trash
func (h *EmailHandler) DeleteEmail(c *fiber.Ctx) error {
	accountID, err := currentAccountID(c)
	if err != nil {
		return err
	}
	id, err := emailID(c)
	if err != nil {
		return err
	}

	if err := h.emails.Purge(c.UserContext(), accountID, id); err != nil {
		return toAppError(err)
	}
	h.metrics.Purged()
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *EmailHandler) currentAccount(c *fiber.Ctx) (*models.Account, error) {
	accountID, err := currentAccountID(c)
	if err != nil {
		return nil, err
	}
	account, err := h.accounts.GetAccount(c.UserContext(), accountID)
	if err != nil {
		return nil, toAppError(err)
	}
	return account, nil
}

// withPreview fills the escaped snippet rendered by list views
func withPreview(e *models.Email) *models.Email {
	e.Preview = utils.Preview(e.Body)
	return e
}

func emailID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, utils.ValidationError("Invalid email id.", err).Localized("error_invalid_email_id")
	}
	return id, nil
}

func listOptions(c *fiber.Ctx) (storage.ListOptions, error) {
	opts := storage.ListOptions{Limit: defaultListLimit}
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return opts, utils.ValidationError("limit must be a positive integer", err)
		}
		opts.Limit = min(n, maxListLimit)
	}
	if v := strings.TrimSpace(c.Query("offset")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, utils.ValidationError("offset must not be negative", err)
		}
		opts.Offset = n
	}
	return opts, nil
}
