package api

import (
	"bufio"
	"fmt"
	"io"

	"github.com/emersion/go-mbox"
	"github.com/emersion/go-message/mail"
	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"mailcopy/mailbox"
	"mailcopy/models"
	"mailcopy/storage"
	"mailcopy/utils"
)

// ExportMailbox downloads a whole mailbox as an mbox file
func (h *EmailHandler) ExportMailbox(c *fiber.Ctx) error {
	accountID, err := currentAccountID(c)
	if err != nil {
		return err
	}
	m, err := mailbox.Parse(c.Params("mailbox"))
	if err != nil {
		return toAppError(err)
	}

	emails, err := h.emails.List(c.UserContext(), accountID, m, storage.ListOptions{})
	if err != nil {
		return toAppError(err)
	}

	c.Set(fiber.HeaderContentType, "application/mbox")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s.mbox"`, m))

	// Headers are sent before the body; failures past this point can only be logged
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		if err := WriteMbox(w, emails); err != nil {
			utils.Log.WithField("mailbox", m).Error("Failed to export mailbox: %v", err)
			return
		}
		if err := w.Flush(); err != nil {
			utils.Log.Debug("Export client went away: %v", err)
		}
	}))
	return nil
}

// WriteMbox writes the copies as RFC 5322 messages in mbox format
func WriteMbox(w io.Writer, emails []*models.Email) error {
	mw := mbox.NewWriter(w)
	for _, e := range emails {
		msg, err := mw.CreateMessage(e.SenderEmail, e.Timestamp)
		if err != nil {
			return fmt.Errorf("failed to start message %d: %w", e.ID, err)
		}
		if err := writeMessage(msg, e); err != nil {
			return fmt.Errorf("failed to write message %d: %w", e.ID, err)
		}
	}
	return mw.Close()
}

func writeMessage(w io.Writer, e *models.Email) error {
	var h mail.Header
	h.SetDate(e.Timestamp)
	h.SetSubject(e.Subject)
	h.SetAddressList("From", []*mail.Address{{Address: e.SenderEmail}})
	to := make([]*mail.Address, 0, len(e.Recipients))
	for _, r := range e.Recipients {
		to = append(to, &mail.Address{Address: r})
	}
	h.SetAddressList("To", to)
	h.SetMessageID(e.MessageID + "@mailcopy")
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("Status", mailbox.MboxStatus(mailbox.Flags(e)))
	if e.Archived {
		h.Set("X-Keywords", mailbox.ArchivedKeyword)
	}

	body, err := mail.CreateSingleInlineWriter(w, h)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(body, e.Body); err != nil {
		body.Close()
		return err
	}
	return body.Close()
}
