package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/nicksnyder/go-i18n/v2/i18n"

	"mailcopy/utils"
)

// clientMessages are the message ids exposed to API clients
var clientMessages = []string{
	"message_sent_success",
	"message_logged_out",
	"mailbox_inbox",
	"mailbox_sent",
	"mailbox_archive",
	"mailbox_trash",
	"error_404",
	"error_500",
	"error_no_recipients",
	"error_invalid_mailbox",
	"error_email_not_found",
	"error_must_trash_first",
	"error_rate_limited",
}

// I18nHandler handles i18n-related requests
type I18nHandler struct{}

// GetTranslations returns the client facing messages for a language
func (h *I18nHandler) GetTranslations(c *fiber.Ctx) error {
	lang := c.Params("lang")
	if !utils.IsSupportedLanguage(lang) {
		lang = "en"
	}

	loc := utils.GetLocalizer(lang)
	translations := make(map[string]string, len(clientMessages))
	for _, id := range clientMessages {
		translations[id] = utils.T(loc, id)
	}
	return c.JSON(translations)
}

// localizer returns the request localizer set by the locale middleware
func localizer(c *fiber.Ctx) *i18n.Localizer {
	if loc, ok := c.Locals("localizer").(*i18n.Localizer); ok {
		return loc
	}
	lang, _ := c.Locals("lang").(string)
	return utils.GetLocalizer(lang)
}
