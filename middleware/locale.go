package middleware

import (
	"github.com/gofiber/fiber/v2"
	"golang.org/x/text/language"

	"mailcopy/utils"
)

var languageMatcher = language.NewMatcher([]language.Tag{language.English, language.Japanese})

// LocaleMiddleware detects and sets the user's locale
func LocaleMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Explicit choice first: query parameter, then cookie
		lang := c.Query("lang")
		if lang == "" {
			lang = c.Cookies("lang")
		}

		if !utils.IsSupportedLanguage(lang) {
			lang = matchLanguage(c.Get(fiber.HeaderAcceptLanguage))
		}

		c.Locals("localizer", utils.GetLocalizer(lang))
		c.Locals("lang", lang)

		utils.Log.Debug("Locale detected: %s for path: %s", lang, c.Path())
		return c.Next()
	}
}

// matchLanguage picks the best supported language for an Accept-Language header
func matchLanguage(header string) string {
	if header == "" {
		return "en"
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return "en"
	}
	tag, _, _ := languageMatcher.Match(tags...)
	base, _ := tag.Base()
	if utils.IsSupportedLanguage(base.String()) {
		return base.String()
	}
	return "en"
}
