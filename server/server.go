package server

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"mailcopy/config"
	"mailcopy/handlers/api"
	"mailcopy/metrics"
	"mailcopy/middleware"
	"mailcopy/storage"
)

// New builds the fiber application with every route and middleware mounted
func New(cfg *config.Config, db *storage.DB, m *metrics.Metrics) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "mailcopy",
		ErrorHandler: api.ErrorResponse,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	// Add global middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(compress.New())
	app.Use(helmet.New(helmet.Config{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'",
	}))
	app.Use(middleware.LocaleMiddleware())
	app.Use(middleware.RateLimiter(cfg.Server.RateLimit, time.Minute))

	accounts := storage.NewAccountStorage(db)
	emails := storage.NewEmailStorage(db)

	csrf := middleware.NewCSRF(cfg.JWT, api.IsBearerRequest)
	authHandler := api.NewAuthHandler(accounts, cfg.JWT, csrf, m)
	emailHandler := api.NewEmailHandler(emails, accounts, m)
	i18nHandler := &api.I18nHandler{}

	// Ops routes
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	app.Get("/metrics", m.Handler())
	app.Get("/i18n/:lang", i18nHandler.GetTranslations)

	// Public routes
	app.Post("/register", authHandler.Register)
	app.Post("/login", authHandler.Login)
	app.Post("/logout", authHandler.Logout)

	// Protected routes
	auth := api.AuthMiddleware(cfg.JWT.Secret)

	app.Get("/me", auth, authHandler.Me)

	mail := app.Group("/emails", auth, csrf.Protect())
	{
		mail.Post("", emailHandler.Compose)

		// Numeric ids are registered before mailbox names so /emails/42
		// never reaches ListMailbox.
		mail.Get("/:id<int>", emailHandler.GetEmail)
		mail.Put("/:id<int>", emailHandler.UpdateEmail)
		mail.Delete("/:id<int>", emailHandler.DeleteEmail)

		mail.Get("/:mailbox/export", emailHandler.ExportMailbox)
		mail.Get("/:mailbox", emailHandler.ListMailbox)
	}

	return app
}
