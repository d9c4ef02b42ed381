package api

import (
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/gofiber/fiber/v2"

	"mailcopy/config"
	"mailcopy/metrics"
	"mailcopy/middleware"
	"mailcopy/models"
	"mailcopy/storage"
	"mailcopy/utils"
)

// AuthHandler handles registration and token based login
type AuthHandler struct {
	accounts *storage.AccountStorage
	jwt      config.JWTConfig
	csrf     *middleware.CSRF
	metrics  *metrics.Metrics
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(accounts *storage.AccountStorage, cfg config.JWTConfig, csrf *middleware.CSRF, m *metrics.Metrics) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		jwt:      cfg,
		csrf:     csrf,
		metrics:  m,
	}
}

// RegisterRequest is the body of POST /register
type RegisterRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	Confirmation string `json:"confirmation"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
}

// LoginRequest is the body of POST /login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates an account and logs it in
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ValidationError("Invalid request body.", err).Localized("error_invalid_request")
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		return utils.ValidationError("Email and password are required.", nil).Localized("error_missing_fields")
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return utils.ValidationError("Invalid email address.", err)
	}
	if req.Password != req.Confirmation {
		return utils.ValidationError("Passwords must match.", nil).Localized("error_password_mismatch")
	}

	account := &models.Account{
		Email:     req.Email,
		FirstName: utils.Truncate(strings.TrimSpace(req.FirstName), 150),
		LastName:  utils.Truncate(strings.TrimSpace(req.LastName), 150),
	}
	if err := h.accounts.CreateAccount(c.UserContext(), account, req.Password); err != nil {
		return toAppError(err)
	}
	h.metrics.Registered()
	utils.Log.WithField("email", account.Email).Info("Account registered")

	return h.respondWithToken(c, fiber.StatusCreated, account)
}

// Login exchanges credentials for a token
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ValidationError("Invalid request body.", err).Localized("error_invalid_request")
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return utils.ValidationError("Email and password are required.", nil).Localized("error_missing_fields")
	}

	account, err := h.accounts.Authenticate(c.UserContext(), req.Email, req.Password)
	if err != nil {
		utils.Log.WithField("email", req.Email).Warn("Login failed: %v", err)
		return toAppError(err)
	}

	utils.Log.WithField("email", account.Email).Info("User logged in")
	return h.respondWithToken(c, fiber.StatusOK, account)
}

// Logout clears the session cookies. Bearer tokens simply expire.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     TokenCookie,
		Value:    "",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		SameSite: "Lax",
	})
	h.csrf.Clear(c)
	return c.JSON(fiber.Map{
		"message": utils.T(localizer(c), "message_logged_out"),
	})
}

// Me returns the authenticated account
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	accountID, err := currentAccountID(c)
	if err != nil {
		return err
	}
	account, err := h.accounts.GetAccount(c.UserContext(), accountID)
	if err != nil {
		return toAppError(err)
	}
	return c.JSON(account)
}

func (h *AuthHandler) respondWithToken(c *fiber.Ctx, status int, account *models.Account) error {
	ttl := h.csrf.TTL()
	token, err := GenerateToken(account, h.jwt.Secret, ttl)
	if err != nil {
		return utils.InternalServerError("Failed to issue token", err)
	}

	c.Cookie(&fiber.Cookie{
		Name:     TokenCookie,
		Value:    token,
		Expires:  time.Now().Add(ttl),
		HTTPOnly: true,
		SameSite: "Lax",
	})
	csrfToken, err := h.csrf.Issue(c)
	if err != nil {
		return utils.InternalServerError("Failed to issue token", err)
	}

	return c.Status(status).JSON(fiber.Map{
		"token":      token,
		"csrf_token": csrfToken,
		"account":    account,
	})
}
