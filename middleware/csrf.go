package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"mailcopy/config"
	"mailcopy/utils"
)

const (
	CSRFCookie = "csrf_token"
	CSRFHeader = "X-CSRF-Token"

	csrfTokenBytes = 32
)

// CSRF is a double submit guard for cookie sessions. The token cookie is
// issued together with the session cookie and expires with it.
type CSRF struct {
	ttl  time.Duration
	skip func(*fiber.Ctx) bool
}

// NewCSRF ties the token lifetime to the session TTL. Requests for which skip
// returns true are not checked.
func NewCSRF(session config.JWTConfig, skip func(*fiber.Ctx) bool) *CSRF {
	ttl := time.Duration(session.TTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CSRF{ttl: ttl, skip: skip}
}

// TTL is the session lifetime the token cookie shares
func (x *CSRF) TTL() time.Duration {
	return x.ttl
}

// Protect rejects unsafe requests whose header token does not match the cookie
func (x *CSRF) Protect() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if x.skip != nil && x.skip(c) {
			return c.Next()
		}
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		cookie, header := c.Cookies(CSRFCookie), c.Get(CSRFHeader)
		if cookie == "" || header == "" {
			return utils.ForbiddenError("CSRF token missing", nil).Localized("error_csrf")
		}
		if subtle.ConstantTimeCompare([]byte(cookie), []byte(header)) != 1 {
			return utils.ForbiddenError("CSRF token mismatch", nil).Localized("error_csrf")
		}
		return c.Next()
	}
}

// Issue sets a fresh token cookie and returns the token for the client to
// echo in the X-CSRF-Token header.
func (x *CSRF) Issue(c *fiber.Ctx) (string, error) {
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate csrf token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(b)

	c.Cookie(&fiber.Cookie{
		Name:     CSRFCookie,
		Value:    token,
		MaxAge:   int(x.ttl / time.Second),
		HTTPOnly: true,
		SameSite: "Strict",
		Secure:   c.Protocol() == "https",
	})
	return token, nil
}

// Clear expires the token cookie
func (x *CSRF) Clear(c *fiber.Ctx) {
	c.ClearCookie(CSRFCookie)
}
