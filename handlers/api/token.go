package api

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"mailcopy/models"
	"mailcopy/utils"
)

// TokenCookie is the cookie carrying the token for browser clients
const TokenCookie = "token"

// Claims identifies the authenticated account
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// AccountID returns the numeric account id stored in the subject
func (c *Claims) AccountID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

// GenerateToken signs an HS256 token for the account
func GenerateToken(account *models.Account, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: account.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(account.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken validates a token and returns its claims
func ParseToken(tokenString, secret string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if _, err := claims.AccountID(); err != nil {
		return nil, fmt.Errorf("invalid subject: %w", err)
	}
	return claims, nil
}

// bearerToken extracts the token from the Authorization header or the cookie
func bearerToken(c *fiber.Ctx) (string, bool) {
	if header := c.Get(fiber.HeaderAuthorization); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token), true
		}
	}
	if cookie := c.Cookies(TokenCookie); cookie != "" {
		return cookie, false
	}
	return "", false
}

// IsBearerRequest reports whether the request authenticates with a header
// rather than the cookie. Header based clients are not exposed to CSRF.
func IsBearerRequest(c *fiber.Ctx) bool {
	_, header := bearerToken(c)
	return header
}

// AuthMiddleware rejects requests without a valid token and stores the
// account id and email in Locals.
func AuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, _ := bearerToken(c)
		if tokenString == "" {
			return utils.UnauthorizedError("Authentication required", nil).Localized("error_unauthorized")
		}

		claims, err := ParseToken(tokenString, secret)
		if err != nil {
			return utils.UnauthorizedError("Authentication required", err).Localized("error_unauthorized")
		}

		accountID, _ := claims.AccountID()
		c.Locals("accountId", accountID)
		c.Locals("email", claims.Email)
		return c.Next()
	}
}

// currentAccountID returns the account id set by AuthMiddleware
func currentAccountID(c *fiber.Ctx) (int64, error) {
	id, ok := c.Locals("accountId").(int64)
	if !ok || id == 0 {
		return 0, utils.UnauthorizedError("User not authenticated", nil).Localized("error_unauthorized")
	}
	return id, nil
}
