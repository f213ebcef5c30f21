// Package middleware provides request-scoped HTTP middleware: caller identity,
// structured logging, rate limiting, tracing and metrics.
package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/alexdfirestone/national-parks/internal/config"
	"github.com/alexdfirestone/national-parks/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// LocalCaller is the Fiber locals key holding the resolved models.Caller.
const LocalCaller = "caller"

// IdentityConfig controls how a request's caller is resolved.
type IdentityConfig struct {
	Secret          string
	AllowGuest      bool
	GuestProviderID string
	GuestName       string
}

// IdentityConfigFrom extracts the identity settings from the application config.
func IdentityConfigFrom(cfg *config.Config) IdentityConfig {
	return IdentityConfig{
		Secret:          cfg.IdentityJWTSecret,
		AllowGuest:      cfg.AllowGuest,
		GuestProviderID: cfg.GuestProviderID,
		GuestName:       cfg.GuestName,
	}
}

// Guest returns the configured guest identity.
func (ic IdentityConfig) Guest() models.Caller {
	id := ic.GuestProviderID
	if id == "" {
		id = "guest"
	}
	name := ic.GuestName
	if name == "" {
		name = "Guest"
	}
	return models.Caller{
		ProviderID:  id,
		DisplayName: name,
		Roles:       []string{models.RoleUser},
		Guest:       true,
	}
}

// IdentityClaims are the claims the external identity provider signs.
type IdentityClaims struct {
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

var errNoIdentitySecret = errors.New("identity tokens are not accepted: no signing secret configured")

// ParseCaller validates a bearer token and returns the caller it names.
func (ic IdentityConfig) ParseCaller(tokenString string) (models.Caller, error) {
	if ic.Secret == "" {
		return models.Caller{}, errNoIdentitySecret
	}

	claims := &IdentityClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(ic.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return models.Caller{}, errors.New("invalid or expired token")
	}

	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return models.Caller{}, errors.New("invalid token structure - missing subject")
	}

	name := strings.TrimSpace(claims.Name)
	if name == "" {
		name = sub
	}
	roles := claims.Roles
	if len(roles) == 0 {
		roles = []string{models.RoleUser}
	}

	return models.Caller{ProviderID: sub, DisplayName: name, Roles: roles}, nil
}

// Identity resolves the caller for every request. A bearer token must be
// valid; without one the guest identity is used when allowed, otherwise 401.
func Identity(ic IdentityConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")

		var caller models.Caller
		if authHeader == "" {
			if !ic.AllowGuest {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Authorization header required",
				})
			}
			caller = ic.Guest()
		} else {
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Invalid authorization header format",
				})
			}

			parsed, err := ic.ParseCaller(parts[1])
			if err != nil {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": err.Error(),
				})
			}
			caller = parsed
		}

		c.Locals(LocalCaller, caller)
		c.SetUserContext(context.WithValue(c.UserContext(), CallerKey, caller.ProviderID))
		return c.Next()
	}
}

// CallerFrom returns the caller Identity stored on the request.
func CallerFrom(c *fiber.Ctx) (models.Caller, bool) {
	caller, ok := c.Locals(LocalCaller).(models.Caller)
	return caller, ok
}

// RequireRole rejects callers that do not carry role. It must run after Identity.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, ok := CallerFrom(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Caller identity required",
			})
		}
		if !caller.HasRole(role) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Insufficient role",
			})
		}
		return c.Next()
	}
}
