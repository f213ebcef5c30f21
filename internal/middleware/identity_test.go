package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alexdfirestone/national-parks/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIdentitySecret = "test-secret-key-12345678901234567890123456789012"

func signIdentity(t *testing.T, secret string, claims IdentityClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func identityApp(ic IdentityConfig) *fiber.App {
	app := fiber.New()
	app.Get("/whoami", Identity(ic), func(c *fiber.Ctx) error {
		caller, _ := CallerFrom(c)
		return c.JSON(fiber.Map{
			"providerId": caller.ProviderID,
			"name":       caller.DisplayName,
			"roles":      caller.Roles,
			"guest":      caller.Guest,
		})
	})
	app.Get("/mod", Identity(ic), RequireRole(models.RoleModerator), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestIdentity(t *testing.T) {
	ic := IdentityConfig{Secret: testIdentitySecret, AllowGuest: true, GuestProviderID: "guest", GuestName: "Guest"}
	app := identityApp(ic)

	valid := signIdentity(t, testIdentitySecret, IdentityClaims{
		Name:  "Ranger Rick",
		Roles: []string{models.RoleUser, models.RoleModerator},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "auth0|rick",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	expired := signIdentity(t, testIdentitySecret, IdentityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "auth0|rick",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	wrongKey := signIdentity(t, "another-secret-key-123456789012345678901234", IdentityClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "auth0|rick"},
	})
	noSubject := signIdentity(t, testIdentitySecret, IdentityClaims{Name: "Nobody"})

	tests := []struct {
		name           string
		authHeader     string
		expectedStatus int
		expectedID     string
		expectedGuest  bool
	}{
		{"Guest Without Header", "", http.StatusOK, "guest", true},
		{"Valid Token", "Bearer " + valid, http.StatusOK, "auth0|rick", false},
		{"Invalid Format", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, "", false},
		{"Malformed Token", "Bearer malformed.token.here", http.StatusUnauthorized, "", false},
		{"Expired Token", "Bearer " + expired, http.StatusUnauthorized, "", false},
		{"Wrong Key", "Bearer " + wrongKey, http.StatusUnauthorized, "", false},
		{"Missing Subject", "Bearer " + noSubject, http.StatusUnauthorized, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.expectedStatus == http.StatusOK {
				var body map[string]interface{}
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				assert.Equal(t, tt.expectedID, body["providerId"])
				assert.Equal(t, tt.expectedGuest, body["guest"])
			}
		})
	}
}

func TestIdentity_GuestDisabled(t *testing.T) {
	app := identityApp(IdentityConfig{Secret: testIdentitySecret})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/whoami", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestIdentity_TokenWithoutSecret(t *testing.T) {
	app := identityApp(IdentityConfig{AllowGuest: true})
	token := signIdentity(t, testIdentitySecret, IdentityClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "x"}})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRequireRole(t *testing.T) {
	app := identityApp(IdentityConfig{Secret: testIdentitySecret, AllowGuest: true})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/mod", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "guest is not a moderator")

	mod := signIdentity(t, testIdentitySecret, IdentityClaims{
		Roles:            []string{models.RoleModerator},
		RegisteredClaims: jwt.RegisteredClaims{Subject: "auth0|mod"},
	})
	req := httptest.NewRequest(http.MethodGet, "/mod", nil)
	req.Header.Set("Authorization", "Bearer "+mod)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestParseCaller_Defaults(t *testing.T) {
	ic := IdentityConfig{Secret: testIdentitySecret}
	token := signIdentity(t, testIdentitySecret, IdentityClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "auth0|anon"}})

	caller, err := ic.ParseCaller(token)
	require.NoError(t, err)
	assert.Equal(t, "auth0|anon", caller.DisplayName)
	assert.Equal(t, []string{models.RoleUser}, caller.Roles)
	assert.False(t, caller.Guest)
}
