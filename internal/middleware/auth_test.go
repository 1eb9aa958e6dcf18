package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func issue(t *testing.T, role string, expiry time.Duration) string {
	t.Helper()
	token, err := GenerateToken(testSecret, &Claims{UserID: "u1", Email: "ana@example.com", Role: role}, expiry)
	require.NoError(t, err)
	return token
}

func protectedApp(allowQuery bool, roles ...string) *fiber.App {
	app := fiber.New()
	handlers := []fiber.Handler{RequireAuth(testSecret, allowQuery)}
	if len(roles) > 0 {
		handlers = append(handlers, RequireRole(roles...))
	}
	handlers = append(handlers, func(c *fiber.Ctx) error {
		return c.SendString(CurrentUserID(c))
	})
	app.Get("/private", handlers...)
	return app
}

func call(t *testing.T, app *fiber.App, path, token string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestGenerateAndValidateToken(t *testing.T) {
	token := issue(t, "ADMIN", time.Hour)

	claims, err := ValidateToken(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "ADMIN", claims.Role)

	_, err = ValidateToken([]byte("other"), token)
	assert.Error(t, err)

	_, err = GenerateToken(nil, &Claims{}, time.Hour)
	assert.Error(t, err)
}

func TestValidateTokenRejectsExpiredAndForeignAlgorithms(t *testing.T) {
	expired := issue(t, "ADMIN", -time.Minute)
	_, err := ValidateToken(testSecret, expired)
	assert.Error(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: "u1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ValidateToken(testSecret, unsigned)
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer  abc"))
	assert.Empty(t, BearerToken("Basic abc"))
	assert.Empty(t, BearerToken(""))
}

func TestRequireAuth(t *testing.T) {
	app := protectedApp(false)

	assert.Equal(t, fiber.StatusUnauthorized, call(t, app, "/private", "").StatusCode)
	assert.Equal(t, fiber.StatusUnauthorized, call(t, app, "/private", "garbage").StatusCode)
	assert.Equal(t, fiber.StatusOK, call(t, app, "/private", issue(t, "OPERATOR", time.Hour)).StatusCode)

	// query tokens only count where explicitly allowed
	token := issue(t, "OPERATOR", time.Hour)
	assert.Equal(t, fiber.StatusUnauthorized, call(t, app, "/private?token="+token, "").StatusCode)
	assert.Equal(t, fiber.StatusOK, call(t, protectedApp(true), "/private?token="+token, "").StatusCode)
}

func TestRequireRole(t *testing.T) {
	app := protectedApp(false, "ADMIN", "SUPERVISOR")

	assert.Equal(t, fiber.StatusOK, call(t, app, "/private", issue(t, "SUPERVISOR", time.Hour)).StatusCode)
	assert.Equal(t, fiber.StatusForbidden, call(t, app, "/private", issue(t, "OPERATOR", time.Hour)).StatusCode)

	bare := fiber.New()
	bare.Get("/private", RequireRole("ADMIN"), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	assert.Equal(t, fiber.StatusUnauthorized, call(t, bare, "/private", "").StatusCode)
}
