package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Ananth-NQI/whatsrelay-backend/internal/config"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/middleware"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/models"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/services"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/storage"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authApp(t *testing.T) (*fiber.App, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	users := services.NewUserService(store)
	_, err := users.Create("Ana", "ana@example.com", "secret1", models.RoleSupervisor)
	require.NoError(t, err)

	jwtCfg := config.JWTConfig{Secret: "test-secret", ExpiresIn: time.Hour}
	h := NewAuthHandler(store, users, jwtCfg, services.NewAuditor(store))

	app := fiber.New()
	app.Post("/api/auth/login", h.Login)
	app.Get("/api/auth/me", middleware.RequireAuth([]byte(jwtCfg.Secret), false), h.Me)
	return app, store
}

func login(t *testing.T, app *fiber.App, body string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return resp, payload
}

func TestLoginFlow(t *testing.T) {
	app, store := authApp(t)

	resp, payload := login(t, app, `{"email":"ana@example.com","password":"secret1"}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	token, _ := payload["token"].(string)
	require.NotEmpty(t, token)
	user, _ := payload["user"].(map[string]any)
	assert.Equal(t, "ana@example.com", user["email"])
	assert.NotContains(t, user, "password_hash")

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	me, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, me.StatusCode)

	logs, total, err := store.ListAuditLogs(storage.AuditFilter{Action: models.ActionLogin})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, user["id"], logs[0].UserID)
}

func TestLoginRejections(t *testing.T) {
	app, _ := authApp(t)

	resp, payload := login(t, app, `{"email":"ana@example.com","password":"wrong"}`)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Credenciais inválidas", payload["error"])

	resp, _ = login(t, app, `{"email":"ana@example.com"}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
