package handlers

import (
	"errors"
	"log"

	"github.com/Ananth-NQI/whatsrelay-backend/internal/config"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/middleware"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/models"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/services"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/storage"
	"github.com/gofiber/fiber/v2"
)

// AuthHandler issues and inspects admin session tokens
type AuthHandler struct {
	store storage.Store
	users *services.UserService
	jwt   config.JWTConfig
	audit *services.Auditor
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(store storage.Store, users *services.UserService, jwt config.JWTConfig, audit *services.Auditor) *AuthHandler {
	return &AuthHandler{
		store: store,
		users: users,
		jwt:   jwt,
		audit: audit,
	}
}

// Login exchanges email and password for a bearer token
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil || req.Email == "" || req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "email e password são obrigatórios",
		})
	}

	user, err := h.users.Authenticate(req.Email, req.Password)
	if errors.Is(err, services.ErrInvalidCredentials) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Credenciais inválidas",
		})
	}
	if err != nil {
		log.Printf("Error authenticating %s: %v", req.Email, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Erro interno do servidor",
		})
	}

	token, err := middleware.GenerateToken([]byte(h.jwt.Secret), &middleware.Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	}, h.jwt.ExpiresIn)
	if err != nil {
		log.Printf("Error signing token: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Erro interno do servidor",
		})
	}

	h.audit.Record(user.ID, models.ActionLogin, "", map[string]any{"email": user.Email})
	return c.JSON(fiber.Map{
		"token": token,
		"user":  user,
	})
}

// Me returns the authenticated account
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	userID := middleware.CurrentUserID(c)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Não autenticado",
		})
	}
	user, err := h.store.GetUser(userID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Usuário não encontrado",
		})
	}
	return c.JSON(user)
}
