package handlers

import (
	"errors"
	"log"

	"github.com/Ananth-NQI/whatsrelay-backend/internal/middleware"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/models"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/services"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/storage"
	"github.com/gofiber/fiber/v2"
)

// UserHandler manages admin-panel accounts
type UserHandler struct {
	store storage.Store
	users *services.UserService
	audit *services.Auditor
}

// NewUserHandler creates a new user handler
func NewUserHandler(store storage.Store, users *services.UserService, audit *services.Auditor) *UserHandler {
	return &UserHandler{
		store: store,
		users: users,
		audit: audit,
	}
}

// List returns every account
func (h *UserHandler) List(c *fiber.Ctx) error {
	users, err := h.store.ListUsers()
	if err != nil {
		log.Printf("Error listing users: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Erro interno do servidor",
		})
	}
	return c.JSON(users)
}

// Create adds an account
func (h *UserHandler) Create(c *fiber.Ctx) error {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := c.BodyParser(&req); err != nil || req.Name == "" || req.Email == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "name, email, password e role são obrigatórios",
		})
	}

	user, err := h.users.Create(req.Name, req.Email, req.Password, req.Role)
	switch {
	case errors.Is(err, storage.ErrDuplicate):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Email já cadastrado",
		})
	case errors.Is(err, services.ErrWeakPassword), errors.Is(err, services.ErrInvalidRole):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	case err != nil:
		log.Printf("Error creating user: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Erro interno do servidor",
		})
	}

	h.audit.Record(middleware.CurrentUserID(c), models.ActionUserSaved, "", map[string]any{
		"userId": user.ID,
		"email":  user.Email,
		"role":   user.Role,
	})
	return c.Status(fiber.StatusCreated).JSON(user)
}

// Update changes name, password, role or active flag of an account
func (h *UserHandler) Update(c *fiber.Ctx) error {
	var req services.UserUpdate
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	user, err := h.users.Update(c.Params("id"), req)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Usuário não encontrado",
		})
	case errors.Is(err, services.ErrWeakPassword), errors.Is(err, services.ErrInvalidRole):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	case err != nil:
		log.Printf("Error updating user: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Erro interno do servidor",
		})
	}

	h.audit.Record(middleware.CurrentUserID(c), models.ActionUserSaved, "", map[string]any{
		"userId": user.ID,
	})
	return c.JSON(user)
}
