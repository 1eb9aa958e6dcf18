package services

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/Ananth-NQI/whatsrelay-backend/internal/config"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/models"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrWeakPassword       = fmt.Errorf("password must have at least %d characters", minPasswordLength)
	ErrInvalidRole        = errors.New("invalid role")
)

// UserService manages admin-panel accounts
type UserService struct {
	store storage.Store
	cost  int
}

func NewUserService(store storage.Store) *UserService {
	return &UserService{store: store, cost: bcrypt.DefaultCost}
}

// Authenticate checks an email/password pair of an active account
func (s *UserService) Authenticate(email, password string) (*models.User, error) {
	user, err := s.store.GetUserByEmail(strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Create stores a new account with a hashed password
func (s *UserService) Create(name, email, password, role string) (*models.User, error) {
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}
	if !models.ValidRole(role) {
		return nil, ErrInvalidRole
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return s.store.CreateUser(&models.User{
		Name:         strings.TrimSpace(name),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	})
}

// UserUpdate lists the fields an update may change; nil leaves a field alone
type UserUpdate struct {
	Name     *string `json:"name"`
	Password *string `json:"password"`
	Role     *string `json:"role"`
	Active   *bool   `json:"active"`
}

// Update applies the non-nil fields of changes
func (s *UserService) Update(id string, changes UserUpdate) (*models.User, error) {
	user, err := s.store.GetUser(id)
	if err != nil {
		return nil, err
	}
	if changes.Name != nil && strings.TrimSpace(*changes.Name) != "" {
		user.Name = strings.TrimSpace(*changes.Name)
	}
	if changes.Role != nil {
		if !models.ValidRole(*changes.Role) {
			return nil, ErrInvalidRole
		}
		user.Role = *changes.Role
	}
	if changes.Active != nil {
		user.Active = *changes.Active
	}
	if changes.Password != nil {
		if len(*changes.Password) < minPasswordLength {
			return nil, ErrWeakPassword
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*changes.Password), s.cost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = string(hash)
	}
	if err := s.store.UpdateUser(user); err != nil {
		return nil, err
	}
	return user, nil
}

// SeedAdmin creates the configured admin account when no user exists yet
func (s *UserService) SeedAdmin(cfg config.AdminConfig) error {
	if cfg.Email == "" || cfg.Password == "" {
		return nil
	}
	users, err := s.store.ListUsers()
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return nil
	}
	user, err := s.Create(cfg.Name, cfg.Email, cfg.Password, models.RoleAdmin)
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	log.Printf("👤 Admin account %s created", user.Email)
	return nil
}
