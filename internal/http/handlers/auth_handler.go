package handlers

import (
	"github.com/bounty-marketplace/backend/internal/auth"
	"github.com/bounty-marketplace/backend/internal/config"
	"github.com/bounty-marketplace/backend/internal/http/dto"
	"github.com/bounty-marketplace/backend/internal/models"
	"github.com/bounty-marketplace/backend/internal/rbac"
	"github.com/bounty-marketplace/backend/internal/repositories"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type AuthHandler struct {
	userRepo *repositories.UserRepo
	cfg      *config.Config
	log      *zap.Logger
}

func NewAuthHandler(userRepo *repositories.UserRepo, cfg *config.Config, log *zap.Logger) *AuthHandler {
	return &AuthHandler{userRepo: userRepo, cfg: cfg, log: log}
}

// Register создаёт пользователя и сразу выдаёт JWT.
// POST /auth/register
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if req.Username == "" || len(req.Password) < 8 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "username and a password of at least 8 characters are required"})
	}
	role := req.Role
	if role == "" {
		role = rbac.RoleWorker
	}
	if role != rbac.RolePoster && role != rbac.RoleWorker {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "role must be poster or worker"})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.log.Error("failed to hash password", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}

	var email *string
	if req.Email != "" {
		email = &req.Email
	}
	user := &models.User{
		Username:     req.Username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := h.userRepo.Create(c.Context(), user); err != nil {
		h.log.Debug("user create failed", zap.Error(err))
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: "username is taken"})
	}

	token, err := auth.GenerateJWT(h.cfg.JWTSecret, user.ID, user.Role, h.cfg.JWTExpiration)
	if err != nil {
		h.log.Error("failed to generate jwt", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}
	return c.JSON(dto.AuthResponse{Token: token, User: user})
}

// Login проверяет пароль и выдаёт JWT.
// POST /auth/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	user, err := h.userRepo.GetByUsername(c.Context(), req.Username)
	if err != nil {
		// Same answer for unknown user and bad password.
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "invalid credentials"})
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "invalid credentials"})
	}

	token, err := auth.GenerateJWT(h.cfg.JWTSecret, user.ID, user.Role, h.cfg.JWTExpiration)
	if err != nil {
		h.log.Error("failed to generate jwt", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}
	return c.JSON(dto.AuthResponse{Token: token, User: user})
}
