package handlers

import (
	"github.com/bounty-marketplace/backend/internal/http/dto"
	"github.com/bounty-marketplace/backend/internal/middleware"
	"github.com/bounty-marketplace/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type WalletHandler struct {
	paymentService *services.PaymentService
	log            *zap.Logger
}

func NewWalletHandler(paymentService *services.PaymentService, log *zap.Logger) *WalletHandler {
	return &WalletHandler{paymentService: paymentService, log: log}
}

// ConnectWallet подключает NWC-кошелёк после живой проверки соединения.
// POST /me/wallet/connect
func (h *WalletHandler) ConnectWallet(c *fiber.Ctx) error {
	var req dto.ConnectWalletRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if req.ConnectionString == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "connection_string is required"})
	}

	userID := middleware.GetUserID(c)
	wallet, err := h.paymentService.ConnectNWCWallet(c.Context(), userID, req.ConnectionString, req.WalletName)
	if err != nil {
		// err carries only the failure category, never the secret.
		h.log.Debug("wallet connect failed", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: wallet})
}

// DisconnectWallet отключает кошелёк и затирает секрет.
// DELETE /me/wallet
func (h *WalletHandler) DisconnectWallet(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if err := h.paymentService.DisconnectNWCWallet(c.Context(), userID); err != nil {
		h.log.Error("wallet disconnect failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "failed to disconnect wallet"})
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

// GetWallet возвращает routing-информацию о кошельках пользователя.
// GET /me/wallet
func (h *WalletHandler) GetWallet(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	info, err := h.paymentService.GetWalletInfo(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "failed to load wallet info"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: info})
}
