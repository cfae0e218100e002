package handlers

import (
	"github.com/bounty-marketplace/backend/internal/http/dto"
	"github.com/bounty-marketplace/backend/internal/middleware"
	"github.com/bounty-marketplace/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type WithdrawalHandler struct {
	withdrawalService *services.WithdrawalService
	killSwitch        *services.KillSwitch
	log               *zap.Logger
}

func NewWithdrawalHandler(withdrawalService *services.WithdrawalService, killSwitch *services.KillSwitch, log *zap.Logger) *WithdrawalHandler {
	return &WithdrawalHandler{withdrawalService: withdrawalService, killSwitch: killSwitch, log: log}
}

// RequestWithdrawal прогоняет вывод через все проверки.
// POST /withdrawals
func (h *WithdrawalHandler) RequestWithdrawal(c *fiber.Ctx) error {
	var req dto.WithdrawRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if req.PaymentRequest == "" || req.AmountSats <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "payment_request and a positive amount_sats are required"})
	}

	userID := middleware.GetUserID(c)
	w, err := h.withdrawalService.RequestWithdrawal(c.Context(), userID, req.PaymentRequest, req.AmountSats)
	if err != nil {
		h.log.Debug("withdrawal request failed", zap.Error(err))
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: w})
}

// ListWithdrawals возвращает историю выводов пользователя.
// GET /withdrawals
func (h *WithdrawalHandler) ListWithdrawals(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)

	list, err := h.withdrawalService.ListWithdrawals(c.Context(), userID, limit, offset)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "failed to load withdrawals"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: list})
}

// ApproveWithdrawal исполняет отложенный вывод по токену из approve-ссылки.
// POST /admin/withdrawals/approve/:token
func (h *WithdrawalHandler) ApproveWithdrawal(c *fiber.Ctx) error {
	token, err := uuid.Parse(c.Params("token"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid approval token"})
	}

	adminID := middleware.GetUserID(c)
	w, err := h.withdrawalService.ApproveWithdrawal(c.Context(), token, adminID)
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: w})
}

// EnableWithdrawals снимает глобальную блокировку выводов.
// POST /admin/withdrawals/enable
func (h *WithdrawalHandler) EnableWithdrawals(c *fiber.Ctx) error {
	if err := h.killSwitch.EnableWithdrawals(c.Context()); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "failed to enable withdrawals"})
	}
	h.log.Info("withdrawals enabled", zap.String("admin_id", middleware.GetUserID(c).String()))
	return c.JSON(dto.SuccessResponse{OK: true})
}

// DisableWithdrawals включает глобальную блокировку вручную.
// POST /admin/withdrawals/disable
func (h *WithdrawalHandler) DisableWithdrawals(c *fiber.Ctx) error {
	if err := h.killSwitch.DisableWithdrawals(c.Context()); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "failed to disable withdrawals"})
	}
	h.log.Info("withdrawals disabled", zap.String("admin_id", middleware.GetUserID(c).String()))
	return c.JSON(dto.SuccessResponse{OK: true})
}
