package handlers

import (
	"github.com/bounty-marketplace/backend/internal/bolt11"
	"github.com/bounty-marketplace/backend/internal/http/dto"
	"github.com/bounty-marketplace/backend/internal/middleware"
	"github.com/bounty-marketplace/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type PaymentHandler struct {
	paymentService *services.PaymentService
	log            *zap.Logger
}

func NewPaymentHandler(paymentService *services.PaymentService, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService, log: log}
}

// PayInvoice оплачивает инвойс через подходящий rail.
// POST /payments/pay
func (h *PaymentHandler) PayInvoice(c *fiber.Ctx) error {
	var req dto.PayInvoiceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if req.PaymentRequest == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "payment_request is required"})
	}

	userID := middleware.GetUserID(c)
	res, err := h.paymentService.RouteOutgoingPayment(c.Context(), userID, req.PaymentRequest, req.AmountSats, req.PreferredWallet)
	if err != nil {
		h.log.Error("payment routing failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}
	if !res.Success {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.SuccessResponse{OK: false, Data: res})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: res})
}

// CreateInvoice выставляет входящий инвойс.
// POST /payments/invoice
func (h *PaymentHandler) CreateInvoice(c *fiber.Ctx) error {
	var req dto.CreateInvoiceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	userID := middleware.GetUserID(c)
	res, err := h.paymentService.RouteInvoiceCreation(c.Context(), userID, req.AmountSats, req.Memo)
	if err != nil {
		h.log.Error("invoice routing failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}
	if !res.Success {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.SuccessResponse{OK: false, Data: res})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: res})
}

// DecodeInvoice разбирает BOLT11-инвойс без оплаты.
// GET /payments/decode?invoice=lnbc...
func (h *PaymentHandler) DecodeInvoice(c *fiber.Ctx) error {
	raw := c.Query("invoice")
	if raw == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invoice query parameter is required"})
	}

	inv := bolt11.Decode(raw)
	return c.JSON(dto.DecodedInvoiceResponse{
		Valid:         inv.Valid,
		AmountSats:    inv.AmountSats,
		Description:   inv.Description,
		ExpirySeconds: inv.ExpirySeconds,
		Timestamp:     inv.Timestamp,
		Display:       bolt11.TruncateForDisplay(raw, 12, 8),
	})
}
