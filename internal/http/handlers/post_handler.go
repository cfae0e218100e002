package handlers

import (
	"github.com/bounty-marketplace/backend/internal/http/dto"
	"github.com/bounty-marketplace/backend/internal/middleware"
	"github.com/bounty-marketplace/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type PostHandler struct {
	postService *services.PostService
	log         *zap.Logger
}

func NewPostHandler(postService *services.PostService, log *zap.Logger) *PostHandler {
	return &PostHandler{postService: postService, log: log}
}

// CreatePost публикует новое задание.
// POST /posts
func (h *PostHandler) CreatePost(c *fiber.Ctx) error {
	var req dto.CreatePostRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	userID := middleware.GetUserID(c)
	post, err := h.postService.CreatePost(c.Context(), userID, req.Title, req.Description, req.RewardSats)
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: post})
}

// ListPosts возвращает активные задания.
// GET /posts
func (h *PostHandler) ListPosts(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)

	posts, err := h.postService.ListLivePosts(c.Context(), limit, offset)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "failed to load posts"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: posts})
}

// GetPost возвращает задание по id.
// GET /posts/:id
func (h *PostHandler) GetPost(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid post id"})
	}
	post, err := h.postService.GetPost(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "post not found"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: post})
}

// SubmitFix отправляет решение на задание.
// POST /posts/:id/submissions
func (h *PostHandler) SubmitFix(c *fiber.Ctx) error {
	postID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid post id"})
	}
	var req dto.SubmitFixRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "content is required"})
	}

	userID := middleware.GetUserID(c)
	sub, err := h.postService.SubmitFix(c.Context(), postID, userID, req.Content, req.Confidence)
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: sub})
}

// AcceptSubmission принимает решение и выплачивает награду.
// POST /submissions/:id/accept
func (h *PostHandler) AcceptSubmission(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid submission id"})
	}

	reviewerID := middleware.GetUserID(c)
	sub, err := h.postService.AcceptSubmission(c.Context(), id, reviewerID)
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: sub})
}

// RejectSubmission отклоняет решение без выплаты.
// POST /submissions/:id/reject
func (h *PostHandler) RejectSubmission(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid submission id"})
	}

	reviewerID := middleware.GetUserID(c)
	if err := h.postService.RejectSubmission(c.Context(), id, reviewerID); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}
