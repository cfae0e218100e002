package http

import (
	"time"

	"github.com/bounty-marketplace/backend/internal/config"
	"github.com/bounty-marketplace/backend/internal/http/handlers"
	"github.com/bounty-marketplace/backend/internal/middleware"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	authHandler *handlers.AuthHandler,
	userHandler *handlers.UserHandler,
	walletHandler *handlers.WalletHandler,
	paymentHandler *handlers.PaymentHandler,
	withdrawalHandler *handlers.WithdrawalHandler,
	postHandler *handlers.PostHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")

	// Auth (public)
	api.Post("/auth/register", authHandler.Register)
	api.Post("/auth/login", authHandler.Login)

	// Rate-limited endpoints
	api.Use(middleware.RateLimitMiddleware(rdb, 100, time.Minute))

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg, log))

	// User
	protected.Get("/me", userHandler.GetMe)
	protected.Post("/me/ping", userHandler.Ping)

	// Wallet (NWC)
	protected.Post("/me/wallet/connect", walletHandler.ConnectWallet)
	protected.Delete("/me/wallet", walletHandler.DisconnectWallet)
	protected.Get("/me/wallet", walletHandler.GetWallet)

	// Payments
	protected.Get("/payments/decode", paymentHandler.DecodeInvoice)
	protected.Post("/payments/pay", paymentHandler.PayInvoice)
	protected.Post("/payments/invoice", paymentHandler.CreateInvoice)

	// Withdrawals
	protected.Post("/withdrawals", withdrawalHandler.RequestWithdrawal)
	protected.Get("/withdrawals", withdrawalHandler.ListWithdrawals)

	// Posts and submissions
	protected.Post("/posts", postHandler.CreatePost)
	protected.Get("/posts", postHandler.ListPosts)
	protected.Get("/posts/:id", postHandler.GetPost)
	protected.Post("/posts/:id/submissions", postHandler.SubmitFix)
	protected.Post("/submissions/:id/accept", postHandler.AcceptSubmission)
	protected.Post("/submissions/:id/reject", postHandler.RejectSubmission)

	// Admin
	admin := protected.Group("/admin", middleware.AdminMiddleware(cfg))
	admin.Post("/withdrawals/approve/:token", withdrawalHandler.ApproveWithdrawal)
	admin.Post("/withdrawals/enable", withdrawalHandler.EnableWithdrawals)
	admin.Post("/withdrawals/disable", withdrawalHandler.DisableWithdrawals)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
