package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bounty-marketplace/backend/internal/config"
	appcrypto "github.com/bounty-marketplace/backend/internal/crypto"
	"github.com/bounty-marketplace/backend/internal/db"
	"github.com/bounty-marketplace/backend/internal/events"
	apphttp "github.com/bounty-marketplace/backend/internal/http"
	"github.com/bounty-marketplace/backend/internal/http/handlers"
	"github.com/bounty-marketplace/backend/internal/lnd"
	"github.com/bounty-marketplace/backend/internal/nwc"
	"github.com/bounty-marketplace/backend/internal/repositories"
	"github.com/bounty-marketplace/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, "migrations", log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repositories
	userRepo := repositories.NewUserRepo(pool)
	ledgerRepo := repositories.NewLedgerRepo(pool)
	walletRepo := repositories.NewWalletRepo(pool)
	withdrawalRepo := repositories.NewWithdrawalRepo(pool)
	postRepo := repositories.NewPostRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Custodial rail
	lndClient, err := lnd.NewClient(cfg.LNDHost, cfg.LNDTLSCertPath, cfg.LNDMacaroonPath, log)
	if err != nil {
		log.Fatal("failed to init lnd client", zap.Error(err))
	}

	// Wallet secret encryption
	key := cfg.EncryptionKey()
	if key == nil {
		log.Fatal("WALLET_ENCRYPTION_KEY must be 32 hex-encoded bytes")
	}
	secretBox, err := appcrypto.NewSecretBox(key)
	if err != nil {
		log.Fatal("failed to init secret box", zap.Error(err))
	}

	// NWC client cache
	nwcCache := nwc.NewClientCache(nwc.DialRelay, cfg.NWCClientTTL)

	// Services
	notifier := services.NewNotifierClient(cfg.NotifierInternalURL, log)
	killSwitch := services.NewKillSwitch(rdb, log)
	capsService := services.NewCapsService(ledgerRepo, notifier, publisher, log)
	paymentService := services.NewPaymentService(ledgerRepo, walletRepo, lndClient, nwcCache, secretBox, auditRepo, publisher, log)
	withdrawalService := services.NewWithdrawalService(ledgerRepo, withdrawalRepo, auditRepo, lndClient, notifier, publisher, killSwitch, log)
	postService := services.NewPostService(postRepo, ledgerRepo, capsService, auditRepo, notifier, publisher, log)

	// Handlers
	authHandler := handlers.NewAuthHandler(userRepo, cfg, log)
	userHandler := handlers.NewUserHandler(userRepo, log)
	walletHandler := handlers.NewWalletHandler(paymentService, log)
	paymentHandler := handlers.NewPaymentHandler(paymentService, log)
	withdrawalHandler := handlers.NewWithdrawalHandler(withdrawalService, killSwitch, log)
	postHandler := handlers.NewPostHandler(postService, log)
	wsHub := handlers.NewWSHub(cfg, subscriber, log)

	// Start WS hub
	wsHub.Start(ctx)

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, authHandler, userHandler, walletHandler, paymentHandler, withdrawalHandler, postHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
