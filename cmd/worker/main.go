package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bounty-marketplace/backend/internal/config"
	"github.com/bounty-marketplace/backend/internal/db"
	"github.com/bounty-marketplace/backend/internal/events"
	"github.com/bounty-marketplace/backend/internal/lnd"
	"github.com/bounty-marketplace/backend/internal/repositories"
	"github.com/bounty-marketplace/backend/internal/services"
	"go.uber.org/zap"
)

const staleApprovalAge = time.Hour

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repos
	ledgerRepo := repositories.NewLedgerRepo(pool)
	withdrawalRepo := repositories.NewWithdrawalRepo(pool)

	// Services
	publisher := events.NewRedisPublisher(rdb, log)
	notifier := services.NewNotifierClient(cfg.NotifierInternalURL, log)
	capsService := services.NewCapsService(ledgerRepo, notifier, publisher, log)

	lndClient, err := lnd.NewClient(cfg.LNDHost, cfg.LNDTLSCertPath, cfg.LNDMacaroonPath, log)
	if err != nil {
		log.Fatal("failed to init lnd client", zap.Error(err))
	}

	log.Info("worker started")

	// Run jobs on tickers
	settlementTicker := time.NewTicker(cfg.SettlementPollInterval)
	reminderTicker := time.NewTicker(10 * time.Minute)
	defer settlementTicker.Stop()
	defer reminderTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-settlementTicker.C:
			runSettlementPoll(ctx, ledgerRepo, lndClient, capsService, publisher, log)
		case <-reminderTicker.C:
			runApprovalReminders(ctx, withdrawalRepo, notifier, log)
		case <-sigCh:
			log.Info("shutting down worker")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

// runSettlementPoll checks pending custodial deposit invoices against
// the node and credits balances for the ones that settled.
func runSettlementPoll(ctx context.Context, ledgerRepo *repositories.LedgerRepo, lndClient *lnd.Client, capsService *services.CapsService, publisher events.Publisher, log *zap.Logger) {
	deposits, err := ledgerRepo.ListPendingDeposits(ctx, 100)
	if err != nil {
		log.Error("failed to list pending deposits", zap.Error(err))
		return
	}

	for _, tx := range deposits {
		if tx.RHash == nil {
			continue
		}
		status, err := lndClient.CheckInvoice(ctx, *tx.RHash)
		if err != nil {
			log.Warn("invoice lookup failed", zap.String("tx_id", tx.ID.String()), zap.Error(err))
			continue
		}
		if !status.Settled {
			continue
		}

		settled, err := ledgerRepo.SettleDeposit(ctx, tx.ID, tx.UserID, tx.AmountSats)
		if err != nil {
			log.Error("failed to settle deposit", zap.String("tx_id", tx.ID.String()), zap.Error(err))
			continue
		}
		if !settled {
			continue
		}

		log.Info("deposit settled",
			zap.String("tx_id", tx.ID.String()),
			zap.Int64("amount_sats", tx.AmountSats),
		)

		_ = publisher.Publish(ctx, events.StreamPayments, events.Event{
			Type: events.EventInvoiceSettled,
			Payload: map[string]any{
				"transaction_id": tx.ID.String(),
				"user_id":        tx.UserID.String(),
				"amount_sats":    tx.AmountSats,
			},
		})

		// The funds already arrived on the node, so the cap result is
		// advisory here: the violation alert fires inside the check.
		if balance, err := ledgerRepo.GetUserBalance(ctx, tx.UserID); err == nil {
			capsService.CheckBalanceCap(ctx, tx.UserID, balance, false)
		}
	}
}

// runApprovalReminders re-pages admins about withdrawal requests that
// have been waiting on manual approval for too long.
func runApprovalReminders(ctx context.Context, withdrawalRepo *repositories.WithdrawalRepo, notifier services.Notifier, log *zap.Logger) {
	stale, err := withdrawalRepo.ListStalePendingApprovals(ctx, staleApprovalAge, 50)
	if err != nil {
		log.Error("failed to list stale approvals", zap.Error(err))
		return
	}

	for _, w := range stale {
		log.Warn("withdrawal still pending approval",
			zap.String("withdrawal_id", w.ID.String()),
			zap.Int64("amount_sats", w.AmountSats),
		)
		meta := map[string]any{"withdrawal_id": w.ID.String()}
		if w.ApprovalToken != nil {
			meta["approve_token"] = w.ApprovalToken.String()
		}
		if err := notifier.SendAdminAlert(ctx, "Withdrawal approval overdue",
			fmt.Sprintf("Withdrawal of %d sats has been pending approval since %s.", w.AmountSats, w.CreatedAt.Format(time.RFC3339)),
			meta); err != nil {
			log.Warn("failed to send approval reminder", zap.Error(err))
		}
		// Pager copy stays redacted: amount and truncated ids only.
		_ = notifier.SendSMS(ctx, fmt.Sprintf("REMINDER withdrawal %d sats pending approval (req %s)", w.AmountSats, w.ID.String()[:8]))
	}
}
