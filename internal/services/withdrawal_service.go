package services

import (
	"context"
	"fmt"
	"time"

	"github.com/bounty-marketplace/backend/internal/bolt11"
	"github.com/bounty-marketplace/backend/internal/events"
	"github.com/bounty-marketplace/backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Withdrawal limits, in satoshis. The approval threshold is inclusive:
// a withdrawal of exactly the threshold requires approval, so the
// boundary itself cannot be gamed.
const (
	MaxWithdrawalPerTxSats = 100_000
	MaxDailyWithdrawalSats = 500_000
	ApprovalThresholdSats  = 25_000
	SystemHourlyCapSats    = 25_000
	systemWithdrawalWindow = time.Hour
)

// rejectedUserMessage deliberately says nothing about limits or the
// approval workflow. Probing attackers learn nothing from it.
const rejectedUserMessage = "Your withdrawal could not be processed at this time."

// WithdrawalLedger is the slice of the ledger the guard reads.
type WithdrawalLedger interface {
	GetDailyWithdrawalTotal(ctx context.Context, userID uuid.UUID) (int64, error)
	GetSystemWithdrawalTotal(ctx context.Context, windowStart time.Time) (int64, error)
	ReconcileBalance(ctx context.Context, userID uuid.UUID) (*models.BalanceReconciliation, error)
	RecordTransaction(ctx context.Context, tx *models.Transaction) error
	CompleteTransaction(ctx context.Context, txID uuid.UUID, paymentHash *string) error
	FailTransaction(ctx context.Context, txID uuid.UUID) error
	DebitBalance(ctx context.Context, userID uuid.UUID, amountSats int64) error
	CreditBalance(ctx context.Context, userID uuid.UUID, amountSats int64) error
}

// WithdrawalStore persists the per-request state machine.
type WithdrawalStore interface {
	Create(ctx context.Context, w *models.WithdrawalRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error)
	GetByApprovalToken(ctx context.Context, token uuid.UUID) (*models.WithdrawalRequest, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) error
	MarkRejected(ctx context.Context, id uuid.UUID, from, reason string) error
	MarkExecuted(ctx context.Context, id uuid.UUID, paymentHash string) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.WithdrawalRequest, error)
}

// AuditLogger appends to the audit trail. Failures are swallowed by
// callers on money paths.
type AuditLogger interface {
	Log(ctx context.Context, entry models.AuditLog) error
}

// WithdrawalPayer executes an approved withdrawal over the custodial
// rail.
type WithdrawalPayer interface {
	PayInvoice(ctx context.Context, paymentRequest string, amountSats *int64) (string, error)
}

// WithdrawalGate is the platform-wide disable flag, satisfied by
// *KillSwitch.
type WithdrawalGate interface {
	WithdrawalsDisabled(ctx context.Context) (bool, error)
	DisableWithdrawals(ctx context.Context) error
}

// LimitCheck is the outcome of the per-user limit gate.
type LimitCheck struct {
	Allowed            bool
	RequiresApproval   bool
	RemainingDailySats int64
	Message            string
}

// ReconciliationCheck reports whether stored and recomputed balances
// agree. Reconciles is false on any error or any nonzero discrepancy.
type ReconciliationCheck struct {
	Reconciles        bool
	StoredBalance     int64
	CalculatedBalance int64
}

// ThresholdCheck is the outcome of the system-wide hourly gate.
type ThresholdCheck struct {
	Allowed            bool
	DisableWithdrawals bool
	CurrentTotalSats   int64
}

// WithdrawalService is the fund-safety guard in front of every
// withdrawal. Unlike the caps engine, every check here FAILS CLOSED on
// a ledger error: limit verification is the last line of defense
// against fund loss, so an unavailable ledger means no withdrawal.
// Keep that asymmetry; it is not an accident.
type WithdrawalService struct {
	ledger     WithdrawalLedger
	store      WithdrawalStore
	audit      AuditLogger
	payer      WithdrawalPayer
	notifier   Notifier
	publisher  events.Publisher
	killSwitch WithdrawalGate
	log        *zap.Logger
}

func NewWithdrawalService(
	ledger WithdrawalLedger,
	store WithdrawalStore,
	audit AuditLogger,
	payer WithdrawalPayer,
	notifier Notifier,
	publisher events.Publisher,
	killSwitch WithdrawalGate,
	log *zap.Logger,
) *WithdrawalService {
	return &WithdrawalService{
		ledger:     ledger,
		store:      store,
		audit:      audit,
		payer:      payer,
		notifier:   notifier,
		publisher:  publisher,
		killSwitch: killSwitch,
		log:        log,
	}
}

// CheckWithdrawalLimits validates amount against the per-transaction
// and rolling daily caps and flags whether manual approval is needed.
func (s *WithdrawalService) CheckWithdrawalLimits(ctx context.Context, userID uuid.UUID, amountSats int64) LimitCheck {
	if amountSats <= 0 {
		return LimitCheck{Message: "withdrawal amount must be positive"}
	}
	if amountSats > MaxWithdrawalPerTxSats {
		return LimitCheck{Message: fmt.Sprintf("amount exceeds the per-transaction limit of %d sats", MaxWithdrawalPerTxSats)}
	}

	dailyTotal, err := s.ledger.GetDailyWithdrawalTotal(ctx, userID)
	if err != nil {
		// Fail closed.
		s.log.Error("daily withdrawal total unavailable, denying", zap.Error(err))
		return LimitCheck{Message: "withdrawal limit verification is unavailable"}
	}
	if dailyTotal+amountSats > MaxDailyWithdrawalSats {
		remaining := MaxDailyWithdrawalSats - dailyTotal
		if remaining < 0 {
			remaining = 0
		}
		return LimitCheck{
			RemainingDailySats: remaining,
			Message:            fmt.Sprintf("daily withdrawal limit exceeded, %d sats remaining today", remaining),
		}
	}

	return LimitCheck{
		Allowed:            true,
		RequiresApproval:   amountSats >= ApprovalThresholdSats, // inclusive
		RemainingDailySats: MaxDailyWithdrawalSats - dailyTotal - amountSats,
	}
}

// CheckBalanceReconciliation recomputes the user balance from history.
// Any discrepancy, in either direction, blocks withdrawal.
func (s *WithdrawalService) CheckBalanceReconciliation(ctx context.Context, userID uuid.UUID) ReconciliationCheck {
	rec, err := s.ledger.ReconcileBalance(ctx, userID)
	if err != nil {
		s.log.Error("balance reconciliation unavailable, denying", zap.Error(err))
		return ReconciliationCheck{}
	}
	return ReconciliationCheck{
		Reconciles:        rec.Reconciles(),
		StoredBalance:     rec.StoredBalance,
		CalculatedBalance: rec.CalculatedBalance,
	}
}

// CheckSystemWithdrawalThreshold gates total completed withdrawals in
// the trailing hour, across all users. A breach signals that outbound
// withdrawals should be disabled platform-wide.
//
// The read and the decision are not serialized against concurrent
// withdrawals; two requests can pass on the same snapshot. Accepted:
// the window is short and the executed totals are rechecked every
// request. Fixing it properly needs a reserve-and-check primitive on
// the ledger side.
func (s *WithdrawalService) CheckSystemWithdrawalThreshold(ctx context.Context, amountSats int64) ThresholdCheck {
	total, err := s.ledger.GetSystemWithdrawalTotal(ctx, time.Now().Add(-systemWithdrawalWindow))
	if err != nil {
		s.log.Error("system withdrawal total unavailable, denying", zap.Error(err))
		return ThresholdCheck{}
	}
	if total+amountSats > SystemHourlyCapSats {
		return ThresholdCheck{DisableWithdrawals: true, CurrentTotalSats: total}
	}
	return ThresholdCheck{Allowed: true, CurrentTotalSats: total}
}

// RequestWithdrawal runs the full guard pipeline for a new withdrawal
// and executes it when it auto-approves.
func (s *WithdrawalService) RequestWithdrawal(ctx context.Context, userID uuid.UUID, paymentRequest string, amountSats int64) (*models.WithdrawalRequest, error) {
	if disabled, err := s.killSwitch.WithdrawalsDisabled(ctx); err == nil && disabled {
		return nil, fmt.Errorf("withdrawals are temporarily disabled")
	}

	// The rail pays whatever the invoice encodes, so every limit below
	// is meaningless unless the claimed amount matches the invoice.
	inv := bolt11.Decode(paymentRequest)
	if !inv.Valid {
		return nil, fmt.Errorf("invalid payment request")
	}
	if inv.AmountSats != nil && *inv.AmountSats != amountSats {
		return nil, fmt.Errorf("invoice amount does not match the requested amount")
	}

	// 1. Per-user limits, checked before the row exists so the approval
	// flag is known at insert time.
	limits := s.CheckWithdrawalLimits(ctx, userID, amountSats)

	token := uuid.New()
	w := &models.WithdrawalRequest{
		UserID:           userID,
		AmountSats:       amountSats,
		PaymentRequest:   paymentRequest,
		Status:           models.WithdrawalStatusRequested,
		RequiresApproval: limits.Allowed && limits.RequiresApproval,
		ApprovalToken:    &token,
	}
	if err := s.store.Create(ctx, w); err != nil {
		return nil, fmt.Errorf("failed to create withdrawal request: %w", err)
	}

	s.logAudit(ctx, userID, "withdrawal_limit_check", w.ID, map[string]any{
		"amount_sats": amountSats,
		"allowed":     limits.Allowed,
	})
	if !limits.Allowed {
		s.reject(ctx, w, models.WithdrawalStatusRequested, limits.Message)
		return s.store.GetByID(ctx, w.ID)
	}
	if err := s.store.UpdateStatus(ctx, w.ID, models.WithdrawalStatusRequested, models.WithdrawalStatusLimitChecked); err != nil {
		return nil, err
	}

	// 2. Balance reconciliation
	rec := s.CheckBalanceReconciliation(ctx, userID)
	s.logAudit(ctx, userID, "withdrawal_reconciliation_check", w.ID, map[string]any{
		"reconciles": rec.Reconciles,
	})
	if !rec.Reconciles {
		s.alertAdmin(userID, w.ID, amountSats,
			"Withdrawal blocked: balance reconciliation failure",
			fmt.Sprintf("user %s: stored %d sats, calculated %d sats", userID, rec.StoredBalance, rec.CalculatedBalance),
		)
		s.reject(ctx, w, models.WithdrawalStatusLimitChecked, "balance reconciliation failed")
		return s.store.GetByID(ctx, w.ID)
	}

	// 3. System-wide hourly threshold
	threshold := s.CheckSystemWithdrawalThreshold(ctx, amountSats)
	s.logAudit(ctx, userID, "withdrawal_system_threshold_check", w.ID, map[string]any{
		"allowed":       threshold.Allowed,
		"current_total": threshold.CurrentTotalSats,
	})
	if !threshold.Allowed {
		if threshold.DisableWithdrawals {
			if err := s.killSwitch.DisableWithdrawals(ctx); err != nil {
				s.log.Error("failed to set withdrawal kill switch", zap.Error(err))
			}
		}
		s.alertAdmin(userID, w.ID, amountSats,
			"System withdrawal threshold breached, withdrawals disabled",
			fmt.Sprintf("hourly total %d sats, attempted %d sats", threshold.CurrentTotalSats, amountSats),
		)
		s.reject(ctx, w, models.WithdrawalStatusLimitChecked, "system withdrawal threshold exceeded")
		return s.store.GetByID(ctx, w.ID)
	}
	if err := s.store.UpdateStatus(ctx, w.ID, models.WithdrawalStatusLimitChecked, models.WithdrawalStatusReconciliationChecked); err != nil {
		return nil, err
	}

	// 4. Approval gate
	if w.RequiresApproval {
		if err := s.store.UpdateStatus(ctx, w.ID, models.WithdrawalStatusReconciliationChecked, models.WithdrawalStatusPendingApproval); err != nil {
			return nil, err
		}
		s.notifyAsync(func(ctx context.Context) error {
			return s.notifier.SendAdminAlert(ctx,
				"Withdrawal approval required",
				fmt.Sprintf("%d sats withdrawal awaiting approval", amountSats),
				map[string]any{
					"withdrawal_id": w.ID.String(),
					"approve_token": token.String(),
				},
			)
		})
		s.publishStatus(ctx, w, models.WithdrawalStatusPendingApproval)
		return s.store.GetByID(ctx, w.ID)
	}

	if err := s.store.UpdateStatus(ctx, w.ID, models.WithdrawalStatusReconciliationChecked, models.WithdrawalStatusAutoApproved); err != nil {
		return nil, err
	}
	if err := s.execute(ctx, w, models.WithdrawalStatusAutoApproved); err != nil {
		s.log.Error("auto-approved withdrawal failed to execute",
			zap.String("withdrawal_id", w.ID.String()),
			zap.Error(err),
		)
	}
	return s.store.GetByID(ctx, w.ID)
}

// ApproveWithdrawal executes a pending withdrawal via its approval
// token (from the admin approve link).
func (s *WithdrawalService) ApproveWithdrawal(ctx context.Context, token uuid.UUID, adminID uuid.UUID) (*models.WithdrawalRequest, error) {
	w, err := s.store.GetByApprovalToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("withdrawal not found")
	}
	if w.Status != models.WithdrawalStatusPendingApproval {
		return nil, fmt.Errorf("withdrawal is not awaiting approval")
	}
	if err := s.store.UpdateStatus(ctx, w.ID, models.WithdrawalStatusPendingApproval, models.WithdrawalStatusApproved); err != nil {
		return nil, err
	}
	s.logAudit(ctx, adminID, "withdrawal_approved", w.ID, map[string]any{"amount_sats": w.AmountSats})

	if err := s.execute(ctx, w, models.WithdrawalStatusApproved); err != nil {
		s.log.Error("approved withdrawal failed to execute",
			zap.String("withdrawal_id", w.ID.String()),
			zap.Error(err),
		)
	}
	return s.store.GetByID(ctx, w.ID)
}

func (s *WithdrawalService) ListWithdrawals(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.WithdrawalRequest, error) {
	return s.store.ListByUser(ctx, userID, limit, offset)
}

// execute debits the custodial balance and pays the invoice. Once the
// rail call is dispatched it runs to a terminal state; there is no
// cancellation mid-flight, an abandoned payment would leave funds in an
// ambiguous state.
func (s *WithdrawalService) execute(ctx context.Context, w *models.WithdrawalRequest, fromStatus string) error {
	if err := s.ledger.DebitBalance(ctx, w.UserID, w.AmountSats); err != nil {
		s.reject(ctx, w, fromStatus, "insufficient balance")
		return err
	}

	walletType := models.WalletTypeCustodial
	tx := &models.Transaction{
		UserID:     w.UserID,
		Type:       models.TxTypeWithdrawal,
		Status:     models.TxStatusPending,
		AmountSats: w.AmountSats,
		WalletType: walletType,
	}
	if err := s.ledger.RecordTransaction(ctx, tx); err != nil {
		s.log.Error("failed to record withdrawal transaction", zap.Error(err))
	}

	// Any-amount invoices need the amount on the rail call. Fixed-amount
	// invoices carry their own, already cross-checked at request time.
	var payAmount *int64
	if bolt11.ExtractAmount(w.PaymentRequest) == nil {
		amt := w.AmountSats
		payAmount = &amt
	}
	paymentHash, err := s.payer.PayInvoice(ctx, w.PaymentRequest, payAmount)
	if err != nil {
		// Refund the debit; the rail never moved funds.
		if crederr := s.ledger.CreditBalance(ctx, w.UserID, w.AmountSats); crederr != nil {
			s.log.Error("failed to refund after payment failure",
				zap.String("withdrawal_id", w.ID.String()),
				zap.Error(crederr),
			)
		}
		_ = s.ledger.FailTransaction(ctx, tx.ID)
		s.reject(ctx, w, fromStatus, "payment failed")
		return err
	}

	_ = s.ledger.CompleteTransaction(ctx, tx.ID, &paymentHash)
	if err := s.store.MarkExecuted(ctx, w.ID, paymentHash); err != nil {
		return err
	}
	s.logAudit(ctx, w.UserID, "withdrawal_executed", w.ID, map[string]any{
		"amount_sats": w.AmountSats,
	})
	s.publishStatus(ctx, w, models.WithdrawalStatusExecuted)
	s.notifyAsync(func(ctx context.Context) error {
		return s.notifier.SendUserNotification(ctx, w.UserID, "withdrawal_completed", map[string]any{
			"withdrawal_id": w.ID.String(),
			"amount_sats":   w.AmountSats,
		})
	})
	return nil
}

// reject moves the request to rejected and tells the user a generic
// message. The real reason goes to the audit trail only.
func (s *WithdrawalService) reject(ctx context.Context, w *models.WithdrawalRequest, fromStatus, reason string) {
	if err := s.store.MarkRejected(ctx, w.ID, fromStatus, reason); err != nil {
		s.log.Error("failed to mark withdrawal rejected",
			zap.String("withdrawal_id", w.ID.String()),
			zap.Error(err),
		)
	}
	s.logAudit(ctx, w.UserID, "withdrawal_rejected", w.ID, map[string]any{
		"amount_sats": w.AmountSats,
		"reason":      reason,
	})
	s.notifyAsync(func(ctx context.Context) error {
		return s.notifier.SendUserNotification(ctx, w.UserID, "withdrawal_rejected", map[string]any{
			"withdrawal_id": w.ID.String(),
			"message":       rejectedUserMessage,
		})
	})
	s.publishStatus(ctx, w, models.WithdrawalStatusRejected)
}

// publishStatus pushes the state change to the realtime stream. Best
// effort; the store's state machine stays the source of truth. The
// payload never carries the reject reason.
func (s *WithdrawalService) publishStatus(ctx context.Context, w *models.WithdrawalRequest, status string) {
	_ = s.publisher.Publish(ctx, events.StreamWithdrawals, events.Event{
		Type: events.EventWithdrawalStatusChanged,
		Payload: map[string]any{
			"withdrawal_id": w.ID.String(),
			"user_id":       w.UserID.String(),
			"status":        status,
			"amount_sats":   w.AmountSats,
		},
	})
}

// alertAdmin pages via redacted SMS and sends the full detail by the
// admin alert channel. The SMS carries the amount and a truncated id
// only.
func (s *WithdrawalService) alertAdmin(userID uuid.UUID, withdrawalID uuid.UUID, amountSats int64, subject, body string) {
	shortID := userID.String()[:8]
	s.notifyAsync(func(ctx context.Context) error {
		return s.notifier.SendSMS(ctx, fmt.Sprintf("ALERT withdrawal %d sats user %s", amountSats, shortID))
	})
	s.notifyAsync(func(ctx context.Context) error {
		return s.notifier.SendAdminAlert(ctx, subject, body, map[string]any{
			"withdrawal_id": withdrawalID.String(),
			"user_id":       userID.String(),
			"amount_sats":   amountSats,
		})
	})
}

func (s *WithdrawalService) logAudit(ctx context.Context, actorID uuid.UUID, action string, entityID uuid.UUID, meta map[string]any) {
	if err := s.audit.Log(ctx, models.AuditLog{
		ActorUserID: &actorID,
		ActorType:   "user",
		Action:      action,
		EntityType:  "withdrawal",
		EntityID:    &entityID,
		Meta:        meta,
	}); err != nil {
		s.log.Warn("audit log write failed", zap.String("action", action), zap.Error(err))
	}
}

func (s *WithdrawalService) notifyAsync(fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.log.Warn("notification not delivered", zap.Error(err))
		}
	}()
}
