package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bounty-marketplace/backend/internal/bolt11"
	"github.com/bounty-marketplace/backend/internal/crypto"
	"github.com/bounty-marketplace/backend/internal/events"
	"github.com/bounty-marketplace/backend/internal/lnd"
	"github.com/bounty-marketplace/backend/internal/models"
	"github.com/bounty-marketplace/backend/internal/nwc"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// nwcCallTimeout bounds every relay round trip, same budget as the
// custodial rail.
const nwcCallTimeout = 10 * time.Second

// RoutingLedger is the slice of the ledger the router needs.
type RoutingLedger interface {
	GetUserWalletInfo(ctx context.Context, userID uuid.UUID) (*models.UserWalletInfo, error)
	DebitBalance(ctx context.Context, userID uuid.UUID, amountSats int64) error
	CreditBalance(ctx context.Context, userID uuid.UUID, amountSats int64) error
	RecordTransaction(ctx context.Context, tx *models.Transaction) error
	CompleteTransaction(ctx context.Context, txID uuid.UUID, paymentHash *string) error
	FailTransaction(ctx context.Context, txID uuid.UUID) error
}

// WalletStore persists NWC wallet records.
type WalletStore interface {
	ConnectWallet(ctx context.Context, w *models.NWCWallet) error
	DeactivateAllWallets(ctx context.Context, userID uuid.UUID) error
	ScrubSecrets(ctx context.Context, userID uuid.UUID) error
	GetActiveWallet(ctx context.Context, userID uuid.UUID) (*models.NWCWallet, error)
}

// CustodialRail is the platform node, satisfied by *lnd.Client.
type CustodialRail interface {
	CreateInvoice(ctx context.Context, amountSats int64, memo string) (*lnd.CreatedInvoice, error)
	PayInvoice(ctx context.Context, paymentRequest string, amountSats *int64) (string, error)
	CheckInvoice(ctx context.Context, rHash string) (*lnd.InvoiceStatus, error)
}

// PaymentService routes payments and invoices to the right rail: a
// user's connected NWC wallet when they have one, the custodial
// balance otherwise. Wallet resolution happens fresh on every call; a
// wallet connected or dropped mid-session changes the route of the
// next payment, never a past one.
type PaymentService struct {
	ledger    RoutingLedger
	wallets   WalletStore
	rail      CustodialRail
	cache     *nwc.ClientCache
	box       *crypto.SecretBox
	audit     AuditLogger
	publisher events.Publisher
	log       *zap.Logger
}

func NewPaymentService(
	ledger RoutingLedger,
	wallets WalletStore,
	rail CustodialRail,
	cache *nwc.ClientCache,
	box *crypto.SecretBox,
	audit AuditLogger,
	publisher events.Publisher,
	log *zap.Logger,
) *PaymentService {
	return &PaymentService{
		ledger:    ledger,
		wallets:   wallets,
		rail:      rail,
		cache:     cache,
		box:       box,
		audit:     audit,
		publisher: publisher,
		log:       log,
	}
}

// RouteOutgoingPayment pays an invoice on the user's behalf.
// amountSats is consulted only for any-amount invoices; an invoice
// that carries its own amount always wins. preferredWallet forces a
// rail; when empty the user's active NWC wallet is preferred, falling
// back to custodial.
func (s *PaymentService) RouteOutgoingPayment(ctx context.Context, userID uuid.UUID, paymentRequest string, amountSats *int64, preferredWallet string) (*models.PaymentRoutingResult, error) {
	decoded := bolt11.Decode(paymentRequest)
	inv := &decoded
	if !inv.Valid {
		return payFailure(models.WalletTypeCustodial, models.PayErrInvalidInvoice, "invalid payment request"), nil
	}

	// 1. Resolve the route
	info, err := s.ledger.GetUserWalletInfo(ctx, userID)
	if err != nil {
		s.log.Error("wallet info lookup failed", zap.Error(err))
		return payFailure(models.WalletTypeCustodial, models.PayErrNoWallet, "wallet lookup failed"), nil
	}
	walletType := preferredWallet
	if walletType == "" {
		if info.HasNWCWallet {
			walletType = models.WalletTypeNWC
		} else {
			walletType = models.WalletTypeCustodial
		}
	}

	// 2. Validate the route against the user's actual wallets
	if walletType == models.WalletTypeNWC {
		if !info.HasNWCWallet {
			return payFailure(models.WalletTypeNWC, models.PayErrNoWallet, "no connected wallet"), nil
		}
		return s.payViaNWC(ctx, userID, paymentRequest, inv)
	}
	if info.CustodialBalanceSats < invoiceAmount(inv, amountSats) {
		return payFailure(models.WalletTypeCustodial, models.PayErrInsufficientBalance, "insufficient balance"), nil
	}
	return s.payViaCustodial(ctx, userID, paymentRequest, inv, amountSats)
}

func (s *PaymentService) payViaNWC(ctx context.Context, userID uuid.UUID, paymentRequest string, inv *bolt11.Invoice) (*models.PaymentRoutingResult, error) {
	wallet, err := s.wallets.GetActiveWallet(ctx, userID)
	if err != nil {
		return payFailure(models.WalletTypeNWC, models.PayErrMissingConnection, "wallet connection unavailable"), nil
	}
	connection, err := s.box.Decrypt(wallet.ConnectionEncrypted)
	if err != nil {
		return payFailure(models.WalletTypeNWC, models.PayErrMissingConnection, "wallet connection unavailable"), nil
	}

	client, err := s.cache.GetOrCreate(ctx, connection)
	if err != nil {
		s.auditPayment(ctx, userID, wallet.WalletPubkey, inv, false, "connect failed")
		return payFailure(models.WalletTypeNWC, models.PayErrMissingConnection, "could not reach wallet"), nil
	}

	callCtx, cancel := context.WithTimeout(ctx, nwcCallTimeout)
	defer cancel()
	preimage, err := client.SendPayment(callCtx, paymentRequest)
	if err != nil {
		// Connection state may be stale after a failed send.
		s.cache.Clear(wallet.WalletPubkey)
		code := classifyNWCError(err)
		s.auditPayment(ctx, userID, wallet.WalletPubkey, inv, false, code)
		return payFailure(models.WalletTypeNWC, code, "payment failed"), nil
	}

	s.auditPayment(ctx, userID, wallet.WalletPubkey, inv, true, "")
	tx := &models.Transaction{
		UserID:     userID,
		Type:       models.TxTypePayment,
		Status:     models.TxStatusCompleted,
		AmountSats: invoiceAmount(inv, nil),
		WalletType: models.WalletTypeNWC,
	}
	if err := s.ledger.RecordTransaction(ctx, tx); err != nil {
		s.log.Error("failed to record nwc payment", zap.Error(err))
	}
	s.publishPayment(ctx, userID, models.WalletTypeNWC, tx.AmountSats)
	return &models.PaymentRoutingResult{
		WalletType: models.WalletTypeNWC,
		Success:    true,
		Preimage:   &preimage,
	}, nil
}

func (s *PaymentService) payViaCustodial(ctx context.Context, userID uuid.UUID, paymentRequest string, inv *bolt11.Invoice, amountSats *int64) (*models.PaymentRoutingResult, error) {
	amount := invoiceAmount(inv, amountSats)
	if amount <= 0 {
		return payFailure(models.WalletTypeCustodial, models.PayErrInvalidInvoice, "payment amount required"), nil
	}

	if err := s.ledger.DebitBalance(ctx, userID, amount); err != nil {
		return payFailure(models.WalletTypeCustodial, models.PayErrInsufficientBalance, "insufficient balance"), nil
	}

	tx := &models.Transaction{
		UserID:     userID,
		Type:       models.TxTypePayment,
		Status:     models.TxStatusPending,
		AmountSats: amount,
		WalletType: models.WalletTypeCustodial,
	}
	if err := s.ledger.RecordTransaction(ctx, tx); err != nil {
		s.log.Error("failed to record custodial payment", zap.Error(err))
	}

	// The rail accepts an explicit amount only for any-amount invoices.
	var explicitAmount *int64
	if inv.AmountSats == nil {
		explicitAmount = &amount
	}
	paymentHash, err := s.rail.PayInvoice(ctx, paymentRequest, explicitAmount)
	if err != nil {
		if crederr := s.ledger.CreditBalance(ctx, userID, amount); crederr != nil {
			s.log.Error("failed to refund after payment failure", zap.Error(crederr))
		}
		_ = s.ledger.FailTransaction(ctx, tx.ID)
		return payFailure(models.WalletTypeCustodial, classifyRailError(err), "payment failed"), nil
	}

	_ = s.ledger.CompleteTransaction(ctx, tx.ID, &paymentHash)
	s.publishPayment(ctx, userID, models.WalletTypeCustodial, amount)
	return &models.PaymentRoutingResult{
		WalletType:  models.WalletTypeCustodial,
		Success:     true,
		PaymentHash: &paymentHash,
	}, nil
}

// publishPayment is best effort; the ledger row is the record.
func (s *PaymentService) publishPayment(ctx context.Context, userID uuid.UUID, walletType string, amountSats int64) {
	_ = s.publisher.Publish(ctx, events.StreamPayments, events.Event{
		Type: events.EventPaymentSent,
		Payload: map[string]any{
			"user_id":     userID.String(),
			"wallet_type": walletType,
			"amount_sats": amountSats,
		},
	})
}

// RouteInvoiceCreation creates an incoming invoice on the user's
// preferred rail.
func (s *PaymentService) RouteInvoiceCreation(ctx context.Context, userID uuid.UUID, amountSats int64, memo string) (*models.InvoiceRoutingResult, error) {
	if amountSats <= 0 {
		return invoiceFailure(models.WalletTypeCustodial, models.PayErrInvoiceFailed, "amount must be positive"), nil
	}

	info, err := s.ledger.GetUserWalletInfo(ctx, userID)
	if err != nil {
		s.log.Error("wallet info lookup failed", zap.Error(err))
		return invoiceFailure(models.WalletTypeCustodial, models.PayErrInvoiceFailed, "wallet lookup failed"), nil
	}

	if info.HasNWCWallet {
		wallet, err := s.wallets.GetActiveWallet(ctx, userID)
		if err != nil {
			return invoiceFailure(models.WalletTypeNWC, models.PayErrMissingConnection, "wallet connection unavailable"), nil
		}
		connection, err := s.box.Decrypt(wallet.ConnectionEncrypted)
		if err != nil {
			return invoiceFailure(models.WalletTypeNWC, models.PayErrMissingConnection, "wallet connection unavailable"), nil
		}
		client, err := s.cache.GetOrCreate(ctx, connection)
		if err != nil {
			return invoiceFailure(models.WalletTypeNWC, models.PayErrMissingConnection, "could not reach wallet"), nil
		}
		callCtx, cancel := context.WithTimeout(ctx, nwcCallTimeout)
		defer cancel()
		created, err := client.MakeInvoice(callCtx, amountSats, memo)
		if err != nil {
			s.cache.Clear(wallet.WalletPubkey)
			return invoiceFailure(models.WalletTypeNWC, models.PayErrInvoiceFailed, "invoice creation failed"), nil
		}
		return &models.InvoiceRoutingResult{
			WalletType:     models.WalletTypeNWC,
			Success:        true,
			PaymentRequest: &created.PaymentRequest,
			RHash:          &created.RHash,
		}, nil
	}

	created, err := s.rail.CreateInvoice(ctx, amountSats, memo)
	if err != nil {
		return invoiceFailure(models.WalletTypeCustodial, classifyRailError(err), "invoice creation failed"), nil
	}
	return &models.InvoiceRoutingResult{
		WalletType:     models.WalletTypeCustodial,
		Success:        true,
		PaymentRequest: &created.PaymentRequest,
		RHash:          &created.RHash,
	}, nil
}

// ConnectNWCWallet validates a connection string with a live handshake
// before persisting it. Only one active wallet per user; prior wallets
// are deactivated.
func (s *PaymentService) ConnectNWCWallet(ctx context.Context, userID uuid.UUID, connectionString string, walletName *string) (*models.NWCWallet, error) {
	parts, err := nwc.ParseConnectionString(connectionString)
	if err != nil {
		return nil, fmt.Errorf("invalid connection string: %w", err)
	}

	// Prove the wallet actually answers before we store anything.
	client, err := s.cache.GetOrCreate(ctx, connectionString)
	if err != nil {
		return nil, fmt.Errorf("wallet handshake failed: %w", err)
	}
	callCtx, cancel := context.WithTimeout(ctx, nwcCallTimeout)
	defer cancel()
	if _, err := client.GetBalance(callCtx); err != nil {
		s.cache.Clear(parts.WalletPubkey)
		return nil, fmt.Errorf("wallet handshake failed: %w", err)
	}

	sealed, err := s.box.Encrypt(connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to protect connection string: %w", err)
	}

	if err := s.wallets.DeactivateAllWallets(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to deactivate prior wallets: %w", err)
	}
	wallet := &models.NWCWallet{
		UserID:              userID,
		WalletPubkey:        parts.WalletPubkey,
		RelayURL:            parts.RelayURL,
		WalletName:          walletName,
		ConnectionEncrypted: sealed,
		IsActive:            true,
	}
	if err := s.wallets.ConnectWallet(ctx, wallet); err != nil {
		return nil, fmt.Errorf("failed to save wallet: %w", err)
	}

	s.logAudit(ctx, userID, "nwc_wallet_connected", wallet.ID, map[string]any{
		"wallet_pubkey": truncatePubkey(parts.WalletPubkey),
		"relay_url":     parts.RelayURL,
	})
	return wallet, nil
}

// DisconnectNWCWallet drops the cached client and scrubs the stored
// connection string. Deactivating alone is not enough, the secret must
// not survive disconnect.
func (s *PaymentService) DisconnectNWCWallet(ctx context.Context, userID uuid.UUID) error {
	wallet, err := s.wallets.GetActiveWallet(ctx, userID)
	if err == nil {
		s.cache.Clear(wallet.WalletPubkey)
	}

	if err := s.wallets.ScrubSecrets(ctx, userID); err != nil {
		return fmt.Errorf("failed to scrub wallet secrets: %w", err)
	}
	if err := s.wallets.DeactivateAllWallets(ctx, userID); err != nil {
		return fmt.Errorf("failed to deactivate wallets: %w", err)
	}

	s.logAudit(ctx, userID, "nwc_wallet_disconnected", userID, nil)
	return nil
}

// GetWalletInfo exposes the routing view for API handlers.
func (s *PaymentService) GetWalletInfo(ctx context.Context, userID uuid.UUID) (*models.UserWalletInfo, error) {
	return s.ledger.GetUserWalletInfo(ctx, userID)
}

// auditPayment records the attempt. Amounts and a truncated pubkey
// only; the connection string and its secret never reach the trail.
func (s *PaymentService) auditPayment(ctx context.Context, userID uuid.UUID, pubkey string, inv *bolt11.Invoice, success bool, code string) {
	meta := map[string]any{
		"wallet_pubkey": truncatePubkey(pubkey),
		"amount_sats":   invoiceAmount(inv, nil),
		"success":       success,
	}
	if code != "" {
		meta["error_code"] = code
	}
	s.logAudit(ctx, userID, "nwc_payment_attempt", userID, meta)
}

func (s *PaymentService) logAudit(ctx context.Context, actorID uuid.UUID, action string, entityID uuid.UUID, meta map[string]any) {
	if err := s.audit.Log(ctx, models.AuditLog{
		ActorUserID: &actorID,
		ActorType:   "user",
		Action:      action,
		EntityType:  "payment",
		EntityID:    &entityID,
		Meta:        meta,
	}); err != nil {
		s.log.Warn("audit log write failed", zap.String("action", action), zap.Error(err))
	}
}

// classifyNWCError maps relay/wallet error text onto typed codes. NWC
// wallet services disagree on phrasing, so this matches substrings.
func classifyNWCError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.PayErrTimeout
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient"):
		return models.PayErrInsufficientBalance
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		return models.PayErrTimeout
	case strings.Contains(msg, "no route") || strings.Contains(msg, "no_route"):
		return models.PayErrNoRoute
	default:
		return models.PayErrPaymentFailed
	}
}

func classifyRailError(err error) string {
	if errors.Is(err, lnd.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return models.PayErrTimeout
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient"):
		return models.PayErrInsufficientBalance
	case strings.Contains(msg, "no_route") || strings.Contains(msg, "unable to find a path"):
		return models.PayErrNoRoute
	default:
		return models.PayErrPaymentFailed
	}
}

func invoiceAmount(inv *bolt11.Invoice, fallback *int64) int64 {
	if inv != nil && inv.AmountSats != nil {
		return *inv.AmountSats
	}
	if fallback != nil {
		return *fallback
	}
	return 0
}

func truncatePubkey(pubkey string) string {
	if len(pubkey) <= 12 {
		return pubkey
	}
	return pubkey[:12] + "..."
}

func payFailure(walletType, code, message string) *models.PaymentRoutingResult {
	return &models.PaymentRoutingResult{
		WalletType:   walletType,
		ErrorCode:    &code,
		ErrorMessage: &message,
	}
}

func invoiceFailure(walletType, code, message string) *models.InvoiceRoutingResult {
	return &models.InvoiceRoutingResult{
		WalletType:   walletType,
		ErrorCode:    &code,
		ErrorMessage: &message,
	}
}
