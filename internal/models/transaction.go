package models

import (
	"time"

	"github.com/google/uuid"
)

// Transaction types
const (
	TxTypeDeposit    = "deposit"
	TxTypeWithdrawal = "withdrawal"
	TxTypeReward     = "reward"
	TxTypePayment    = "payment"
)

// Transaction statuses
const (
	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
	TxStatusFailed    = "failed"
)

type Transaction struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	AmountSats  int64      `json:"amount_sats"`
	WalletType  string     `json:"wallet_type,omitempty"` // custodial/nwc
	PaymentHash *string    `json:"payment_hash,omitempty"`
	RHash       *string    `json:"r_hash,omitempty"`
	Memo        *string    `json:"memo,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// BalanceReconciliation compares the stored balance against one
// recomputed from the transaction history.
type BalanceReconciliation struct {
	StoredBalance     int64 `json:"stored_balance"`
	CalculatedBalance int64 `json:"calculated_balance"`
}

func (r BalanceReconciliation) Reconciles() bool {
	return r.StoredBalance == r.CalculatedBalance
}
