package models

import (
	"time"

	"github.com/google/uuid"
)

// Withdrawal statuses
const (
	WithdrawalStatusRequested             = "requested"
	WithdrawalStatusLimitChecked          = "limit_checked"
	WithdrawalStatusReconciliationChecked = "reconciliation_checked"
	WithdrawalStatusAutoApproved          = "auto_approved"
	WithdrawalStatusPendingApproval       = "pending_approval"
	WithdrawalStatusApproved              = "approved"
	WithdrawalStatusExecuted              = "executed"
	WithdrawalStatusRejected              = "rejected"
)

// Valid state transitions: from -> []to
var ValidWithdrawalTransitions = map[string][]string{
	WithdrawalStatusRequested:             {WithdrawalStatusLimitChecked, WithdrawalStatusRejected},
	WithdrawalStatusLimitChecked:          {WithdrawalStatusReconciliationChecked, WithdrawalStatusRejected},
	WithdrawalStatusReconciliationChecked: {WithdrawalStatusAutoApproved, WithdrawalStatusPendingApproval, WithdrawalStatusRejected},
	WithdrawalStatusPendingApproval:       {WithdrawalStatusApproved, WithdrawalStatusRejected},
	WithdrawalStatusAutoApproved:          {WithdrawalStatusExecuted, WithdrawalStatusRejected},
	WithdrawalStatusApproved:              {WithdrawalStatusExecuted, WithdrawalStatusRejected},
	WithdrawalStatusExecuted:              {},
	WithdrawalStatusRejected:              {},
}

func IsValidWithdrawalTransition(from, to string) bool {
	allowed, ok := ValidWithdrawalTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

type WithdrawalRequest struct {
	ID               uuid.UUID  `json:"id"`
	UserID           uuid.UUID  `json:"user_id"`
	AmountSats       int64      `json:"amount_sats"`
	PaymentRequest   string     `json:"payment_request"`
	Status           string     `json:"status"`
	RequiresApproval bool       `json:"requires_approval"`
	ApprovalToken    *uuid.UUID `json:"-"`
	RejectReason     *string    `json:"reject_reason,omitempty"`
	PaymentHash      *string    `json:"payment_hash,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
