package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        *string   `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"` // poster/worker/admin
	BalanceSats  int64     `json:"balance_sats"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// UserWalletInfo is the per-request routing view of a user's wallets:
// whether an NWC wallet is connected and what the custodial balance is.
// Always derived fresh from the ledger, never cached.
type UserWalletInfo struct {
	HasNWCWallet         bool       `json:"has_nwc_wallet"`
	NWCWalletID          *uuid.UUID `json:"nwc_wallet_id,omitempty"`
	NWCWalletName        *string    `json:"nwc_wallet_name,omitempty"`
	CustodialBalanceSats int64      `json:"custodial_balance_sats"`
}
