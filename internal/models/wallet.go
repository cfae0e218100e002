package models

import (
	"time"

	"github.com/google/uuid"
)

// NWCWallet is a user-connected non-custodial wallet. The connection
// string is stored encrypted and is scrubbed on disconnect, not merely
// deactivated.
type NWCWallet struct {
	ID                  uuid.UUID  `json:"id"`
	UserID              uuid.UUID  `json:"user_id"`
	WalletPubkey        string     `json:"wallet_pubkey"`
	RelayURL            string     `json:"relay_url"`
	WalletName          *string    `json:"wallet_name,omitempty"`
	ConnectionEncrypted string     `json:"-"`
	ConnectedAt         time.Time  `json:"connected_at"`
	DisconnectedAt      *time.Time `json:"disconnected_at,omitempty"`
	IsActive            bool       `json:"is_active"`
}
