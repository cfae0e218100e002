package repositories

import (
	"context"

	"github.com/bounty-marketplace/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WalletRepo persists NWC wallet connections. The connection string is
// stored encrypted and wiped on disconnect.
type WalletRepo struct {
	pool *pgxpool.Pool
}

func NewWalletRepo(pool *pgxpool.Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

func (r *WalletRepo) ConnectWallet(ctx context.Context, w *models.NWCWallet) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO nwc_wallets (user_id, wallet_pubkey, relay_url, wallet_name, connection_encrypted, is_active)
		VALUES ($1, $2, $3, $4, $5, true)
		ON CONFLICT (user_id, wallet_pubkey) DO UPDATE SET
			relay_url = EXCLUDED.relay_url,
			wallet_name = EXCLUDED.wallet_name,
			connection_encrypted = EXCLUDED.connection_encrypted,
			is_active = true,
			disconnected_at = NULL,
			connected_at = now()
		RETURNING id, connected_at
	`, w.UserID, w.WalletPubkey, w.RelayURL, w.WalletName, w.ConnectionEncrypted).
		Scan(&w.ID, &w.ConnectedAt)
}

func (r *WalletRepo) DeactivateAllWallets(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE nwc_wallets SET is_active = false, disconnected_at = now()
		WHERE user_id = $1 AND is_active = true
	`, userID)
	return err
}

// ScrubSecrets deactivates the user's wallets AND overwrites the stored
// connection strings. Disconnect must not leave a secret at rest.
func (r *WalletRepo) ScrubSecrets(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE nwc_wallets
		SET is_active = false, disconnected_at = now(), connection_encrypted = ''
		WHERE user_id = $1
	`, userID)
	return err
}

func (r *WalletRepo) GetActiveWallet(ctx context.Context, userID uuid.UUID) (*models.NWCWallet, error) {
	var w models.NWCWallet
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, wallet_pubkey, relay_url, wallet_name, connection_encrypted,
		       connected_at, disconnected_at, is_active
		FROM nwc_wallets
		WHERE user_id = $1 AND is_active = true
		ORDER BY connected_at DESC LIMIT 1
	`, userID).Scan(
		&w.ID, &w.UserID, &w.WalletPubkey, &w.RelayURL, &w.WalletName, &w.ConnectionEncrypted,
		&w.ConnectedAt, &w.DisconnectedAt, &w.IsActive,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}
