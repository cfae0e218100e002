package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/bounty-marketplace/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LedgerRepo is the money-facing query surface: balances, transaction
// history, withdrawal aggregates and the safety-cap stored procedures.
type LedgerRepo struct {
	pool *pgxpool.Pool
}

func NewLedgerRepo(pool *pgxpool.Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

func (r *LedgerRepo) GetUserBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx, `
		SELECT balance_sats FROM users WHERE id = $1
	`, userID).Scan(&balance)
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// GetUserWalletInfo joins the user's custodial balance with their
// active NWC wallet, if any.
func (r *LedgerRepo) GetUserWalletInfo(ctx context.Context, userID uuid.UUID) (*models.UserWalletInfo, error) {
	var info models.UserWalletInfo
	err := r.pool.QueryRow(ctx, `
		SELECT u.balance_sats,
		       w.id IS NOT NULL,
		       w.id,
		       w.wallet_name
		FROM users u
		LEFT JOIN nwc_wallets w ON w.user_id = u.id AND w.is_active = true
		WHERE u.id = $1
	`, userID).Scan(&info.CustodialBalanceSats, &info.HasNWCWallet, &info.NWCWalletID, &info.NWCWalletName)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// GetDailyWithdrawalTotal sums the user's withdrawals over the rolling
// last 24 hours. Pending withdrawals count so in-flight requests cannot
// be stacked past the daily cap.
func (r *LedgerRepo) GetDailyWithdrawalTotal(ctx context.Context, userID uuid.UUID) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_sats), 0)
		FROM transactions
		WHERE user_id = $1
		  AND type = 'withdrawal'
		  AND status IN ('pending', 'completed')
		  AND created_at > now() - interval '24 hours'
	`, userID).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

// GetSystemWithdrawalTotal sums completed withdrawals across all users
// since windowStart. Read-then-decide: concurrent withdrawals can both
// observe the same total before either commits. The ledger's own
// transaction guarantees bound the window; no extra locking here.
func (r *LedgerRepo) GetSystemWithdrawalTotal(ctx context.Context, windowStart time.Time) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_sats), 0)
		FROM transactions
		WHERE type = 'withdrawal'
		  AND status = 'completed'
		  AND created_at > $1
	`, windowStart).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

// ReconcileBalance returns the stored balance next to one recomputed
// from the full transaction history.
func (r *LedgerRepo) ReconcileBalance(ctx context.Context, userID uuid.UUID) (*models.BalanceReconciliation, error) {
	var rec models.BalanceReconciliation
	err := r.pool.QueryRow(ctx, `
		SELECT u.balance_sats,
		       COALESCE((
		           SELECT SUM(CASE
		               WHEN t.type IN ('deposit', 'reward') THEN t.amount_sats
		               ELSE -t.amount_sats
		           END)
		           FROM transactions t
		           WHERE t.user_id = u.id AND t.status = 'completed'
		       ), 0)
		FROM users u WHERE u.id = $1
	`, userID).Scan(&rec.StoredBalance, &rec.CalculatedBalance)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *LedgerRepo) RecordTransaction(ctx context.Context, tx *models.Transaction) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO transactions (user_id, type, status, amount_sats, wallet_type, payment_hash, r_hash, memo)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, tx.UserID, tx.Type, tx.Status, tx.AmountSats, tx.WalletType, tx.PaymentHash, tx.RHash, tx.Memo).
		Scan(&tx.ID, &tx.CreatedAt)
}

func (r *LedgerRepo) CompleteTransaction(ctx context.Context, txID uuid.UUID, paymentHash *string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE transactions
		SET status = 'completed', payment_hash = COALESCE($2, payment_hash), completed_at = now()
		WHERE id = $1
	`, txID, paymentHash)
	return err
}

func (r *LedgerRepo) FailTransaction(ctx context.Context, txID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE transactions SET status = 'failed', completed_at = now() WHERE id = $1
	`, txID)
	return err
}

// DebitBalance atomically debits a custodial balance, failing when the
// balance would go negative.
func (r *LedgerRepo) DebitBalance(ctx context.Context, userID uuid.UUID, amountSats int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET balance_sats = balance_sats - $2
		WHERE id = $1 AND balance_sats >= $2
	`, userID, amountSats)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("insufficient custodial balance")
	}
	return nil
}

func (r *LedgerRepo) CreditBalance(ctx context.Context, userID uuid.UUID, amountSats int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users SET balance_sats = balance_sats + $2 WHERE id = $1
	`, userID, amountSats)
	return err
}

// SettleDeposit marks a pending deposit completed and credits the
// user's balance in one database transaction. Returns false when the
// deposit was already settled by a concurrent worker.
func (r *LedgerRepo) SettleDeposit(ctx context.Context, txID, userID uuid.UUID, amountSats int64) (bool, error) {
	dbtx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer dbtx.Rollback(ctx)

	tag, err := dbtx.Exec(ctx, `
		UPDATE transactions SET status = 'completed', completed_at = now()
		WHERE id = $1 AND status = 'pending'
	`, txID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := dbtx.Exec(ctx, `
		UPDATE users SET balance_sats = balance_sats + $2 WHERE id = $1
	`, userID, amountSats); err != nil {
		return false, err
	}
	return true, dbtx.Commit(ctx)
}

// ListPendingDeposits returns custodial deposit invoices awaiting
// settlement, for the worker to poll against the node.
func (r *LedgerRepo) ListPendingDeposits(ctx context.Context, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, type, status, amount_sats, wallet_type, payment_hash, r_hash, memo, created_at, completed_at
		FROM transactions
		WHERE type = 'deposit' AND status = 'pending' AND wallet_type = 'custodial' AND r_hash IS NOT NULL
		ORDER BY created_at ASC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &t.Status, &t.AmountSats, &t.WalletType,
			&t.PaymentHash, &t.RHash, &t.Memo, &t.CreatedAt, &t.CompletedAt); err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// --- Safety-cap stored procedures ---
//
// Counting and the allow/deny decision happen inside SQL functions so
// they see a consistent snapshot. Go only interprets the row.

func (r *LedgerRepo) CheckBalanceCap(ctx context.Context, userID uuid.UUID, newBalance int64, isEarning bool) (*models.CapCheckResult, error) {
	return r.capRow(ctx, `SELECT * FROM check_balance_cap($1, $2, $3)`, userID, newBalance, isEarning)
}

func (r *LedgerRepo) CheckPostRewardCap(ctx context.Context, userID uuid.UUID, rewardSats int64) (*models.CapCheckResult, error) {
	return r.capRow(ctx, `SELECT * FROM check_post_reward_cap($1, $2)`, userID, rewardSats)
}

func (r *LedgerRepo) CheckLivePostsCap(ctx context.Context) (*models.CapCheckResult, error) {
	return r.capRow(ctx, `SELECT * FROM check_live_posts_cap()`)
}

func (r *LedgerRepo) capRow(ctx context.Context, sql string, args ...any) (*models.CapCheckResult, error) {
	var res models.CapCheckResult
	err := r.pool.QueryRow(ctx, sql, args...).
		Scan(&res.Allowed, &res.CapLevel, &res.ViolationID, &res.CurrentValue, &res.LimitValue)
	if err != nil {
		return nil, err
	}
	return &res, nil
}
