package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/bounty-marketplace/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type WithdrawalRepo struct {
	pool *pgxpool.Pool
}

func NewWithdrawalRepo(pool *pgxpool.Pool) *WithdrawalRepo {
	return &WithdrawalRepo{pool: pool}
}

func (r *WithdrawalRepo) Create(ctx context.Context, w *models.WithdrawalRequest) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO withdrawal_requests (user_id, amount_sats, payment_request, status, requires_approval, approval_token)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, w.UserID, w.AmountSats, w.PaymentRequest, w.Status, w.RequiresApproval, w.ApprovalToken).
		Scan(&w.ID, &w.CreatedAt, &w.UpdatedAt)
}

func (r *WithdrawalRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	return r.scanOne(ctx, `
		SELECT id, user_id, amount_sats, payment_request, status, requires_approval,
		       approval_token, reject_reason, payment_hash, created_at, updated_at
		FROM withdrawal_requests WHERE id = $1
	`, id)
}

// GetByApprovalToken resolves the token embedded in an approval link.
func (r *WithdrawalRepo) GetByApprovalToken(ctx context.Context, token uuid.UUID) (*models.WithdrawalRequest, error) {
	return r.scanOne(ctx, `
		SELECT id, user_id, amount_sats, payment_request, status, requires_approval,
		       approval_token, reject_reason, payment_hash, created_at, updated_at
		FROM withdrawal_requests WHERE approval_token = $1
	`, token)
}

// UpdateStatus moves a request along the state machine, enforcing the
// valid-transition table at the database row we actually hold.
func (r *WithdrawalRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) error {
	if !models.IsValidWithdrawalTransition(from, to) {
		return fmt.Errorf("invalid withdrawal transition from %s to %s", from, to)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE withdrawal_requests SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("withdrawal %s is no longer in status %s", id, from)
	}
	return nil
}

func (r *WithdrawalRepo) MarkRejected(ctx context.Context, id uuid.UUID, from, reason string) error {
	if !models.IsValidWithdrawalTransition(from, models.WithdrawalStatusRejected) {
		return fmt.Errorf("invalid withdrawal transition from %s to rejected", from)
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE withdrawal_requests
		SET status = 'rejected', reject_reason = $2, updated_at = now()
		WHERE id = $1
	`, id, reason)
	return err
}

func (r *WithdrawalRepo) MarkExecuted(ctx context.Context, id uuid.UUID, paymentHash string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE withdrawal_requests
		SET status = 'executed', payment_hash = $2, updated_at = now()
		WHERE id = $1
	`, id, paymentHash)
	return err
}

func (r *WithdrawalRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.WithdrawalRequest, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, amount_sats, payment_request, status, requires_approval,
		       approval_token, reject_reason, payment_hash, created_at, updated_at
		FROM withdrawal_requests WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.WithdrawalRequest
	for rows.Next() {
		var w models.WithdrawalRequest
		if err := scanWithdrawal(rows.Scan, &w); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ListStalePendingApprovals returns requests that have sat in
// pending_approval longer than maxAge, oldest first. The worker uses
// this to re-page admins about forgotten approvals.
func (r *WithdrawalRepo) ListStalePendingApprovals(ctx context.Context, maxAge time.Duration, limit int) ([]models.WithdrawalRequest, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, amount_sats, payment_request, status, requires_approval,
		       approval_token, reject_reason, payment_hash, created_at, updated_at
		FROM withdrawal_requests
		WHERE status = 'pending_approval' AND updated_at < now() - make_interval(secs => $1)
		ORDER BY updated_at ASC LIMIT $2
	`, maxAge.Seconds(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.WithdrawalRequest
	for rows.Next() {
		var w models.WithdrawalRequest
		if err := scanWithdrawal(rows.Scan, &w); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *WithdrawalRepo) scanOne(ctx context.Context, sql string, args ...any) (*models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	if err := scanWithdrawal(r.pool.QueryRow(ctx, sql, args...).Scan, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func scanWithdrawal(scan func(...any) error, w *models.WithdrawalRequest) error {
	return scan(&w.ID, &w.UserID, &w.AmountSats, &w.PaymentRequest, &w.Status, &w.RequiresApproval,
		&w.ApprovalToken, &w.RejectReason, &w.PaymentHash, &w.CreatedAt, &w.UpdatedAt)
}
