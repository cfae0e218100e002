package repositories

import (
	"context"

	"github.com/bounty-marketplace/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostRepo struct {
	pool *pgxpool.Pool
}

func NewPostRepo(pool *pgxpool.Pool) *PostRepo {
	return &PostRepo{pool: pool}
}

func (r *PostRepo) Create(ctx context.Context, p *models.Post) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO posts (author_user_id, title, description, reward_sats, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, p.AuthorUserID, p.Title, p.Description, p.RewardSats, p.Status).
		Scan(&p.ID, &p.CreatedAt)
}

func (r *PostRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	var p models.Post
	err := r.pool.QueryRow(ctx, `
		SELECT id, author_user_id, title, description, reward_sats, status, created_at, closed_at
		FROM posts WHERE id = $1
	`, id).Scan(&p.ID, &p.AuthorUserID, &p.Title, &p.Description, &p.RewardSats, &p.Status, &p.CreatedAt, &p.ClosedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostRepo) ListLive(ctx context.Context, limit, offset int) ([]models.Post, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, author_user_id, title, description, reward_sats, status, created_at, closed_at
		FROM posts WHERE status = 'live'
		ORDER BY created_at DESC LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []models.Post
	for rows.Next() {
		var p models.Post
		if err := rows.Scan(&p.ID, &p.AuthorUserID, &p.Title, &p.Description, &p.RewardSats, &p.Status, &p.CreatedAt, &p.ClosedAt); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (r *PostRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE posts
		SET status = $2,
		    closed_at = CASE WHEN $2 IN ('completed', 'closed') THEN now() ELSE closed_at END
		WHERE id = $1
	`, id, status)
	return err
}

func (r *PostRepo) CreateSubmission(ctx context.Context, s *models.Submission) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO submissions (post_id, worker_user_id, content, confidence, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, s.PostID, s.WorkerUserID, s.Content, s.Confidence, s.Status).
		Scan(&s.ID, &s.CreatedAt)
}

func (r *PostRepo) GetSubmission(ctx context.Context, id uuid.UUID) (*models.Submission, error) {
	var s models.Submission
	err := r.pool.QueryRow(ctx, `
		SELECT id, post_id, worker_user_id, content, confidence, status, created_at
		FROM submissions WHERE id = $1
	`, id).Scan(&s.ID, &s.PostID, &s.WorkerUserID, &s.Content, &s.Confidence, &s.Status, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *PostRepo) UpdateSubmissionStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE submissions SET status = $2 WHERE id = $1
	`, id, status)
	return err
}
