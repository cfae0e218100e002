package models

import (
	"time"

	"github.com/google/uuid"
)

// Post statuses
const (
	PostStatusLive      = "live"
	PostStatusCompleted = "completed"
	PostStatusClosed    = "closed"
)

// Post is a bounty: a task with a sat reward attached.
type Post struct {
	ID           uuid.UUID  `json:"id"`
	AuthorUserID uuid.UUID  `json:"author_user_id"`
	Title        string     `json:"title"`
	Description  *string    `json:"description,omitempty"`
	RewardSats   int64      `json:"reward_sats"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
}

// Submission statuses
const (
	SubmissionStatusPending  = "pending"
	SubmissionStatusSampled  = "sampled" // pulled for manual review
	SubmissionStatusAccepted = "accepted"
	SubmissionStatusRejected = "rejected"
)

// Submission is a worker's claimed fix for a post.
type Submission struct {
	ID           uuid.UUID `json:"id"`
	PostID       uuid.UUID `json:"post_id"`
	WorkerUserID uuid.UUID `json:"worker_user_id"`
	Content      string    `json:"content"`
	Confidence   float64   `json:"confidence"` // automated check score, 0-10
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}
