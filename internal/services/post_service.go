package services

import (
	"context"
	"fmt"
	"time"

	"github.com/bounty-marketplace/backend/internal/events"
	"github.com/bounty-marketplace/backend/internal/fraud"
	"github.com/bounty-marketplace/backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PostStore persists posts and submissions.
type PostStore interface {
	Create(ctx context.Context, p *models.Post) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Post, error)
	ListLive(ctx context.Context, limit, offset int) ([]models.Post, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	CreateSubmission(ctx context.Context, s *models.Submission) error
	GetSubmission(ctx context.Context, id uuid.UUID) (*models.Submission, error)
	UpdateSubmissionStatus(ctx context.Context, id uuid.UUID, status string) error
}

// RewardLedger is the slice of the ledger reward payout needs.
type RewardLedger interface {
	CreditBalance(ctx context.Context, userID uuid.UUID, amountSats int64) error
	RecordTransaction(ctx context.Context, tx *models.Transaction) error
}

// PostService handles the bounty lifecycle: creation behind the safety
// caps, submission intake with fraud sampling, and reward payout.
type PostService struct {
	posts     PostStore
	ledger    RewardLedger
	caps      *CapsService
	audit     AuditLogger
	notifier  Notifier
	publisher events.Publisher
	log       *zap.Logger
}

func NewPostService(
	posts PostStore,
	ledger RewardLedger,
	caps *CapsService,
	audit AuditLogger,
	notifier Notifier,
	publisher events.Publisher,
	log *zap.Logger,
) *PostService {
	return &PostService{
		posts:     posts,
		ledger:    ledger,
		caps:      caps,
		audit:     audit,
		notifier:  notifier,
		publisher: publisher,
		log:       log,
	}
}

// CreatePost publishes a bounty after the reward and live-post caps
// clear. Both checks fail open, so cap engine downtime never blocks
// posting.
func (s *PostService) CreatePost(ctx context.Context, authorID uuid.UUID, title string, description *string, rewardSats int64) (*models.Post, error) {
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if rewardSats <= 0 {
		return nil, fmt.Errorf("reward must be positive")
	}

	if res := s.caps.CheckPostRewardCap(ctx, authorID, rewardSats); !res.Allowed {
		return nil, fmt.Errorf("reward exceeds the allowed maximum")
	}
	if res := s.caps.CheckLivePostsCap(ctx); !res.Allowed {
		return nil, fmt.Errorf("too many live posts right now, try again later")
	}

	post := &models.Post{
		AuthorUserID: authorID,
		Title:        title,
		Description:  description,
		RewardSats:   rewardSats,
		Status:       models.PostStatusLive,
	}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}

	s.logAudit(ctx, authorID, "post_created", post.ID, map[string]any{
		"reward_sats": rewardSats,
	})
	return post, nil
}

func (s *PostService) GetPost(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	return s.posts.GetByID(ctx, id)
}

func (s *PostService) ListLivePosts(ctx context.Context, limit, offset int) ([]models.Post, error) {
	return s.posts.ListLive(ctx, limit, offset)
}

// SubmitFix records a worker's submission and runs it through the
// risk-tiered sampler. Sampled submissions are parked for manual
// review instead of the normal acceptance flow.
func (s *PostService) SubmitFix(ctx context.Context, postID, workerID uuid.UUID, content string, confidence float64) (*models.Submission, error) {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("post not found")
	}
	if post.Status != models.PostStatusLive {
		return nil, fmt.Errorf("post is not accepting submissions")
	}
	if post.AuthorUserID == workerID {
		return nil, fmt.Errorf("cannot submit to your own post")
	}

	sub := &models.Submission{
		PostID:       postID,
		WorkerUserID: workerID,
		Content:      content,
		Confidence:   confidence,
		Status:       models.SubmissionStatusPending,
	}
	if err := s.posts.CreateSubmission(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to create submission: %w", err)
	}

	strategy := fraud.Classify(confidence, post.RewardSats)
	sampled := strategy.ShouldSample
	if sampled {
		if err := s.posts.UpdateSubmissionStatus(ctx, sub.ID, models.SubmissionStatusSampled); err != nil {
			s.log.Error("failed to mark submission sampled", zap.Error(err))
		} else {
			sub.Status = models.SubmissionStatusSampled
		}
		s.notifyAsync(func(ctx context.Context) error {
			return s.notifier.SendAdminAlert(ctx,
				"Submission pulled for review",
				fmt.Sprintf("risk %s, reward %d sats", strategy.RiskLevel, post.RewardSats),
				map[string]any{"submission_id": sub.ID.String()},
			)
		})
		// Best effort; review queues consume this off the stream.
		_ = s.publisher.Publish(ctx, events.StreamPayments, events.Event{
			Type: events.EventSubmissionSampled,
			Payload: map[string]any{
				"submission_id": sub.ID.String(),
				"post_id":       postID.String(),
				"risk_level":    string(strategy.RiskLevel),
			},
		})
	}

	s.logAudit(ctx, workerID, "submission_created", sub.ID, map[string]any{
		"post_id":       postID.String(),
		"risk_level":    string(strategy.RiskLevel),
		"sampling_rate": strategy.SamplingRate,
		"sampled":       sampled,
	})
	return sub, nil
}

// AcceptSubmission pays the bounty reward into the worker's custodial
// balance and closes the post. The balance cap is consulted with the
// earning flag set, which by contract never blocks.
func (s *PostService) AcceptSubmission(ctx context.Context, submissionID, reviewerID uuid.UUID) (*models.Submission, error) {
	sub, err := s.posts.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("submission not found")
	}
	if sub.Status != models.SubmissionStatusPending && sub.Status != models.SubmissionStatusSampled {
		return nil, fmt.Errorf("submission already resolved")
	}
	post, err := s.posts.GetByID(ctx, sub.PostID)
	if err != nil {
		return nil, fmt.Errorf("post not found")
	}
	if post.Status != models.PostStatusLive {
		return nil, fmt.Errorf("post is already closed")
	}

	// Advisory only: earnings are never blocked, a hard violation just
	// pages an admin.
	_ = s.caps.CheckBalanceCap(ctx, sub.WorkerUserID, post.RewardSats, true)

	if err := s.ledger.CreditBalance(ctx, sub.WorkerUserID, post.RewardSats); err != nil {
		return nil, fmt.Errorf("failed to credit reward: %w", err)
	}
	memo := fmt.Sprintf("reward for post %s", post.ID)
	if err := s.ledger.RecordTransaction(ctx, &models.Transaction{
		UserID:     sub.WorkerUserID,
		Type:       models.TxTypeReward,
		Status:     models.TxStatusCompleted,
		AmountSats: post.RewardSats,
		WalletType: models.WalletTypeCustodial,
		Memo:       &memo,
	}); err != nil {
		s.log.Error("failed to record reward transaction", zap.Error(err))
	}

	if err := s.posts.UpdateSubmissionStatus(ctx, sub.ID, models.SubmissionStatusAccepted); err != nil {
		s.log.Error("failed to mark submission accepted", zap.Error(err))
	} else {
		sub.Status = models.SubmissionStatusAccepted
	}
	if err := s.posts.UpdateStatus(ctx, post.ID, models.PostStatusCompleted); err != nil {
		s.log.Error("failed to complete post", zap.Error(err))
	}

	s.logAudit(ctx, reviewerID, "submission_accepted", sub.ID, map[string]any{
		"post_id":     post.ID.String(),
		"reward_sats": post.RewardSats,
	})
	s.notifyAsync(func(ctx context.Context) error {
		return s.notifier.SendUserNotification(ctx, sub.WorkerUserID, "reward_paid", map[string]any{
			"post_id":     post.ID.String(),
			"reward_sats": post.RewardSats,
		})
	})
	return sub, nil
}

// RejectSubmission resolves a submission without payout.
func (s *PostService) RejectSubmission(ctx context.Context, submissionID, reviewerID uuid.UUID) error {
	sub, err := s.posts.GetSubmission(ctx, submissionID)
	if err != nil {
		return fmt.Errorf("submission not found")
	}
	if sub.Status != models.SubmissionStatusPending && sub.Status != models.SubmissionStatusSampled {
		return fmt.Errorf("submission already resolved")
	}
	if err := s.posts.UpdateSubmissionStatus(ctx, sub.ID, models.SubmissionStatusRejected); err != nil {
		return err
	}
	s.logAudit(ctx, reviewerID, "submission_rejected", sub.ID, nil)
	return nil
}

func (s *PostService) logAudit(ctx context.Context, actorID uuid.UUID, action string, entityID uuid.UUID, meta map[string]any) {
	if err := s.audit.Log(ctx, models.AuditLog{
		ActorUserID: &actorID,
		ActorType:   "user",
		Action:      action,
		EntityType:  "post",
		EntityID:    &entityID,
		Meta:        meta,
	}); err != nil {
		s.log.Warn("audit log write failed", zap.String("action", action), zap.Error(err))
	}
}

func (s *PostService) notifyAsync(fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.log.Warn("notification not delivered", zap.Error(err))
		}
	}()
}
