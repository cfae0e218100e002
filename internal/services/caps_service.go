package services

import (
	"context"
	"fmt"
	"time"

	"github.com/bounty-marketplace/backend/internal/events"
	"github.com/bounty-marketplace/backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Balance / reward / live-post caps, in satoshis. These are advisory
// safety rails, not the last line of defense — that asymmetry against
// the withdrawal limits is deliberate (see WithdrawalService).
const (
	BalanceSoftCapSats    = 20_000
	BalanceHardCapSats    = 40_000
	PostRewardSoftCapSats = 5_000
	PostRewardHardCapSats = 10_000
	MaxLivePosts          = 200
)

// CapsLedger is the stored-procedure boundary: counting and the
// allow/deny decision happen atomically on the ledger side.
type CapsLedger interface {
	CheckBalanceCap(ctx context.Context, userID uuid.UUID, newBalance int64, isEarning bool) (*models.CapCheckResult, error)
	CheckPostRewardCap(ctx context.Context, userID uuid.UUID, rewardSats int64) (*models.CapCheckResult, error)
	CheckLivePostsCap(ctx context.Context) (*models.CapCheckResult, error)
}

// CapsService wraps the cap stored procedures with the fail-open policy
// and admin notification. Every check here FAILS OPEN on ledger error:
// these caps protect against abuse patterns, and availability wins over
// strictness for them. Withdrawal checks have the opposite policy.
type CapsService struct {
	ledger    CapsLedger
	notifier  Notifier
	publisher events.Publisher
	log       *zap.Logger
}

func NewCapsService(ledger CapsLedger, notifier Notifier, publisher events.Publisher, log *zap.Logger) *CapsService {
	return &CapsService{ledger: ledger, notifier: notifier, publisher: publisher, log: log}
}

// CheckBalanceCap gates custodial balance growth. Earnings from
// completed jobs are never blocked regardless of level; deposits are
// soft-warned and hard-blocked.
func (s *CapsService) CheckBalanceCap(ctx context.Context, userID uuid.UUID, newBalance int64, isEarning bool) *models.CapCheckResult {
	res, err := s.ledger.CheckBalanceCap(ctx, userID, newBalance, isEarning)
	if err != nil {
		s.log.Error("balance cap check failed, allowing", zap.Error(err))
		return failOpen()
	}
	if isEarning {
		// Job completions always pass; the violation row (if any) still
		// feeds the admin notification below.
		res.Allowed = true
	}
	s.notifyViolation(res, "balance cap", userID.String())
	return res
}

// CheckPostRewardCap gates the reward attached to a new post.
func (s *CapsService) CheckPostRewardCap(ctx context.Context, userID uuid.UUID, rewardSats int64) *models.CapCheckResult {
	res, err := s.ledger.CheckPostRewardCap(ctx, userID, rewardSats)
	if err != nil {
		s.log.Error("post reward cap check failed, allowing", zap.Error(err))
		return failOpen()
	}
	s.notifyViolation(res, "post reward cap", userID.String())
	return res
}

// CheckLivePostsCap gates total concurrently live posts system-wide.
// Hard-only: there is no soft tier for this one.
func (s *CapsService) CheckLivePostsCap(ctx context.Context) *models.CapCheckResult {
	res, err := s.ledger.CheckLivePostsCap(ctx)
	if err != nil {
		s.log.Error("live posts cap check failed, allowing", zap.Error(err))
		return failOpen()
	}
	s.notifyViolation(res, "live posts cap", "system")
	return res
}

func failOpen() *models.CapCheckResult {
	return &models.CapCheckResult{Allowed: true, CapLevel: models.CapLevelNone}
}

// notifyViolation fires the admin alert in the background. A failed
// notification never fails the cap check.
func (s *CapsService) notifyViolation(res *models.CapCheckResult, capName, subject string) {
	if res.CapLevel == models.CapLevelNone || res.CapLevel == "" {
		return
	}

	meta := map[string]any{"cap": capName, "subject": subject, "level": res.CapLevel}
	if res.ViolationID != nil {
		meta["violation_id"] = res.ViolationID.String()
	}
	if res.CurrentValue != nil {
		meta["current"] = *res.CurrentValue
	}
	if res.LimitValue != nil {
		meta["limit"] = *res.LimitValue
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// Best effort; the violation row in the ledger is the record.
		_ = s.publisher.Publish(ctx, events.StreamPayments, events.Event{
			Type:    events.EventCapViolation,
			Payload: meta,
		})
		err := s.notifier.SendAdminAlert(ctx,
			fmt.Sprintf("%s %s violation", capName, res.CapLevel),
			fmt.Sprintf("%s hit the %s tier of the %s", subject, res.CapLevel, capName),
			meta,
		)
		if err != nil {
			s.log.Warn("cap violation alert not delivered", zap.String("cap", capName), zap.Error(err))
		}
	}()
}
