package services

import (
	"context"
	"errors"
	"testing"

	"github.com/bounty-marketplace/backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type fakeCapsLedger struct {
	balanceRes *models.CapCheckResult
	balanceErr error
	rewardRes  *models.CapCheckResult
	rewardErr  error
	liveRes    *models.CapCheckResult
	liveErr    error
}

func (f *fakeCapsLedger) CheckBalanceCap(ctx context.Context, userID uuid.UUID, newBalance int64, isEarning bool) (*models.CapCheckResult, error) {
	return f.balanceRes, f.balanceErr
}

func (f *fakeCapsLedger) CheckPostRewardCap(ctx context.Context, userID uuid.UUID, rewardSats int64) (*models.CapCheckResult, error) {
	return f.rewardRes, f.rewardErr
}

func (f *fakeCapsLedger) CheckLivePostsCap(ctx context.Context) (*models.CapCheckResult, error) {
	return f.liveRes, f.liveErr
}

func capResult(allowed bool, level string) *models.CapCheckResult {
	id := uuid.New()
	return &models.CapCheckResult{Allowed: allowed, CapLevel: level, ViolationID: &id}
}

func TestCheckBalanceCapFailsOpen(t *testing.T) {
	ledger := &fakeCapsLedger{balanceErr: errors.New("db down")}
	svc := NewCapsService(ledger, &fakeNotifier{}, &fakePublisher{}, zap.NewNop())

	res := svc.CheckBalanceCap(context.Background(), uuid.New(), 1_000_000, false)
	if !res.Allowed {
		t.Fatal("cap checks must allow on ledger error")
	}
	if res.CapLevel != models.CapLevelNone {
		t.Errorf("cap level = %s, want none", res.CapLevel)
	}
}

func TestCheckBalanceCapEarningNeverBlocked(t *testing.T) {
	// Hard violation straight from the ledger.
	ledger := &fakeCapsLedger{balanceRes: capResult(false, models.CapLevelHard)}
	notifier := &fakeNotifier{}
	svc := NewCapsService(ledger, notifier, &fakePublisher{}, zap.NewNop())

	res := svc.CheckBalanceCap(context.Background(), uuid.New(), BalanceHardCapSats+1, true)
	if !res.Allowed {
		t.Fatal("earnings must never be blocked, even past the hard cap")
	}
	// The violation still pages an admin.
	waitFor(t, "cap violation alert", func() bool {
		alerts, _, _ := notifier.snapshot()
		return len(alerts) == 1
	})
}

func TestCheckBalanceCapDepositBlockedAtHard(t *testing.T) {
	ledger := &fakeCapsLedger{balanceRes: capResult(false, models.CapLevelHard)}
	svc := NewCapsService(ledger, &fakeNotifier{}, &fakePublisher{}, zap.NewNop())

	res := svc.CheckBalanceCap(context.Background(), uuid.New(), BalanceHardCapSats+1, false)
	if res.Allowed {
		t.Fatal("deposits past the hard cap must be blocked")
	}
}

func TestCheckPostRewardCap(t *testing.T) {
	t.Run("soft tier allows with warning level", func(t *testing.T) {
		ledger := &fakeCapsLedger{rewardRes: capResult(true, models.CapLevelSoft)}
		notifier := &fakeNotifier{}
		svc := NewCapsService(ledger, notifier, &fakePublisher{}, zap.NewNop())

		res := svc.CheckPostRewardCap(context.Background(), uuid.New(), PostRewardSoftCapSats+1)
		if !res.Allowed || res.CapLevel != models.CapLevelSoft {
			t.Fatalf("got %+v", res)
		}
		waitFor(t, "soft violation alert", func() bool {
			alerts, _, _ := notifier.snapshot()
			return len(alerts) == 1
		})
	})

	t.Run("ledger error fails open", func(t *testing.T) {
		ledger := &fakeCapsLedger{rewardErr: errors.New("db down")}
		svc := NewCapsService(ledger, &fakeNotifier{}, &fakePublisher{}, zap.NewNop())
		if res := svc.CheckPostRewardCap(context.Background(), uuid.New(), 1); !res.Allowed {
			t.Fatal("expected fail open")
		}
	})
}

func TestCheckLivePostsCap(t *testing.T) {
	t.Run("hard block at the system limit", func(t *testing.T) {
		ledger := &fakeCapsLedger{liveRes: capResult(false, models.CapLevelHard)}
		svc := NewCapsService(ledger, &fakeNotifier{}, &fakePublisher{}, zap.NewNop())
		if res := svc.CheckLivePostsCap(context.Background()); res.Allowed {
			t.Fatal("expected block at the live posts cap")
		}
	})

	t.Run("ledger error fails open", func(t *testing.T) {
		ledger := &fakeCapsLedger{liveErr: errors.New("db down")}
		svc := NewCapsService(ledger, &fakeNotifier{}, &fakePublisher{}, zap.NewNop())
		if res := svc.CheckLivePostsCap(context.Background()); !res.Allowed {
			t.Fatal("expected fail open")
		}
	})
}
