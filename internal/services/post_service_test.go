package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bounty-marketplace/backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type fakePostStore struct {
	mu          sync.Mutex
	posts       map[uuid.UUID]*models.Post
	submissions map[uuid.UUID]*models.Submission
}

func newFakePostStore() *fakePostStore {
	return &fakePostStore{
		posts:       map[uuid.UUID]*models.Post{},
		submissions: map[uuid.UUID]*models.Submission{},
	}
}

func (f *fakePostStore) Create(ctx context.Context, p *models.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	cp := *p
	f.posts[p.ID] = &cp
	return nil
}

func (f *fakePostStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *p
	return &cp, nil
}

func (f *fakePostStore) ListLive(ctx context.Context, limit, offset int) ([]models.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Post
	for _, p := range f.posts {
		if p.Status == models.PostStatusLive {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakePostStore) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[id]
	if !ok {
		return errors.New("not found")
	}
	p.Status = status
	return nil
}

func (f *fakePostStore) CreateSubmission(ctx context.Context, s *models.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	cp := *s
	f.submissions[s.ID] = &cp
	return nil
}

func (f *fakePostStore) GetSubmission(ctx context.Context, id uuid.UUID) (*models.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.submissions[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *s
	return &cp, nil
}

func (f *fakePostStore) UpdateSubmissionStatus(ctx context.Context, id uuid.UUID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.submissions[id]
	if !ok {
		return errors.New("not found")
	}
	s.Status = status
	return nil
}

type fakeRewardLedger struct {
	mu       sync.Mutex
	credited int64
	txs      []models.Transaction
}

func (f *fakeRewardLedger) CreditBalance(ctx context.Context, userID uuid.UUID, amountSats int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credited += amountSats
	return nil
}

func (f *fakeRewardLedger) RecordTransaction(ctx context.Context, tx *models.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx.ID = uuid.New()
	f.txs = append(f.txs, *tx)
	return nil
}

type postFixture struct {
	svc       *PostService
	store     *fakePostStore
	ledger    *fakeRewardLedger
	caps      *fakeCapsLedger
	notifier  *fakeNotifier
	audit     *fakeAudit
	publisher *fakePublisher
}

func newPostFixture() *postFixture {
	f := &postFixture{
		store:  newFakePostStore(),
		ledger: &fakeRewardLedger{},
		caps: &fakeCapsLedger{
			balanceRes: capResult(true, models.CapLevelNone),
			rewardRes:  capResult(true, models.CapLevelNone),
			liveRes:    capResult(true, models.CapLevelNone),
		},
		notifier:  &fakeNotifier{},
		audit:     &fakeAudit{},
		publisher: &fakePublisher{},
	}
	capsSvc := NewCapsService(f.caps, f.notifier, f.publisher, zap.NewNop())
	f.svc = NewPostService(f.store, f.ledger, capsSvc, f.audit, f.notifier, f.publisher, zap.NewNop())
	return f
}

func (f *postFixture) livePost(t *testing.T, rewardSats int64) *models.Post {
	t.Helper()
	post, err := f.svc.CreatePost(context.Background(), uuid.New(), "fix the flaky build", nil, rewardSats)
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	return post
}

func TestCreatePost(t *testing.T) {
	t.Run("live post behind passing caps", func(t *testing.T) {
		f := newPostFixture()
		post := f.livePost(t, 2_000)
		if post.Status != models.PostStatusLive {
			t.Fatalf("status = %s, want live", post.Status)
		}
	})

	t.Run("hard reward cap blocks", func(t *testing.T) {
		f := newPostFixture()
		f.caps.rewardRes = capResult(false, models.CapLevelHard)
		if _, err := f.svc.CreatePost(context.Background(), uuid.New(), "t", nil, PostRewardHardCapSats+1); err == nil {
			t.Fatal("expected reward cap rejection")
		}
	})

	t.Run("live posts cap blocks", func(t *testing.T) {
		f := newPostFixture()
		f.caps.liveRes = capResult(false, models.CapLevelHard)
		if _, err := f.svc.CreatePost(context.Background(), uuid.New(), "t", nil, 1_000); err == nil {
			t.Fatal("expected live posts cap rejection")
		}
	})

	t.Run("cap engine outage does not block posting", func(t *testing.T) {
		f := newPostFixture()
		f.caps.rewardErr = errors.New("db down")
		f.caps.liveErr = errors.New("db down")
		if _, err := f.svc.CreatePost(context.Background(), uuid.New(), "t", nil, 1_000); err != nil {
			t.Fatalf("cap checks must fail open: %v", err)
		}
	})

	t.Run("validation", func(t *testing.T) {
		f := newPostFixture()
		if _, err := f.svc.CreatePost(context.Background(), uuid.New(), "", nil, 1_000); err == nil {
			t.Fatal("expected error for empty title")
		}
		if _, err := f.svc.CreatePost(context.Background(), uuid.New(), "t", nil, 0); err == nil {
			t.Fatal("expected error for zero reward")
		}
	})
}

func TestSubmitFix(t *testing.T) {
	t.Run("low confidence is always sampled", func(t *testing.T) {
		f := newPostFixture()
		post := f.livePost(t, 1_000)

		// confidence below 7 samples at rate 1.0
		sub, err := f.svc.SubmitFix(context.Background(), post.ID, uuid.New(), "patch", 6.0)
		if err != nil {
			t.Fatalf("SubmitFix: %v", err)
		}
		if sub.Status != models.SubmissionStatusSampled {
			t.Fatalf("status = %s, want sampled", sub.Status)
		}
		waitFor(t, "review alert", func() bool {
			alerts, _, _ := f.notifier.snapshot()
			return len(alerts) == 1
		})
	})

	t.Run("closed post rejects submissions", func(t *testing.T) {
		f := newPostFixture()
		post := f.livePost(t, 1_000)
		if err := f.store.UpdateStatus(context.Background(), post.ID, models.PostStatusClosed); err != nil {
			t.Fatal(err)
		}
		if _, err := f.svc.SubmitFix(context.Background(), post.ID, uuid.New(), "patch", 9.0); err == nil {
			t.Fatal("expected rejection for closed post")
		}
	})

	t.Run("author cannot submit to own post", func(t *testing.T) {
		f := newPostFixture()
		authorID := uuid.New()
		post, err := f.svc.CreatePost(context.Background(), authorID, "t", nil, 1_000)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.svc.SubmitFix(context.Background(), post.ID, authorID, "patch", 9.0); err == nil {
			t.Fatal("expected self-submission rejection")
		}
	})
}

func TestAcceptSubmission(t *testing.T) {
	f := newPostFixture()
	post := f.livePost(t, 4_000)
	workerID := uuid.New()

	sub, err := f.svc.SubmitFix(context.Background(), post.ID, workerID, "patch", 6.0)
	if err != nil {
		t.Fatalf("SubmitFix: %v", err)
	}

	accepted, err := f.svc.AcceptSubmission(context.Background(), sub.ID, uuid.New())
	if err != nil {
		t.Fatalf("AcceptSubmission: %v", err)
	}
	if accepted.Status != models.SubmissionStatusAccepted {
		t.Fatalf("status = %s, want accepted", accepted.Status)
	}
	if f.ledger.credited != 4_000 {
		t.Errorf("credited = %d, want 4000", f.ledger.credited)
	}
	if len(f.ledger.txs) != 1 || f.ledger.txs[0].Type != models.TxTypeReward {
		t.Errorf("expected one reward transaction, got %+v", f.ledger.txs)
	}

	got, err := f.store.GetByID(context.Background(), post.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.PostStatusCompleted {
		t.Errorf("post status = %s, want completed", got.Status)
	}

	// Accepting twice must not double-pay.
	if _, err := f.svc.AcceptSubmission(context.Background(), sub.ID, uuid.New()); err == nil {
		t.Fatal("expected error accepting a resolved submission")
	}
	if f.ledger.credited != 4_000 {
		t.Errorf("double payout: credited = %d", f.ledger.credited)
	}
}

func TestRejectSubmission(t *testing.T) {
	f := newPostFixture()
	post := f.livePost(t, 1_000)

	sub, err := f.svc.SubmitFix(context.Background(), post.ID, uuid.New(), "patch", 6.0)
	if err != nil {
		t.Fatalf("SubmitFix: %v", err)
	}
	if err := f.svc.RejectSubmission(context.Background(), sub.ID, uuid.New()); err != nil {
		t.Fatalf("RejectSubmission: %v", err)
	}
	got, err := f.store.GetSubmission(context.Background(), sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.SubmissionStatusRejected {
		t.Fatalf("status = %s, want rejected", got.Status)
	}
	if f.ledger.credited != 0 {
		t.Fatal("rejection must not pay")
	}
}
