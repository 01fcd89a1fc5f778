package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/damayan/ledger-service/internal/domain"
	"github.com/damayan/ledger-service/internal/store"
)

type sweepRepoStub struct {
	store.Repository

	sweepCalled bool
	gotParams   store.SweepParams
	err         error
}

func (s *sweepRepoStub) SweepRewards(ctx context.Context, params store.SweepParams) (*store.SweepResult, error) {
	s.sweepCalled = true
	s.gotParams = params
	if s.err != nil {
		return nil, s.err
	}
	return &store.SweepResult{
		CreditedAmount:  params.Amount,
		EntriesConsumed: 3,
		NewBalance:      decimal.RequireFromString("1500.00"),
	}, nil
}

func TestSweepRewards_MemberSweepsOwnRewards(t *testing.T) {
	repo := &sweepRepoStub{}
	service := NewService(repo, nil, false)
	identity := memberIdentity()

	result, err := service.SweepRewards(context.Background(), identity, domain.SweepRewardsRequest{
		Amount: decimal.RequireFromString("250.00"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.gotParams.UserID != identity.UserID {
		t.Fatalf("expected sweep target %s, got %s", identity.UserID, repo.gotParams.UserID)
	}
	if repo.gotParams.Strict {
		t.Fatal("expected default sweep mode, got strict")
	}
	if result.EntriesConsumed != 3 {
		t.Fatalf("expected 3 entries consumed, got %d", result.EntriesConsumed)
	}
}

func TestSweepRewards_MemberCannotSweepForOthers(t *testing.T) {
	repo := &sweepRepoStub{}
	service := NewService(repo, nil, false)
	other := uuid.New()

	_, err := service.SweepRewards(context.Background(), memberIdentity(), domain.SweepRewardsRequest{
		UserID: &other,
		Amount: decimal.RequireFromString("250.00"),
	})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if repo.sweepCalled {
		t.Fatal("expected authorization to reject before the store was called")
	}
}

func TestSweepRewards_AdminSweepsOnBehalf(t *testing.T) {
	repo := &sweepRepoStub{}
	service := NewService(repo, nil, false)
	target := uuid.New()

	_, err := service.SweepRewards(context.Background(), adminIdentity(), domain.SweepRewardsRequest{
		UserID: &target,
		Amount: decimal.RequireFromString("250.00"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.gotParams.UserID != target {
		t.Fatalf("expected sweep target %s, got %s", target, repo.gotParams.UserID)
	}
}

func TestSweepRewards_StrictModeFlagReachesStore(t *testing.T) {
	repo := &sweepRepoStub{}
	service := NewService(repo, nil, true)

	_, err := service.SweepRewards(context.Background(), memberIdentity(), domain.SweepRewardsRequest{
		Amount: decimal.RequireFromString("250.00"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !repo.gotParams.Strict {
		t.Fatal("expected strict mode to be passed to the store")
	}
}

func TestSweepRewards_RejectsNonPositiveAmounts(t *testing.T) {
	repo := &sweepRepoStub{}
	service := NewService(repo, nil, false)

	_, err := service.SweepRewards(context.Background(), memberIdentity(), domain.SweepRewardsRequest{
		Amount: decimal.Zero,
	})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if repo.sweepCalled {
		t.Fatal("expected validation to reject before the store was called")
	}
}

func TestSweepRewards_PropagatesRewardBalanceErrors(t *testing.T) {
	tests := []struct {
		name     string
		storeErr error
	}{
		{name: "insufficient reward balance", storeErr: store.ErrInsufficientRewardBalance},
		{name: "strict sum mismatch", storeErr: store.ErrRewardSumMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &sweepRepoStub{err: tt.storeErr}
			service := NewService(repo, nil, false)

			_, err := service.SweepRewards(context.Background(), memberIdentity(), domain.SweepRewardsRequest{
				Amount: decimal.RequireFromString("250.00"),
			})
			if !errors.Is(err, tt.storeErr) {
				t.Fatalf("expected %v, got %v", tt.storeErr, err)
			}
		})
	}
}

type grantRepoStub struct {
	store.Repository

	account *domain.Account
	entry   *domain.RewardEntry
}

func (s *grantRepoStub) FindAccountByID(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	if s.account == nil {
		return nil, store.ErrAccountNotFound
	}
	return s.account, nil
}

func (s *grantRepoStub) CreateRewardEntry(ctx context.Context, entry *domain.RewardEntry) error {
	s.entry = entry
	return nil
}

func TestGrantReward_CreatesReleasedEntry(t *testing.T) {
	userID := uuid.New()
	repo := &grantRepoStub{account: &domain.Account{ID: userID, Username: "alice", Role: domain.RoleAgent}}
	service := NewService(repo, nil, false)

	entry, err := service.GrantReward(context.Background(), userID, decimal.RequireFromString("100.00"), "operator", "System Bonus")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !entry.PayoutReleased {
		t.Fatal("expected a granted reward to be immediately sweepable")
	}
	if !entry.Approved {
		t.Fatal("expected a granted reward to be approved")
	}
	if entry.Username != "alice" || entry.Role != domain.RoleAgent {
		t.Fatalf("expected account snapshot on the entry, got username=%q role=%q", entry.Username, entry.Role)
	}
	if repo.entry == nil {
		t.Fatal("expected the entry to be persisted")
	}
}

func TestGrantReward_RequiresExistingAccount(t *testing.T) {
	repo := &grantRepoStub{}
	service := NewService(repo, nil, false)

	_, err := service.GrantReward(context.Background(), uuid.New(), decimal.RequireFromString("100.00"), "operator", "System Bonus")
	if !errors.Is(err, store.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}
