package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/damayan/ledger-service/internal/domain"
	"github.com/damayan/ledger-service/internal/store"
)

type transferRepoStub struct {
	store.Repository

	executeCalled bool
	gotParams     store.TransferParams
	result        *store.TransferResult
	err           error
}

func (s *transferRepoStub) ExecuteTransfer(ctx context.Context, params store.TransferParams) (*store.TransferResult, error) {
	s.executeCalled = true
	s.gotParams = params
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &store.TransferResult{
		Transfer: &domain.Transfer{
			ID:        uuid.New(),
			SenderID:  params.SenderID,
			Amount:    params.Amount,
			Charge:    params.Charge,
			NetAmount: params.NetAmount,
			Status:    domain.StatusApproved,
			CreatedAt: params.CreatedAt,
		},
		SenderBalance: decimal.NewFromInt(900),
	}, nil
}

type stubRateLimiter struct {
	count      int
	retryAfter int
	err        error
}

func (s *stubRateLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	return s.count, s.retryAfter, s.err
}

func memberIdentity() domain.Identity {
	return domain.Identity{UserID: uuid.New(), Role: domain.RoleMember}
}

func TestTransferFunds_RejectsBelowFloorBeforeTouchingStore(t *testing.T) {
	tests := []struct {
		name   string
		amount string
	}{
		{name: "below floor", amount: "49.99"},
		{name: "zero", amount: "0"},
		{name: "negative", amount: "-100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// An insufficient-funds store error is armed to prove the floor
			// check fires first; the store must never be reached.
			repo := &transferRepoStub{err: store.ErrInsufficientFunds}
			service := NewService(repo, nil, false)

			_, err := service.TransferFunds(context.Background(), memberIdentity(), domain.TransferFundsRequest{
				RecipientUsername: "bob",
				Amount:            decimal.RequireFromString(tt.amount),
			})
			if !errors.Is(err, ErrInvalidAmount) {
				t.Fatalf("expected ErrInvalidAmount, got %v", err)
			}
			if repo.executeCalled {
				t.Fatal("expected floor check to reject before the store was called")
			}
		})
	}
}

func TestTransferFunds_ComputesChargeAndNet(t *testing.T) {
	repo := &transferRepoStub{}
	service := NewService(repo, nil, false)
	identity := memberIdentity()

	result, err := service.TransferFunds(context.Background(), identity, domain.TransferFundsRequest{
		RecipientUsername: "bob",
		Amount:            decimal.RequireFromString("1000.00"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || result.Transfer == nil {
		t.Fatal("expected a committed transfer result")
	}

	if got := repo.gotParams.Charge.StringFixed(2); got != "20.00" {
		t.Fatalf("expected charge=20.00, got %s", got)
	}
	if got := repo.gotParams.NetAmount.StringFixed(2); got != "980.00" {
		t.Fatalf("expected net=980.00, got %s", got)
	}
	if !repo.gotParams.Charge.Add(repo.gotParams.NetAmount).Equal(repo.gotParams.Amount) {
		t.Fatal("charge + net must equal the gross amount")
	}
	if repo.gotParams.SenderID != identity.UserID {
		t.Fatalf("expected sender %s, got %s", identity.UserID, repo.gotParams.SenderID)
	}
}

func TestTransferFunds_AcceptsExactFloorAmount(t *testing.T) {
	repo := &transferRepoStub{}
	service := NewService(repo, nil, false)

	_, err := service.TransferFunds(context.Background(), memberIdentity(), domain.TransferFundsRequest{
		RecipientUsername: "bob",
		Amount:            decimal.RequireFromString("50.00"),
	})
	if err != nil {
		t.Fatalf("unexpected error at the PHP 50 floor: %v", err)
	}
	if got := repo.gotParams.Charge.StringFixed(2); got != "1.00" {
		t.Fatalf("expected charge=1.00 at the floor, got %s", got)
	}
}

func TestTransferFunds_PropagatesStoreErrors(t *testing.T) {
	tests := []struct {
		name     string
		storeErr error
	}{
		{name: "insufficient funds", storeErr: store.ErrInsufficientFunds},
		{name: "recipient not found", storeErr: store.ErrRecipientNotFound},
		{name: "self transfer", storeErr: store.ErrSelfTransfer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &transferRepoStub{err: tt.storeErr}
			service := NewService(repo, nil, false)

			_, err := service.TransferFunds(context.Background(), memberIdentity(), domain.TransferFundsRequest{
				RecipientUsername: "bob",
				Amount:            decimal.RequireFromString("100.00"),
			})
			if !errors.Is(err, tt.storeErr) {
				t.Fatalf("expected %v, got %v", tt.storeErr, err)
			}
		})
	}
}

func TestTransferFunds_RejectsEmptyRecipient(t *testing.T) {
	repo := &transferRepoStub{}
	service := NewService(repo, nil, false)

	_, err := service.TransferFunds(context.Background(), memberIdentity(), domain.TransferFundsRequest{
		RecipientUsername: "   ",
		Amount:            decimal.RequireFromString("100.00"),
	})
	if !errors.Is(err, store.ErrRecipientNotFound) {
		t.Fatalf("expected ErrRecipientNotFound, got %v", err)
	}
	if repo.executeCalled {
		t.Fatal("expected blank recipient to reject before the store was called")
	}
}

func TestTransferFunds_RateLimitEnforced(t *testing.T) {
	repo := &transferRepoStub{}
	service := NewService(repo, nil, false)
	service.SetTransferRateLimiter(&stubRateLimiter{count: 31, retryAfter: 42}, 30)

	_, err := service.TransferFunds(context.Background(), memberIdentity(), domain.TransferFundsRequest{
		RecipientUsername: "bob",
		Amount:            decimal.RequireFromString("100.00"),
	})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	var rateLimited *RateLimitedError
	if !errors.As(err, &rateLimited) {
		t.Fatalf("expected a RateLimitedError, got %T", err)
	}
	if rateLimited.RetryAfterSeconds != 42 {
		t.Fatalf("expected retry-after of 42s from the limiter, got %d", rateLimited.RetryAfterSeconds)
	}
	if repo.executeCalled {
		t.Fatal("expected throttled transfer to stop before the store was called")
	}
}

func TestTransferFunds_RateLimiterOutageFailsOpen(t *testing.T) {
	repo := &transferRepoStub{}
	service := NewService(repo, nil, false)
	service.SetTransferRateLimiter(&stubRateLimiter{err: errors.New("redis down")}, 30)

	_, err := service.TransferFunds(context.Background(), memberIdentity(), domain.TransferFundsRequest{
		RecipientUsername: "bob",
		Amount:            decimal.RequireFromString("100.00"),
	})
	if err != nil {
		t.Fatalf("expected limiter outage to fail open, got %v", err)
	}
	if !repo.executeCalled {
		t.Fatal("expected transfer to proceed when the limiter is unavailable")
	}
}
