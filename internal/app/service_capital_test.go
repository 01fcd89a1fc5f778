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

type capitalRepoStub struct {
	store.Repository

	activateCalled bool
	gotUserID      uuid.UUID
	gotCodeID      uuid.UUID
	activateErr    error

	approvedDeposit *domain.Deposit
}

func (s *capitalRepoStub) ActivateCapitalShare(ctx context.Context, userID, codeID uuid.UUID, at time.Time) error {
	s.activateCalled = true
	s.gotUserID = userID
	s.gotCodeID = codeID
	return s.activateErr
}

func (s *capitalRepoStub) CreateApprovedDeposit(ctx context.Context, deposit *domain.Deposit) error {
	s.approvedDeposit = deposit
	return nil
}

func TestActivateCapitalShare_PassesCallerAndCode(t *testing.T) {
	repo := &capitalRepoStub{}
	service := NewService(repo, nil, false)
	identity := memberIdentity()
	codeID := uuid.New()

	if err := service.ActivateCapitalShare(context.Background(), identity, codeID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.gotUserID != identity.UserID {
		t.Fatalf("expected activation for %s, got %s", identity.UserID, repo.gotUserID)
	}
	if repo.gotCodeID != codeID {
		t.Fatalf("expected code %s, got %s", codeID, repo.gotCodeID)
	}
}

func TestActivateCapitalShare_PropagatesCodeFailures(t *testing.T) {
	tests := []struct {
		name     string
		storeErr error
	}{
		{name: "code not found", storeErr: store.ErrCodeNotFound},
		{name: "code already used", storeErr: store.ErrCodeAlreadyUsed},
		{name: "code not owned", storeErr: store.ErrCodeNotOwned},
		{name: "code wrong type", storeErr: store.ErrCodeWrongType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &capitalRepoStub{activateErr: tt.storeErr}
			service := NewService(repo, nil, false)

			err := service.ActivateCapitalShare(context.Background(), memberIdentity(), uuid.New())
			if !errors.Is(err, tt.storeErr) {
				t.Fatalf("expected %v, got %v", tt.storeErr, err)
			}
		})
	}
}

func TestManualDeposit_CreatesApprovedDeposit(t *testing.T) {
	repo := &capitalRepoStub{}
	service := NewService(repo, nil, false)
	userID := uuid.New()

	deposit, err := service.ManualDeposit(context.Background(), userID, decimal.RequireFromString("1000.00"), "support credit")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deposit.Status != domain.StatusApproved {
		t.Fatalf("expected approved status, got %s", deposit.Status)
	}
	if deposit.ReviewedAt == nil {
		t.Fatal("expected an approved deposit to carry its review timestamp")
	}
	if got := deposit.NetAmount.StringFixed(2); got != "980.00" {
		t.Fatalf("expected net=980.00, got %s", got)
	}
	if repo.approvedDeposit == nil {
		t.Fatal("expected the deposit to be persisted")
	}
}

func TestManualDeposit_RejectsNonPositiveAmounts(t *testing.T) {
	repo := &capitalRepoStub{}
	service := NewService(repo, nil, false)

	_, err := service.ManualDeposit(context.Background(), uuid.New(), decimal.Zero, "support credit")
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if repo.approvedDeposit != nil {
		t.Fatal("expected no deposit to be persisted")
	}
}
