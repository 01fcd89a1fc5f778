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
	"github.com/damayan/ledger-service/pkg/paymongo"
)

type reconcileRepoStub struct {
	store.Repository

	orphans []domain.PaymentMetadata

	repaired   []string
	deposits   []*domain.Deposit
	repairErrs map[string]error
}

func (s *reconcileRepoStub) ListOrphanedPaymentMetadata(ctx context.Context, limit int) ([]domain.PaymentMetadata, error) {
	if limit < len(s.orphans) {
		return s.orphans[:limit], nil
	}
	return s.orphans, nil
}

func (s *reconcileRepoStub) RepairOrphanedPayment(ctx context.Context, checkoutID string, deposit *domain.Deposit, at time.Time) error {
	if err, ok := s.repairErrs[checkoutID]; ok {
		return err
	}
	s.repaired = append(s.repaired, checkoutID)
	s.deposits = append(s.deposits, deposit)
	return nil
}

type stubVerifier struct {
	paid map[string]bool
	errs map[string]error
}

func (v *stubVerifier) GetCheckoutSession(ctx context.Context, checkoutID string) (*paymongo.CheckoutSession, error) {
	if err, ok := v.errs[checkoutID]; ok {
		return nil, err
	}
	session := &paymongo.CheckoutSession{}
	session.Data.ID = checkoutID
	if v.paid[checkoutID] {
		payment := paymongo.Payment{}
		payment.Attributes.Status = "paid"
		session.Data.Attributes.Payments = []paymongo.Payment{payment}
	}
	return session, nil
}

func orphanRow(checkoutID string, amount string) domain.PaymentMetadata {
	return domain.PaymentMetadata{
		CheckoutID: checkoutID,
		UserID:     uuid.New(),
		Amount:     decimal.RequireFromString(amount),
		Currency:   "PHP",
		CreatedAt:  time.Now().UTC(),
	}
}

func TestReconcileOrphanedPayments_RepairsPaidSessions(t *testing.T) {
	repo := &reconcileRepoStub{
		orphans: []domain.PaymentMetadata{
			orphanRow("cs_paid", "1000.00"),
			orphanRow("cs_unpaid", "500.00"),
		},
	}
	verifier := &stubVerifier{paid: map[string]bool{"cs_paid": true}}
	service := NewService(repo, nil, false)

	summary, err := service.ReconcileOrphanedPayments(context.Background(), verifier, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.Scanned != 2 || summary.Repaired != 1 || summary.Skipped != 1 {
		t.Fatalf("expected scanned=2 repaired=1 skipped=1, got scanned=%d repaired=%d skipped=%d",
			summary.Scanned, summary.Repaired, summary.Skipped)
	}
	if len(repo.repaired) != 1 || repo.repaired[0] != "cs_paid" {
		t.Fatalf("expected only cs_paid to be repaired, got %v", repo.repaired)
	}

	deposit := repo.deposits[0]
	if deposit.Status != domain.StatusPending {
		t.Fatalf("expected a pending deposit claim, got %s", deposit.Status)
	}
	if deposit.Reference == nil || *deposit.Reference != "cs_paid" {
		t.Fatal("expected the checkout id as the deposit reference")
	}
	if got := deposit.NetAmount.StringFixed(2); got != "980.00" {
		t.Fatalf("expected net=980.00, got %s", got)
	}
}

func TestReconcileOrphanedPayments_SkipsAlreadyReconciled(t *testing.T) {
	repo := &reconcileRepoStub{
		orphans: []domain.PaymentMetadata{
			orphanRow("cs_raced", "1000.00"),
			orphanRow("cs_duplicate", "800.00"),
		},
		repairErrs: map[string]error{
			"cs_raced":     store.ErrAlreadyReconciled,
			"cs_duplicate": store.ErrDuplicateReference,
		},
	}
	verifier := &stubVerifier{paid: map[string]bool{"cs_raced": true, "cs_duplicate": true}}
	service := NewService(repo, nil, false)

	summary, err := service.ReconcileOrphanedPayments(context.Background(), verifier, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Repaired != 0 || summary.Skipped != 2 || len(summary.Failed) != 0 {
		t.Fatalf("expected both rows skipped, got repaired=%d skipped=%d failed=%d",
			summary.Repaired, summary.Skipped, len(summary.Failed))
	}
}

func TestReconcileOrphanedPayments_ReportsFailuresWithoutStopping(t *testing.T) {
	repo := &reconcileRepoStub{
		orphans: []domain.PaymentMetadata{
			orphanRow("cs_gateway_down", "1000.00"),
			orphanRow("cs_write_fails", "700.00"),
			orphanRow("cs_ok", "600.00"),
		},
		repairErrs: map[string]error{
			"cs_write_fails": errors.New("connection reset"),
		},
	}
	verifier := &stubVerifier{
		paid: map[string]bool{"cs_write_fails": true, "cs_ok": true},
		errs: map[string]error{"cs_gateway_down": errors.New("gateway timeout")},
	}
	service := NewService(repo, nil, false)

	summary, err := service.ReconcileOrphanedPayments(context.Background(), verifier, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Repaired != 1 {
		t.Fatalf("expected the healthy orphan to be repaired, got repaired=%d", summary.Repaired)
	}
	if len(summary.Failed) != 2 {
		t.Fatalf("expected both failures reported, got %v", summary.Failed)
	}
}

func TestReconcileOrphanedPayments_HonorsLimit(t *testing.T) {
	repo := &reconcileRepoStub{
		orphans: []domain.PaymentMetadata{
			orphanRow("cs_1", "100.00"),
			orphanRow("cs_2", "200.00"),
			orphanRow("cs_3", "300.00"),
		},
	}
	verifier := &stubVerifier{paid: map[string]bool{"cs_1": true, "cs_2": true, "cs_3": true}}
	service := NewService(repo, nil, false)

	summary, err := service.ReconcileOrphanedPayments(context.Background(), verifier, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Scanned != 2 {
		t.Fatalf("expected the scan to stop at the limit, got scanned=%d", summary.Scanned)
	}
}
