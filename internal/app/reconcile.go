/**
 * @description
 * Orphaned-payment reconciliation. A payment_metadata row without a deposit
 * means the gateway webhook never fired (or failed) after a checkout session
 * was paid: the member's money left their bank but no deposit claim exists.
 * The reconciler finds those rows, verifies with the gateway that the session
 * was actually paid, and repairs each one in a single transaction that
 * creates the missing pending deposit and back-fills the metadata.
 *
 * Failures on individual orphans are counted and reported, never swallowed:
 * the summary carries every checkout id that could not be repaired.
 */

package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/damayan/ledger-service/internal/domain"
	"github.com/damayan/ledger-service/internal/store"
	"github.com/damayan/ledger-service/pkg/paymongo"
)

const defaultReconcileLimit = 200

// CheckoutVerifier confirms with the payment gateway whether a checkout
// session was paid. *paymongo.Client satisfies this.
type CheckoutVerifier interface {
	GetCheckoutSession(ctx context.Context, checkoutID string) (*paymongo.CheckoutSession, error)
}

// ReconcileSummary reports what a reconciliation run did.
type ReconcileSummary struct {
	Scanned  int
	Repaired int
	Skipped  int
	Failed   []string
}

// ReconcileOrphanedPayments scans for orphaned checkout sessions and creates
// the missing pending deposits. Each orphan is repaired in its own
// transaction, so a crash mid-run leaves earlier repairs committed and later
// orphans untouched; re-running is safe because orphanhood and reference
// uniqueness are re-checked under lock.
func (s *Service) ReconcileOrphanedPayments(ctx context.Context, verifier CheckoutVerifier, limit int) (*ReconcileSummary, error) {
	if limit <= 0 {
		limit = defaultReconcileLimit
	}

	orphans, err := s.repo.ListOrphanedPaymentMetadata(ctx, limit)
	if err != nil {
		return nil, err
	}

	summary := &ReconcileSummary{Scanned: len(orphans)}
	for _, orphan := range orphans {
		if verifier != nil {
			session, err := verifier.GetCheckoutSession(ctx, orphan.CheckoutID)
			if err != nil {
				log.Printf("level=warn component=app op=reconcile checkout_id=%s msg=\"gateway lookup failed\" err=%v", orphan.CheckoutID, err)
				summary.Failed = append(summary.Failed, orphan.CheckoutID)
				continue
			}
			if !session.IsPaid() {
				log.Printf("level=info component=app op=reconcile checkout_id=%s outcome=skipped reason=unpaid", orphan.CheckoutID)
				summary.Skipped++
				continue
			}
		}

		reference := orphan.CheckoutID
		breakdown := domain.NewChargeBreakdown(orphan.Amount)
		deposit := &domain.Deposit{
			ID:        uuid.New(),
			UserID:    orphan.UserID,
			Amount:    breakdown.Amount,
			Charge:    breakdown.Charge,
			NetAmount: breakdown.Net,
			Reference: &reference,
			Status:    domain.StatusPending,
			CreatedAt: time.Now().UTC(),
		}

		err := s.repo.RepairOrphanedPayment(ctx, orphan.CheckoutID, deposit, time.Now().UTC())
		switch {
		case err == nil:
			summary.Repaired++
			log.Printf("level=info component=app op=reconcile checkout_id=%s outcome=repaired deposit_id=%s", orphan.CheckoutID, deposit.ID)
		case errors.Is(err, store.ErrAlreadyReconciled), errors.Is(err, store.ErrDuplicateReference):
			// Someone else (webhook retry, concurrent run) got there first.
			summary.Skipped++
			log.Printf("level=info component=app op=reconcile checkout_id=%s outcome=skipped reason=%v", orphan.CheckoutID, err)
		default:
			summary.Failed = append(summary.Failed, orphan.CheckoutID)
			log.Printf("level=error component=app op=reconcile checkout_id=%s outcome=failed err=%v", orphan.CheckoutID, err)
		}
	}

	return summary, nil
}
