/**
 * @description
 * This file contains the core business logic for the ledger-service. The
 * `Service` struct orchestrates every money-movement operation: peer-to-peer
 * transfers, deposit and withdrawal review, reward sweeps, and capital-share
 * activation. Each operation validates its inputs, delegates the atomic
 * read-modify-write to the repository (one transaction per operation), and
 * publishes a ledger event after the commit.
 *
 * Every operation takes an explicit `domain.Identity` for the acting
 * principal. Authorization decisions use the role stored on the account, not
 * anything supplied by the client.
 *
 * @dependencies
 * - context, errors, log, strings, time: Standard Go libraries.
 * - github.com/google/uuid, github.com/shopspring/decimal.
 * - internal/domain, internal/store: domain models and data access.
 * - pkg/rabbitmq: ledger event publishing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/damayan/ledger-service/internal/domain"
	"github.com/damayan/ledger-service/internal/store"
	"github.com/damayan/ledger-service/pkg/rabbitmq"
)

var (
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidDecision      = errors.New("decision must be Approved or Rejected")
	ErrUnauthorized         = errors.New("not authorized for this operation")
	ErrRateLimited          = errors.New("too many transfer attempts; slow down")
	ErrMissingPaymentMethod = errors.New("payment method is required")
	ErrMissingCheckoutID    = errors.New("checkout id is required")
)

// RateLimitedError is the throttling failure with the window remainder
// attached, so the transport layer can emit a Retry-After. It matches
// ErrRateLimited under errors.Is.
type RateLimitedError struct {
	RetryAfterSeconds int
}

func (e *RateLimitedError) Error() string { return ErrRateLimited.Error() }

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }

// TransferRateLimiter throttles transfer attempts per sender. Implementations
// must be safe for concurrent use; a nil limiter disables throttling.
type TransferRateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Service provides the core business logic for the ledger.
type Service struct {
	repo        store.Repository
	producer    rabbitmq.Publisher
	strictSweep bool

	rateLimiter            TransferRateLimiter
	transferLimitPerMinute int
}

// NewService creates a new ledger service instance. strictSweep selects
// sum-matched reward consumption instead of the historical flip-all behavior.
func NewService(repo store.Repository, producer rabbitmq.Publisher, strictSweep bool) *Service {
	return &Service{
		repo:        repo,
		producer:    producer,
		strictSweep: strictSweep,
	}
}

// SetTransferRateLimiter wires an optional distributed rate limiter for the
// transfer operation.
func (s *Service) SetTransferRateLimiter(limiter TransferRateLimiter, perMinute int) {
	s.rateLimiter = limiter
	s.transferLimitPerMinute = perMinute
}

// ResolveIdentity converts an identity-provider subject claim into the acting
// principal. The role comes from the account record, never from the token.
func (s *Service) ResolveIdentity(ctx context.Context, authSubject string) (domain.Identity, error) {
	userID, err := s.repo.FindAccountIDByAuthSubject(ctx, authSubject)
	if err != nil {
		return domain.Identity{}, err
	}
	account, err := s.repo.FindAccountByID(ctx, userID)
	if err != nil {
		return domain.Identity{}, err
	}
	return domain.Identity{UserID: account.ID, Role: account.Role}, nil
}

// TransferFunds executes a peer-to-peer wallet transfer. The sender is
// debited the gross amount, the recipient is credited the net, and the 2%
// charge is burned. The floor check runs before any balance check: a request
// below PHP 50 is invalid regardless of funds.
func (s *Service) TransferFunds(ctx context.Context, identity domain.Identity, req domain.TransferFundsRequest) (*store.TransferResult, error) {
	recipient := strings.TrimSpace(req.RecipientUsername)
	if recipient == "" {
		return nil, store.ErrRecipientNotFound
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) || req.Amount.LessThan(domain.MinTransferAmount) {
		return nil, ErrInvalidAmount
	}

	if s.rateLimiter != nil && s.transferLimitPerMinute > 0 {
		count, retryAfter, err := s.rateLimiter.ConsumeRateLimit(ctx, "transfer", identity.UserID.String(), s.transferLimitPerMinute, time.Minute)
		if err != nil {
			log.Printf("level=warn component=app op=transfer msg=\"rate limiter unavailable; allowing request\" err=%v", err)
		} else if count > s.transferLimitPerMinute {
			return nil, &RateLimitedError{RetryAfterSeconds: retryAfter}
		}
	}

	breakdown := domain.NewChargeBreakdown(req.Amount)
	result, err := s.repo.ExecuteTransfer(ctx, store.TransferParams{
		SenderID:          identity.UserID,
		RecipientUsername: recipient,
		Amount:            breakdown.Amount,
		Charge:            breakdown.Charge,
		NetAmount:         breakdown.Net,
		CreatedAt:         time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	log.Printf("level=info component=app op=transfer outcome=committed transfer_id=%s sender_id=%s recipient=%s amount=%s charge=%s",
		result.Transfer.ID, identity.UserID, recipient, breakdown.Amount, breakdown.Charge)
	s.publishEvent(ctx, "ledger.transfer.completed", rabbitmq.LedgerEvent{
		UserID:    identity.UserID,
		Amount:    breakdown.Amount,
		Reference: result.Transfer.ID.String(),
		Timestamp: result.Transfer.CreatedAt,
	})
	return result, nil
}

// SubmitDeposit records a pending deposit claim. No balance changes until an
// authorized reviewer approves it.
func (s *Service) SubmitDeposit(ctx context.Context, identity domain.Identity, req domain.SubmitDepositRequest) (*domain.Deposit, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}

	breakdown := domain.NewChargeBreakdown(req.Amount)
	deposit := &domain.Deposit{
		ID:         uuid.New(),
		UserID:     identity.UserID,
		Amount:     breakdown.Amount,
		Charge:     breakdown.Charge,
		NetAmount:  breakdown.Net,
		Reference:  req.Reference,
		ReceiptURL: req.ReceiptURL,
		Status:     domain.StatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repo.CreateDeposit(ctx, deposit); err != nil {
		return nil, fmt.Errorf("failed to create deposit: %w", err)
	}
	log.Printf("level=info component=app op=submit_deposit deposit_id=%s user_id=%s amount=%s", deposit.ID, identity.UserID, req.Amount)
	return deposit, nil
}

// ReviewDeposit applies an approve/reject decision to a pending deposit.
// Approval is the only path that ever credits the depositor's wallet, and it
// credits the net amount. Re-reviewing surfaces ErrAlreadyReviewed, never a
// second credit.
func (s *Service) ReviewDeposit(ctx context.Context, identity domain.Identity, depositID uuid.UUID, req domain.ReviewRequest) (*domain.Deposit, error) {
	if !identity.Role.CanReview() {
		return nil, ErrUnauthorized
	}
	decision, err := parseDecision(req.Decision)
	if err != nil {
		return nil, err
	}

	deposit, err := s.repo.ReviewDeposit(ctx, store.ReviewParams{
		ID:         depositID,
		ReviewerID: identity.UserID,
		Decision:   decision,
		Remarks:    req.Remarks,
		ReviewedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	log.Printf("level=info component=app op=review_deposit deposit_id=%s reviewer_id=%s decision=%s", depositID, identity.UserID, decision)
	if decision == domain.DecisionApprove {
		s.publishEvent(ctx, "ledger.deposit.approved", rabbitmq.LedgerEvent{
			UserID:    deposit.UserID,
			Amount:    deposit.NetAmount,
			Reference: deposit.ID.String(),
			Timestamp: *deposit.ReviewedAt,
		})
	}
	return deposit, nil
}

// SubmitWithdrawal records a pending withdrawal request. Balance sufficiency
// is checked at approval time, not here, because the balance may change in
// between.
func (s *Service) SubmitWithdrawal(ctx context.Context, identity domain.Identity, req domain.SubmitWithdrawalRequest) (*domain.Withdrawal, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	if strings.TrimSpace(req.PaymentMethod) == "" {
		return nil, ErrMissingPaymentMethod
	}

	breakdown := domain.NewChargeBreakdown(req.Amount)
	withdrawal := &domain.Withdrawal{
		ID:            uuid.New(),
		UserID:        identity.UserID,
		Amount:        breakdown.Amount,
		Charge:        breakdown.Charge,
		NetAmount:     breakdown.Net,
		PaymentMethod: req.PaymentMethod,
		QRUrl:         req.QRUrl,
		Status:        domain.StatusPending,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repo.CreateWithdrawal(ctx, withdrawal); err != nil {
		return nil, fmt.Errorf("failed to create withdrawal: %w", err)
	}
	log.Printf("level=info component=app op=submit_withdrawal withdrawal_id=%s user_id=%s amount=%s", withdrawal.ID, identity.UserID, req.Amount)
	return withdrawal, nil
}

// ReviewWithdrawal mirrors ReviewDeposit for the debit path. Approval debits
// the gross amount and fails with ErrInsufficientFundsAtApproval when the
// account was drained between request and review.
func (s *Service) ReviewWithdrawal(ctx context.Context, identity domain.Identity, withdrawalID uuid.UUID, req domain.ReviewRequest) (*domain.Withdrawal, error) {
	if !identity.Role.CanReview() {
		return nil, ErrUnauthorized
	}
	decision, err := parseDecision(req.Decision)
	if err != nil {
		return nil, err
	}

	withdrawal, err := s.repo.ReviewWithdrawal(ctx, store.ReviewParams{
		ID:         withdrawalID,
		ReviewerID: identity.UserID,
		Decision:   decision,
		Remarks:    req.Remarks,
		ReviewedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	log.Printf("level=info component=app op=review_withdrawal withdrawal_id=%s reviewer_id=%s decision=%s", withdrawalID, identity.UserID, decision)
	if decision == domain.DecisionApprove {
		s.publishEvent(ctx, "ledger.withdrawal.approved", rabbitmq.LedgerEvent{
			UserID:    withdrawal.UserID,
			Amount:    withdrawal.Amount,
			Reference: withdrawal.ID.String(),
			Timestamp: *withdrawal.ReviewedAt,
		})
	}
	return withdrawal, nil
}

// SweepRewards moves released reward balance into a wallet. The caller must
// be the target user, or an ADMIN/CEO acting on their behalf. Consumed
// entries can never be swept twice: payout_released gates eligibility and is
// flipped inside the same transaction that credits the wallet.
func (s *Service) SweepRewards(ctx context.Context, identity domain.Identity, req domain.SweepRewardsRequest) (*store.SweepResult, error) {
	target := identity.UserID
	if req.UserID != nil && *req.UserID != identity.UserID {
		if !identity.Role.CanReview() {
			return nil, ErrUnauthorized
		}
		target = *req.UserID
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}

	result, err := s.repo.SweepRewards(ctx, store.SweepParams{
		UserID: target,
		Amount: req.Amount,
		Strict: s.strictSweep,
		At:     time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	log.Printf("level=info component=app op=sweep_rewards user_id=%s amount=%s entries_consumed=%d strict=%t",
		target, req.Amount, result.EntriesConsumed, s.strictSweep)
	s.publishEvent(ctx, "ledger.reward.swept", rabbitmq.LedgerEvent{
		UserID:    target,
		Amount:    result.CreditedAmount,
		Timestamp: time.Now().UTC(),
	})
	return result, nil
}

// ActivateCapitalShare redeems a single-use purchase code and activates the
// caller's capital share. Code consumption and account activation commit
// together.
func (s *Service) ActivateCapitalShare(ctx context.Context, identity domain.Identity, codeID uuid.UUID) error {
	if err := s.repo.ActivateCapitalShare(ctx, identity.UserID, codeID, time.Now().UTC()); err != nil {
		return err
	}
	log.Printf("level=info component=app op=activate_capital_share user_id=%s code_id=%s", identity.UserID, codeID)
	return nil
}

// RecordCheckoutSession registers a gateway checkout session for the caller.
// The row starts orphaned (no deposit attached); either the gateway webhook or
// the reconciler attaches the deposit later.
func (s *Service) RecordCheckoutSession(ctx context.Context, identity domain.Identity, req domain.RecordPaymentMetadataRequest) (*domain.PaymentMetadata, error) {
	checkoutID := strings.TrimSpace(req.CheckoutID)
	if checkoutID == "" {
		return nil, ErrMissingCheckoutID
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "PHP"
	}

	meta := &domain.PaymentMetadata{
		CheckoutID: checkoutID,
		UserID:     identity.UserID,
		Amount:     req.Amount,
		Currency:   currency,
		Email:      strings.TrimSpace(req.Email),
		Name:       strings.TrimSpace(req.Name),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repo.CreatePaymentMetadata(ctx, meta); err != nil {
		return nil, fmt.Errorf("failed to record payment metadata: %w", err)
	}
	log.Printf("level=info component=app op=record_checkout checkout_id=%s user_id=%s amount=%s", checkoutID, identity.UserID, req.Amount)
	return meta, nil
}

// ManualDeposit is the operator path for support credits: it creates an
// already-approved deposit and credits the net amount in one transaction,
// bypassing the review lifecycle.
func (s *Service) ManualDeposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, remarks string) (*domain.Deposit, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}

	now := time.Now().UTC()
	breakdown := domain.NewChargeBreakdown(amount)
	deposit := &domain.Deposit{
		ID:         uuid.New(),
		UserID:     userID,
		Amount:     breakdown.Amount,
		Charge:     breakdown.Charge,
		NetAmount:  breakdown.Net,
		Status:     domain.StatusApproved,
		Remarks:    &remarks,
		ReviewedAt: &now,
		CreatedAt:  now,
	}
	if err := s.repo.CreateApprovedDeposit(ctx, deposit); err != nil {
		return nil, err
	}
	log.Printf("level=info component=app op=manual_deposit deposit_id=%s user_id=%s net=%s", deposit.ID, userID, breakdown.Net)
	return deposit, nil
}

// GrantReward is the operator path for system bonuses and referral rewards:
// it inserts a released reward entry that the user can sweep into their wallet.
func (s *Service) GrantReward(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, source, rewardType string) (*domain.RewardEntry, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	account, err := s.repo.FindAccountByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	entry := &domain.RewardEntry{
		ID:             uuid.New(),
		UserID:         userID,
		Username:       account.Username,
		Role:           account.Role,
		Amount:         amount,
		Source:         source,
		Type:           rewardType,
		Approved:       true,
		PayoutReleased: true,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.repo.CreateRewardEntry(ctx, entry); err != nil {
		return nil, err
	}
	log.Printf("level=info component=app op=grant_reward entry_id=%s user_id=%s amount=%s type=%s", entry.ID, userID, amount, rewardType)
	return entry, nil
}

// GetAccount returns the current ledger state of an account, including the
// derived monthly capital profit.
func (s *Service) GetAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	return s.repo.FindAccountByID(ctx, userID)
}

func (s *Service) publishEvent(ctx context.Context, routingKey string, event rabbitmq.LedgerEvent) {
	if s.producer == nil {
		return
	}
	if err := s.producer.PublishLedgerEvent(ctx, routingKey, event); err != nil {
		log.Printf("level=warn component=app msg=\"ledger event publish failed\" routing_key=%s err=%v", routingKey, err)
	}
}

func parseDecision(raw string) (domain.ReviewDecision, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "approved", "approve":
		return domain.DecisionApprove, nil
	case "rejected", "reject":
		return domain.DecisionReject, nil
	default:
		return "", ErrInvalidDecision
	}
}
