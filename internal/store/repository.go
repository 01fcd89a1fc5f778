/**
 * @description
 * This file defines the `Repository` interface: the contract for every data
 * access operation the ledger-service needs. The money-movement methods are
 * deliberately coarse — each one is a complete atomic unit of work (lock,
 * re-read, mutate, record) so that no caller can ever read a balance outside
 * the transaction that writes it.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid, github.com/shopspring/decimal.
 * - internal/domain: the ledger entities.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/damayan/ledger-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Account methods
	FindAccountIDByAuthSubject(ctx context.Context, subject string) (uuid.UUID, error)
	FindAccountByID(ctx context.Context, userID uuid.UUID) (*domain.Account, error)
	FindAccountByUsername(ctx context.Context, username string) (*domain.Account, error)

	// Transfer engine. The whole move (balance check, debit, credit, record)
	// happens in one transaction; recipient resolution happens inside it.
	ExecuteTransfer(ctx context.Context, params TransferParams) (*TransferResult, error)

	// Deposit lifecycle
	CreateDeposit(ctx context.Context, deposit *domain.Deposit) error
	FindDepositByID(ctx context.Context, depositID uuid.UUID) (*domain.Deposit, error)
	ReviewDeposit(ctx context.Context, params ReviewParams) (*domain.Deposit, error)
	// CreateApprovedDeposit inserts an already-approved deposit and credits
	// the net amount in the same transaction. Operator use only.
	CreateApprovedDeposit(ctx context.Context, deposit *domain.Deposit) error

	// Withdrawal lifecycle
	CreateWithdrawal(ctx context.Context, withdrawal *domain.Withdrawal) error
	FindWithdrawalByID(ctx context.Context, withdrawalID uuid.UUID) (*domain.Withdrawal, error)
	ReviewWithdrawal(ctx context.Context, params ReviewParams) (*domain.Withdrawal, error)

	// Reward transfer engine
	CreateRewardEntry(ctx context.Context, entry *domain.RewardEntry) error
	SweepRewards(ctx context.Context, params SweepParams) (*SweepResult, error)

	// Capital share activation and lock-in migration
	ActivateCapitalShare(ctx context.Context, userID, codeID uuid.UUID, at time.Time) error
	ListCapitalShareEntries(ctx context.Context) ([]domain.CapitalShareEntry, error)
	UpdateCapitalShareSplit(ctx context.Context, entryID uuid.UUID, lockIn, transferable decimal.Decimal, at time.Time) error

	// Payment metadata reconciliation
	CreatePaymentMetadata(ctx context.Context, meta *domain.PaymentMetadata) error
	ListOrphanedPaymentMetadata(ctx context.Context, limit int) ([]domain.PaymentMetadata, error)
	// RepairOrphanedPayment re-checks orphanhood and reference uniqueness
	// under lock, inserts the pending deposit, and back-fills the metadata,
	// all in one transaction.
	RepairOrphanedPayment(ctx context.Context, checkoutID string, deposit *domain.Deposit, at time.Time) error
}

// TransferParams carries a validated peer-to-peer transfer into the store.
type TransferParams struct {
	SenderID          uuid.UUID
	RecipientUsername string
	Amount            decimal.Decimal
	Charge            decimal.Decimal
	NetAmount         decimal.Decimal
	CreatedAt         time.Time
}

// TransferResult is the committed transfer plus the sender's post-debit balance.
type TransferResult struct {
	Transfer      *domain.Transfer
	SenderBalance decimal.Decimal
}

// ReviewParams carries a deposit or withdrawal review decision.
type ReviewParams struct {
	ID         uuid.UUID
	ReviewerID uuid.UUID
	Decision   domain.ReviewDecision
	Remarks    *string
	ReviewedAt time.Time
}

// SweepParams carries a reward sweep. When Strict is false the sweep flips
// every currently-released entry regardless of whether the sum matches the
// requested amount (the platform's historical behavior); when true it
// consumes oldest-first entries whose running sum exactly covers the amount.
type SweepParams struct {
	UserID uuid.UUID
	Amount decimal.Decimal
	Strict bool
	At     time.Time
}

// SweepResult reports what a reward sweep did.
type SweepResult struct {
	CreditedAmount  decimal.Decimal
	EntriesConsumed int
	NewBalance      decimal.Decimal
}
