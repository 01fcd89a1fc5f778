/**
 * @description
 * This file defines the persisted ledger entities and the request/response
 * DTOs used by the API layer. Each entity maps to one table; statuses are
 * text enums and every monetary column is NUMERIC(14,2).
 *
 * @notes
 * - Deposits and withdrawals are reviewable claims: created Pending, moved
 *   exactly once to Approved or Rejected. Only the Approved transition ever
 *   touches a balance.
 * - Transfers have no pending state; they are written already approved by
 *   the same transaction that moves the money.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReviewStatus is the lifecycle state of a deposit or withdrawal.
type ReviewStatus string

const (
	StatusPending  ReviewStatus = "Pending"
	StatusApproved ReviewStatus = "Approved"
	StatusRejected ReviewStatus = "Rejected"
)

// ReviewDecision is the terminal status a reviewer assigns.
type ReviewDecision ReviewStatus

const (
	DecisionApprove = ReviewDecision(StatusApproved)
	DecisionReject  = ReviewDecision(StatusRejected)
)

// Deposit is a claim that a user funded their wallet externally. Approval
// credits the net amount to the depositor's e-wallet.
type Deposit struct {
	ID         uuid.UUID       `json:"id"`
	UserID     uuid.UUID       `json:"user_id"`
	Amount     decimal.Decimal `json:"amount"`
	Charge     decimal.Decimal `json:"charge"`
	NetAmount  decimal.Decimal `json:"net_amount"`
	Reference  *string         `json:"reference,omitempty"`
	ReceiptURL *string         `json:"receipt_url,omitempty"`
	Status     ReviewStatus    `json:"status"`
	Remarks    *string         `json:"remarks,omitempty"`
	ReviewedAt *time.Time      `json:"reviewed_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Withdrawal mirrors Deposit on the debit path. Approval debits the gross
// amount; the charge is fee-on-debit, so the requester is paid the net.
type Withdrawal struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	Charge        decimal.Decimal `json:"charge"`
	NetAmount     decimal.Decimal `json:"net_amount"`
	PaymentMethod string          `json:"payment_method"`
	QRUrl         *string         `json:"qr_url,omitempty"`
	Status        ReviewStatus    `json:"status"`
	Remarks       *string         `json:"remarks,omitempty"`
	ReviewedAt    *time.Time      `json:"reviewed_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Transfer is the immutable record of a completed peer-to-peer move. The
// charge is burned: the sender loses the gross amount, the recipient gains
// the net, and the difference is credited to no one.
type Transfer struct {
	ID                uuid.UUID       `json:"id"`
	SenderID          uuid.UUID       `json:"sender_id"`
	SenderName        string          `json:"sender_name"`
	SenderEmail       string          `json:"sender_email"`
	RecipientID       uuid.UUID       `json:"recipient_id"`
	RecipientUsername string          `json:"recipient_username"`
	Amount            decimal.Decimal `json:"amount"`
	Charge            decimal.Decimal `json:"charge"`
	NetAmount         decimal.Decimal `json:"net_amount"`
	Status            ReviewStatus    `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
}

// RewardEntry is a credit-eligible referral or override reward grant.
// PayoutReleased is the replay-protection flag: sweeping an entry into the
// wallet flips it to false and stamps DateTransferred, so an entry can be
// transferred at most once.
type RewardEntry struct {
	ID              uuid.UUID       `json:"id"`
	UserID          uuid.UUID       `json:"user_id"`
	Username        string          `json:"username"`
	Role            Role            `json:"role"`
	Amount          decimal.Decimal `json:"amount"`
	Source          string          `json:"source"`
	Type            string          `json:"type"`
	Approved        bool            `json:"approved"`
	PayoutReleased  bool            `json:"payout_released"`
	DateTransferred *time.Time      `json:"date_transferred,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// CapitalShareEntry is a capital contribution subject to the 25% lock-in.
type CapitalShareEntry struct {
	ID                  uuid.UUID       `json:"id"`
	UserID              uuid.UUID       `json:"user_id"`
	Amount              decimal.Decimal `json:"amount"`
	LockInPortion       decimal.Decimal `json:"lock_in_portion"`
	TransferablePortion decimal.Decimal `json:"transferable_portion"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// PaymentMetadata bridges an external payment-gateway checkout session to a
// Deposit. A row with no DepositID is "orphaned": the webhook never fired and
// the reconciliation scanner must create the missing deposit.
type PaymentMetadata struct {
	CheckoutID  string          `json:"checkout_id"`
	UserID      uuid.UUID       `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Email       string          `json:"email"`
	Name        string          `json:"name"`
	DepositID   *uuid.UUID      `json:"deposit_id,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// PurchaseCodeTypeCapitalShare gates capital-share activation.
const PurchaseCodeTypeCapitalShare = "Activate Capital Share"

// PurchaseCode is a single-use activation token. Used flips false to true
// exactly once, atomically with the effect it gates.
type PurchaseCode struct {
	ID     uuid.UUID       `json:"id"`
	UserID uuid.UUID       `json:"user_id"`
	Code   string          `json:"code"`
	Amount decimal.Decimal `json:"amount"`
	Type   string          `json:"type"`
	Used   bool            `json:"used"`
	UsedAt *time.Time      `json:"used_at,omitempty"`
}

// TransferFundsRequest is the DTO for POST /api/transfer-funds.
type TransferFundsRequest struct {
	RecipientUsername string          `json:"recipient_username"`
	Amount            decimal.Decimal `json:"amount"`
}

// SubmitDepositRequest is the DTO for deposit submission.
type SubmitDepositRequest struct {
	Amount     decimal.Decimal `json:"amount"`
	Reference  *string         `json:"reference,omitempty"`
	ReceiptURL *string         `json:"receipt_url,omitempty"`
}

// SubmitWithdrawalRequest is the DTO for withdrawal submission.
type SubmitWithdrawalRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	QRUrl         *string         `json:"qr_url,omitempty"`
}

// ReviewRequest is the DTO for deposit/withdrawal review.
type ReviewRequest struct {
	Decision string  `json:"decision"`
	Remarks  *string `json:"remarks,omitempty"`
}

// SweepRewardsRequest is the DTO for moving released rewards into a wallet.
// UserID is optional: admins may sweep on behalf of another user, members
// sweep their own rewards.
type SweepRewardsRequest struct {
	UserID *uuid.UUID      `json:"user_id,omitempty"`
	Amount decimal.Decimal `json:"amount"`
}

// ActivateCapitalShareRequest is the DTO for code-gated activation.
type ActivateCapitalShareRequest struct {
	CodeID uuid.UUID `json:"code_id"`
}

// RecordPaymentMetadataRequest is the DTO for registering a gateway checkout
// session so the reconciler can find it if the webhook never completes it.
type RecordPaymentMetadataRequest struct {
	CheckoutID string          `json:"checkout_id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Email      string          `json:"email"`
	Name       string          `json:"name"`
}
