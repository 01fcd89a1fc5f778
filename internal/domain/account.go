/**
 * @description
 * This file defines the account and identity models for the ledger-service.
 * An Account is the single most contended entity in the system: every credit
 * and debit funnels through its e-wallet balance, so all mutation happens
 * inside store-level transactions.
 *
 * @notes
 * - Monetary fields use `decimal.Decimal` (backed by NUMERIC columns) so that
 *   the 2%/5%/25% charge computations never accumulate binary rounding drift.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Role determines what ledger operations a principal may perform.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleCEO      Role = "CEO"
	RoleMerchant Role = "MERCHANT"
	RoleMasterMD Role = "MASTERMD"
	RoleMD       Role = "MD"
	RoleMS       Role = "MS"
	RoleMI       Role = "MI"
	RoleAgent    Role = "AGENT"
	RoleMember   Role = "MEMBER"
)

// CanReview reports whether the role is authorized to approve or reject
// deposits and withdrawals.
func (r Role) CanReview() bool {
	return r == RoleAdmin || r == RoleCEO
}

// Identity is the acting principal for a ledger operation. Every operation
// takes an explicit Identity; there is no ambient process-wide principal.
type Identity struct {
	UserID uuid.UUID
	Role   Role
}

// Account represents a member's ledger state. It maps to the `users` table.
type Account struct {
	ID                 uuid.UUID       `json:"id"`
	Username           string          `json:"username"`
	Email              string          `json:"email"`
	FullName           *string         `json:"full_name,omitempty"`
	Role               Role            `json:"role"`
	EWallet            decimal.Decimal `json:"e_wallet"`
	CapitalAmount      decimal.Decimal `json:"capital_amount"`
	CapitalShareActive bool            `json:"capital_share_active"`
	CapitalActivatedAt *time.Time      `json:"capital_activated_at,omitempty"`
	LastUpdated        time.Time       `json:"last_updated"`
}

// MonthlyProfit is the read-time capital-share profit projection. It is never
// stored; callers derive it whenever a capital dashboard is rendered.
func (a *Account) MonthlyProfit() decimal.Decimal {
	if !a.CapitalShareActive {
		return decimal.Zero
	}
	return a.CapitalAmount.Mul(CapitalMonthlyProfitRate).Round(2)
}
