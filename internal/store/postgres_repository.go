/**
 * @description
 * PostgreSQL implementation of the `Repository` interface. Every method that
 * moves money opens a single transaction, takes `FOR UPDATE` row locks on the
 * balances and status rows it is about to mutate, re-validates state under
 * the lock, and commits. A failed commit leaves no partial state, so callers
 * may retry the whole operation from scratch.
 *
 * @dependencies
 * - context, errors, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver.
 * - internal/domain: the ledger entities.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/damayan/ledger-service/internal/domain"
)

var (
	ErrAccountNotFound             = errors.New("account not found")
	ErrRecipientNotFound           = errors.New("recipient not found")
	ErrSelfTransfer                = errors.New("cannot transfer to own account")
	ErrInsufficientFunds           = errors.New("insufficient funds")
	ErrInsufficientFundsAtApproval = errors.New("insufficient funds at approval time")
	ErrDepositNotFound             = errors.New("deposit not found")
	ErrWithdrawalNotFound          = errors.New("withdrawal not found")
	ErrAlreadyReviewed             = errors.New("already reviewed")
	ErrInsufficientRewardBalance   = errors.New("insufficient released reward balance")
	ErrRewardSumMismatch           = errors.New("released rewards do not sum to requested amount")
	ErrCodeNotFound                = errors.New("purchase code not found")
	ErrCodeAlreadyUsed             = errors.New("purchase code already used")
	ErrCodeNotOwned                = errors.New("purchase code belongs to another user")
	ErrCodeWrongType               = errors.New("purchase code does not activate capital share")
	ErrMetadataNotFound            = errors.New("payment metadata not found")
	ErrAlreadyReconciled           = errors.New("payment metadata already reconciled")
	ErrDuplicateReference          = errors.New("a deposit with this reference already exists")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindAccountIDByAuthSubject resolves the internal UUID from the identity
// provider's subject claim.
func (r *PostgresRepository) FindAccountIDByAuthSubject(ctx context.Context, subject string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.QueryRow(ctx, "SELECT id FROM users WHERE auth_subject = $1", subject).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return uuid.Nil, ErrAccountNotFound
		}
		return uuid.Nil, err
	}
	return id, nil
}

const accountColumns = `id, btrim(username), email, full_name, role, e_wallet, capital_amount, capital_share_active, capital_activated_at, last_updated`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var account domain.Account
	err := row.Scan(
		&account.ID,
		&account.Username,
		&account.Email,
		&account.FullName,
		&account.Role,
		&account.EWallet,
		&account.CapitalAmount,
		&account.CapitalShareActive,
		&account.CapitalActivatedAt,
		&account.LastUpdated,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// FindAccountByID retrieves an account by its internal id.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	return scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM users WHERE id = $1`, userID))
}

// FindAccountByUsername retrieves an account by its unique username.
func (r *PostgresRepository) FindAccountByUsername(ctx context.Context, username string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users WHERE lower(btrim(username)) = lower(btrim($1))`
	return scanAccount(r.db.QueryRow(ctx, query, username))
}

// ExecuteTransfer performs the whole peer-to-peer move atomically: it locks
// the sender row, re-reads the balance under the lock, resolves the recipient
// inside the same transaction, applies both balance updates, and writes the
// immutable transfer record. The charge is debited from the sender but
// credited to no one.
func (r *PostgresRepository) ExecuteTransfer(ctx context.Context, params TransferParams) (*TransferResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var (
		senderUsername string
		senderEmail    string
		senderBalance  decimal.Decimal
	)
	// Lock the sender row; never trust a pre-transaction balance read.
	err = tx.QueryRow(ctx,
		`SELECT btrim(username), email, e_wallet FROM users WHERE id = $1 FOR UPDATE`,
		params.SenderID,
	).Scan(&senderUsername, &senderEmail, &senderBalance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	if senderBalance.LessThan(params.Amount) {
		return nil, ErrInsufficientFunds
	}

	var (
		recipientID       uuid.UUID
		recipientUsername string
	)
	err = tx.QueryRow(ctx,
		`SELECT id, btrim(username) FROM users WHERE lower(btrim(username)) = lower(btrim($1)) FOR UPDATE`,
		params.RecipientUsername,
	).Scan(&recipientID, &recipientUsername)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrRecipientNotFound
		}
		return nil, err
	}
	if recipientID == params.SenderID {
		return nil, ErrSelfTransfer
	}

	if _, err = tx.Exec(ctx,
		`UPDATE users SET e_wallet = e_wallet - $1, last_updated = NOW() WHERE id = $2`,
		params.Amount, params.SenderID,
	); err != nil {
		return nil, err
	}
	if _, err = tx.Exec(ctx,
		`UPDATE users SET e_wallet = e_wallet + $1, last_updated = NOW() WHERE id = $2`,
		params.NetAmount, recipientID,
	); err != nil {
		return nil, err
	}

	transfer := &domain.Transfer{
		ID:                uuid.New(),
		SenderID:          params.SenderID,
		SenderName:        senderUsername,
		SenderEmail:       senderEmail,
		RecipientID:       recipientID,
		RecipientUsername: recipientUsername,
		Amount:            params.Amount,
		Charge:            params.Charge,
		NetAmount:         params.NetAmount,
		Status:            domain.StatusApproved,
		CreatedAt:         params.CreatedAt,
	}
	if _, err = tx.Exec(ctx, `
		INSERT INTO transfer_funds (
			id, sender_id, sender_name, sender_email, recipient_id, recipient_username,
			amount, charge, net_amount, status, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		transfer.ID, transfer.SenderID, transfer.SenderName, transfer.SenderEmail,
		transfer.RecipientID, transfer.RecipientUsername,
		transfer.Amount, transfer.Charge, transfer.NetAmount, transfer.Status, transfer.CreatedAt,
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &TransferResult{
		Transfer:      transfer,
		SenderBalance: senderBalance.Sub(params.Amount),
	}, nil
}

// CreateDeposit inserts a pending deposit claim. No balance change happens at
// submission time.
func (r *PostgresRepository) CreateDeposit(ctx context.Context, deposit *domain.Deposit) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO deposits (id, user_id, amount, charge, net_amount, reference, receipt_url, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		deposit.ID, deposit.UserID, deposit.Amount, deposit.Charge, deposit.NetAmount,
		deposit.Reference, deposit.ReceiptURL, deposit.Status, deposit.CreatedAt,
	)
	return err
}

const depositColumns = `id, user_id, amount, charge, net_amount, reference, receipt_url, status, remarks, reviewed_at, created_at`

func scanDeposit(row pgx.Row) (*domain.Deposit, error) {
	var d domain.Deposit
	err := row.Scan(
		&d.ID, &d.UserID, &d.Amount, &d.Charge, &d.NetAmount,
		&d.Reference, &d.ReceiptURL, &d.Status, &d.Remarks, &d.ReviewedAt, &d.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrDepositNotFound
		}
		return nil, err
	}
	return &d, nil
}

// FindDepositByID retrieves a deposit by id.
func (r *PostgresRepository) FindDepositByID(ctx context.Context, depositID uuid.UUID) (*domain.Deposit, error) {
	return scanDeposit(r.db.QueryRow(ctx, `SELECT `+depositColumns+` FROM deposits WHERE id = $1`, depositID))
}

// ReviewDeposit applies a review decision atomically. The deposit row is
// locked and re-checked for Pending status under the lock, so concurrent
// duplicate reviews cannot double-credit: the loser of the race sees
// ErrAlreadyReviewed.
func (r *PostgresRepository) ReviewDeposit(ctx context.Context, params ReviewParams) (*domain.Deposit, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	deposit, err := scanDeposit(tx.QueryRow(ctx,
		`SELECT `+depositColumns+` FROM deposits WHERE id = $1 FOR UPDATE`, params.ID))
	if err != nil {
		return nil, err
	}
	if deposit.Status != domain.StatusPending {
		return nil, ErrAlreadyReviewed
	}

	if params.Decision == domain.DecisionApprove {
		// Lock the depositor's account and credit the net amount.
		var balance decimal.Decimal
		err = tx.QueryRow(ctx, `SELECT e_wallet FROM users WHERE id = $1 FOR UPDATE`, deposit.UserID).Scan(&balance)
		if err != nil {
			if err == pgx.ErrNoRows {
				return nil, ErrAccountNotFound
			}
			return nil, err
		}
		if _, err = tx.Exec(ctx,
			`UPDATE users SET e_wallet = e_wallet + $1, last_updated = NOW() WHERE id = $2`,
			deposit.NetAmount, deposit.UserID,
		); err != nil {
			return nil, err
		}
	}

	if _, err = tx.Exec(ctx, `
		UPDATE deposits SET status = $1, remarks = $2, reviewed_at = $3, reviewed_by = $4 WHERE id = $5
	`, domain.ReviewStatus(params.Decision), params.Remarks, params.ReviewedAt, params.ReviewerID, params.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	deposit.Status = domain.ReviewStatus(params.Decision)
	deposit.Remarks = params.Remarks
	reviewedAt := params.ReviewedAt
	deposit.ReviewedAt = &reviewedAt
	return deposit, nil
}

// CreateApprovedDeposit inserts an already-approved deposit and credits the
// net amount in one transaction. This is the operator path for manual
// deposits and system bonuses; it bypasses the review lifecycle.
func (r *PostgresRepository) CreateApprovedDeposit(ctx context.Context, deposit *domain.Deposit) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var balance decimal.Decimal
	err = tx.QueryRow(ctx, `SELECT e_wallet FROM users WHERE id = $1 FOR UPDATE`, deposit.UserID).Scan(&balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrAccountNotFound
		}
		return err
	}

	if _, err = tx.Exec(ctx, `
		INSERT INTO deposits (id, user_id, amount, charge, net_amount, reference, receipt_url, status, remarks, reviewed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		deposit.ID, deposit.UserID, deposit.Amount, deposit.Charge, deposit.NetAmount,
		deposit.Reference, deposit.ReceiptURL, deposit.Status, deposit.Remarks, deposit.ReviewedAt, deposit.CreatedAt,
	); err != nil {
		return err
	}
	if _, err = tx.Exec(ctx,
		`UPDATE users SET e_wallet = e_wallet + $1, last_updated = NOW() WHERE id = $2`,
		deposit.NetAmount, deposit.UserID,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// CreateWithdrawal inserts a pending withdrawal request.
func (r *PostgresRepository) CreateWithdrawal(ctx context.Context, withdrawal *domain.Withdrawal) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO withdrawals (id, user_id, amount, charge, net_amount, payment_method, qr_url, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		withdrawal.ID, withdrawal.UserID, withdrawal.Amount, withdrawal.Charge, withdrawal.NetAmount,
		withdrawal.PaymentMethod, withdrawal.QRUrl, withdrawal.Status, withdrawal.CreatedAt,
	)
	return err
}

const withdrawalColumns = `id, user_id, amount, charge, net_amount, payment_method, qr_url, status, remarks, reviewed_at, created_at`

func scanWithdrawal(row pgx.Row) (*domain.Withdrawal, error) {
	var w domain.Withdrawal
	err := row.Scan(
		&w.ID, &w.UserID, &w.Amount, &w.Charge, &w.NetAmount,
		&w.PaymentMethod, &w.QRUrl, &w.Status, &w.Remarks, &w.ReviewedAt, &w.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrWithdrawalNotFound
		}
		return nil, err
	}
	return &w, nil
}

// FindWithdrawalByID retrieves a withdrawal by id.
func (r *PostgresRepository) FindWithdrawalByID(ctx context.Context, withdrawalID uuid.UUID) (*domain.Withdrawal, error) {
	return scanWithdrawal(r.db.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`, withdrawalID))
}

// ReviewWithdrawal mirrors ReviewDeposit for the debit path. Approval
// re-reads the balance under lock and requires balance >= amount at approval
// time, because the account may have been drained between request and review.
func (r *PostgresRepository) ReviewWithdrawal(ctx context.Context, params ReviewParams) (*domain.Withdrawal, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	withdrawal, err := scanWithdrawal(tx.QueryRow(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1 FOR UPDATE`, params.ID))
	if err != nil {
		return nil, err
	}
	if withdrawal.Status != domain.StatusPending {
		return nil, ErrAlreadyReviewed
	}

	if params.Decision == domain.DecisionApprove {
		var balance decimal.Decimal
		err = tx.QueryRow(ctx, `SELECT e_wallet FROM users WHERE id = $1 FOR UPDATE`, withdrawal.UserID).Scan(&balance)
		if err != nil {
			if err == pgx.ErrNoRows {
				return nil, ErrAccountNotFound
			}
			return nil, err
		}
		if balance.LessThan(withdrawal.Amount) {
			return nil, ErrInsufficientFundsAtApproval
		}
		if _, err = tx.Exec(ctx,
			`UPDATE users SET e_wallet = e_wallet - $1, last_updated = NOW() WHERE id = $2`,
			withdrawal.Amount, withdrawal.UserID,
		); err != nil {
			return nil, err
		}
	}

	if _, err = tx.Exec(ctx, `
		UPDATE withdrawals SET status = $1, remarks = $2, reviewed_at = $3, reviewed_by = $4 WHERE id = $5
	`, domain.ReviewStatus(params.Decision), params.Remarks, params.ReviewedAt, params.ReviewerID, params.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	withdrawal.Status = domain.ReviewStatus(params.Decision)
	withdrawal.Remarks = params.Remarks
	reviewedAt := params.ReviewedAt
	withdrawal.ReviewedAt = &reviewedAt
	return withdrawal, nil
}

// CreateRewardEntry inserts a referral/override reward grant.
func (r *PostgresRepository) CreateRewardEntry(ctx context.Context, entry *domain.RewardEntry) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO referral_rewards (id, user_id, username, role, amount, source, type, approved, payout_released, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		entry.ID, entry.UserID, entry.Username, entry.Role, entry.Amount,
		entry.Source, entry.Type, entry.Approved, entry.PayoutReleased, entry.CreatedAt,
	)
	return err
}

// SweepRewards credits the wallet by the requested amount and consumes
// released reward entries, all in one transaction. PayoutReleased is the
// replay-protection flag: consumed entries are flipped to false and stamped
// with the transfer time, so they can never be swept twice.
func (r *PostgresRepository) SweepRewards(ctx context.Context, params SweepParams) (*SweepResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var balance decimal.Decimal
	err = tx.QueryRow(ctx, `SELECT e_wallet FROM users WHERE id = $1 FOR UPDATE`, params.UserID).Scan(&balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT id, amount FROM referral_rewards
		WHERE user_id = $1 AND payout_released
		ORDER BY created_at
		FOR UPDATE
	`, params.UserID)
	if err != nil {
		return nil, err
	}

	type releasedEntry struct {
		id     uuid.UUID
		amount decimal.Decimal
	}
	var (
		released []releasedEntry
		total    decimal.Decimal
	)
	for rows.Next() {
		var e releasedEntry
		if err := rows.Scan(&e.id, &e.amount); err != nil {
			rows.Close()
			return nil, err
		}
		released = append(released, e)
		total = total.Add(e.amount)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if total.LessThan(params.Amount) {
		return nil, ErrInsufficientRewardBalance
	}

	// Default behavior flips every released entry regardless of whether the
	// sum matches the credited amount; strict mode consumes an oldest-first
	// prefix whose sum must equal the requested amount exactly.
	consume := released
	if params.Strict {
		var (
			running decimal.Decimal
			prefix  []releasedEntry
		)
		for _, e := range released {
			if running.GreaterThanOrEqual(params.Amount) {
				break
			}
			prefix = append(prefix, e)
			running = running.Add(e.amount)
		}
		if !running.Equal(params.Amount) {
			return nil, ErrRewardSumMismatch
		}
		consume = prefix
	}

	for _, e := range consume {
		if _, err := tx.Exec(ctx, `
			UPDATE referral_rewards SET payout_released = FALSE, date_transferred = $1 WHERE id = $2
		`, params.At, e.id); err != nil {
			return nil, err
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE users SET e_wallet = e_wallet + $1, last_updated = NOW() WHERE id = $2`,
		params.Amount, params.UserID,
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &SweepResult{
		CreditedAmount:  params.Amount,
		EntriesConsumed: len(consume),
		NewBalance:      balance.Add(params.Amount),
	}, nil
}

// ActivateCapitalShare consumes the purchase code and activates the account
// in one transaction, so a crash can never leave a used code with an
// inactive account.
func (r *PostgresRepository) ActivateCapitalShare(ctx context.Context, userID, codeID uuid.UUID, at time.Time) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var (
		ownerID  uuid.UUID
		codeType string
		used     bool
	)
	err = tx.QueryRow(ctx,
		`SELECT user_id, type, used FROM purchase_codes WHERE id = $1 FOR UPDATE`, codeID,
	).Scan(&ownerID, &codeType, &used)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrCodeNotFound
		}
		return err
	}
	if ownerID != userID {
		return ErrCodeNotOwned
	}
	if codeType != domain.PurchaseCodeTypeCapitalShare {
		return ErrCodeWrongType
	}
	if used {
		return ErrCodeAlreadyUsed
	}

	if _, err = tx.Exec(ctx,
		`UPDATE purchase_codes SET used = TRUE, used_at = $1 WHERE id = $2`, at, codeID,
	); err != nil {
		return err
	}
	result, err := tx.Exec(ctx, `
		UPDATE users SET capital_share_active = TRUE, capital_activated_at = $1, last_updated = NOW() WHERE id = $2
	`, at, userID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}

	return tx.Commit(ctx)
}

// ListCapitalShareEntries returns all capital contributions, for the lock-in
// migration.
func (r *PostgresRepository) ListCapitalShareEntries(ctx context.Context) ([]domain.CapitalShareEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, amount, lock_in_portion, transferable_portion, updated_at
		FROM capital_share_entries
		ORDER BY updated_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.CapitalShareEntry
	for rows.Next() {
		var e domain.CapitalShareEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &e.LockInPortion, &e.TransferablePortion, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UpdateCapitalShareSplit rewrites one entry's lock-in split.
func (r *PostgresRepository) UpdateCapitalShareSplit(ctx context.Context, entryID uuid.UUID, lockIn, transferable decimal.Decimal, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE capital_share_entries SET lock_in_portion = $1, transferable_portion = $2, updated_at = $3 WHERE id = $4
	`, lockIn, transferable, at, entryID)
	return err
}

// CreatePaymentMetadata records the start of an external checkout session.
func (r *PostgresRepository) CreatePaymentMetadata(ctx context.Context, meta *domain.PaymentMetadata) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO payment_metadata (checkout_id, user_id, amount, currency, email, name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, meta.CheckoutID, meta.UserID, meta.Amount, meta.Currency, meta.Email, meta.Name, meta.CreatedAt)
	return err
}

// ListOrphanedPaymentMetadata returns checkout sessions that never had a
// deposit attached, oldest first.
func (r *PostgresRepository) ListOrphanedPaymentMetadata(ctx context.Context, limit int) ([]domain.PaymentMetadata, error) {
	rows, err := r.db.Query(ctx, `
		SELECT checkout_id, user_id, amount, currency, email, name, deposit_id, completed_at, created_at
		FROM payment_metadata
		WHERE deposit_id IS NULL
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orphans []domain.PaymentMetadata
	for rows.Next() {
		var m domain.PaymentMetadata
		if err := rows.Scan(&m.CheckoutID, &m.UserID, &m.Amount, &m.Currency, &m.Email, &m.Name, &m.DepositID, &m.CompletedAt, &m.CreatedAt); err != nil {
			return nil, err
		}
		orphans = append(orphans, m)
	}
	return orphans, rows.Err()
}

// RepairOrphanedPayment creates the missing pending deposit for an orphaned
// checkout session and back-fills the metadata, as one transaction. The
// orphan state and the reference uniqueness are re-checked under lock so the
// same checkout can never yield two deposits.
func (r *PostgresRepository) RepairOrphanedPayment(ctx context.Context, checkoutID string, deposit *domain.Deposit, at time.Time) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var depositID *uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT deposit_id FROM payment_metadata WHERE checkout_id = $1 FOR UPDATE`, checkoutID,
	).Scan(&depositID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrMetadataNotFound
		}
		return err
	}
	if depositID != nil {
		return ErrAlreadyReconciled
	}

	var referenceExists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM deposits WHERE reference = $1)`, checkoutID,
	).Scan(&referenceExists)
	if err != nil {
		return err
	}
	if referenceExists {
		return ErrDuplicateReference
	}

	if _, err = tx.Exec(ctx, `
		INSERT INTO deposits (id, user_id, amount, charge, net_amount, reference, receipt_url, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		deposit.ID, deposit.UserID, deposit.Amount, deposit.Charge, deposit.NetAmount,
		deposit.Reference, deposit.ReceiptURL, deposit.Status, deposit.CreatedAt,
	); err != nil {
		return err
	}
	if _, err = tx.Exec(ctx, `
		UPDATE payment_metadata SET deposit_id = $1, completed_at = $2 WHERE checkout_id = $3
	`, deposit.ID, at, checkoutID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
