/**
 * @description
 * This file contains the HTTP handlers for the ledger-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They act as the
 * bridge between the web layer and the business logic layer.
 *
 * Error mapping is uniform across endpoints: validation failures are 400,
 * insufficient funds is 402, authorization failures are 403, missing records
 * are 404, state conflicts (re-review, used codes) are 409, throttling is 429,
 * and everything else is 500.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5, github.com/google/uuid.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/damayan/ledger-service/internal/app"
	"github.com/damayan/ledger-service/internal/domain"
	"github.com/damayan/ledger-service/internal/store"
)

// LedgerHandlers holds the application service that handlers will use.
type LedgerHandlers struct {
	service *app.Service
}

// NewLedgerHandlers creates a new instance of LedgerHandlers.
func NewLedgerHandlers(service *app.Service) *LedgerHandlers {
	return &LedgerHandlers{service: service}
}

// transferResponse is sent back after a committed transfer. new_balance lets
// the client update its wallet display without a second round trip.
type transferResponse struct {
	Success    bool   `json:"success"`
	TransferID string `json:"transfer_id"`
	NewBalance string `json:"new_balance"`
	Charge     string `json:"charge"`
	NetAmount  string `json:"net_amount"`
}

// accountResponse exposes the ledger state of an account, including the
// derived monthly capital profit.
type accountResponse struct {
	UserID             string  `json:"user_id"`
	Username           string  `json:"username"`
	Role               string  `json:"role"`
	EWallet            string  `json:"e_wallet"`
	CapitalAmount      string  `json:"capital_amount"`
	CapitalShareActive bool    `json:"capital_share_active"`
	MonthlyProfit      string  `json:"monthly_profit"`
	CapitalActivatedAt *string `json:"capital_activated_at,omitempty"`
}

// resolveIdentity maps the token subject in the request context to the acting
// account. Writes the error response itself when resolution fails.
func (h *LedgerHandlers) resolveIdentity(w http.ResponseWriter, r *http.Request, endpoint string) (domain.Identity, bool) {
	subject, ok := GetAuthSubject(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get subject from context")
		return domain.Identity{}, false
	}

	identity, err := h.service.ResolveIdentity(r.Context(), subject)
	if err != nil {
		log.Printf("level=warn component=api endpoint=%s outcome=reject reason=identity_resolution_failed subject=%s err=%v", endpoint, subject, err)
		h.writeError(w, http.StatusUnauthorized, "Account not found for token subject")
		return domain.Identity{}, false
	}
	return identity, true
}

// TransferFundsHandler handles requests for peer-to-peer wallet transfers.
func (h *LedgerHandlers) TransferFundsHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.resolveIdentity(w, r, "transfer_funds")
	if !ok {
		return
	}

	var req domain.TransferFundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=transfer_funds outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	result, err := h.service.TransferFunds(r.Context(), identity, req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=transfer_funds outcome=failed sender_id=%s err=%v", identity.UserID, err)
		switch {
		case errors.Is(err, store.ErrInsufficientFunds):
			h.writeError(w, http.StatusPaymentRequired, err.Error())
		case errors.Is(err, store.ErrRecipientNotFound):
			h.writeError(w, http.StatusNotFound, "Recipient not found")
		case errors.Is(err, app.ErrInvalidAmount), errors.Is(err, store.ErrSelfTransfer):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, app.ErrRateLimited):
			var rateLimited *app.RateLimitedError
			if errors.As(err, &rateLimited) && rateLimited.RetryAfterSeconds > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(rateLimited.RetryAfterSeconds))
			}
			h.writeError(w, http.StatusTooManyRequests, err.Error())
		default:
			h.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, transferResponse{
		Success:    true,
		TransferID: result.Transfer.ID.String(),
		NewBalance: result.SenderBalance.StringFixed(2),
		Charge:     result.Transfer.Charge.StringFixed(2),
		NetAmount:  result.Transfer.NetAmount.StringFixed(2),
	})
}

// GetAccountHandler returns the caller's wallet and capital share state.
func (h *LedgerHandlers) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.resolveIdentity(w, r, "get_account")
	if !ok {
		return
	}

	account, err := h.service.GetAccount(r.Context(), identity.UserID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			h.writeError(w, http.StatusNotFound, "Account not found")
			return
		}
		log.Printf("level=error component=api endpoint=get_account outcome=failed user_id=%s err=%v", identity.UserID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	resp := accountResponse{
		UserID:             account.ID.String(),
		Username:           account.Username,
		Role:               string(account.Role),
		EWallet:            account.EWallet.StringFixed(2),
		CapitalAmount:      account.CapitalAmount.StringFixed(2),
		CapitalShareActive: account.CapitalShareActive,
		MonthlyProfit:      account.MonthlyProfit().StringFixed(2),
	}
	if account.CapitalActivatedAt != nil {
		activated := account.CapitalActivatedAt.Format("2006-01-02T15:04:05Z07:00")
		resp.CapitalActivatedAt = &activated
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// SubmitDepositHandler records a pending deposit claim.
func (h *LedgerHandlers) SubmitDepositHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.resolveIdentity(w, r, "submit_deposit")
	if !ok {
		return
	}

	var req domain.SubmitDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	deposit, err := h.service.SubmitDeposit(r.Context(), identity, req)
	if err != nil {
		if errors.Is(err, app.ErrInvalidAmount) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("level=error component=api endpoint=submit_deposit outcome=failed user_id=%s err=%v", identity.UserID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusCreated, deposit)
}

// ReviewDepositHandler applies an approve/reject decision to a pending deposit.
func (h *LedgerHandlers) ReviewDepositHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.resolveIdentity(w, r, "review_deposit")
	if !ok {
		return
	}

	depositID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid deposit ID format")
		return
	}

	var req domain.ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	deposit, err := h.service.ReviewDeposit(r.Context(), identity, depositID, req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=review_deposit outcome=failed deposit_id=%s reviewer_id=%s err=%v", depositID, identity.UserID, err)
		switch {
		case errors.Is(err, app.ErrUnauthorized):
			h.writeError(w, http.StatusForbidden, err.Error())
		case errors.Is(err, app.ErrInvalidDecision):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrDepositNotFound):
			h.writeError(w, http.StatusNotFound, "Deposit not found")
		case errors.Is(err, store.ErrAlreadyReviewed):
			h.writeError(w, http.StatusConflict, err.Error())
		default:
			h.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, deposit)
}

// SubmitWithdrawalHandler records a pending withdrawal request.
func (h *LedgerHandlers) SubmitWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.resolveIdentity(w, r, "submit_withdrawal")
	if !ok {
		return
	}

	var req domain.SubmitWithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	withdrawal, err := h.service.SubmitWithdrawal(r.Context(), identity, req)
	if err != nil {
		if errors.Is(err, app.ErrInvalidAmount) || errors.Is(err, app.ErrMissingPaymentMethod) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("level=error component=api endpoint=submit_withdrawal outcome=failed user_id=%s err=%v", identity.UserID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusCreated, withdrawal)
}

// ReviewWithdrawalHandler applies an approve/reject decision to a pending withdrawal.
func (h *LedgerHandlers) ReviewWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.resolveIdentity(w, r, "review_withdrawal")
	if !ok {
		return
	}

	withdrawalID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid withdrawal ID format")
		return
	}

	var req domain.ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	withdrawal, err := h.service.ReviewWithdrawal(r.Context(), identity, withdrawalID, req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=review_withdrawal outcome=failed withdrawal_id=%s reviewer_id=%s err=%v", withdrawalID, identity.UserID, err)
		switch {
		case errors.Is(err, app.ErrUnauthorized):
			h.writeError(w, http.StatusForbidden, err.Error())
		case errors.Is(err, app.ErrInvalidDecision):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrWithdrawalNotFound):
			h.writeError(w, http.StatusNotFound, "Withdrawal not found")
		case errors.Is(err, store.ErrAlreadyReviewed):
			h.writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, store.ErrInsufficientFundsAtApproval):
			h.writeError(w, http.StatusPaymentRequired, err.Error())
		default:
			h.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, withdrawal)
}

// SweepRewardsHandler moves released reward balance into a wallet.
func (h *LedgerHandlers) SweepRewardsHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.resolveIdentity(w, r, "sweep_rewards")
	if !ok {
		return
	}

	var req domain.SweepRewardsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	result, err := h.service.SweepRewards(r.Context(), identity, req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=sweep_rewards outcome=failed user_id=%s err=%v", identity.UserID, err)
		switch {
		case errors.Is(err, app.ErrUnauthorized):
			h.writeError(w, http.StatusForbidden, err.Error())
		case errors.Is(err, app.ErrInvalidAmount):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrInsufficientRewardBalance):
			h.writeError(w, http.StatusPaymentRequired, err.Error())
		case errors.Is(err, store.ErrRewardSumMismatch):
			h.writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, store.ErrAccountNotFound):
			h.writeError(w, http.StatusNotFound, "Account not found")
		default:
			h.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"credited_amount":  result.CreditedAmount.StringFixed(2),
		"entries_consumed": result.EntriesConsumed,
		"new_balance":      result.NewBalance.StringFixed(2),
	})
}

// ActivateCapitalShareHandler redeems a single-use purchase code and activates
// the caller's capital share.
func (h *LedgerHandlers) ActivateCapitalShareHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.resolveIdentity(w, r, "activate_capital_share")
	if !ok {
		return
	}

	var req domain.ActivateCapitalShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	if err := h.service.ActivateCapitalShare(r.Context(), identity, req.CodeID); err != nil {
		log.Printf("level=warn component=api endpoint=activate_capital_share outcome=failed user_id=%s code_id=%s err=%v", identity.UserID, req.CodeID, err)
		switch {
		case errors.Is(err, store.ErrCodeNotFound):
			h.writeError(w, http.StatusNotFound, "Purchase code not found")
		case errors.Is(err, store.ErrCodeNotOwned):
			h.writeError(w, http.StatusForbidden, err.Error())
		case errors.Is(err, store.ErrCodeAlreadyUsed):
			h.writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, store.ErrCodeWrongType):
			h.writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"message": "Capital share activated"})
}

// RecordPaymentMetadataHandler registers a gateway checkout session for the
// caller so the reconciler can repair it if the webhook never completes.
func (h *LedgerHandlers) RecordPaymentMetadataHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.resolveIdentity(w, r, "record_payment_metadata")
	if !ok {
		return
	}

	var req domain.RecordPaymentMetadataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	meta, err := h.service.RecordCheckoutSession(r.Context(), identity, req)
	if err != nil {
		if errors.Is(err, app.ErrInvalidAmount) || errors.Is(err, app.ErrMissingCheckoutID) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("level=error component=api endpoint=record_payment_metadata outcome=failed user_id=%s err=%v", identity.UserID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusCreated, meta)
}

// writeJSON is a helper for writing JSON responses.
func (h *LedgerHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *LedgerHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
