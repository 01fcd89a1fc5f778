/**
 * @description
 * This file sets up the HTTP router for the ledger-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// LedgerRoutes creates and returns a new router for the ledger service.
func LedgerRoutes(h *LedgerHandlers, jwksURL string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		// Apply JWT authentication middleware for production
		r.Use(AuthMiddleware(jwksURL))

		// Wallet
		r.Get("/api/account", h.GetAccountHandler)
		r.Post("/api/transfer-funds", h.TransferFundsHandler)

		// Deposit lifecycle
		r.Post("/api/deposits", h.SubmitDepositHandler)
		r.Post("/api/deposits/{id}/review", h.ReviewDepositHandler)

		// Withdrawal lifecycle
		r.Post("/api/withdrawals", h.SubmitWithdrawalHandler)
		r.Post("/api/withdrawals/{id}/review", h.ReviewWithdrawalHandler)

		// Gateway checkout bookkeeping for the reconciler
		r.Post("/api/payments/metadata", h.RecordPaymentMetadataHandler)

		// Rewards and capital share
		r.Post("/api/rewards/sweep", h.SweepRewardsHandler)
		r.Post("/api/capital-share/activate", h.ActivateCapitalShareHandler)
	})

	return r
}
