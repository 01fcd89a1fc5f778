package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/damayan/ledger-service/internal/app"
	"github.com/damayan/ledger-service/internal/domain"
	"github.com/damayan/ledger-service/internal/store"
)

// handlerRepoStub resolves every token subject to one member account and lets
// tests arm failures on the write paths.
type handlerRepoStub struct {
	store.Repository

	userID        uuid.UUID
	withdrawalErr error
	metadataErr   error
}

func (s *handlerRepoStub) FindAccountIDByAuthSubject(ctx context.Context, subject string) (uuid.UUID, error) {
	return s.userID, nil
}

func (s *handlerRepoStub) FindAccountByID(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	return &domain.Account{
		ID:       s.userID,
		Username: "alice",
		Role:     domain.RoleMember,
		EWallet:  decimal.NewFromInt(1000),
	}, nil
}

func (s *handlerRepoStub) CreateWithdrawal(ctx context.Context, withdrawal *domain.Withdrawal) error {
	return s.withdrawalErr
}

func (s *handlerRepoStub) CreatePaymentMetadata(ctx context.Context, meta *domain.PaymentMetadata) error {
	return s.metadataErr
}

type fixedRateLimiter struct {
	count      int
	retryAfter int
}

func (f *fixedRateLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	return f.count, f.retryAfter, nil
}

func authedRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	ctx := context.WithValue(req.Context(), authSubjectKey, "sub_alice")
	return req.WithContext(ctx)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return payload["error"]
}

func TestSubmitWithdrawalHandler_StoreFailureStaysGeneric(t *testing.T) {
	repo := &handlerRepoStub{
		userID:        uuid.New(),
		withdrawalErr: errors.New("connection refused on db-internal-10.2.3.4:5432"),
	}
	handlers := NewLedgerHandlers(app.NewService(repo, nil, false))

	rec := httptest.NewRecorder()
	handlers.SubmitWithdrawalHandler(rec, authedRequest(http.MethodPost, "/api/withdrawals",
		`{"amount":"500.00","payment_method":"GCash"}`))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for a store failure, got %d", rec.Code)
	}
	msg := decodeError(t, rec)
	if msg != "Internal server error" {
		t.Fatalf("expected a generic error body, got %q", msg)
	}
	if strings.Contains(msg, "db-internal") {
		t.Fatal("store failure detail must not reach the client")
	}
}

func TestSubmitWithdrawalHandler_BlankPaymentMethodIsBadRequest(t *testing.T) {
	repo := &handlerRepoStub{userID: uuid.New()}
	handlers := NewLedgerHandlers(app.NewService(repo, nil, false))

	rec := httptest.NewRecorder()
	handlers.SubmitWithdrawalHandler(rec, authedRequest(http.MethodPost, "/api/withdrawals",
		`{"amount":"500.00","payment_method":"  "}`))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a blank payment method, got %d", rec.Code)
	}
	if msg := decodeError(t, rec); msg != app.ErrMissingPaymentMethod.Error() {
		t.Fatalf("expected the validation message, got %q", msg)
	}
}

func TestRecordPaymentMetadataHandler_StoreFailureStaysGeneric(t *testing.T) {
	repo := &handlerRepoStub{
		userID:      uuid.New(),
		metadataErr: errors.New("connection refused on db-internal-10.2.3.4:5432"),
	}
	handlers := NewLedgerHandlers(app.NewService(repo, nil, false))

	rec := httptest.NewRecorder()
	handlers.RecordPaymentMetadataHandler(rec, authedRequest(http.MethodPost, "/api/payments/metadata",
		`{"checkout_id":"cs_test_123","amount":"1000.00"}`))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for a store failure, got %d", rec.Code)
	}
	msg := decodeError(t, rec)
	if msg != "Internal server error" {
		t.Fatalf("expected a generic error body, got %q", msg)
	}
}

func TestRecordPaymentMetadataHandler_BlankCheckoutIDIsBadRequest(t *testing.T) {
	repo := &handlerRepoStub{userID: uuid.New()}
	handlers := NewLedgerHandlers(app.NewService(repo, nil, false))

	rec := httptest.NewRecorder()
	handlers.RecordPaymentMetadataHandler(rec, authedRequest(http.MethodPost, "/api/payments/metadata",
		`{"checkout_id":"  ","amount":"1000.00"}`))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a blank checkout id, got %d", rec.Code)
	}
	if msg := decodeError(t, rec); msg != app.ErrMissingCheckoutID.Error() {
		t.Fatalf("expected the validation message, got %q", msg)
	}
}

func TestTransferFundsHandler_ThrottledResponseCarriesRetryAfter(t *testing.T) {
	repo := &handlerRepoStub{userID: uuid.New()}
	service := app.NewService(repo, nil, false)
	service.SetTransferRateLimiter(&fixedRateLimiter{count: 31, retryAfter: 17}, 30)
	handlers := NewLedgerHandlers(service)

	rec := httptest.NewRecorder()
	handlers.TransferFundsHandler(rec, authedRequest(http.MethodPost, "/api/transfer-funds",
		`{"recipient_username":"bob","amount":"100.00"}`))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 when throttled, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "17" {
		t.Fatalf("expected Retry-After=17, got %q", got)
	}
}
