/**
 * @description
 * This package provides a client for the PayMongo API. The ledger-service
 * only needs one capability from the gateway: retrieving a checkout session
 * so the reconciler can confirm a session was actually paid before creating
 * the missing deposit for it.
 *
 * @dependencies
 * - context, encoding/base64, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package paymongo

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const defaultBaseURL = "https://api.paymongo.com"

// Client is a client for the PayMongo API.
type Client struct {
	BaseURL    string
	SecretKey  string
	HTTPClient *http.Client
}

// NewClient creates a new PayMongo API client authenticated with the secret key.
func NewClient(baseURL, secretKey string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		BaseURL:   baseURL,
		SecretKey: secretKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Payment is one payment attached to a checkout session.
type Payment struct {
	ID         string `json:"id"`
	Attributes struct {
		Status   string `json:"status"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	} `json:"attributes"`
}

// CheckoutSession is the subset of PayMongo's checkout session resource the
// reconciler cares about.
type CheckoutSession struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Status          string    `json:"status"`
			ReferenceNumber string    `json:"reference_number"`
			Payments        []Payment `json:"payments"`
		} `json:"attributes"`
	} `json:"data"`
}

// IsPaid reports whether the session carries at least one paid payment.
func (s *CheckoutSession) IsPaid() bool {
	if s == nil {
		return false
	}
	for _, p := range s.Data.Attributes.Payments {
		if p.Attributes.Status == "paid" {
			return true
		}
	}
	return false
}

// ErrorResponse represents an error from the PayMongo API.
type ErrorResponse struct {
	Errors []struct {
		Code   string `json:"code"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

func (e *ErrorResponse) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("paymongo api error: %s - %s", e.Errors[0].Code, e.Errors[0].Detail)
	}
	return "unknown paymongo api error"
}

// GetCheckoutSession retrieves a checkout session by id.
func (c *Client) GetCheckoutSession(ctx context.Context, checkoutID string) (*CheckoutSession, error) {
	url := c.BaseURL + "/v1/checkout_sessions/" + checkoutID

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Basic "+basicAuth(c.SecretKey))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute checkout session request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkout session response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			log.Printf("level=warn component=paymongo_client op=get_checkout_session checkout_id=%s status=%d msg=\"non-2xx response (unparsable error body)\"", checkoutID, resp.StatusCode)
			return nil, fmt.Errorf("failed to decode error response (status %d)", resp.StatusCode)
		}
		log.Printf("level=warn component=paymongo_client op=get_checkout_session checkout_id=%s status=%d code=%q detail=%q", checkoutID, resp.StatusCode, firstErrorCode(errResp), firstErrorDetail(errResp))
		return nil, &errResp
	}

	var session CheckoutSession
	if err := json.Unmarshal(bodyBytes, &session); err != nil {
		return nil, fmt.Errorf("failed to decode checkout session response: %w", err)
	}

	return &session, nil
}

// basicAuth encodes the secret key the way PayMongo expects: base64 of
// "sk_xxx:" with an empty password.
func basicAuth(secretKey string) string {
	return base64.StdEncoding.EncodeToString([]byte(secretKey + ":"))
}

func firstErrorCode(resp ErrorResponse) string {
	if len(resp.Errors) == 0 {
		return ""
	}
	return resp.Errors[0].Code
}

func firstErrorDetail(resp ErrorResponse) string {
	if len(resp.Errors) == 0 {
		return ""
	}
	return resp.Errors[0].Detail
}
