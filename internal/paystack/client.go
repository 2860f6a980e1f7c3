// Package paystack wraps outbound calls to the Paystack HTTP API and
// verifies inbound webhook signatures. The client is pure request/response
// and holds no state beyond its credential.
package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const requestTimeout = 30 * time.Second

// Client talks to the Paystack REST API with the bearer credential for a
// single mode (test or live).
type Client struct {
	baseURL   string
	secretKey string
	http      *http.Client
	log       *zap.Logger
}

// NewClient builds a client for one credential. An empty secret key is a
// configuration error reported on first use, before any network call.
func NewClient(baseURL, secretKey string, log *zap.Logger) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.paystack.co"
	}
	return &Client{
		baseURL:   baseURL,
		secretKey: strings.TrimSpace(secretKey),
		http:      &http.Client{Timeout: requestTimeout},
		log:       log.Named("paystack.client"),
	}
}

func (c *Client) request(ctx context.Context, method, path string, body any, out any) error {
	if c.secretKey == "" {
		return ErrMissingSecretKey
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &APIError{Code: "request_failed", Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return &APIError{Code: "read_failed", Message: err.Error(), StatusCode: resp.StatusCode}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &APIError{
			Code:       "invalid_response",
			Message:    "response is not valid JSON",
			StatusCode: resp.StatusCode,
			Body:       raw,
		}
	}

	if resp.StatusCode >= http.StatusBadRequest || !env.Status {
		message := strings.TrimSpace(env.Message)
		if message == "" {
			message = "unknown Paystack API error"
		}
		return &APIError{
			Code:       "api_error",
			Message:    message,
			StatusCode: resp.StatusCode,
			Body:       raw,
		}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &APIError{
				Code:       "invalid_response",
				Message:    fmt.Sprintf("decode data: %v", err),
				StatusCode: resp.StatusCode,
				Body:       raw,
			}
		}
	}
	return nil
}

// InitializeTransaction starts a checkout session and returns the hosted
// authorization URL.
func (c *Client) InitializeTransaction(ctx context.Context, req InitializeRequest) (*InitializeResponse, error) {
	var out InitializeResponse
	if err := c.request(ctx, http.MethodPost, "/transaction/initialize", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyTransaction fetches charge detail by reference.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*Charge, error) {
	var out Charge
	if err := c.request(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTransaction fetches charge detail by the processor's numeric charge id.
func (c *Client) GetTransaction(ctx context.Context, id string) (*Charge, error) {
	var out Charge
	if err := c.request(ctx, http.MethodGet, "/transaction/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTransactions returns one page of a customer's transactions. cursor is
// the opaque "next" token from a previous page, empty for the first page.
func (c *Client) ListTransactions(ctx context.Context, customer string, cursor string) (*ListTransactionsPage, error) {
	if c.secretKey == "" {
		return nil, ErrMissingSecretKey
	}

	query := url.Values{}
	query.Set("customer", customer)
	if cursor != "" {
		query.Set("next", cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transaction?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &APIError{Code: "request_failed", Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, &APIError{Code: "read_failed", Message: err.Error(), StatusCode: resp.StatusCode}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || resp.StatusCode >= http.StatusBadRequest || !env.Status {
		message := strings.TrimSpace(env.Message)
		if message == "" {
			message = "unknown Paystack API error"
		}
		return nil, &APIError{Code: "api_error", Message: message, StatusCode: resp.StatusCode, Body: raw}
	}

	page := &ListTransactionsPage{}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &page.Transactions); err != nil {
			return nil, &APIError{Code: "invalid_response", Message: err.Error(), StatusCode: resp.StatusCode, Body: raw}
		}
	}
	if env.Meta != nil {
		page.Next = env.Meta.Next
	}
	return page, nil
}

// CreatePlan creates a recurring billing plan.
func (c *Client) CreatePlan(ctx context.Context, req CreatePlanRequest) (*Plan, error) {
	var out Plan
	if err := c.request(ctx, http.MethodPost, "/plan", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetPlan fetches a plan by its code.
func (c *Client) GetPlan(ctx context.Context, code string) (*Plan, error) {
	var out Plan
	if err := c.request(ctx, http.MethodGet, "/plan/"+url.PathEscape(code), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateSubscription subscribes a customer to a plan using a previously
// obtained card authorization.
func (c *Client) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*Subscription, error) {
	var out Subscription
	if err := c.request(ctx, http.MethodPost, "/subscription", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSubscription fetches a subscription by its code.
func (c *Client) GetSubscription(ctx context.Context, code string) (*Subscription, error) {
	var out Subscription
	if err := c.request(ctx, http.MethodGet, "/subscription/"+url.PathEscape(code), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DisableSubscription cancels a subscription using its code and the email
// token Paystack issued for self-service cancellation.
func (c *Client) DisableSubscription(ctx context.Context, code, token string) error {
	payload := map[string]string{"code": code, "token": token}
	return c.request(ctx, http.MethodPost, "/subscription/disable", payload, nil)
}

// CreateRefund refunds a charge. Amount is in the currency's minor unit.
func (c *Client) CreateRefund(ctx context.Context, req CreateRefundRequest) (*Refund, error) {
	var out Refund
	if err := c.request(ctx, http.MethodPost, "/refund", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChargeIDString renders a processor charge id the way we store it in
// vendor_charge_id columns.
func ChargeIDString(id int64) string {
	return strconv.FormatInt(id, 10)
}
