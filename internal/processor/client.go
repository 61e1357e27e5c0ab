// Package processor talks to the external payment gateway: starting
// checkouts, issuing virtual accounts and verifying payments by reference.
// The gateway is an external collaborator; everything here is plumbing, the
// ledger semantics live in the services.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnavailable covers transport failures and 5xx answers. The
	// verification retrier treats it as retryable.
	ErrUnavailable = errors.New("payment processor unavailable")
	// ErrNotFound means the gateway has no record for the reference.
	ErrNotFound = errors.New("transaction not found at processor")
)

// Client is the gateway surface the services depend on.
type Client interface {
	InitiateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error)
	CreateVirtualAccount(ctx context.Context, req VirtualAccountRequest) (*VirtualAccountResponse, error)
	VerifyTransaction(ctx context.Context, reference string) (*VerificationResult, error)
}

type Config struct {
	BaseURL   string
	SecretKey string
}

type httpClient struct {
	baseURL   string
	secretKey string
	client    *http.Client
}

// NewClient builds an HTTP gateway client. Call deadlines come from the
// caller's context; the http.Client itself carries no timeout so the
// retrier stays in charge of them.
func NewClient(cfg Config) Client {
	return &httpClient{
		baseURL:   cfg.BaseURL,
		secretKey: cfg.SecretKey,
		client:    &http.Client{},
	}
}

type apiEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *httpClient) InitiateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error) {
	var out CheckoutResponse
	if err := c.call(ctx, http.MethodPost, "/payments", req, &out); err != nil {
		return nil, err
	}
	if out.Reference == "" {
		out.Reference = req.Reference
	}
	return &out, nil
}

func (c *httpClient) CreateVirtualAccount(ctx context.Context, req VirtualAccountRequest) (*VirtualAccountResponse, error) {
	var out VirtualAccountResponse
	if err := c.call(ctx, http.MethodPost, "/virtual-account-numbers", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) VerifyTransaction(ctx context.Context, reference string) (*VerificationResult, error) {
	var out VerificationResult
	path := fmt.Sprintf("/transactions/verify_by_reference?tx_ref=%s", reference)
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) call(ctx context.Context, method, path string, body, dest interface{}) error {
	var payload *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		payload = bytes.NewReader(data)
	} else {
		payload = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		var env apiEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err == nil && env.Message != "" {
			return fmt.Errorf("processor rejected request: %s", env.Message)
		}
		return fmt.Errorf("processor rejected request: status %d", resp.StatusCode)
	}

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if dest != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, dest); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}
