// Package upayments wraps the UPayments REST API (KNET, cards, wallets).
// The client selects the sandbox or production base URL from configuration,
// authenticates with a bearer API key and verifies webhook signatures.
package upayments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bunyanhq/billing/internal/config"
)

// StatusError reports a non-2xx answer from UPayments.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return "upayments: unexpected status " + e.Status
}

// Client is the UPayments HTTP client.
type Client struct {
	apiKey        string
	apiURL        string
	webhookSecret string
	httpClient    *http.Client
}

// sanitizeURL strips the whitespace and newlines that sneak into deployment
// secrets when values are pasted into env files.
func sanitizeURL(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.ReplaceAll(s, "\r", "")
	return strings.TrimRight(s, "/")
}

// NewClient creates a UPayments client from the gateway config.
func NewClient(cfg config.Gateway) *Client {
	apiURL := cfg.APIURL
	if cfg.Sandbox {
		apiURL = cfg.SandboxAPIURL
	}
	timeout := cfg.GatewayTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		apiKey:        strings.TrimSpace(cfg.APIKey),
		apiURL:        sanitizeURL(apiURL),
		webhookSecret: cfg.WebhookSecret,
		httpClient:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	url := c.apiURL + path
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// CreateSession opens a hosted payment session. The idempotency key makes a
// replayed request return the original session instead of charging twice;
// the call itself is never retried by the client.
func (c *Client) CreateSession(ctx context.Context, reqParams CreateSessionRequest, idempotencyKey string) (*CreateSessionResponse, error) {
	const op = "upayments.CreateSession"
	req, err := c.newRequest(ctx, http.MethodPost, "/charge", reqParams)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("%s: %w", op, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status})
	}

	var sessionResp CreateSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&sessionResp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &sessionResp, nil
}

// GetSessionStatus fetches the transaction status for a provider session.
// The call is idempotent, so transient failures are retried with a bounded
// doubling backoff.
func (c *Client) GetSessionStatus(ctx context.Context, trackID string) (string, error) {
	const op = "upayments.GetSessionStatus"
	const maxAttempts = 3

	delay := 500 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%s: %w", op, ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}

		status, err := c.getSessionStatusOnce(ctx, trackID)
		if err == nil {
			return status, nil
		}
		lastErr = err

		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode < http.StatusInternalServerError {
			// 4xx will not get better on retry.
			return "", fmt.Errorf("%s: %w", op, err)
		}
	}
	return "", fmt.Errorf("%s: %w", op, lastErr)
}

func (c *Client) getSessionStatusOnce(ctx context.Context, trackID string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/get-payment-status/"+trackID, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var statusResp StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&statusResp); err != nil {
		return "", err
	}
	return statusResp.Data.Transaction.Status, nil
}

// VerifySignature checks the webhook signature: HMAC-SHA256 over the raw
// body, base64 encoded, compared in constant time.
func (c *Client) VerifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
