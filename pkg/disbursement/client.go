package disbursement

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/shipwallet-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/shipwallet-backend/pkg/errors"
	"github.com/angelmondragon/shipwallet-backend/pkg/logger"
)

const (
	defaultTimeout        = 10 * time.Second
	responseBodyReadLimit = 1024
	disbursementsPath     = "disbursements"
	idempotencyHeader     = "Idempotency-Key"
)

var (
	errBaseURLRequired = errors.New("disbursement gateway base url is required")
	errAPIKeyRequired  = errors.New("disbursement gateway api key is required")
)

// Request is a single payout instruction. ExternalRef doubles as the gateway
// idempotency key, so a retried dispatch never pays twice.
type Request struct {
	ExternalRef   string `json:"external_ref"`
	AmountMinor   int64  `json:"amount_minor"`
	Currency      string `json:"currency"`
	BankCode      string `json:"bank_code"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

// Response is the gateway acknowledgement. The final outcome arrives by webhook.
type Response struct {
	GatewayID string `json:"id"`
	Status    string `json:"status"`
}

// RejectionError is a definitive refusal by the gateway. Retrying the same
// instruction will not succeed.
type RejectionError struct {
	StatusCode int
	Reason     string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("disbursement rejected (status %d): %s", e.StatusCode, e.Reason)
}

// IsRejection reports whether err is a definitive gateway rejection.
func IsRejection(err error) bool {
	var rejection *RejectionError
	return errors.As(err, &rejection)
}

// Client talks to the disbursement gateway over HTTPS.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logg       *logger.Logger
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger attaches request logging.
func WithLogger(logg *logger.Logger) Option {
	return func(c *Client) {
		c.logg = logg
	}
}

// NewClient builds the gateway client from configuration.
func NewClient(cfg config.GatewayConfig, opts ...Option) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Disburse submits a payout. Transport failures, timeouts, throttling and 5xx
// responses map to GatewayUnavailable; 4xx responses and rejected statuses
// return a RejectionError. A 409 means the reference was already accepted.
func (c *Client) Disburse(ctx context.Context, req Request) (*Response, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeGatewayUnavailable, "disbursement gateway not configured")
	}
	if strings.TrimSpace(req.ExternalRef) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "external reference is required")
	}
	if req.AmountMinor <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount must be positive")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal disbursement request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+disbursementsPath, bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build disbursement request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set(idempotencyHeader, req.ExternalRef)

	started := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.log(ctx, req.ExternalRef, 0, time.Since(started), err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, "execute disbursement request")
	}
	defer func() { _ = resp.Body.Close() }()
	c.log(ctx, req.ExternalRef, resp.StatusCode, time.Since(started), nil)

	switch {
	case resp.StatusCode == http.StatusConflict:
		return &Response{Status: "ACCEPTED"}, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		msg := readSnippet(resp.Body)
		return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, fmt.Errorf("status %d: %s", resp.StatusCode, msg), "disbursement gateway unavailable")
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, &RejectionError{StatusCode: resp.StatusCode, Reason: readSnippet(resp.Body)}
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, "decode disbursement response")
	}
	switch strings.ToUpper(out.Status) {
	case "REJECTED", "FAILED":
		return nil, &RejectionError{StatusCode: resp.StatusCode, Reason: "gateway returned " + out.Status}
	}
	return &out, nil
}

func (c *Client) log(ctx context.Context, ref string, status int, elapsed time.Duration, err error) {
	if c.logg == nil {
		return
	}
	ctx = c.logg.WithFields(ctx, map[string]any{
		"external_ref": ref,
		"status_code":  status,
		"elapsed_ms":   elapsed.Milliseconds(),
	})
	if err != nil {
		c.logg.Error(ctx, "disbursement request failed", err)
		return
	}
	c.logg.Info(ctx, "disbursement request sent")
}

func readSnippet(body io.Reader) string {
	msg, _ := io.ReadAll(io.LimitReader(body, responseBodyReadLimit))
	return strings.TrimSpace(string(msg))
}
