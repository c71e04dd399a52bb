// Package gateway is the HTTP client for the external payment
// provider.  The provider exposes two calls: creating a checkout (a
// hosted payment page plus QR) and querying the status of an existing
// checkout.  Requests are authenticated with an HMAC-SHA256 signature
// over the significant fields; the same scheme verifies inbound
// webhook confirmations.
package gateway

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "time"
)

// Status is the provider-reported state of a checkout.
type Status string

const (
    StatusPending  Status = "PENDING"
    StatusPaid     Status = "PAID"
    StatusExpired  Status = "EXPIRED"
    StatusCanceled Status = "CANCELED"
    StatusFailed   Status = "FAILED"
)

// TerminalFailure reports whether the status ends the payment attempt
// without a settlement.  Anything that is neither PAID nor PENDING is
// treated as a terminal failure.
func (s Status) TerminalFailure() bool {
    return s != StatusPaid && s != StatusPending
}

// CheckoutRequest describes the charge to create.
type CheckoutRequest struct {
    OrderRef    string // our public order reference
    AmountCents int64
}

// CheckoutResult is the provider's answer to a checkout creation.
type CheckoutResult struct {
    ProviderRef string `json:"provider_ref"`
    CheckoutURL string `json:"checkout_url"`
}

// Config carries the provider endpoint and merchant credentials.
type Config struct {
    BaseURL    string
    MerchantID string
    Secret     string
    ReturnURL  string
    CancelURL  string
    Timeout    time.Duration
}

// Client talks to the payment provider.  A zero Timeout defaults to
// ten seconds; the checkout orchestrator relies on this bound to roll
// back instead of parking a session indefinitely.
type Client struct {
    cfg  Config
    http *http.Client
}

// New returns a Client for the given configuration.
func New(cfg Config) *Client {
    timeout := cfg.Timeout
    if timeout <= 0 {
        timeout = 10 * time.Second
    }
    return &Client{cfg: cfg, http: &http.Client{Timeout: timeout}}
}

// CreateCheckout registers a charge with the provider and returns the
// hosted checkout link.  The request is signed with the merchant
// secret so the provider can authenticate us.
func (c *Client) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
    payload := map[string]any{
        "merchant_id":  c.cfg.MerchantID,
        "order_ref":    req.OrderRef,
        "amount_cents": req.AmountCents,
        "return_url":   c.cfg.ReturnURL,
        "cancel_url":   c.cfg.CancelURL,
        "signature":    Sign(c.cfg.Secret, req.OrderRef, req.AmountCents),
    }
    body, err := json.Marshal(payload)
    if err != nil {
        return nil, fmt.Errorf("marshal checkout request: %w", err)
    }
    httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/checkouts", bytes.NewReader(body))
    if err != nil {
        return nil, fmt.Errorf("build checkout request: %w", err)
    }
    httpReq.Header.Set("Content-Type", "application/json")

    resp, err := c.http.Do(httpReq)
    if err != nil {
        return nil, fmt.Errorf("checkout call: %w", err)
    }
    defer resp.Body.Close()
    if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
        return nil, fmt.Errorf("checkout call: unexpected status %d", resp.StatusCode)
    }
    var out CheckoutResult
    if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
        return nil, fmt.Errorf("decode checkout response: %w", err)
    }
    if out.ProviderRef == "" || out.CheckoutURL == "" {
        return nil, fmt.Errorf("checkout response missing provider_ref or checkout_url")
    }
    return &out, nil
}

// GetStatus asks the provider for the current state of a checkout.
// Unknown status strings map to FAILED so reconciliation treats them
// as terminal.
func (c *Client) GetStatus(ctx context.Context, providerRef string) (Status, error) {
    url := fmt.Sprintf("%s/checkouts/%s/status?merchant_id=%s", c.cfg.BaseURL, providerRef, c.cfg.MerchantID)
    httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
    if err != nil {
        return "", fmt.Errorf("build status request: %w", err)
    }
    resp, err := c.http.Do(httpReq)
    if err != nil {
        return "", fmt.Errorf("status call: %w", err)
    }
    defer resp.Body.Close()
    if resp.StatusCode != http.StatusOK {
        return "", fmt.Errorf("status call: unexpected status %d", resp.StatusCode)
    }
    var out struct {
        Status string `json:"status"`
    }
    if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
        return "", fmt.Errorf("decode status response: %w", err)
    }
    switch Status(out.Status) {
    case StatusPending, StatusPaid, StatusExpired, StatusCanceled, StatusFailed:
        return Status(out.Status), nil
    default:
        return StatusFailed, nil
    }
}
