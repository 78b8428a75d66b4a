// Package gateway wraps the hosted-checkout card/bank payment gateway.
// Initialization does not move money by itself (funds move client-side at the
// hosted checkout page), so a failed initialize is always safe to retry.
package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultBaseURL   = "https://api.paystack.co"
	initRetries      = 3
	verifyRetries    = 3
	listingsCacheTTL = 5 * time.Minute
	fxCacheTTL       = time.Hour
)

// Client talks to the card/bank gateway. It owns its breaker and caches so
// there is no hidden process-global state; construct one per process and pass
// it by reference to handlers.
type Client struct {
	BaseURL       string
	SecretKey     string
	webhookSecret string
	client        *http.Client
	breaker       *Breaker
	listings      *ttlCache
	fxRates       *ttlCache

	sleep func(time.Duration) // overridable in tests
}

func NewClient(baseURL, secretKey, webhookSecret string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		BaseURL:       baseURL,
		SecretKey:     secretKey,
		webhookSecret: webhookSecret,
		client:        &http.Client{Timeout: 30 * time.Second},
		breaker:       NewBreaker(5, 30*time.Second),
		listings:      newTTLCache(listingsCacheTTL),
		fxRates:       newTTLCache(fxCacheTTL),
		sleep:         time.Sleep,
	}
}

// InitializeResult is what the payment page needs to redirect the customer.
type InitializeResult struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type apiEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Initialize creates a hosted-checkout transaction keyed by reference, which
// is also sent as metadata.idempotency_key so a resubmitted request never
// creates two gateway-side charges. Transient failures are retried with
// exponential backoff (1s, 2s, 4s); the call is wrapped by the breaker.
func (c *Client) Initialize(ctx context.Context, email string, amount decimal.Decimal, currency, ref string, metadata map[string]interface{}) (*InitializeResult, error) {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadata["idempotency_key"] = ref
	payload := map[string]interface{}{
		"email":     email,
		"amount":    amount.Mul(decimal.NewFromInt(100)).IntPart(), // gateway wants subunits
		"currency":  currency,
		"reference": ref,
		"metadata":  metadata,
	}

	var out InitializeResult
	err := c.callWithRetry(ctx, initRetries, func(attempt int) time.Duration {
		return time.Duration(1<<attempt) * time.Second // 1s, 2s, 4s
	}, func() error {
		return c.post(ctx, "/transaction/initialize", payload, &out)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[Gateway] initialized transaction ref=%s amount=%s %s", ref, amount.StringFixed(2), currency)
	return &out, nil
}

// VerifyResult reports the gateway-side state of a transaction.
type VerifyResult struct {
	Status    string          `json:"status"` // success | failed | abandoned
	Reference string          `json:"reference"`
	Amount    int64           `json:"amount"` // subunits
	Currency  string          `json:"currency"`
	PaidAt    string          `json:"paid_at"`
	Channel   string          `json:"channel"`
	Metadata  json.RawMessage `json:"metadata"`
}

// Verify fetches the authoritative state of a transaction. Verification is
// read-only and idempotent, so it gets a shorter linear backoff (1s·attempt).
func (c *Client) Verify(ctx context.Context, ref string) (*VerifyResult, error) {
	var out VerifyResult
	err := c.callWithRetry(ctx, verifyRetries, func(attempt int) time.Duration {
		return time.Duration(attempt+1) * time.Second
	}, func() error {
		return c.get(ctx, "/transaction/verify/"+url.PathEscape(ref), &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// TransactionSummary is one row of a gateway transaction listing.
type TransactionSummary struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	CreatedAt string `json:"created_at"`
}

// ListTransactions returns gateway transactions, cached for five minutes per
// full query parameter set to bound outbound call volume.
func (c *Client) ListTransactions(ctx context.Context, params map[string]string) ([]TransactionSummary, error) {
	key := cacheKey(params)
	if v, ok := c.listings.get(key); ok {
		return v.([]TransactionSummary), nil
	}
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	path := "/transaction"
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}
	var out []TransactionSummary
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	c.listings.set(key, out)
	return out, nil
}

// FXRates returns exchange rates for display-time conversion, cached for an
// hour. Never used for a charged amount.
func (c *Client) FXRates(ctx context.Context, base string) (map[string]float64, error) {
	key := cacheKey(map[string]string{"base": base})
	if v, ok := c.fxRates.get(key); ok {
		return v.(map[string]float64), nil
	}
	var out map[string]float64
	if err := c.get(ctx, "/rates?base="+url.QueryEscape(base), &out); err != nil {
		return nil, err
	}
	c.fxRates.set(key, out)
	return out, nil
}

// VerifyWebhookSignature checks the HMAC-SHA512 signature over the raw
// payload. A missing secret fails closed: with no shared secret configured
// there is no way to authenticate the sender, and treating everything as
// valid would be a silent security downgrade.
func (c *Client) VerifyWebhookSignature(payload []byte, signature string) bool {
	if c.webhookSecret == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(c.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}

// HasWebhookSecret reports whether webhook verification can succeed at all;
// the router refuses to mount the webhook route without it.
func (c *Client) HasWebhookSecret() bool { return c.webhookSecret != "" }

// callWithRetry runs call under the breaker, retrying transient failures
// with the provided backoff schedule. Exhaustion converts to ErrUnavailable.
func (c *Client) callWithRetry(ctx context.Context, attempts int, backoff func(int) time.Duration, call func() error) error {
	if !c.breaker.Allow() {
		return fmt.Errorf("%w: circuit breaker open", ErrUnavailable)
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				// the caller went away, not a gateway fault
				c.breaker.Abandon()
				return ctx.Err()
			default:
			}
			c.sleep(backoff(attempt - 1))
		}
		err := call()
		if err == nil {
			c.breaker.Success()
			return nil
		}
		lastErr = err
		if !IsRetryable(err) {
			// the gateway answered; user-fixable errors don't count against it
			c.breaker.Success()
			return err
		}
		log.Printf("[Gateway] transient failure (attempt %d/%d): %v", attempt+1, attempts, err)
	}
	c.breaker.Failure()
	return fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (c *Client) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return humanize(err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return humanize(err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	resp, err := c.client.Do(req)
	if err != nil {
		return humanize(err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 500 {
		return &GatewayError{
			Message:   fmt.Sprintf("gateway returned %d", resp.StatusCode),
			Retryable: true,
			raw:       fmt.Errorf("status %d: %s", resp.StatusCode, respBody),
		}
	}
	var env apiEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return humanize(fmt.Errorf("bad gateway response: %w", err))
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return humanize(fmt.Errorf("rate limit: %s", env.Message))
	}
	if resp.StatusCode >= 400 || !env.Status {
		return humanize(fmt.Errorf("%s", env.Message))
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return humanize(fmt.Errorf("bad gateway response: %w", err))
		}
	}
	return nil
}
