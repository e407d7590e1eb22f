// internal/provider/stripeconnect/client.stripe.go
package stripeconnect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ClientTimeout is how long one API call may take, no shorter than the
// processor's own SLA; an unknown outcome is handled by the idempotency key,
// not by hanging up early. Request budgets on routes that reach the processor
// must outlive this.
const ClientTimeout = 80 * time.Second

type StripeClient struct {
	BaseURL    string
	SecretKey  string
	HttpClient *http.Client
}

func NewStripeClient(baseURL, secretKey string) *StripeClient {
	if baseURL == "" {
		baseURL = "https://api.stripe.com"
	}
	return &StripeClient{
		BaseURL:    baseURL,
		SecretKey:  secretKey,
		HttpClient: &http.Client{Timeout: ClientTimeout},
	}
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *StripeClient) post(ctx context.Context, path, idempotencyKey string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.SecretKey, "")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.HttpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("stripe %s: %s (%s)", path, apiErr.Error.Message, apiErr.Error.Code)
		}
		return fmt.Errorf("stripe %s: status %d: %s", path, resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *StripeClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.SecretKey, "")

	resp, err := c.HttpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("stripe %s: status %d: %s", path, resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type chargeResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (c *StripeClient) CreatePaymentIntent(ctx context.Context, idempotencyKey, customerID string, amount int64, currency, reference string) (*chargeResponse, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amount, 10))
	form.Set("currency", strings.ToLower(currency))
	form.Set("customer", customerID)
	form.Set("confirm", "true")
	form.Set("metadata[engagement_id]", reference)

	var out chargeResponse
	if err := c.post(ctx, "/v1/payment_intents", idempotencyKey, form, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type transferResponse struct {
	ID string `json:"id"`
}

func (c *StripeClient) CreateTransfer(ctx context.Context, idempotencyKey, destination string, amount int64, currency, reference string) (*transferResponse, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amount, 10))
	form.Set("currency", strings.ToLower(currency))
	form.Set("destination", destination)
	form.Set("transfer_group", reference)

	var out transferResponse
	if err := c.post(ctx, "/v1/transfers", idempotencyKey, form, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type reversalResponse struct {
	ID string `json:"id"`
}

func (c *StripeClient) CreateTransferReversal(ctx context.Context, idempotencyKey, transferID string, amount int64) (*reversalResponse, error) {
	form := url.Values{}
	if amount > 0 {
		form.Set("amount", strconv.FormatInt(amount, 10))
	}

	var out reversalResponse
	if err := c.post(ctx, "/v1/transfers/"+transferID+"/reversals", idempotencyKey, form, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type accountResponse struct {
	ID             string `json:"id"`
	PayoutsEnabled bool   `json:"payouts_enabled"`
}

func (c *StripeClient) CreateExpressAccount(ctx context.Context, email, country, workerID string) (*accountResponse, error) {
	form := url.Values{}
	form.Set("type", "express")
	form.Set("email", email)
	form.Set("country", country)
	form.Set("metadata[worker_id]", workerID)

	var out accountResponse
	if err := c.post(ctx, "/v1/accounts", "", form, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *StripeClient) GetAccount(ctx context.Context, accountID string) (*accountResponse, error) {
	var out accountResponse
	if err := c.get(ctx, "/v1/accounts/"+accountID, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
