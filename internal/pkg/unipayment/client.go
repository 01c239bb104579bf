package unipayment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/zoemaddison050/leadership-summit/app/models"
)

const (
	defaultSandboxAPIBaseURL    = "https://sandbox-api.unipayment.io"
	defaultProductionAPIBaseURL = "https://api.unipayment.io"
)

// ErrNotConfigured is raised at the point of use when provider credentials
// are missing; it is never masked as a payment failure.
var ErrNotConfigured = errors.New("unipayment credentials are not configured")

// Client talks to the UniPayment REST API: client-credentials token grant,
// invoice creation and authoritative invoice status reads.
type Client struct {
	AppID      string
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// TokenResponse is the /connect/token grant response.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Invoice is the provider's invoice resource, reduced to the fields the
// reconciler needs.
type Invoice struct {
	InvoiceID     string  `json:"invoice_id"`
	OrderID       string  `json:"order_id"`
	Status        string  `json:"status"`
	PriceAmount   float64 `json:"price_amount"`
	PriceCurrency string  `json:"price_currency"`
	PaidAmount    float64 `json:"paid_amount"`
	NetworkFee    float64 `json:"network_fee"`
	PayCurrency   string  `json:"pay_currency"`
	CheckoutURL   string  `json:"checkout_url"`
	CreatedAt     string  `json:"created_time"`
}

// CreateInvoiceRequest describes a checkout to create.
type CreateInvoiceRequest struct {
	OrderID       string  `json:"order_id"`
	PriceAmount   float64 `json:"price_amount"`
	PriceCurrency string  `json:"price_currency"`
	Title         string  `json:"title,omitempty"`
	Description   string  `json:"description,omitempty"`
	NotifyURL     string  `json:"notify_url,omitempty"`
	RedirectURL   string  `json:"redirect_url,omitempty"`
	ExpireMinutes int     `json:"expire_minutes,omitempty"`
}

// envelope is the provider's standard response wrapper.
type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// NewClient creates a client for the given environment. Empty credentials
// yield ErrNotConfigured.
func NewClient(appID, apiKey, environment string) (*Client, error) {
	appID = strings.TrimSpace(appID)
	apiKey = strings.TrimSpace(apiKey)
	if appID == "" || apiKey == "" {
		return nil, ErrNotConfigured
	}

	base := defaultSandboxAPIBaseURL
	if environment == models.UniPaymentEnvProduction {
		base = defaultProductionAPIBaseURL
	}

	return &Client{
		AppID:   appID,
		APIKey:  apiKey,
		BaseURL: base,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}, nil
}

// NewClientFromSetting builds a client from a stored configuration row,
// decrypting the API secret with the application key.
func NewClientFromSetting(setting *models.UniPaymentSetting, appKey string) (*Client, error) {
	if setting == nil {
		return nil, ErrNotConfigured
	}
	apiKey, err := setting.APIKey(appKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt unipayment credentials: %w", err)
	}
	return NewClient(setting.AppID, apiKey, setting.Environment)
}

// getAccessToken fetches (or reuses) a client-credentials bearer token.
func (c *Client) getAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.accessToken != "" && time.Until(c.tokenExpiry) > time.Minute {
		token := c.accessToken
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.AppID)
	form.Set("client_secret", c.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/connect/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("unipayment token grant failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out TokenResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return "", errors.New("unipayment token grant returned empty access_token")
	}

	c.mu.Lock()
	c.accessToken = out.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(out.ExpiresIn) * time.Second)
	c.mu.Unlock()
	return out.AccessToken, nil
}

// GetInvoice fetches the authoritative current state of an invoice.
func (c *Client) GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return nil, errors.New("invoice id is required")
	}

	token, err := c.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v1.0/invoices/"+url.PathEscape(invoiceID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unipayment invoice fetch failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	return decodeInvoice(body)
}

// CreateInvoice creates a new checkout invoice.
func (c *Client) CreateInvoice(ctx context.Context, in CreateInvoiceRequest) (*Invoice, error) {
	if in.OrderID == "" || in.PriceAmount <= 0 || in.PriceCurrency == "" {
		return nil, errors.New("order_id, price_amount and price_currency are required")
	}

	token, err := c.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1.0/invoices", strings.NewReader(string(payload)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unipayment invoice create failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	return decodeInvoice(body)
}

func decodeInvoice(body []byte) (*Invoice, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	if env.Code != "" && !strings.EqualFold(env.Code, "OK") {
		return nil, fmt.Errorf("unipayment error response: code=%s msg=%s", env.Code, env.Msg)
	}

	raw := env.Data
	if len(raw) == 0 {
		// Some deployments return the invoice without the envelope.
		raw = body
	}
	var inv Invoice
	if err := json.Unmarshal(raw, &inv); err != nil {
		return nil, err
	}
	if strings.TrimSpace(inv.InvoiceID) == "" {
		return nil, errors.New("unipayment response missing invoice_id")
	}
	return &inv, nil
}
