// Package momo implements the HTTP client for the mobile-money provider's
// collection API: token exchange, request-to-pay and status queries.
package momo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"zoneadmin/internal/monitoring"
)

const defaultTimeout = 10 * time.Second

// HTTPDoer defines the http.Client interface subset used by the client.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Config carries provider credentials and endpoints. It is constructed once
// at startup and injected; nothing reads it as ambient state.
type Config struct {
	BaseURL           string
	APIUser           string
	APIKey            string
	SubscriptionKey   string
	TargetEnvironment string
	CallbackHost      string
}

// Token is the provider's token-exchange reply.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// TTL returns the advertised token lifetime, defaulting to the provider's
// documented one hour when absent.
func (t Token) TTL() time.Duration {
	if t.ExpiresIn <= 0 {
		return time.Hour
	}
	return time.Duration(t.ExpiresIn) * time.Second
}

// Provider status vocabulary.
const (
	StatusPending    = "PENDING"
	StatusSuccessful = "SUCCESSFUL"
	StatusFailed     = "FAILED"
)

// PaymentRequest describes one request-to-pay instruction. ReferenceID is
// the idempotency key; when empty the client generates a UUID so transport
// retries cannot create duplicate instructions on the provider side.
type PaymentRequest struct {
	Amount       decimal.Decimal
	Currency     string
	PhoneNumber  string
	ExternalID   string
	PayerMessage string
	PayeeNote    string
	ReferenceID  string
}

// PaymentStatus is the provider's view of one reference id.
type PaymentStatus struct {
	Status                 string `json:"status"`
	FinancialTransactionID string `json:"financialTransactionId"`
	Reason                 string `json:"reason"`
	Amount                 string `json:"amount"`
	Currency               string `json:"currency"`
	ExternalID             string `json:"externalId"`
}

// Client talks to the provider's collection API.
type Client struct {
	cfg    Config
	hc     HTTPDoer
	tokens TokenSource
}

// NewClient builds a provider client. A nil doer gets an http.Client with a
// bounded timeout, and the default token source fetches fresh per call.
func NewClient(cfg Config, hc HTTPDoer) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	c := &Client{
		cfg: cfg,
		hc:  hc,
	}
	c.tokens = &freshTokenSource{fetch: c.AccessToken}
	return c
}

// WithTokenSource swaps in a caching token source. Returns the client for
// constructor chaining.
func (c *Client) WithTokenSource(ts TokenSource) *Client {
	if ts != nil {
		c.tokens = ts
	}
	return c
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

// AccessToken performs the Basic-auth token exchange. It satisfies FetchFunc
// so caching sources can wrap it.
func (c *Client) AccessToken(ctx context.Context) (Token, error) {
	start := time.Now()
	tok, err := c.fetchToken(ctx)
	monitoring.ObserveProviderCall("token", start, err)
	return tok, err
}

func (c *Client) fetchToken(ctx context.Context) (Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/collection/token/"), nil)
	if err != nil {
		return Token{}, fmt.Errorf("momo: build token request: %w", err)
	}
	req.SetBasicAuth(c.cfg.APIUser, c.cfg.APIKey)
	req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.SubscriptionKey)

	resp, err := c.hc.Do(req)
	if err != nil {
		return Token{}, &AuthError{Body: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Token{}, &AuthError{Status: resp.StatusCode, Body: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Token{}, &AuthError{Status: resp.StatusCode, Body: string(body)}
	}

	var tok Token
	if err := json.Unmarshal(body, &tok); err != nil {
		return Token{}, &AuthError{Status: resp.StatusCode, Body: err.Error()}
	}
	if tok.AccessToken == "" {
		return Token{}, &AuthError{Status: resp.StatusCode, Body: "response missing access_token"}
	}
	return tok, nil
}

type requestToPayBody struct {
	Amount       string            `json:"amount"`
	Currency     string            `json:"currency"`
	ExternalID   string            `json:"externalId"`
	Payer        requestToPayParty `json:"payer"`
	PayerMessage string            `json:"payerMessage"`
	PayeeNote    string            `json:"payeeNote"`
}

type requestToPayParty struct {
	PartyIDType string `json:"partyIdType"`
	PartyID     string `json:"partyId"`
}

// RequestToPay submits a collection instruction and returns the reference id
// used, generating one when the caller did not supply it. The reference id
// travels in the X-Reference-Id header, not the body.
func (c *Client) RequestToPay(ctx context.Context, p PaymentRequest) (string, error) {
	start := time.Now()
	refID, err := c.requestToPay(ctx, p)
	monitoring.ObserveProviderCall("requesttopay", start, err)
	return refID, err
}

func (c *Client) requestToPay(ctx context.Context, p PaymentRequest) (string, error) {
	refID := p.ReferenceID
	if refID == "" {
		refID = uuid.NewString()
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(requestToPayBody{
		Amount:     p.Amount.String(),
		Currency:   p.Currency,
		ExternalID: p.ExternalID,
		Payer: requestToPayParty{
			PartyIDType: "MSISDN",
			PartyID:     p.PhoneNumber,
		},
		PayerMessage: p.PayerMessage,
		PayeeNote:    p.PayeeNote,
	})
	if err != nil {
		return "", fmt.Errorf("momo: encode requesttopay body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/collection/v1_0/requesttopay"), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("momo: build requesttopay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Reference-Id", refID)
	req.Header.Set("X-Target-Environment", c.cfg.TargetEnvironment)
	req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.SubscriptionKey)
	if c.cfg.CallbackHost != "" {
		req.Header.Set("X-Callback-Url", c.cfg.CallbackHost)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("momo: requesttopay: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &RequestError{Status: resp.StatusCode, Body: string(body)}
	}

	return refID, nil
}

// Status queries the provider for the authoritative state of a reference id.
// The id becomes a URL path segment, so anything that is not UUID-shaped is
// rejected before any network traffic.
func (c *Client) Status(ctx context.Context, referenceID string) (*PaymentStatus, error) {
	referenceID = strings.TrimSpace(referenceID)
	if referenceID == "" {
		return nil, &ValidationError{Msg: "reference id required for status query"}
	}
	if _, err := uuid.Parse(referenceID); err != nil {
		return nil, &ValidationError{Msg: "reference id must be a UUID"}
	}

	start := time.Now()
	status, err := c.status(ctx, referenceID)
	monitoring.ObserveProviderCall("status", start, err)
	return status, err
}

func (c *Client) status(ctx context.Context, referenceID string) (*PaymentStatus, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	url := c.endpoint("/collection/v1_0/requesttopay/" + referenceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("momo: build status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Target-Environment", c.cfg.TargetEnvironment)
	req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.SubscriptionKey)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("momo: status query: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestError{Status: resp.StatusCode, Body: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RequestError{Status: resp.StatusCode, Body: string(body)}
	}

	var status PaymentStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, &RequestError{Status: resp.StatusCode, Body: fmt.Sprintf("decode status body: %v", err)}
	}
	return &status, nil
}
