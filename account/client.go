// Package account talks to the remote account service that owns wallet
// balances. Endpoints and field names follow the service's existing HTTP API.
package account

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/user/railpass-blue/errs"
	"github.com/user/railpass-blue/logger"
)

const (
	defaultRequestTimeout = 10 * time.Second
	maxResponseBodyBytes  = 1 << 20

	pathRegister  = "/register_user"
	pathState     = "/wallet_balance"
	pathIncrement = "/add_funds"
)

// HTTPDoer is the part of *http.Client the client needs
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Registration is what the service hands a new holder
type Registration struct {
	Identity string
	Balance  float64
}

// State is the remote record polled for one identity
type State struct {
	Balance      float64
	ActivityFlag bool
}

type registerResponse struct {
	UserID        string   `json:"user_id"`
	WalletBalance *float64 `json:"wallet_balance"`
}

type stateResponse struct {
	WalletBalance *float64 `json:"wallet_balance"`
	JourneyActive bool     `json:"journey_active"`
}

type incrementResponse struct {
	NewBalance *float64 `json:"new_balance"`
}

// Client calls the account service
type Client struct {
	baseURL    string
	httpClient HTTPDoer
	timeout    time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default *http.Client
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.httpClient = doer
		}
	}
}

// WithTimeout bounds every request; zero keeps the default
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewClient creates a client for the service at baseURL
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		timeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	return c
}

// Register creates a new holder record. Failures come back as REGISTRATION_FAILURE.
func (c *Client) Register(ctx context.Context) (Registration, error) {
	var resp registerResponse
	if err := c.call(ctx, http.MethodPost, pathRegister, "", &resp); err != nil {
		return Registration{}, errs.RegistrationFailure(err)
	}
	if resp.UserID == "" || resp.WalletBalance == nil {
		return Registration{}, errs.RegistrationFailure(fmt.Errorf("incomplete registration response"))
	}
	logger.Debug(logger.Prefix(resp.UserID, "account"), "registered with balance %.2f", *resp.WalletBalance)
	return Registration{Identity: resp.UserID, Balance: *resp.WalletBalance}, nil
}

// GetState fetches the current balance and activity flag for identity
func (c *Client) GetState(ctx context.Context, identity string) (State, error) {
	if identity == "" {
		return State{}, errs.NoIdentity("account")
	}
	var resp stateResponse
	if err := c.call(ctx, http.MethodGet, pathState, identity, &resp); err != nil {
		return State{}, errs.NetworkFailure(err, "get_state")
	}
	if resp.WalletBalance == nil {
		return State{}, errs.NetworkFailure(fmt.Errorf("response has no wallet_balance"), "get_state")
	}
	return State{Balance: *resp.WalletBalance, ActivityFlag: resp.JourneyActive}, nil
}

// IncrementBalance asks the service to add funds and returns the new balance.
// The call mutates server state, so it is sent exactly once.
func (c *Client) IncrementBalance(ctx context.Context, identity string) (float64, error) {
	if identity == "" {
		return 0, errs.NoIdentity("account")
	}
	var resp incrementResponse
	if err := c.call(ctx, http.MethodPost, pathIncrement, identity, &resp); err != nil {
		return 0, errs.NetworkFailure(err, "increment_balance")
	}
	if resp.NewBalance == nil {
		return 0, errs.NetworkFailure(fmt.Errorf("response has no new_balance"), "increment_balance")
	}
	return *resp.NewBalance, nil
}

// call performs one request and decodes a 200 response into out
func (c *Client) call(ctx context.Context, method, path, identity string, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + path
	if identity != "" {
		endpoint += "?" + url.Values{"user_id": []string{identity}}.Encode()
	}

	req, err := http.NewRequestWithContext(requestCtx, method, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	prefix := logger.Prefix(identity, "account")
	logger.Trace(prefix, "%s %s", method, path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes+1))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if len(body) > maxResponseBodyBytes {
		return fmt.Errorf("response exceeds %d bytes", maxResponseBodyBytes)
	}
	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// StatusError is a non-200 answer from the service
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}
