package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/Hunga9k50doker/spheron/internal/identity"
	"github.com/Hunga9k50doker/spheron/internal/metrics"
	"github.com/Hunga9k50doker/spheron/internal/models"
	"github.com/Hunga9k50doker/spheron/internal/store"
)

// ErrCredentialExpired marks an account whose credential could not be
// refreshed. It is fatal for that account; whether it aborts the whole run is
// the scheduler's call.
var ErrCredentialExpired = errors.New("credential cannot be refreshed")

const (
	requestTimeout = 120 * time.Second
	egressCheckURL = "https://api.ipify.org?format=json"
)

// Deps carries the collaborators a Client needs beyond its account.
type Deps struct {
	Tokens  store.Table
	Metrics *metrics.Collector
	Logger  *slog.Logger
	// Sleep waits for d or until ctx is done. Left nil, a ctx-aware
	// time.After wait is used; tests inject a recorder.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Client wraps one account's network access: identity headers, proxy routing,
// credential injection, and the retry/backoff/refresh policy for a single
// logical request. One Client is owned by exactly one execution unit.
type Client struct {
	account models.Account
	baseURL string
	id      identity.Identity
	policy  Policy

	http    *resty.Client
	tokens  store.Table
	metrics *metrics.Collector
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error

	token    string
	egressIP string
}

// New constructs a session client for one account. The account's proxy, when
// set, routes all transport for the client's lifetime.
func New(account models.Account, baseURL string, id identity.Identity, policy Policy, deps Deps) *Client {
	httpClient := resty.New().SetTimeout(requestTimeout)
	if account.Proxy != "" {
		httpClient.SetProxy(account.Proxy)
	}

	sleep := deps.Sleep
	if sleep == nil {
		sleep = waitFor
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if account.Proxy == "" {
		logger = logger.With("ip", "local")
	}

	return &Client{
		account: account,
		baseURL: baseURL,
		id:      id,
		policy:  policy,
		http:    httpClient,
		tokens:  deps.Tokens,
		metrics: deps.Metrics,
		logger:  logger,
		sleep:   sleep,
	}
}

func waitFor(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Token returns the currently cached session token, empty when none.
func (c *Client) Token() string { return c.token }

// EgressIP returns the observed public egress IP, empty until resolved.
func (c *Client) EgressIP() string { return c.egressIP }

// RestoreToken loads a previously persisted session token for the account, if
// any. A missing entry is not an error.
func (c *Client) RestoreToken(ctx context.Context) error {
	if c.tokens == nil {
		return nil
	}
	token, ok, err := c.tokens.Get(ctx, c.account.Key)
	if err != nil {
		return fmt.Errorf("restore token: %w", err)
	}
	if ok {
		c.token = token
	}
	return nil
}

// ResolveEgressIP resolves the public IP this client's transport egresses
// from, through the proxy when one is configured. The result is cached for
// logging. Failure is fatal for the account.
func (c *Client) ResolveEgressIP(ctx context.Context) (string, error) {
	var result struct {
		IP string `json:"ip"`
	}

	resp, err := c.http.R().SetContext(ctx).SetResult(&result).Get(egressCheckURL)
	if err != nil {
		return "", fmt.Errorf("resolve egress IP: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("resolve egress IP: status %d", resp.StatusCode())
	}
	if result.IP == "" {
		return "", fmt.Errorf("resolve egress IP: empty response")
	}

	c.egressIP = result.IP
	c.logger = c.logger.With("ip", result.IP)
	return result.IP, nil
}

// ValidToken returns a usable session token: the cached one unless force is
// set, otherwise a fresh login. A fresh token is persisted under the account
// key before it is returned. Login failure wraps ErrCredentialExpired.
func (c *Client) ValidToken(ctx context.Context, force bool) (string, error) {
	if c.token != "" && !force {
		c.logger.Debug("using cached session token")
		return c.token, nil
	}

	c.logger.Info("no usable session token, logging in")
	token, err := c.login(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCredentialExpired, err)
	}

	c.token = token
	if c.tokens != nil {
		if err := c.tokens.Set(ctx, c.account.Key, token); err != nil {
			c.logger.Warn("failed to persist session token", "error", err)
		}
	}

	return token, nil
}

// unwrap extracts the nested payload from a `{"data": ...}` wrapper body, or
// returns the raw body when no wrapper is present.
func unwrap(body []byte) json.RawMessage {
	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil &&
		len(wrapper.Data) > 0 && string(wrapper.Data) != "null" {
		return wrapper.Data
	}
	return body
}

// apiError pulls the server-reported error string out of an error body,
// falling back to the raw body.
func apiError(body []byte) string {
	var wrapper struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Error != "" {
		return wrapper.Error
	}
	return string(body)
}
