package client

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Hunga9k50doker/spheron/internal/models"
)

// Policy controls attempt pacing for one logical request.
type Policy struct {
	// Retries is the number of additional attempts after the first.
	Retries int
	// Delay is the standard inter-attempt delay.
	Delay time.Duration
	// RateLimitDelay is the extended wait applied after a 429 before the
	// standard delay.
	RateLimitDelay time.Duration
}

// Options tunes a single Send call.
type Options struct {
	// Retries overrides the policy's retry budget. Negative means use the
	// policy default; zero means no retries.
	Retries int
	// IsAuth marks the login call itself: no session credential is attached
	// and a 401 does not trigger a refresh, which would loop.
	IsAuth bool
	// ExtraHeaders are merged over the base identity headers.
	ExtraHeaders map[string]string
}

// DefaultOptions uses the client's policy retry budget.
func DefaultOptions() Options { return Options{Retries: -1} }

// Send executes one logical request under the client's resilience policy: a
// bounded attempt loop with fixed inter-attempt delay, extended backoff on
// 429, no retry on 400, and a single refresh-and-replay on 401 that is not
// counted against the retry budget. The returned error is non-nil only for
// conditions fatal to the account (cancelled context, unrefreshable
// credential); ordinary failures come back as an unsuccessful Outcome.
func (c *Client) Send(ctx context.Context, method, url string, body any, opts Options) (models.Outcome, error) {
	retries := opts.Retries
	if retries < 0 {
		retries = c.policy.Retries
	}

	attempts := 0
	refreshed := false
	var out models.Outcome

	for {
		out = c.attempt(ctx, method, url, body, opts)
		attempts++

		if out.Success {
			return out, nil
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}

		c.logger.Warn("request failed", "url", url, "status", out.Status, "error", out.Err)

		switch {
		case out.Status == http.StatusUnauthorized && !opts.IsAuth:
			if refreshed {
				// The replayed request came back 401 again; a second
				// refresh would loop.
				return out, nil
			}
			if _, err := c.ValidToken(ctx, true); err != nil {
				return out, err
			}
			refreshed = true
			// The replay is free: it re-issues the same logical request
			// with the fresh token.
			attempts--
			continue

		case out.Status == http.StatusBadRequest:
			c.logger.Error("non-retryable response, the upstream API may have changed", "url", url)
			return out, nil

		case out.Status == http.StatusTooManyRequests:
			c.metrics.IncRateLimited()
			c.logger.Warn("rate limited, extended backoff", "wait", c.policy.RateLimitDelay)
			if err := c.sleep(ctx, c.policy.RateLimitDelay); err != nil {
				return out, err
			}
		}

		if attempts > retries {
			return out, nil
		}

		c.metrics.IncRetry()
		if err := c.sleep(ctx, c.policy.Delay); err != nil {
			return out, err
		}
	}
}

// attempt performs a single HTTP exchange and maps it to an Outcome.
func (c *Client) attempt(ctx context.Context, method, url string, body any, opts Options) models.Outcome {
	req := c.http.R().
		SetContext(ctx).
		SetHeaders(c.id.Headers()).
		SetHeaders(opts.ExtraHeaders)

	if !opts.IsAuth && c.token != "" {
		req.SetHeader("cookie", c.token)
	}
	if body != nil && !strings.EqualFold(method, http.MethodGet) {
		req.SetBody(body)
	}

	start := time.Now()
	resp, err := req.Execute(strings.ToUpper(method), url)
	if err != nil {
		c.metrics.ObserveRequest(method, 0, time.Since(start))
		return models.Outcome{Err: err.Error()}
	}
	c.metrics.ObserveRequest(method, resp.StatusCode(), time.Since(start))

	out := models.Outcome{
		Status: resp.StatusCode(),
		Header: resp.Header(),
	}
	if resp.IsSuccess() {
		out.Success = true
		out.Data = unwrap(resp.Body())
		return out
	}

	out.Err = apiError(resp.Body())
	return out
}
