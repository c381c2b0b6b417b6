// Package directory provides a client for the directory service's REST API:
// user lookup and authentication-method provisioning. The client absorbs
// rate-limit responses and can run in dry-run mode where write calls report
// what they would have done without sending anything.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dirops/authseed/pkg/logger"
	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrUserNotFound = errors.New("user not found")
)

// Config holds the settings needed to authenticate against the directory API
// with client credentials.
type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scope        string

	// DryRun makes every write call a no-op that reports DryRunSkipped.
	DryRun bool

	// RetryBudget bounds the total time a single call may spend waiting out
	// rate-limit responses. Zero means 5 minutes.
	RetryBudget time.Duration

	// RetryBuffer is added on top of the server's retry-after duration
	// before re-issuing a rate-limited call. Zero means 15 seconds.
	RetryBuffer time.Duration
}

// Client talks to the directory API. Safe for concurrent use.
type Client struct {
	log         *logger.Logger
	http        *http.Client
	baseURL     string
	tokenURL    string
	clientID    string
	secret      string
	scope       string
	dryRun      bool
	retryBudget time.Duration
	retryBuffer time.Duration

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

// New constructs a directory client. No network traffic happens until the
// first call.
func New(log *logger.Logger, cfg Config) *Client {
	budget := cfg.RetryBudget
	if budget <= 0 {
		budget = 5 * time.Minute
	}

	buffer := cfg.RetryBuffer
	if buffer <= 0 {
		buffer = 15 * time.Second
	}

	return &Client{
		log:         log,
		http:        &http.Client{Timeout: time.Minute},
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		tokenURL:    cfg.TokenURL,
		clientID:    cfg.ClientID,
		secret:      cfg.ClientSecret,
		scope:       cfg.Scope,
		dryRun:      cfg.DryRun,
		retryBudget: budget,
		retryBuffer: buffer,
	}
}

// DryRun reports whether the client skips write calls.
func (c *Client) DryRun() bool {
	return c.dryRun
}

// connect fetches a bearer token if none is cached or the cached one expired.
func (c *Client) connect(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExp) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.secret)
	form.Set("scope", c.scope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("newRequestWithContext: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("readAll: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint: status %d: %s", resp.StatusCode, data)
	}

	var tok tokenResponse
	if err := json.Unmarshal(data, &tok); err != nil {
		return "", fmt.Errorf("unmarshal token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("token endpoint: empty access token")
	}

	c.token = tok.AccessToken
	c.tokenExp = tokenExpiry(tok)

	return c.token, nil
}

// tokenExpiry prefers the advertised lifetime and falls back to the token's
// own exp claim when the endpoint omits expires_in. A minute is shaved off so
// a token is refreshed before it goes stale mid-call.
func tokenExpiry(tok tokenResponse) time.Time {
	if tok.ExpiresIn > 0 {
		return time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	}

	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tok.AccessToken, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time.Add(-time.Minute)
	}

	// Opaque token with no advertised lifetime. Refresh every call.
	return time.Now()
}

// sendAPICall performs one authenticated call against the directory API. A
// 429 response is absorbed by sleeping for Retry-After plus a 15 second
// buffer and retrying, until the retry budget runs out. Any other status is
// returned to the caller along with the body.
func (c *Client) sendAPICall(ctx context.Context, method string, endpoint string, body []byte, headers map[string]string) (int, []byte, error) {
	token, err := c.connect(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("connect: %w", err)
	}

	deadline := time.Now().Add(c.retryBudget)

	for {
		var rdr io.Reader
		if body != nil {
			rdr = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+endpoint, rdr)
		if err != nil {
			return 0, nil, fmt.Errorf("newRequestWithContext: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return 0, nil, fmt.Errorf("do: %w", err)
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			data, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return 0, nil, fmt.Errorf("readAll: %w", err)
			}
			return resp.StatusCode, data, nil
		}

		resp.Body.Close()

		wait := retryAfter(resp) + c.retryBuffer
		if time.Now().Add(wait).After(deadline) {
			return 0, nil, fmt.Errorf("rate limited: retry budget of %s exhausted", c.retryBudget)
		}

		c.log.Warn(ctx, "directory api rate limited", "endpoint", endpoint, "wait", wait.String())

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return 0, nil, ctx.Err()
		}
	}
}

func retryAfter(resp *http.Response) time.Duration {
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func unmarshalBody(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return nil
}

// apiError turns a directory error envelope into a Go error. Falls back to
// the raw body when the envelope doesn't parse.
func apiError(status int, data []byte) error {
	var envelope errorResponse
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Error.Message != "" {
		return fmt.Errorf("directory api: status %d: %s: %s", status, envelope.Error.Code, envelope.Error.Message)
	}
	return fmt.Errorf("directory api: status %d: %s", status, data)
}
