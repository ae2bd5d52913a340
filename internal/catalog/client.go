package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-jwt/jwt/v5"

	"github.com/agenthands/crosswalk/internal/config"
	"github.com/agenthands/crosswalk/internal/logger"
)

const (
	// tokens are refreshed this long before they expire
	refreshSkew = 60 * time.Second
	defaultTTL  = time.Hour
	maxRetries  = 3
)

var ErrNoToken = errors.New("catalog: no token in login response")

type HTTPError struct {
	StatusCode int
	Path       string
	Body       string
}

func (e *HTTPError) Error() string {
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = "<empty body>"
	}
	if len(msg) > 500 {
		msg = msg[:500] + "..."
	}
	return fmt.Sprintf("catalog %s: http %d: %s", e.Path, e.StatusCode, msg)
}

func (e *HTTPError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client talks to the product catalog. It logs in with email and password
// and keeps the bearer token until shortly before it expires.
type Client struct {
	baseURL  string
	email    string
	password string
	http     *http.Client
	log      *logger.Logger
	now      func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
}

func New(cfg config.CatalogConfig, baseLog *logger.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("catalog base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:  base,
		email:    cfg.Email,
		password: cfg.Password,
		http:     &http.Client{Timeout: timeout},
		log:      baseLog.With("component", "catalog"),
		now:      time.Now,
	}, nil
}

type loginResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
	ExpiresIn   *int64 `json:"expires_in"`
}

// Login fetches a fresh token.
func (c *Client) Login(ctx context.Context) error {
	var resp loginResponse
	body := map[string]string{"email": c.email, "password": c.password}
	if err := c.do(ctx, http.MethodPost, "/login", "", body, &resp); err != nil {
		return fmt.Errorf("catalog login: %w", err)
	}
	token := resp.Token
	if token == "" {
		token = resp.AccessToken
	}
	if token == "" {
		return ErrNoToken
	}

	c.mu.Lock()
	c.token = token
	c.expiry = c.expiryFor(token, resp.ExpiresIn)
	expiry := c.expiry
	c.mu.Unlock()

	c.log.Info("logged in to catalog", "expires_at", expiry)
	return nil
}

// expiryFor prefers expires_in, then the JWT exp claim, then one hour.
func (c *Client) expiryFor(token string, expiresIn *int64) time.Time {
	now := c.now()
	if expiresIn != nil {
		return now.Add(time.Duration(*expiresIn)*time.Second - refreshSkew)
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time.Add(-refreshSkew)
		}
	}
	return now.Add(defaultTTL - refreshSkew)
}

func (c *Client) bearer(ctx context.Context) (string, error) {
	c.mu.Lock()
	token, expiry := c.token, c.expiry
	c.mu.Unlock()
	if token != "" && c.now().Before(expiry) {
		return token, nil
	}
	if err := c.Login(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, nil
}

func (c *Client) forget() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// get performs an authenticated GET and decodes the JSON response into out.
// A 401 drops the token and retries once with a new login.
func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	for attempt := 0; ; attempt++ {
		token, err := c.bearer(ctx)
		if err != nil {
			return err
		}
		err = c.do(ctx, http.MethodGet, path, token, nil, out)
		var httpErr *HTTPError
		if attempt == 0 && errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusUnauthorized {
			c.log.Warn("catalog token rejected, logging in again", "path", path)
			c.forget()
			continue
		}
		return err
	}
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = b
	}

	op := func() error {
		raw, err := c.doOnce(ctx, method, path, token, payload)
		if err != nil {
			var httpErr *HTTPError
			if errors.As(err, &httpErr) && !httpErr.retryable() {
				return backoff.Permanent(err)
			}
			return err
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode %s: %w", path, err))
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	notify := func(err error, d time.Duration) {
		c.log.Warn("catalog request retrying", "path", path, "sleep", d.String(), "error", err)
	}
	return backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(b, maxRetries), ctx), notify)
}

func (c *Client) doOnce(ctx context.Context, method, path, token string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Path: path, Body: string(raw)}
	}
	return raw, nil
}
