// Package feishu sends messages through the Feishu (Lark) open platform.
package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	http "github.com/bogdanfinn/fhttp"
	"github.com/google/uuid"

	"github.com/Alfex4936/feishu-outbound/internal/net"
	"github.com/Alfex4936/feishu-outbound/internal/parse"
)

const (
	Channel = "feishu"

	DefaultBaseURL       = "https://open.feishu.cn"
	DefaultReceiveIDType = "chat_id"
	DefaultMaxMediaBytes = 30 << 20

	tokenPath = "/open-apis/auth/v3/tenant_access_token/internal"

	// refresh this long before the platform-reported expiry
	tokenSlack = 5 * time.Minute
)

// ErrCredentials is returned when the app id or secret is missing.
var ErrCredentials = errors.New("feishu: app id and app secret are required")

// Options tunes a Client. Zero values fall back to the defaults.
type Options struct {
	BaseURL       string
	ReceiveIDType string
	MaxMediaBytes int64
	Doer          net.Doer

	// hooks for tests
	Now     func() time.Time
	NewUUID func() string
}

// Client talks to the Feishu open api with a tenant access token.
// It is safe for concurrent use.
type Client struct {
	baseURL       string
	appID         string
	appSecret     string
	receiveIDType string
	maxMediaBytes int64
	doer          net.Doer
	now           func() time.Time
	newUUID       func() string

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

// New creates a Client for one Feishu app.
func New(appID, appSecret string, opts Options) (*Client, error) {
	if appID == "" || appSecret == "" {
		return nil, ErrCredentials
	}
	c := &Client{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		appID:         appID,
		appSecret:     appSecret,
		receiveIDType: opts.ReceiveIDType,
		maxMediaBytes: opts.MaxMediaBytes,
		doer:          opts.Doer,
		now:           opts.Now,
		newUUID:       opts.NewUUID,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.receiveIDType == "" {
		c.receiveIDType = DefaultReceiveIDType
	}
	if c.maxMediaBytes <= 0 {
		c.maxMediaBytes = DefaultMaxMediaBytes
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newUUID == nil {
		c.newUUID = uuid.NewString
	}
	if c.doer == nil {
		nc, err := net.New(net.DefaultTimeout)
		if err != nil {
			return nil, fmt.Errorf("feishu: http client: %w", err)
		}
		c.doer = nc
	}
	return c, nil
}

// Channel names the platform for delivery results.
func (c *Client) Channel() string { return Channel }

// RequestError is a transport-level failure (no usable response).
type RequestError struct {
	Op  string
	Err error
}

func (e *RequestError) Error() string { return fmt.Sprintf("feishu: %s: %v", e.Op, e.Err) }
func (e *RequestError) Unwrap() error { return e.Err }

// Temporary reports whether retrying may succeed. Cancellation is final.
func (e *RequestError) Temporary() bool {
	return !errors.Is(e.Err, context.Canceled) && !errors.Is(e.Err, context.DeadlineExceeded)
}

type tokenRequest struct {
	AppID     string `json:"app_id"`
	AppSecret string `json:"app_secret"`
}

type tokenResponse struct {
	TenantAccessToken string `json:"tenant_access_token"`
	Expire            int    `json:"expire"` // seconds
}

// tenantToken returns a cached tenant access token, fetching a new one
// when the cached token is missing or about to expire. The fetch runs
// without the lock so waiting callers keep their own ctx.
func (c *Client) tenantToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" && c.now().Before(c.tokenExp) {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	token, exp, err := c.fetchToken(ctx)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" || exp.After(c.tokenExp) {
		c.token, c.tokenExp = token, exp
	}
	return token, nil
}

func (c *Client) fetchToken(ctx context.Context) (string, time.Time, error) {
	body, err := json.Marshal(tokenRequest{AppID: c.appID, AppSecret: c.appSecret})
	if err != nil {
		return "", time.Time{}, err
	}
	req, err := net.NewRequest(ctx, http.MethodPost, c.baseURL+tokenPath, bytes.NewReader(body))
	if err != nil {
		return "", time.Time{}, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	raw, status, err := c.send(req, "tenant token")
	if err != nil {
		return "", time.Time{}, err
	}
	var tok tokenResponse
	if err := parse.DecodeRaw(raw, status, &tok); err != nil {
		return "", time.Time{}, err
	}
	if tok.TenantAccessToken == "" {
		return "", time.Time{}, fmt.Errorf("feishu: empty tenant access token (http %d)", status)
	}
	return tok.TenantAccessToken, c.now().Add(time.Duration(tok.Expire)*time.Second - tokenSlack), nil
}

// invalidateToken drops the cached token so the next call refetches it.
func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// call sends an authenticated request and decodes the envelope into out.
func (c *Client) call(ctx context.Context, op, method, path string, body []byte, contentType string, out any) error {
	token, err := c.tenantToken(ctx)
	if err != nil {
		return err
	}

	req, err := net.NewRequest(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	raw, status, err := c.send(req, op)
	if err != nil {
		return err
	}
	err = parse.Decode(raw, status, out)
	var apiErr *parse.APIError
	if errors.As(err, &apiErr) && apiErr.TokenInvalid() {
		c.invalidateToken()
	}
	return err
}

func (c *Client) send(req *http.Request, op string) ([]byte, int, error) {
	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, 0, &RequestError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &RequestError{Op: op + ": read body", Err: err}
	}
	return raw, resp.StatusCode, nil
}
