package net

import (
	"context"
	"io"
	"time"

	http "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
)

// DefaultTimeout applies when New is given a non-positive timeout.
const DefaultTimeout = 10 * time.Second

// UserAgent is sent on every request built by NewRequest.
const UserAgent = "feishu-outbound/1.0 (+https://github.com/Alfex4936/feishu-outbound)"

// Doer sends a request. *Client satisfies it; tests swap in fakes.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client wraps a tls-client session (keep-alive, TLS session reuse).
type Client struct {
	hc tls_client.HttpClient
}

// New builds a Client with the given overall request timeout.
func New(timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	secs := int(timeout / time.Second)
	if secs < 1 {
		secs = 1
	}

	hc, err := tls_client.NewHttpClient(tls_client.NewNoopLogger(),
		tls_client.WithTimeoutSeconds(secs),
		tls_client.WithClientProfile(profiles.DefaultClientProfile),
	)
	if err != nil {
		return nil, err
	}
	return &Client{hc: hc}, nil
}

// Do forwards to the shared tls-client session.
func (c *Client) Do(req *http.Request) (*http.Response, error) { return c.hc.Do(req) }

// NewRequest builds a pre-populated request.
func NewRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)
	return req, nil
}
