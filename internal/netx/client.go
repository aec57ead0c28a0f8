package netx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/vfaronov/httpheader"

	"github.com/tilawa-app/tilawa/internal/utils"
)

// HTTP client tuning
const (
	DefaultTimeout        = 15 * time.Second
	DefaultMaxIdleConns   = 100
	DefaultIdleConnTimout = 90 * time.Second
	DialTimeout           = 5 * time.Second
	KeepAliveDuration     = 30 * time.Second
	maxErrorBody          = 64 * 1024
)

// Client performs JSON GETs through an Executor.
type Client struct {
	httpClient *http.Client
	exec       *Executor
	userAgent  string
}

// NewClient builds a Client with a tuned transport. A non-positive timeout
// falls back to DefaultTimeout.
func NewClient(timeout time.Duration, exec *Executor, userAgent string) *Client {
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: DialTimeout, KeepAlive: KeepAliveDuration}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          DefaultMaxIdleConns,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       DefaultIdleConnTimout,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return NewClientWithHTTPClient(&http.Client{Timeout: timeout, Transport: tr}, exec, userAgent)
}

// NewClientWithHTTPClient builds a Client from an existing http.Client.
func NewClientWithHTTPClient(httpClient *http.Client, exec *Executor, userAgent string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if exec == nil {
		exec = NewExecutor(DefaultRetryOptions())
	}
	return &Client{httpClient: httpClient, exec: exec, userAgent: userAgent}
}

// HTTPClient exposes the underlying client for streaming transfers.
func (c *Client) HTTPClient() *http.Client { return c.httpClient }

// Executor returns the retry executor used by the client.
func (c *Client) Executor() *Executor { return c.exec }

// GetJSON fetches rawURL and decodes the JSON body into dest, retrying per the
// executor's policy. Errors are *FetchError.
func (c *Client) GetJSON(ctx context.Context, rawURL string, dest any) error {
	return c.exec.Execute(ctx, func(ctx context.Context) error {
		return c.getJSONOnce(ctx, rawURL, dest)
	})
}

func (c *Client) getJSONOnce(ctx context.Context, rawURL string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		if err := resp.Body.Close(); err != nil {
			utils.Debug("netx: error closing response body: %v", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{
			StatusCode: resp.StatusCode,
			URL:        rawURL,
			RetryAfter: httpheader.RetryAfter(resp.Header),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return &DecodeError{URL: rawURL, Err: err}
	}
	return nil
}
