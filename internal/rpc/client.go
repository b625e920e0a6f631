package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-querysync/cache"
	"github.com/goliatone/go-querysync/querysync"
)

var _ querysync.Transport = (*Client)(nil)

// Client is a querysync.Transport that calls a remote Handler.
type Client struct {
	baseURL string
	http    *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client, for example one with a cookie jar
// that carries the session.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient creates a transport for the handler mounted at baseURL, for
// example "http://localhost:3000/api".
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Read implements querysync.Transport.
func (c *Client) Read(ctx context.Context, name string, params json.RawMessage) (json.RawMessage, error) {
	endpoint := c.baseURL + "/query/" + url.PathEscape(name)
	if len(params) > 0 {
		endpoint += "?" + url.Values{"input": {string(params)}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// Write implements querysync.Transport.
func (c *Client) Write(ctx context.Context, name string, payload json.RawMessage) (json.RawMessage, error) {
	endpoint := c.baseURL + "/command/" + url.PathEscape(name)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, cache.Transient(err, "request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, cache.Transient(err, "could not read response")
	}
	if len(body) > maxBodyBytes {
		return nil, &cache.ErrorInfo{
			Code:    cache.CodeUnknown,
			Message: fmt.Sprintf("response exceeds %d bytes", maxBodyBytes),
		}
	}

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return json.RawMessage("null"), nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if !json.Valid(body) {
			return nil, &cache.ErrorInfo{Code: cache.CodeUnknown, Message: "response is not valid JSON"}
		}
		return json.RawMessage(body), nil
	}
	return nil, decodeError(resp.StatusCode, body)
}

type statusError struct {
	code int
	body string
}

func (e statusError) Error() string {
	if e.body == "" {
		return http.StatusText(e.code)
	}
	return e.body
}

func (e statusError) StatusCode() int { return e.code }

// decodeError turns a failed response into an error. ErrorInfo documents are
// returned as is; anything else is mapped from the status code.
func decodeError(status int, body []byte) error {
	var info cache.ErrorInfo
	if err := json.Unmarshal(body, &info); err == nil && info.Code != "" {
		return &info
	}

	se := statusError{code: status, body: strings.TrimSpace(string(body))}
	switch status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return cache.Transient(se, fmt.Sprintf("upstream unavailable (%d)", status))
	}
	return goerrors.MapHTTPErrors(se)
}
