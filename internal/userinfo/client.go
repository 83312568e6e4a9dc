// Package userinfo consumes the console's user-info endpoint, which lists the modules and
// permissions granted to the session user, and tracks the resulting capability snapshot.
package userinfo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vouchr.org/internal/auth"
)

const (
	defaultTimeout   = 5 * time.Second
	maxResponseBytes = 1 << 20
)

// ErrFetch wraps every failure to obtain the module listing.
var ErrFetch = errors.New("userinfo: fetch failed")

// Fetcher returns the module grants for the holder of accessToken.
type Fetcher interface {
	Fetch(ctx context.Context, accessToken string) ([]auth.ModuleGrant, error)
}

// Client is the HTTP Fetcher for GET {base}/user-info.
type Client struct {
	endpoint string
	client   *http.Client
}

var _ Fetcher = (*Client)(nil)

// ClientOption configures Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		if c != nil {
			cl.client = c
		}
	}
}

// NewClient builds a client against baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("userinfo: base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("userinfo: parse base url: %w", err)
	}
	c := &Client{endpoint: baseURL + "/user-info", client: &http.Client{Timeout: defaultTimeout}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type response struct {
	Modules []auth.ModuleGrant `json:"modules"`
}

// Fetch loads the module listing. Permission entries are decoded through the
// auth.PermissionEntry union, so bare ids and records are both accepted.
func (c *Client) Fetch(ctx context.Context, accessToken string) ([]auth.ModuleGrant, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, fmt.Errorf("%w: missing access token", ErrFetch)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrFetch, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrFetch, resp.StatusCode)
	}
	var out response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrFetch, err)
	}
	return out.Modules, nil
}
