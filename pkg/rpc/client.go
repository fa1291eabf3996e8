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

	"github.com/dd0wney/cluso-filestore/pkg/gateway"
)

// DefaultClientTimeout bounds a single call when no http.Client is given.
const DefaultClientTimeout = 30 * time.Second

// Client calls a backend's RPC surface. Transport failures and bare 5xx
// responses are reported as gateway.ErrBackendUnreachable.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ gateway.Backend = (*Client)(nil)

// NewClient returns a client for the server at baseURL.
func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: DefaultClientTimeout}
	}
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var resp loginResponse
	err := c.doJSON(ctx, http.MethodPost, "/rpc/login", credentials{Username: username, Password: password}, &resp)
	return resp.Token, err
}

func (c *Client) CreateAccount(ctx context.Context, username, password string) error {
	return c.doJSON(ctx, http.MethodPost, "/rpc/accounts", credentials{Username: username, Password: password}, nil)
}

func (c *Client) ListFiles(ctx context.Context) ([]string, error) {
	var resp filesResponse
	if err := c.doJSON(ctx, http.MethodGet, "/rpc/files", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Files, nil
}

func (c *Client) Upload(ctx context.Context, name string, data []byte) error {
	_, err := c.do(ctx, http.MethodPut, filePath(name), "application/octet-stream", data)
	return err
}

func (c *Client) EditFile(ctx context.Context, name string, data []byte) error {
	_, err := c.do(ctx, http.MethodPost, filePath(name)+"/append", "application/octet-stream", data)
	return err
}

func (c *Client) Download(ctx context.Context, name string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, filePath(name), "", nil)
}

func (c *Client) DeleteFile(ctx context.Context, name string) error {
	_, err := c.do(ctx, http.MethodDelete, filePath(name), "", nil)
	return err
}

func (c *Client) GetSystemHash(ctx context.Context) (string, error) {
	var resp hashResponse
	err := c.doJSON(ctx, http.MethodGet, "/rpc/hash", nil, &resp)
	return resp.Hash, err
}

// Health fetches the server's health report.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var resp Health
	err := c.doJSON(ctx, http.MethodGet, "/health", nil, &resp)
	return resp, err
}

func filePath(name string) string {
	return "/rpc/files/" + url.PathEscape(name)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	contentType := ""
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("rpc: encoding request: %w", err)
		}
		body, contentType = encoded, "application/json"
	}
	raw, err := c.do(ctx, method, path, contentType, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %v", gateway.ErrBackendUnreachable, path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("rpc: building request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token := TokenFrom(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %v", gateway.ErrBackendUnreachable, c.baseURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response from %s: %v", gateway.ErrBackendUnreachable, c.baseURL, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return raw, nil
	}

	var errResp ErrorResponse
	if jsonErr := json.Unmarshal(raw, &errResp); jsonErr != nil {
		errResp = ErrorResponse{}
	}
	return nil, decodeError(resp.StatusCode, errResp)
}
