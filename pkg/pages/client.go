// Package pages is a thin client for the external hosted-page API. It owns
// no state and no logic beyond serializing requests and reading one field
// from each response.
package pages

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
)

// Client issues page create/update/delete calls against the deploy API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		return nil, fmt.Errorf("api base url required")
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the page API.
type APIError struct {
	Status int
	Detail string
}

func (e APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("page api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("page api request failed (%d): %s", e.Status, e.Detail)
}

type pageRequest struct {
	HTML string `json:"html"`
}

type pageResponse struct {
	URL    string `json:"url"`
	Detail string `json:"detail"`
}

// Deploy creates a hosted page from raw HTML and returns its URL.
func (c *Client) Deploy(ctx context.Context, html string) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, "/deploy", &pageRequest{HTML: html})
	if err != nil {
		return "", err
	}
	return resp.URL, nil
}

// Update replaces the content of an existing page and returns its URL.
func (c *Client) Update(ctx context.Context, pageID, html string) (string, error) {
	resp, err := c.do(ctx, http.MethodPut, "/deploy/"+url.PathEscape(pageID), &pageRequest{HTML: html})
	if err != nil {
		return "", err
	}
	return resp.URL, nil
}

// Delete removes a hosted page and returns the API's detail message.
func (c *Client) Delete(ctx context.Context, pageID string) (string, error) {
	resp, err := c.do(ctx, http.MethodDelete, "/deploy/"+url.PathEscape(pageID), nil)
	if err != nil {
		return "", err
	}
	return resp.Detail, nil
}

func (c *Client) do(ctx context.Context, method, path string, body *pageRequest) (*pageResponse, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("page api request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var parsed pageResponse
	if len(data) > 0 {
		// Tolerate non-JSON error bodies; status handling below reports them.
		_ = json.Unmarshal(data, &parsed)
	}
	if resp.StatusCode >= 400 {
		detail := parsed.Detail
		if detail == "" {
			detail = strings.TrimSpace(string(data))
		}
		return nil, APIError{Status: resp.StatusCode, Detail: detail}
	}
	return &parsed, nil
}
