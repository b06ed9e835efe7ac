// Package directory is the HTTP adapter to the downstream system of record:
// customer profile lookup before a call and the call-log upload after it.
// Both operations are timeout-bounded and expected to fail soft; callers
// log and continue.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/csnavigator/callcopilot/pkg/config"
	"github.com/csnavigator/callcopilot/pkg/models"
)

const (
	apiKeyHeader = "X-API-KEY"

	profilePath = "/search"
	callEndPath = "/call-end"
)

// Client talks to the customer directory and persistence endpoints.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	profileTimeout time.Duration
	uploadTimeout  time.Duration
}

// NewClient builds a client from the directory configuration.
func NewClient(cfg *config.DirectoryConfig) *Client {
	return &Client{
		httpClient:     &http.Client{},
		baseURL:        cfg.BaseURL,
		apiKey:         cfg.APIKey,
		profileTimeout: cfg.ProfileTimeout,
		uploadTimeout:  cfg.UploadTimeout,
	}
}

// FetchProfile looks up a customer by phone number. A 404 means the caller
// is unknown and returns (nil, nil); the call proceeds without a profile.
func (c *Client) FetchProfile(ctx context.Context, phoneNumber string) (*models.CustomerInfo, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.profileTimeout)
	defer cancel()

	endpoint := c.baseURL + profilePath + "?phoneNumber=" + url.QueryEscape(phoneNumber)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building profile request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile fetch: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("profile fetch: unexpected status %d", resp.StatusCode)
	}

	var info models.CustomerInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decoding profile: %w", err)
	}
	return &info, nil
}

// UploadCallLog posts the end-of-call analysis payload.
func (c *Client) UploadCallLog(ctx context.Context, payload models.CallLogPayload) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling call log: %w", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+callEndPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building call log request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call log upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("call log upload: status %d: %s", resp.StatusCode, snippet)
	}
	return nil
}
