// Package provider is a typed client for the remote advertising platform.
//
// One method exists per resource kind the launch pipeline provisions. Every
// method issues a single authenticated create call and returns the new
// resource's identifier; the caller owns ordering and retry policy. A 2xx
// response without an id field is treated as an error: the platform's
// contract promises an id, and silently proceeding without one would poison
// the checkpoint.
//
// Example usage:
//
//	client := provider.New("https://graph.ads.example.com", "v21.0")
//	id, err := client.CreateCampaign(ctx, creds, provider.CampaignRequest{...})
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const defaultTimeout = 30 * time.Second

// Client issues create calls against the provider's account-scoped HTTP API.
type Client struct {
	baseURL    string
	apiVersion string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-call HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger.With("component", "provider")
	}
}

// New creates a Client for the given API root and version.
func New(baseURL, apiVersion string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		apiVersion: apiVersion,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default().With("component", "provider"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateImage uploads a creative asset and returns its identifier.
func (c *Client) CreateImage(ctx context.Context, creds Credentials, req ImageRequest) (string, error) {
	return c.create(ctx, creds, "adimages", "image", "Failed to upload image", req)
}

// CreateCampaign creates a campaign and returns its identifier.
func (c *Client) CreateCampaign(ctx context.Context, creds Credentials, req CampaignRequest) (string, error) {
	return c.create(ctx, creds, "campaigns", "campaign", "Failed to create campaign", req)
}

// CreateAdSet creates an ad set and returns its identifier.
func (c *Client) CreateAdSet(ctx context.Context, creds Credentials, req AdSetRequest) (string, error) {
	return c.create(ctx, creds, "adsets", "ad set", "Failed to create ad set", req)
}

// CreateCreative creates an ad creative and returns its identifier.
func (c *Client) CreateCreative(ctx context.Context, creds Credentials, req CreativeRequest) (string, error) {
	return c.create(ctx, creds, "adcreatives", "creative", "Failed to create creative", req)
}

// CreateAd creates the ad linking an ad set to a creative.
func (c *Client) CreateAd(ctx context.Context, creds Credentials, req AdRequest) (string, error) {
	return c.create(ctx, creds, "ads", "ad", "Failed to create ad", req)
}

// SetAdStatus transitions an existing ad to the given status. Setting an ad
// to its current status is a no-op on the provider side, so the call is safe
// to repeat.
func (c *Client) SetAdStatus(ctx context.Context, creds Credentials, adID, status string) error {
	body := map[string]string{"status": status}
	resp, raw, err := c.post(ctx, creds.AccessToken, c.objectURL(adID), body)
	if err != nil {
		return err
	}

	var parsed statusResponse
	if jsonErr := json.Unmarshal(raw, &parsed); jsonErr != nil && resp.StatusCode/100 == 2 {
		return fmt.Errorf("parsing status response: %w", jsonErr)
	}

	if resp.StatusCode/100 != 2 {
		msg := "Failed to update ad status"
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return &Error{Resource: "ad status", StatusCode: resp.StatusCode, Message: msg}
	}
	if !parsed.Success {
		return &Error{Resource: "ad status", StatusCode: resp.StatusCode, Message: "provider did not confirm status change"}
	}
	return nil
}

// create issues one account-scoped create call and extracts the new id.
func (c *Client) create(ctx context.Context, creds Credentials, path, resource, fallbackMsg string, payload any) (string, error) {
	url := c.accountURL(creds.AccountID, path)

	resp, raw, err := c.post(ctx, creds.AccessToken, url, payload)
	if err != nil {
		return "", err
	}

	var parsed createResponse
	if jsonErr := json.Unmarshal(raw, &parsed); jsonErr != nil && resp.StatusCode/100 == 2 {
		return "", fmt.Errorf("parsing %s response: %w", resource, jsonErr)
	}

	if resp.StatusCode/100 != 2 {
		msg := fallbackMsg
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		c.logger.Warn("create call failed",
			"resource", resource,
			"status", resp.StatusCode,
			"message", msg,
		)
		return "", &Error{Resource: resource, StatusCode: resp.StatusCode, Message: msg}
	}

	// Success status with no id violates the provider contract.
	if parsed.ID == "" {
		return "", &Error{
			Resource:   resource,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("provider returned no %s id", resource),
		}
	}

	c.logger.Debug("resource created", "resource", resource, "id", parsed.ID)
	return parsed.ID, nil
}

func (c *Client) post(ctx context.Context, token, url string, payload any) (*http.Response, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	raw := new(bytes.Buffer)
	if _, err := raw.ReadFrom(resp.Body); err != nil {
		return nil, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp, raw.Bytes(), nil
}

func (c *Client) accountURL(accountID, path string) string {
	return fmt.Sprintf("%s/%s/act_%s/%s", c.baseURL, c.apiVersion, accountID, path)
}

func (c *Client) objectURL(id string) string {
	return fmt.Sprintf("%s/%s/%s", c.baseURL, c.apiVersion, id)
}
