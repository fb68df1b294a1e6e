// Package httpgen implements provider.Generator against a generic HTTP
// generation endpoint. Each configured backend gets its own client instance
// pointed at that backend's endpoint; authentication is either a bearer API
// key or an OAuth2 client-credentials token source.
package httpgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"appgen-backend/internal/provider"
)

// Client calls one generation backend over HTTP.
type Client struct {
	backendID  string
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient constructs a client authenticated with a bearer API key.
func NewClient(backendID, endpoint, apiKey, model string) (*Client, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, fmt.Errorf("endpoint is required for backend %s", backendID)
	}
	return &Client{
		backendID: backendID,
		endpoint:  endpoint,
		apiKey:    apiKey,
		model:     model,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
	}, nil
}

// NewOAuthClient constructs a client whose requests carry OAuth2
// client-credentials tokens, for backends that do not accept static keys.
func NewOAuthClient(backendID, endpoint, model, tokenURL, clientID, clientSecret string, scopes []string) (*Client, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, fmt.Errorf("endpoint is required for backend %s", backendID)
	}
	if strings.TrimSpace(tokenURL) == "" || strings.TrimSpace(clientID) == "" {
		return nil, fmt.Errorf("oauth token url and client id are required for backend %s", backendID)
	}
	creds := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       scopes,
	}
	httpClient := creds.Client(context.Background())
	httpClient.Timeout = 10 * time.Minute
	return &Client{
		backendID:  backendID,
		endpoint:   endpoint,
		model:      model,
		httpClient: httpClient,
	}, nil
}

type generateRequest struct {
	Model        string  `json:"model,omitempty"`
	Kind         string  `json:"kind"`
	Prompt       string  `json:"prompt"`
	DurationSec  float64 `json:"duration_sec,omitempty"`
	Width        int     `json:"width,omitempty"`
	Height       int     `json:"height,omitempty"`
	Resolution   string  `json:"resolution,omitempty"`
	ReferenceURL string  `json:"reference_url,omitempty"`
}

type generateResponse struct {
	AssetURL    string  `json:"asset_url"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	DurationSec float64 `json:"duration_sec"`
	Error       *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Generate performs a single synchronous generation call.
func (c *Client) Generate(ctx context.Context, input provider.GenerateInput) (provider.GenerateResult, error) {
	reqBody := generateRequest{
		Model:        c.model,
		Kind:         string(input.Kind),
		Prompt:       input.Prompt,
		DurationSec:  input.Params.DurationSec,
		Width:        input.Params.Width,
		Height:       input.Params.Height,
		Resolution:   input.Params.Resolution,
		ReferenceURL: input.Params.ReferenceURL,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return provider.GenerateResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return provider.GenerateResult{}, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			return provider.GenerateResult{}, fmt.Errorf("backend %s request timeout: %w", c.backendID, err)
		}
		return provider.GenerateResult{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return provider.GenerateResult{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return provider.GenerateResult{}, fmt.Errorf("backend %s http status %d: %s", c.backendID, resp.StatusCode, truncate(string(body), 200))
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return provider.GenerateResult{}, fmt.Errorf("backend %s response parse: %w", c.backendID, err)
	}
	if parsed.Error != nil {
		return provider.GenerateResult{}, fmt.Errorf("backend %s error: %s (%s)", c.backendID, parsed.Error.Message, parsed.Error.Type)
	}
	if strings.TrimSpace(parsed.AssetURL) == "" {
		return provider.GenerateResult{}, fmt.Errorf("backend %s response missing asset_url", c.backendID)
	}

	return provider.GenerateResult{
		AssetURL:            parsed.AssetURL,
		Width:               parsed.Width,
		Height:              parsed.Height,
		MeasuredDurationSec: parsed.DurationSec,
	}, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

var _ provider.Generator = (*Client)(nil)
