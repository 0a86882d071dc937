package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// StatusError is a non-200 answer from the agent
type StatusError struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("agent returned status %d (%s): %s", e.StatusCode, e.Kind, e.Message)
	}
	return fmt.Sprintf("agent returned status %d: %s", e.StatusCode, e.Message)
}

// Client represents an agent client
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new agent client
func NewClient(config ClientConfig) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	tlsConfig, err := config.LoadClientTLSConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS config: %w", err)
	}

	return &Client{
		baseURL: fmt.Sprintf("https://%s:%d", config.Host, config.Port),
		httpClient: &http.Client{
			Transport: &http.Transport{TLSClientConfig: tlsConfig},
			Timeout:   30 * time.Second,
		},
	}, nil
}

// Get fetches an endpoint and returns the body of a 200 response
func (c *Client) Get(ctx context.Context, endpoint string) ([]byte, error) {
	url := c.baseURL + "/" + strings.TrimPrefix(endpoint, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		se := &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		var er ErrorResponse
		if json.Unmarshal(body, &er) == nil && er.Error != "" {
			se.Kind = er.Kind
			se.Message = er.Error
		}
		return nil, se
	}

	return body, nil
}

// Snapshot asks the agent for a fresh decode
func (c *Client) Snapshot(ctx context.Context, raw bool) (*IMCResponse, error) {
	endpoint := "imc"
	if raw {
		endpoint += "?raw=true"
	}

	body, err := c.Get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var resp IMCResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return &resp, nil
}

// CheckHealth checks if the agent is healthy
func (c *Client) CheckHealth(ctx context.Context) error {
	body, err := c.Get(ctx, "health")
	if err != nil {
		return err
	}
	if string(body) != "OK\n" {
		return fmt.Errorf("unexpected health response: %s", string(body))
	}
	return nil
}
