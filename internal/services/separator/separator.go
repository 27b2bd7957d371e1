// Package separator talks to the source-isolation model service that strips
// the drum track out of a full mix.
package separator

import (
	"context"
	"net/http"
	"time"

	"groovesheet/internal/config"
	"groovesheet/internal/services"
)

// Service isolates the drum track from a mixed audio input.
type Service interface {
	Separate(ctx context.Context, inputRef string) (string, error)
}

// Client is the HTTP implementation of Service.
type Client struct {
	baseURL string
	client  services.HTTPDoer
}

// New builds a client for the configured separator endpoint.
func New(cfg *config.Config) *Client {
	return &Client{
		baseURL: cfg.Separator.BaseURL,
		client: &http.Client{
			Timeout: time.Duration(cfg.Separator.TimeoutSeconds) * time.Second,
		},
	}
}

// NewWithClient builds a client with a caller-supplied HTTP doer, used by tests.
func NewWithClient(baseURL string, doer services.HTTPDoer) *Client {
	return &Client{baseURL: baseURL, client: doer}
}

// Separate submits the original audio reference and returns the reference to
// the isolated drum track. A single attempt; callers decide what a failure means.
func (c *Client) Separate(ctx context.Context, inputRef string) (string, error) {
	return services.CallRef(ctx, c.client, c.baseURL, "/v1/separate", "separating", inputRef)
}
