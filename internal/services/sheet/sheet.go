// Package sheet talks to the notation renderer that turns a symbolic drum
// transcription into MusicXML sheet music.
package sheet

import (
	"context"
	"net/http"
	"time"

	"groovesheet/internal/config"
	"groovesheet/internal/services"
)

// Service renders symbolic transcriptions into notation artifacts.
type Service interface {
	Render(ctx context.Context, symbolicRef string) (string, error)
}

// Client is the HTTP implementation of Service.
type Client struct {
	baseURL string
	client  services.HTTPDoer
}

// New builds a client for the configured sheet renderer endpoint.
func New(cfg *config.Config) *Client {
	return &Client{
		baseURL: cfg.Sheet.BaseURL,
		client: &http.Client{
			Timeout: time.Duration(cfg.Sheet.TimeoutSeconds) * time.Second,
		},
	}
}

// NewWithClient builds a client with a caller-supplied HTTP doer, used by tests.
func NewWithClient(baseURL string, doer services.HTTPDoer) *Client {
	return &Client{baseURL: baseURL, client: doer}
}

// Render submits the symbolic transcription reference and returns the
// reference to the generated MusicXML artifact.
func (c *Client) Render(ctx context.Context, symbolicRef string) (string, error) {
	return services.CallRef(ctx, c.client, c.baseURL, "/v1/render", "generating_sheet", symbolicRef)
}
