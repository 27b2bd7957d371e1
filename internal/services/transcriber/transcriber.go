// Package transcriber talks to the model service that converts isolated drum
// audio into a symbolic MIDI transcription.
package transcriber

import (
	"context"
	"net/http"
	"time"

	"groovesheet/internal/config"
	"groovesheet/internal/services"
)

// Service transcribes isolated drum audio into symbolic form.
type Service interface {
	Transcribe(ctx context.Context, isolatedRef string) (string, error)
}

// Client is the HTTP implementation of Service.
type Client struct {
	baseURL string
	client  services.HTTPDoer
}

// New builds a client for the configured transcriber endpoint.
func New(cfg *config.Config) *Client {
	return &Client{
		baseURL: cfg.Transcriber.BaseURL,
		client: &http.Client{
			Timeout: time.Duration(cfg.Transcriber.TimeoutSeconds) * time.Second,
		},
	}
}

// NewWithClient builds a client with a caller-supplied HTTP doer, used by tests.
func NewWithClient(baseURL string, doer services.HTTPDoer) *Client {
	return &Client{baseURL: baseURL, client: doer}
}

// Transcribe submits the isolated drum track reference and returns the
// reference to the symbolic transcription.
func (c *Client) Transcribe(ctx context.Context, isolatedRef string) (string, error) {
	return services.CallRef(ctx, c.client, c.baseURL, "/v1/transcribe", "transcribing", isolatedRef)
}
