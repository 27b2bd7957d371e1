package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPDoer describes the HTTP client used by collaborator services.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type refRequest struct {
	InputRef string `json:"input_ref"`
}

type refResponse struct {
	OutputRef string `json:"output_ref"`
	Error     string `json:"error,omitempty"`
}

// CallRef performs the request/response exchange every model service shares:
// POST {"input_ref": ...} to baseURL+endpoint, read back {"output_ref": ...}.
// Transport and HTTP-status failures come back tagged ErrCollaborator so the
// pipeline can treat them uniformly as a stage failure.
func CallRef(ctx context.Context, client HTTPDoer, baseURL, endpoint, stage, inputRef string) (string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if strings.TrimSpace(baseURL) == "" {
		return "", Wrap(ErrConfiguration, stage, "request", "base URL not configured", nil)
	}
	if strings.TrimSpace(inputRef) == "" {
		return "", Wrap(ErrValidation, stage, "request", "input reference is empty", nil)
	}

	body, err := json.Marshal(refRequest{InputRef: inputRef})
	if err != nil {
		return "", Wrap(ErrValidation, stage, "encode request", "", err)
	}
	url := strings.TrimRight(baseURL, "/") + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", Wrap(ErrValidation, stage, "build request", "", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", Wrap(ErrTimeout, stage, "call service", "", err)
		}
		return "", Wrap(ErrCollaborator, stage, "call service", "", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", Wrap(ErrCollaborator, stage, "read response", "", err)
	}
	if resp.StatusCode != http.StatusOK {
		detail := strings.TrimSpace(string(payload))
		if len(detail) > 200 {
			detail = detail[:200]
		}
		return "", Wrap(ErrCollaborator, stage, "call service",
			fmt.Sprintf("status %d: %s", resp.StatusCode, detail), nil)
	}

	var decoded refResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", Wrap(ErrCollaborator, stage, "decode response", "", err)
	}
	if decoded.Error != "" {
		return "", Wrap(ErrCollaborator, stage, "call service", decoded.Error, nil)
	}
	if strings.TrimSpace(decoded.OutputRef) == "" {
		return "", Wrap(ErrCollaborator, stage, "decode response", "missing output reference", nil)
	}
	return decoded.OutputRef, nil
}
