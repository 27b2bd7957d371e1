package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"groovesheet/internal/services"
)

func TestCallRefRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/v1/separate" {
			t.Errorf("path = %s, want /v1/separate", r.URL.Path)
		}
		var req struct {
			InputRef string `json:"input_ref"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.InputRef != "jobs/a/input.mp3" {
			t.Errorf("input_ref = %q", req.InputRef)
		}
		json.NewEncoder(w).Encode(map[string]string{"output_ref": "jobs/a/drums.wav"})
	}))
	defer server.Close()

	out, err := services.CallRef(context.Background(), server.Client(), server.URL, "/v1/separate", "separating", "jobs/a/input.mp3")
	if err != nil {
		t.Fatalf("CallRef: %v", err)
	}
	if out != "jobs/a/drums.wav" {
		t.Fatalf("output ref = %q", out)
	}
}

func TestCallRefErrorStatusTaggedCollaborator(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := services.CallRef(context.Background(), server.Client(), server.URL, "/v1/transcribe", "transcribing", "jobs/a/drums.wav")
	if !errors.Is(err, services.ErrCollaborator) {
		t.Fatalf("error = %v, want ErrCollaborator", err)
	}
}

func TestCallRefApplicationErrorField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"error": "unsupported sample rate"})
	}))
	defer server.Close()

	_, err := services.CallRef(context.Background(), server.Client(), server.URL, "/v1/render", "generating_sheet", "jobs/a/transcription.mid")
	if !errors.Is(err, services.ErrCollaborator) {
		t.Fatalf("error = %v, want ErrCollaborator", err)
	}
}

func TestCallRefRejectsEmptyInput(t *testing.T) {
	_, err := services.CallRef(context.Background(), nil, "http://localhost:9", "/v1/separate", "separating", "  ")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

func TestCallRefUnreachableService(t *testing.T) {
	// Connection refused on a closed server maps to a collaborator failure.
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := services.CallRef(context.Background(), http.DefaultClient, url, "/v1/separate", "separating", "jobs/a/input.mp3")
	if !errors.Is(err, services.ErrCollaborator) {
		t.Fatalf("error = %v, want ErrCollaborator", err)
	}
}
