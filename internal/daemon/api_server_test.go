package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"groovesheet/internal/jobs"
	"groovesheet/internal/testsupport"
)

func newAPITestServer(t *testing.T, opts ...testsupport.ConfigOption) (*Daemon, *httptest.Server) {
	t.Helper()
	d := newTestDaemon(t, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	d.pool.Start(ctx)
	t.Cleanup(d.pool.Stop)

	server := httptest.NewServer(d.api.handler)
	t.Cleanup(server.Close)
	return d, server
}

func uploadRequest(t *testing.T, url, filename string, body []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write(body); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url+"/api/jobs", &buf)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestHealthEndpoint(t *testing.T) {
	_, server := newAPITestServer(t)

	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var payload healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Status != "ok" || payload.Delivery != "poller" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestSubmitCreatesJobAndStoresInput(t *testing.T) {
	d, server := newAPITestServer(t)

	resp, err := http.DefaultClient.Do(uploadRequest(t, server.URL, "track.mp3", []byte("audio bytes")))
	if err != nil {
		t.Fatalf("POST /api/jobs: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d body = %s", resp.StatusCode, body)
	}

	var rec jobs.Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.JobID == "" || rec.Filename != "track.mp3" || rec.Status != jobs.StatusPending {
		t.Fatalf("record = %+v", rec)
	}

	ctx := context.Background()
	stored, err := d.store.Load(ctx, rec.JobID)
	if err != nil || stored == nil {
		t.Fatalf("Load stored: %v %v", stored, err)
	}
	exists, err := d.objects.Exists(ctx, rec.InputRef)
	if err != nil || !exists {
		t.Fatalf("input object missing: exists=%v err=%v", exists, err)
	}
}

func TestSubmitRejectsMissingFile(t *testing.T) {
	_, server := newAPITestServer(t)

	resp, err := http.Post(server.URL+"/api/jobs", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestJobStatusAndListEndpoints(t *testing.T) {
	d, server := newAPITestServer(t)
	ctx := context.Background()

	rec := testsupport.NewJob(t, d.cfg, d.store, d.objects, "track.mp3")
	failed := testsupport.NewJob(t, d.cfg, d.store, d.objects, "other.mp3")
	failed.SetFailed("boom")
	if err := d.store.Save(ctx, failed); err != nil {
		t.Fatalf("Save: %v", err)
	}

	resp, err := http.Get(server.URL + "/api/jobs/" + rec.JobID)
	if err != nil {
		t.Fatalf("GET job: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got jobs.Record
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.JobID != rec.JobID {
		t.Fatalf("job_id = %s, want %s", got.JobID, rec.JobID)
	}

	missing, err := http.Get(server.URL + "/api/jobs/nope")
	if err != nil {
		t.Fatalf("GET missing: %v", err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("missing status = %d, want 404", missing.StatusCode)
	}

	list, err := http.Get(server.URL + "/api/jobs?status=failed")
	if err != nil {
		t.Fatalf("GET list: %v", err)
	}
	defer list.Body.Close()
	var listed struct {
		Jobs []jobs.Record `json:"jobs"`
	}
	if err := json.NewDecoder(list.Body).Decode(&listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed.Jobs) != 1 || listed.Jobs[0].JobID != failed.JobID {
		t.Fatalf("filtered list = %+v", listed.Jobs)
	}
}

func TestDownloadEndpoint(t *testing.T) {
	d, server := newAPITestServer(t)
	ctx := context.Background()

	rec := testsupport.NewJob(t, d.cfg, d.store, d.objects, "track.mp3")

	// Not finished yet.
	early, err := http.Get(server.URL + "/api/jobs/" + rec.JobID + "/download")
	if err != nil {
		t.Fatalf("GET early download: %v", err)
	}
	early.Body.Close()
	if early.StatusCode != http.StatusConflict {
		t.Fatalf("early status = %d, want 409", early.StatusCode)
	}

	outputKey := jobs.OutputKey(d.cfg.ObjectPrefix(), rec.JobID)
	if err := d.objects.Put(ctx, outputKey, []byte("<score-partwise/>")); err != nil {
		t.Fatalf("Put output: %v", err)
	}
	rec.SetCompleted(&jobs.Result{NotationRef: outputKey}, "done")
	if err := d.store.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	resp, err := http.Get(server.URL + "/api/jobs/" + rec.JobID + "/download")
	if err != nil {
		t.Fatalf("GET download: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != "<score-partwise/>" {
		t.Fatalf("body = %q", body)
	}
	if disp := resp.Header.Get("Content-Disposition"); !strings.Contains(disp, "track.musicxml") {
		t.Fatalf("disposition = %q", disp)
	}
}

func TestBearerTokenGuardsJobAPI(t *testing.T) {
	_, server := newAPITestServer(t, testsupport.WithAPIToken("sekrit"))

	resp, err := http.Get(server.URL + "/api/jobs")
	if err != nil {
		t.Fatalf("GET without token: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/api/jobs", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	authed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET with token: %v", err)
	}
	authed.Body.Close()
	if authed.StatusCode != http.StatusOK {
		t.Fatalf("authed status = %d, want 200", authed.StatusCode)
	}

	// The health probe stays open for load balancers.
	health, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	health.Body.Close()
	if health.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d, want 200", health.StatusCode)
	}
}
