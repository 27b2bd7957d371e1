package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"encoding/json"
	"log/slog"

	"groovesheet/internal/config"
	"groovesheet/internal/jobs"
	"groovesheet/internal/logging"
	"groovesheet/internal/objectstore"
)

// maxUploadBytes caps one submitted audio file.
const maxUploadBytes = 200 << 20

type apiServer struct {
	bind    string
	prefix  string
	logger  *slog.Logger
	daemon  *Daemon
	handler http.Handler

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		prefix: cfg.ObjectPrefix(),
		logger: logging.NewComponentLogger(logger, "api"),
		daemon: d,
	}

	token := strings.TrimSpace(cfg.Paths.APIToken)
	mux := http.NewServeMux()
	mux.HandleFunc("/health", srv.handleHealth)
	mux.HandleFunc("/api/jobs", authMiddleware(token, srv.handleJobs))
	mux.HandleFunc("/api/jobs/", authMiddleware(token, srv.handleJobItem))
	srv.handler = mux

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       120 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

type healthResponse struct {
	Status     string `json:"status"`
	Running    bool   `json:"running"`
	Delivery   string `json:"delivery"`
	Total      int    `json:"total_jobs"`
	Pending    int    `json:"pending"`
	Processing int    `json:"processing"`
	Completed  int    `json:"completed"`
	Failed     int    `json:"failed"`
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:     "ok",
		Running:    status.Running,
		Delivery:   status.DeliveryMode,
		Total:      status.Jobs.Total,
		Pending:    status.Jobs.Pending,
		Processing: status.Jobs.Processing,
		Completed:  status.Jobs.Completed,
		Failed:     status.Jobs.Failed,
	})
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleList(w, r)
	case http.MethodPost:
		s.handleSubmit(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	records, err := s.daemon.store.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var filter []jobs.Status
	for _, value := range r.URL.Query()["status"] {
		if parsed, ok := jobs.ParseStatus(value); ok {
			filter = append(filter, parsed)
		}
	}
	if len(filter) > 0 {
		kept := records[:0]
		for _, rec := range records {
			for _, status := range filter {
				if rec.Status == status {
					kept = append(kept, rec)
					break
				}
			}
		}
		records = kept
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": records})
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	filename := filepath.Base(strings.TrimSpace(header.Filename))
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		s.writeError(w, http.StatusBadRequest, "upload is missing a filename")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("read upload: %v", err))
		return
	}
	if len(data) == 0 {
		s.writeError(w, http.StatusBadRequest, "uploaded file is empty")
		return
	}

	rec := jobs.New(filename, "")
	rec.InputRef = jobs.InputKey(s.prefix, rec.JobID)

	if err := s.daemon.objects.Put(r.Context(), rec.InputRef, data); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("store input: %v", err))
		return
	}
	if err := s.daemon.store.Save(r.Context(), rec); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("persist job: %v", err))
		return
	}
	s.daemon.dispatch(rec.JobID)

	s.logger.Info("job submitted",
		logging.String(logging.FieldJobID, rec.JobID),
		logging.String("filename", filename),
		logging.Int("bytes", len(data)))
	s.writeJSON(w, http.StatusAccepted, rec)
}

func (s *apiServer) handleJobItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	jobID, action, _ := strings.Cut(rest, "/")
	if jobID == "" {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}

	rec, err := s.daemon.store.Load(r.Context(), jobID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rec == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}

	switch action {
	case "":
		s.writeJSON(w, http.StatusOK, rec)
	case "download":
		s.handleDownload(w, r, rec)
	default:
		s.writeError(w, http.StatusNotFound, "job not found")
	}
}

func (s *apiServer) handleDownload(w http.ResponseWriter, r *http.Request, rec *jobs.Record) {
	if rec.Status != jobs.StatusCompleted || rec.Result == nil {
		s.writeError(w, http.StatusConflict, fmt.Sprintf("job is %s, artifact not available", rec.Status))
		return
	}
	key := rec.Result.NotationRef
	if key == "" {
		key = jobs.OutputKey(s.prefix, rec.JobID)
	}

	data, err := s.daemon.objects.Get(r.Context(), key)
	if errors.Is(err, objectstore.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "notation artifact not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	base := strings.TrimSuffix(rec.Filename, filepath.Ext(rec.Filename))
	w.Header().Set("Content-Type", "application/vnd.recordare.musicxml+xml")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", base+".musicxml"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("api response encode failed", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
