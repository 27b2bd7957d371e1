package jobs

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle of a job record.
type Status string

const (
	StatusPending         Status = "pending"
	StatusSeparating      Status = "separating"
	StatusTranscribing    Status = "transcribing"
	StatusGeneratingSheet Status = "generating_sheet"
	StatusCompleted       Status = "completed"
	StatusFailed          Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusSeparating,
	StatusTranscribing,
	StatusGeneratingSheet,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusSeparating:      {},
	StatusTranscribing:    {},
	StatusGeneratingSheet: {},
}

// nextStatus is the single forward edge out of each non-terminal status.
// Every non-terminal status additionally has the escape edge to StatusFailed.
var nextStatus = map[Status]Status{
	StatusPending:         StatusSeparating,
	StatusSeparating:      StatusTranscribing,
	StatusTranscribing:    StatusGeneratingSheet,
	StatusGeneratingSheet: StatusCompleted,
}

// Result bundles the output artifact references of a completed job.
type Result struct {
	IsolatedAudioRef  string  `json:"isolated_audio_ref"`
	TranscriptionRef  string  `json:"transcription_ref"`
	NotationRef       string  `json:"notation_ref"`
	ProcessingSeconds float64 `json:"processing_seconds"`
}

// Record is the persisted descriptor of one transcription job.
//
// JobID, Filename, and InputRef are immutable after creation. Result is
// populated only when the job completed; Error only when it failed. Once a
// record reaches a terminal status the pipeline never mutates it again.
type Record struct {
	JobID    string `json:"job_id"`
	Filename string `json:"filename"`
	InputRef string `json:"input_ref"`
	Status   Status `json:"status"`
	Progress int    `json:"progress"`
	Message  string `json:"message"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Interim artifact references persisted for crash diagnostics. They are
	// implementation-visible but not part of the external contract.
	IsolatedAudioRef string `json:"isolated_audio_ref,omitempty"`
	TranscriptionRef string `json:"transcription_ref,omitempty"`

	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// New creates a pending record with a freshly issued job id.
// Uniqueness of the id is the issuer's responsibility, never the store's.
func New(filename, inputRef string) *Record {
	now := time.Now().UTC()
	return &Record{
		JobID:     uuid.NewString(),
		Filename:  filename,
		InputRef:  inputRef,
		Status:    StatusPending,
		Progress:  0,
		Message:   "Job created",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether no transitions leave this status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsProcessing reports whether the status reflects an in-flight stage.
func (s Status) IsProcessing() bool {
	_, ok := processingStatuses[s]
	return ok
}

// CanTransition reports whether the state machine allows moving from s to to.
func (s Status) CanTransition(to Status) bool {
	if s.IsTerminal() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	return nextStatus[s] == to
}

// IsTerminal reports whether the record reached a terminal status.
func (r *Record) IsTerminal() bool {
	return r.Status.IsTerminal()
}

// Advance moves the record to the given status with updated progress and
// message. Progress never decreases while the record is non-terminal.
func (r *Record) Advance(to Status, progress int, message string) {
	r.Status = to
	if progress > r.Progress {
		r.Progress = progress
	}
	r.Message = message
}

// SetProgress updates the progress checkpoint within the current status.
func (r *Record) SetProgress(progress int, message string) {
	if progress > r.Progress {
		r.Progress = progress
	}
	r.Message = message
}

// SetCompleted marks the record terminal with its result bundle.
func (r *Record) SetCompleted(result *Result, message string) {
	r.Status = StatusCompleted
	r.Progress = 100
	r.Message = message
	r.Result = result
	r.Error = ""
}

// SetFailed marks the record terminal with the given error text.
// Progress is left at the last checkpoint reached.
func (r *Record) SetFailed(message string) {
	r.Status = StatusFailed
	r.Message = "Processing failed: " + message
	r.Error = message
	r.Result = nil
}

// StageLabel returns the human-readable label for a status.
func (s Status) StageLabel() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusSeparating:
		return "Separating"
	case StatusTranscribing:
		return "Transcribing"
	case StatusGeneratingSheet:
		return "Generating Sheet"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	default:
		return string(s)
	}
}

// HealthSummary describes aggregated job counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Failed     int
}

// Summarize builds a HealthSummary from a record listing.
func Summarize(records []*Record) HealthSummary {
	var summary HealthSummary
	summary.Total = len(records)
	for _, rec := range records {
		switch {
		case rec.Status == StatusPending:
			summary.Pending++
		case rec.Status.IsProcessing():
			summary.Processing++
		case rec.Status == StatusCompleted:
			summary.Completed++
		case rec.Status == StatusFailed:
			summary.Failed++
		}
	}
	return summary
}
