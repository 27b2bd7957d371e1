package jobs

import "path"

// Object names that make up one job's storage layout. input, metadata, and
// output are the external contract; the rest are intermediates kept for crash
// diagnostics.
const (
	InputObjectName         = "input.mp3"
	MetadataObjectName      = "metadata.json"
	OutputObjectName        = "output.musicxml"
	IsolatedObjectName      = "drums.wav"
	TranscriptionObjectName = "transcription.mid"
)

// InputKey returns the object key of the job's original audio.
func InputKey(prefix, jobID string) string {
	return path.Join(prefix, jobID, InputObjectName)
}

// MetadataKey returns the object key of the job's descriptor.
func MetadataKey(prefix, jobID string) string {
	return path.Join(prefix, jobID, MetadataObjectName)
}

// OutputKey returns the object key of the job's final notation artifact.
func OutputKey(prefix, jobID string) string {
	return path.Join(prefix, jobID, OutputObjectName)
}

// IsolatedKey returns the object key of the separated drum track.
func IsolatedKey(prefix, jobID string) string {
	return path.Join(prefix, jobID, IsolatedObjectName)
}

// TranscriptionKey returns the object key of the symbolic transcription.
func TranscriptionKey(prefix, jobID string) string {
	return path.Join(prefix, jobID, TranscriptionObjectName)
}
