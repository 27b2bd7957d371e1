// Package jobs defines the job record persisted for every transcription
// request and the status state machine the pipeline drives it through.
package jobs
