// Package daemon coordinates the long-running groovesheet process.
//
// It wires configuration, the job and object stores, the worker pool, and the
// configured delivery adapter into a single lifecycle with flock-based
// locking to prevent multiple instances, and serves the HTTP API for job
// submission, status, artifact download, and health checks.
//
// Keep orchestration logic here: stage execution and delivery mechanics live
// in their own packages while the daemon focuses on startup, shutdown, and
// high level coordination.
package daemon
