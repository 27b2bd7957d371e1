// Package main hosts the groovesheet CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into HTTP
// calls against the daemon API: job submission, status checks, notation
// downloads, job listing and cleanup, health reporting, and configuration
// scaffolding. It centralizes configuration resolution and client setup so
// subcommands can focus on user experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
