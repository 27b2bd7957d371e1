// Package logging wraps log/slog with the attribute helpers, handlers, and
// context plumbing used across groovesheet. Handlers are selected by config:
// a line-oriented console handler for interactive use and a JSON handler for
// machine consumption.
package logging
