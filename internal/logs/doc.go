// Package logs provides bounded-memory log file tailing for the CLI.
//
// It reads the last N lines of the daemon log, tracks byte offsets so
// follow mode only emits new lines, and recovers from rotation by
// restarting at the top of a shrunken file.
package logs
