// Package logging builds the daemon's slog logger from configuration, with
// optional size-rotated log files, and the separate delivered-events log.
package logging
