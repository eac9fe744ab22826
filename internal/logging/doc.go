// Package logging configures the process-wide slog logger.
//
// The run environment decides where records go: development logs debug text
// to stderr, testing logs to stderr and a rotating JSON file, production logs
// only to the rotating file.
package logging
