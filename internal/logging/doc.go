// Package logging builds the slog loggers used across the pipeline.
//
// It provides console and JSON handlers, attr helper functions, and context
// helpers that stamp standardized fields (video, task, upload, correlation
// identifiers) onto log records emitted by orchestrators and job handlers.
package logging
