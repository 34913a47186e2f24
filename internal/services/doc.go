// Package services defines shared utilities consumed by the pipeline job
// handlers and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp video, task, and upload identifiers plus
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that keep failure
//     classification (validation vs transient vs configuration) uniform
//     across orchestrators and job handlers.
//
// Use these helpers when wiring new job logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
