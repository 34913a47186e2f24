// Package store manages pipeline record persistence backed by SQLite.
//
// It is the single source of truth coordinating concurrent job handlers:
// every cross-worker status change goes through a conditional write that
// checks the expected current status, so a cancel racing a task's own
// terminal update can never be silently overwritten.
package store
