// Package dispatch provides the asynchronous job execution surface used by
// the orchestrators. Jobs are named units of work with string arguments,
// executed at-least-once on a worker pool; cancellation by handle is
// cooperative and advisory for jobs that already started.
package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Handle identifies a submitted job.
type Handle = string

// Handler executes one job. Handlers must persist their own outcomes and
// never let failures escape uncontained; a returned error is logged by the
// dispatcher, nothing more.
type Handler func(ctx context.Context, args map[string]string) error

// Dispatcher accepts named jobs for asynchronous execution.
type Dispatcher interface {
	Submit(ctx context.Context, jobName string, args map[string]string) (Handle, error)
	Revoke(handle Handle, terminate bool) error
	Close() error
}

// Registry maps job names to handlers. It is populated at startup and
// read-only afterwards.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler to a job name. Re-registering a name panics:
// job wiring is a startup-time concern and duplicates are programmer error.
func (r *Registry) Register(jobName string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[jobName]; exists {
		panic(fmt.Sprintf("dispatch: duplicate handler for job %q", jobName))
	}
	r.handlers[jobName] = handler
}

// Lookup returns the handler for a job name.
func (r *Registry) Lookup(jobName string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[jobName]
	return handler, ok
}

// Names returns the registered job names sorted for stable logging.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
