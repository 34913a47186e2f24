package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"clippress/internal/logging"
)

// LocalDispatcher executes jobs on an in-process worker pool bounded by a
// channel semaphore. It is the default transport.
type LocalDispatcher struct {
	registry *Registry
	logger   *slog.Logger
	slots    chan struct{}

	mu      sync.Mutex
	active  map[Handle]context.CancelFunc
	closed  bool
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewLocalDispatcher builds a local dispatcher with workerCount parallel slots.
func NewLocalDispatcher(registry *Registry, logger *slog.Logger, workerCount int) *LocalDispatcher {
	if workerCount <= 0 {
		workerCount = 1
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	return &LocalDispatcher{
		registry: registry,
		logger:   logger,
		slots:    make(chan struct{}, workerCount),
		active:   make(map[Handle]context.CancelFunc),
		baseCtx:  baseCtx,
		cancel:   cancel,
	}
}

// Submit schedules a job for asynchronous execution and returns its handle.
func (d *LocalDispatcher) Submit(_ context.Context, jobName string, args map[string]string) (Handle, error) {
	handler, ok := d.registry.Lookup(jobName)
	if !ok {
		return "", fmt.Errorf("dispatch: unknown job %q", jobName)
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return "", errors.New("dispatch: dispatcher closed")
	}
	handle := uuid.NewString()
	jobCtx, cancelJob := context.WithCancel(d.baseCtx)
	d.active[handle] = cancelJob
	d.wg.Add(1)
	d.mu.Unlock()

	go d.run(jobCtx, handle, jobName, handler, args)
	return handle, nil
}

func (d *LocalDispatcher) run(ctx context.Context, handle Handle, jobName string, handler Handler, args map[string]string) {
	defer d.wg.Done()
	defer d.release(handle)

	select {
	case d.slots <- struct{}{}:
		defer func() { <-d.slots }()
	case <-ctx.Done():
		return
	}

	// Revoked while waiting for a slot.
	if ctx.Err() != nil {
		return
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			d.logger.Error("job handler panicked",
				logging.String(logging.FieldJobName, jobName),
				logging.String(logging.FieldJobHandle, handle),
				logging.Any("panic", recovered),
			)
		}
	}()

	if err := handler(ctx, args); err != nil && !errors.Is(err, context.Canceled) {
		d.logger.Warn("job handler returned error",
			logging.String(logging.FieldJobName, jobName),
			logging.String(logging.FieldJobHandle, handle),
			logging.Error(err),
		)
	}
}

func (d *LocalDispatcher) release(handle Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cancelJob, ok := d.active[handle]; ok {
		cancelJob()
		delete(d.active, handle)
	}
}

// Revoke cancels a job's context. Queued jobs never start; running jobs see
// their context cancelled at the next suspension point. The terminate flag is
// accepted for interface parity but both forms cancel the same way here.
func (d *LocalDispatcher) Revoke(handle Handle, _ bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cancelJob, ok := d.active[handle]
	if !ok {
		return nil
	}
	cancelJob()
	delete(d.active, handle)
	return nil
}

// Drain waits for every submitted job to finish without cancelling anything.
// Callers that submit work and then exit use this to let the pool complete.
func (d *LocalDispatcher) Drain() {
	d.wg.Wait()
}

// Close cancels every outstanding job and waits for workers to drain.
func (d *LocalDispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
	return nil
}
