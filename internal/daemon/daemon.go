// Package daemon coordinates the background pipeline: it enforces
// single-instance execution via a lock file, runs the job transport consumer
// when one is configured, and sweeps scheduled uploads on an interval.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"clippress/internal/config"
	"clippress/internal/dispatch"
	"clippress/internal/logging"
	"clippress/internal/publish"
	"clippress/internal/store"
)

const defaultSweepInterval = 30 * time.Second

// consumer is implemented by dispatchers that pull jobs from an external
// broker instead of executing submissions in-process.
type consumer interface {
	Consume(ctx context.Context) error
}

// Daemon owns the long-running pipeline services.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *store.Store
	dispatcher dispatch.Dispatcher
	publisher  *publish.Service

	lockPath string
	lock     *flock.Flock
	running  atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.Store, dispatcher dispatch.Dispatcher, publisher *publish.Service, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || st == nil || dispatcher == nil || publisher == nil {
		return nil, errors.New("daemon requires config, store, dispatcher, and publish service")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "clippress.lock")
	return &Daemon{
		cfg:        cfg,
		logger:     logger,
		store:      st,
		dispatcher: dispatcher,
		publisher:  publisher,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and launches the background loops.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another clippress instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	if c, ok := d.dispatcher.(consumer); ok {
		if err := c.Consume(d.ctx); err != nil {
			_ = d.lock.Unlock()
			d.cancel()
			d.ctx = nil
			d.cancel = nil
			return fmt.Errorf("start job consumer: %w", err)
		}
	}

	d.wg.Add(1)
	go d.sweepLoop()

	d.running.Store(true)
	d.logger.Info("daemon started", logging.String("lock", d.lockPath))
	return nil
}

func (d *Daemon) sweepLoop() {
	defer d.wg.Done()

	interval := time.Duration(d.cfg.Workflow.ScheduleSweepSeconds) * time.Second
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			if err := d.publisher.SweepScheduled(d.ctx); err != nil && !errors.Is(err, context.Canceled) {
				d.logger.Warn("scheduled upload sweep failed", logging.Error(err))
			}
		}
	}
}

// Stop halts background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Running reports whether the daemon has been started.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// LockPath returns the single-instance lock file location.
func (d *Daemon) LockPath() string {
	return d.lockPath
}

// Close stops the daemon. The store and dispatcher are owned by the caller
// and closed separately.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}
