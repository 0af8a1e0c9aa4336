// Package daemon ties the HTTP API, the workflow manager, and single-instance
// locking into one lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"adforge/internal/config"
	"adforge/internal/logging"
	"adforge/internal/metrics"
	"adforge/internal/progress"
	"adforge/internal/store"
)

// Daemon coordinates background processing and enforces single-instance
// execution via a file lock.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *store.Store
	manager   *Manager
	bus       *progress.Bus
	collector *metrics.Metrics
	api       *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Deps collects the daemon's collaborators.
type Deps struct {
	Config  *config.Config
	Store   *store.Store
	Manager *Manager
	Bus     *progress.Bus
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// New constructs a daemon with initialized dependencies.
func New(deps Deps) (*Daemon, error) {
	if deps.Config == nil || deps.Store == nil || deps.Manager == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	bus := deps.Bus
	if bus == nil {
		bus = progress.NewBus(deps.Config.Workflow.ProgressBufferEntries)
	}

	lockPath := filepath.Join(deps.Config.Paths.LogDir, "adforged.lock")
	d := &Daemon{
		cfg:       deps.Config,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     deps.Store,
		manager:   deps.Manager,
		bus:       bus,
		collector: deps.Metrics,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}
	d.api = newAPIServer(deps.Config, d, logger)
	return d, nil
}

// Start acquires the daemon lock, then launches the workflow manager and the
// HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another adforge daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.manager.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		d.manager.Stop()
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return err
	}

	d.running.Store(true)
	d.logger.Info("daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.manager.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether the daemon lifecycle is active.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// APIAddr returns the bound API address once started.
func (d *Daemon) APIAddr() string {
	return d.api.Addr()
}

// DBPath returns the job database location.
func (d *Daemon) DBPath() string {
	return filepath.Join(d.cfg.Paths.LogDir, "jobs.db")
}

// LockPath returns the daemon lock file location.
func (d *Daemon) LockPath() string {
	return d.lockPath
}
