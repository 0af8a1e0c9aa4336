package daemon

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"adforge/internal/config"
	"adforge/internal/logging"
	"adforge/internal/metrics"
	"adforge/internal/notifications"
	"adforge/internal/store"
)

// JobDriver runs one job to a terminal status.
type JobDriver interface {
	Run(ctx context.Context, job *store.Job) error
}

// Manager claims jobs from the store and hands each to a driver. Jobs run
// one at a time; a restarted daemon reclaims any job left in a non-terminal
// state, and the drivers resume from the artifacts already on disk.
type Manager struct {
	cfg       *config.Config
	store     *store.Store
	pipeline  JobDriver
	agent     JobDriver
	notifier  notifications.Service
	collector *metrics.Metrics
	logger    *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// ManagerDeps collects the manager's collaborators. Agent may be nil when no
// tool-model credential is configured.
type ManagerDeps struct {
	Config   *config.Config
	Store    *store.Store
	Pipeline JobDriver
	Agent    JobDriver
	Notifier notifications.Service
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// NewManager constructs a workflow manager.
func NewManager(deps ManagerDeps) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewService(deps.Config)
	}
	return &Manager{
		cfg:       deps.Config,
		store:     deps.Store,
		pipeline:  deps.Pipeline,
		agent:     deps.Agent,
		notifier:  notifier,
		collector: deps.Metrics,
		logger:    logging.NewComponentLogger(logger, "workflow"),
	}
}

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow already running")
	}
	if m.pipeline == nil {
		return errors.New("workflow requires a pipeline driver")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	go m.run(runCtx)
	return nil
}

// Stop terminates background processing and waits for the in-flight job.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// Running reports whether the manager loop is active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()
	pollInterval := time.Duration(m.cfg.Workflow.QueuePollInterval) * time.Second
	retryInterval := time.Duration(m.cfg.Workflow.ErrorRetryInterval) * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := m.store.NextForStatuses(ctx, store.ActiveStatuses()...)
		if err != nil {
			m.logger.Error("claim next job failed", logging.Error(err))
			if !sleepCtx(ctx, retryInterval) {
				return
			}
			continue
		}
		if job == nil {
			if !sleepCtx(ctx, pollInterval) {
				return
			}
			continue
		}

		m.processJob(ctx, job)
	}
}

func (m *Manager) processJob(ctx context.Context, job *store.Job) {
	logger := m.logger.With(logging.Int64(logging.FieldJobID, job.ID))
	driver, driverName := m.driverFor(job)
	logger.Info("job claimed",
		logging.String("driver", driverName),
		logging.String("status", string(job.Status)),
	)

	m.collector.JobStarted()
	started := time.Now()
	err := driver.Run(ctx, job)
	m.collector.JobStopped()

	switch {
	case err == nil:
		logger.Info("job finished",
			logging.Duration("job_duration", time.Since(started)),
			logging.String("final_file", job.FinalFile),
		)
		if notifyErr := m.notifier.NotifyJobCompleted(ctx, job.ID, job.FinalFile, time.Since(started)); notifyErr != nil {
			logger.Warn("completion notification failed", logging.Error(notifyErr))
		}
	case errors.Is(err, context.Canceled):
		logger.Info("job interrupted by shutdown; it resumes on restart")
	default:
		logger.Error("job failed", logging.Error(err))
		if notifyErr := m.notifier.NotifyJobFailed(ctx, job.ID, err.Error()); notifyErr != nil {
			logger.Warn("failure notification failed", logging.Error(notifyErr))
		}
	}
}

// driverFor selects the agentic loop when the job asked for it or when the
// tool-model credential makes it the configured default.
func (m *Manager) driverFor(job *store.Job) (JobDriver, string) {
	switch job.Driver {
	case "agent":
		if m.agent != nil {
			return m.agent, "agent"
		}
	case "pipeline":
		return m.pipeline, "pipeline"
	}
	if m.agent != nil && m.cfg.AgentEnabled() {
		return m.agent, "agent"
	}
	return m.pipeline, "pipeline"
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
