// Package worker runs periodic background jobs.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Worker is a periodic job.
type Worker interface {
	Name() string
	Interval() time.Duration
	Run(ctx context.Context) error
}

// Func adapts a function to the Worker interface.
type Func struct {
	WorkerName     string
	WorkerInterval time.Duration
	Fn             func(ctx context.Context) error
}

func (f Func) Name() string                  { return f.WorkerName }
func (f Func) Interval() time.Duration       { return f.WorkerInterval }
func (f Func) Run(ctx context.Context) error { return f.Fn(ctx) }

const defaultRunTimeout = 10 * time.Minute

// Manager runs each registered worker once at start and then on its
// interval. Errors are logged and the worker keeps its schedule.
type Manager struct {
	logger     zerolog.Logger
	runTimeout time.Duration

	mu      sync.Mutex
	workers []Worker
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		logger:     logger.With().Str("component", "worker").Logger(),
		runTimeout: defaultRunTimeout,
	}
}

// SetRunTimeout bounds each individual run.
func (m *Manager) SetRunTimeout(d time.Duration) {
	m.runTimeout = d
}

func (m *Manager) Register(w Worker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers = append(m.workers, w)
	m.logger.Info().Str("worker", w.Name()).Dur("interval", w.Interval()).Msg("worker registered")
}

// Start launches every registered worker. Stop, or cancelling ctx, ends them.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, m.cancel = context.WithCancel(ctx)
	for _, w := range m.workers {
		m.wg.Add(1)
		go m.loop(ctx, w)
	}
	m.logger.Info().Int("count", len(m.workers)).Msg("workers started")
}

func (m *Manager) loop(ctx context.Context, w Worker) {
	defer m.wg.Done()

	ticker := time.NewTicker(w.Interval())
	defer ticker.Stop()

	m.execute(ctx, w)
	for {
		select {
		case <-ticker.C:
			m.execute(ctx, w)
		case <-ctx.Done():
			m.logger.Info().Str("worker", w.Name()).Msg("worker stopped")
			return
		}
	}
}

func (m *Manager) execute(ctx context.Context, w Worker) {
	runCtx, cancel := context.WithTimeout(ctx, m.runTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().Str("worker", w.Name()).Interface("panic", r).Msg("worker panicked")
		}
	}()

	if err := w.Run(runCtx); err != nil {
		m.logger.Error().Err(err).Str("worker", w.Name()).Dur("duration", time.Since(start)).Msg("worker run failed")
		return
	}
	m.logger.Debug().Str("worker", w.Name()).Dur("duration", time.Since(start)).Msg("worker run finished")
}

// Stop cancels all workers and waits for in-flight runs to return.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

// Names lists the registered workers.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.workers))
	for i, w := range m.workers {
		names[i] = w.Name()
	}
	return names
}
