package scheduler

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/doridoridoriand/latcheck/internal/config"
	"github.com/doridoridoriand/latcheck/internal/events"
	"github.com/doridoridoriand/latcheck/internal/log"
	"github.com/doridoridoriand/latcheck/internal/ping"
	"github.com/doridoridoriand/latcheck/internal/state"
)

var (
	// ErrAlreadyRunning is returned by Start while a run is active.
	ErrAlreadyRunning = errors.New("run already in progress")
	// ErrInvalidArgument is returned by Start for a rejected run configuration.
	ErrInvalidArgument = config.ErrInvalidArgument
)

// Scheduler runs probe rounds against a fixed target list.
type Scheduler interface {
	Start(probeCount int) error
	Stop()
	DrainEvents() []events.Event
	ListTargets() []config.Target
}

// Impl provides a default scheduler implementation.
type Impl struct {
	mu      sync.Mutex
	targets []config.Target
	pinger  ping.Pinger
	bus     *events.Bus
	logger  *log.Logger
	workers int
	timeout time.Duration
	run     *state.RunState

	active    atomic.Int32
	maxActive atomic.Int32
}

// Option customizes a scheduler.
type Option func(*Impl)

// WithWorkers sets the pool size. Values below 1 keep the default.
func WithWorkers(n int) Option {
	return func(s *Impl) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithTimeout bounds every probe call.
func WithTimeout(d time.Duration) Option {
	return func(s *Impl) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger used for run and target messages.
func WithLogger(l *log.Logger) Option {
	return func(s *Impl) {
		if l != nil {
			s.logger = l
		}
	}
}

// DefaultWorkers leaves one CPU free for the consumer.
func DefaultWorkers() int {
	return maxConcurrency(runtime.NumCPU() - 1)
}

// NewScheduler constructs a scheduler instance. Events are published to bus.
func NewScheduler(targets []config.Target, pinger ping.Pinger, bus *events.Bus, opts ...Option) *Impl {
	s := &Impl{
		targets: append([]config.Target(nil), targets...),
		pinger:  pinger,
		bus:     bus,
		logger:  log.Discard(),
		workers: DefaultWorkers(),
		timeout: config.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start validates the run and dispatches one runner per target. It returns
// without waiting for any probe.
func (s *Impl) Start(probeCount int) error {
	cfg := config.RunConfig{ProbeCount: probeCount, Targets: s.targets}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != nil && s.run.Running() {
		return ErrAlreadyRunning
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	run := state.NewRunState()
	s.run = run
	s.maxActive.Store(0)
	s.bus.Publish(events.RunStarted{
		RunID:      run.ID(),
		ProbeCount: probeCount,
		Targets:    len(cfg.Targets),
		Workers:    s.workers,
	})
	s.logger.Info("starting parallel server checks", map[string]interface{}{
		"run_id":  run.ID(),
		"targets": len(cfg.Targets),
		"probes":  probeCount,
		"workers": s.workers,
	})

	go s.dispatch(run, cfg)
	return nil
}

// Stop requests cancellation of the active run. It does not wait for
// in-flight probes; callers watch for RunCompleted or Done.
func (s *Impl) Stop() {
	s.mu.Lock()
	run := s.run
	s.mu.Unlock()
	if run == nil || !run.Running() {
		return
	}
	if run.Cancel() {
		s.logger.Info("stopping server checks", map[string]interface{}{"run_id": run.ID()})
	}
}

// DrainEvents returns every event published since the previous call.
func (s *Impl) DrainEvents() []events.Event {
	return s.bus.Drain()
}

// ListTargets returns a copy of the configured targets.
func (s *Impl) ListTargets() []config.Target {
	return append([]config.Target(nil), s.targets...)
}

// Running reports whether a run is active.
func (s *Impl) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run != nil && s.run.Running()
}

// Done is closed when the current (or last) run completes. Without any run
// it returns a closed channel.
func (s *Impl) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.run.Done()
}

// PoolSize is the number of runners allowed to hold a worker slot at once.
func (s *Impl) PoolSize() int {
	return s.workers
}

// Active is the number of runners currently holding a worker slot.
func (s *Impl) Active() int {
	return int(s.active.Load())
}

// MaxActive is the peak of Active during the current (or last) run.
func (s *Impl) MaxActive() int {
	return int(s.maxActive.Load())
}

func (s *Impl) dispatch(run *state.RunState, cfg config.RunConfig) {
	var g errgroup.Group
	g.SetLimit(s.workers)
	for _, tgt := range cfg.Targets {
		r := newRunner(tgt, cfg.ProbeCount, run, s.pinger, s.bus, s.logger, s.timeout)
		g.Go(func() error {
			s.enter()
			defer s.active.Add(-1)
			r.loop()
			return nil
		})
	}
	_ = g.Wait()
	s.finish(run)
}

func (s *Impl) enter() {
	current := s.active.Add(1)
	for {
		peak := s.maxActive.Load()
		if current <= peak || s.maxActive.CompareAndSwap(peak, current) {
			return
		}
	}
}

func (s *Impl) finish(run *state.RunState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancelled := run.CancelRequested()
	s.bus.Publish(events.RunCompleted{RunID: run.ID(), Cancelled: cancelled})
	run.Finish()

	fields := map[string]interface{}{"run_id": run.ID(), "cancelled": cancelled}
	if cancelled {
		s.logger.Info("server checks stopped", fields)
		return
	}
	s.logger.Info("all server checks completed", fields)
}

func maxConcurrency(value int) int {
	if value <= 0 {
		return 1
	}
	return value
}
