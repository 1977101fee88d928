package ratelimit

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/admitd/admitd/internal/metrics"
	"github.com/admitd/admitd/pkg/logger"
)

const (
	// DefaultSweepInterval is how often the sweeper runs.
	DefaultSweepInterval = 5 * time.Minute
	// DefaultRetention is how long an idle entry is kept.
	DefaultRetention = time.Hour
)

// Sweepable is state the Sweeper can prune.
type Sweepable interface {
	Sweep(now time.Time, retention time.Duration) int
	Len() int
}

// SweeperConfig holds sweeper timing.
type SweeperConfig struct {
	Interval  time.Duration // Time between passes
	Retention time.Duration // Idle age after which an entry is evicted
}

// Sweeper periodically evicts idle entries from its targets. It does nothing
// until Start is called and must be stopped by its owner.
type Sweeper struct {
	clock   clockwork.Clock
	log     *logger.Logger
	cfg     SweeperConfig
	targets []Sweepable

	mu      sync.Mutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewSweeper creates a sweeper over targets. Zero durations in cfg fall back
// to DefaultSweepInterval and DefaultRetention.
func NewSweeper(clk clockwork.Clock, log *logger.Logger, cfg SweeperConfig, targets ...Sweepable) *Sweeper {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweepInterval
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	return &Sweeper{
		clock:   clk,
		log:     log,
		cfg:     cfg,
		targets: targets,
	}
}

// Config returns the effective sweeper timing.
func (s *Sweeper) Config() SweeperConfig {
	return s.cfg
}

// Start launches the background loop. Calling Start on a running sweeper is a no-op.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.done = make(chan struct{})

	s.wg.Add(1)
	go s.loop(s.done)
}

// Stop halts the background loop and waits for it to exit. It is safe to call
// more than once.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.done)
	s.mu.Unlock()

	s.wg.Wait()
}

// Running reports whether the background loop is active.
func (s *Sweeper) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SweepOnce runs a single pass over every target and returns the number of
// entries evicted.
func (s *Sweeper) SweepOnce() int {
	now := s.clock.Now()

	removed, remaining := 0, 0
	for _, target := range s.targets {
		removed += target.Sweep(now, s.cfg.Retention)
		remaining += target.Len()
	}

	metrics.RecordSweep(removed, remaining)
	if removed > 0 {
		s.log.Info("rate limiter cleanup", "removed", removed, "remaining", remaining)
	}
	return removed
}

func (s *Sweeper) loop(done <-chan struct{}) {
	defer s.wg.Done()

	ticker := s.clock.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.Chan():
			s.SweepOnce()
		}
	}
}
