package backport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hunter-fleet/nm-backport-agent/internal/config"
	"github.com/hunter-fleet/nm-backport-agent/internal/health"
)

// installRunner is the part of the orchestrator the scheduler needs.
type installRunner interface {
	RunInstall(ctx context.Context, force bool) (InstallResult, error)
}

// Scheduler runs the recurring health-check tick: inspect the backport
// status and, when auto-install is configured, trigger an install. The loop
// stops itself once the desired end state is reached; on failure it keeps
// ticking at the configured interval so a transient condition (e.g. a
// network outage) can resolve.
type Scheduler struct {
	cfg       *config.Config
	inspector statusInspector
	orch      installRunner
	monitor   *health.Monitor
	interval  time.Duration

	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool
	wg       sync.WaitGroup
}

func NewScheduler(cfg *config.Config, inspector statusInspector, orch installRunner, monitor *health.Monitor) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		inspector: inspector,
		orch:      orch,
		monitor:   monitor,
		interval:  cfg.CheckInterval(),
		stopChan:  make(chan struct{}),
	}
}

// Start launches the background loop. The first tick runs immediately;
// subsequent ticks follow the configured interval. Starting twice is a no-op.
func (s *Scheduler) Start() {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	s.wg.Add(1)
	go s.loop()
}

// Stop cancels the loop and waits for an in-flight tick to finish. A tick
// that has already started is never interrupted: partial package-manager
// states are unsafe to abandon. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
}

// IsRunning reports whether the loop is still scheduling ticks.
func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

func (s *Scheduler) loop() {
	defer s.wg.Done()
	defer s.running.Store(false)

	log.Info("health-check loop started", "interval", s.interval)

	// Immediate first tick, unless cancelled before the loop got going.
	select {
	case <-s.stopChan:
		return
	default:
	}
	if s.tick(context.Background()) {
		log.Info("desired state reached, health-check loop stopping")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			log.Info("health-check loop cancelled")
			return
		case <-ticker.C:
			if s.tick(context.Background()) {
				log.Info("desired state reached, health-check loop stopping")
				return
			}
		}
	}
}

// tick runs one status-and-maybe-install pass. It returns true when the
// loop has nothing left to do.
func (s *Scheduler) tick(ctx context.Context) bool {
	status, err := s.inspector.Inspect(ctx)
	if err != nil {
		log.Warn("status inspection failed", "error", err)
		s.monitor.Update(health.ComponentScheduler, health.Degraded, err.Error())
		return false
	}

	if status.IsBackported && !s.cfg.ForceReinstall {
		s.monitor.Update(health.ComponentScheduler, health.Healthy, "backport present")
		return true
	}

	if !s.cfg.AutoInstall {
		return false
	}

	result, err := s.orch.RunInstall(ctx, s.cfg.ForceReinstall)
	if err != nil {
		if errors.Is(err, ErrBusy) {
			log.Debug("install already in flight, skipping scheduled run")
			return false
		}
		log.Warn("scheduled install could not start", "error", err)
		s.monitor.Update(health.ComponentScheduler, health.Degraded, err.Error())
		return false
	}

	switch result.Action {
	case ActionInstalled, ActionSkipped:
		s.monitor.Update(health.ComponentScheduler, health.Healthy, string(result.Action))
		return true
	default:
		log.Warn("scheduled install failed, retrying next tick",
			"runId", result.RunID, "message", result.Message)
		s.monitor.Update(health.ComponentScheduler, health.Degraded, result.Message)
		return false
	}
}
