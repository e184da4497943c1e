// internal/scheduler/scheduler.go
// Package scheduler fires refresh cycles on an interval and on demand,
// guaranteeing at most one cycle runs at a time.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"menuranker/internal/common/config"
	"menuranker/internal/common/logger"
	"menuranker/internal/common/metrics"
	"menuranker/internal/models"
)

// CycleRunner is what the scheduler drives; satisfied by the aggregator.
type CycleRunner interface {
	RunCycle(ctx context.Context, trigger string) (*models.CycleResult, error)
}

type Scheduler struct {
	runner   CycleRunner
	cfg      config.RefreshConfig
	logger   logger.Logger
	running  atomic.Bool     // one cycle at a time
	cycleCtx context.Context // cycles run under this, not under their trigger
	cancel   context.CancelFunc
	done     chan struct{}
	wg       sync.WaitGroup // in-flight cycles
}

func New(runner CycleRunner, cfg config.RefreshConfig, log logger.Logger) *Scheduler {
	return &Scheduler{
		runner: runner,
		cfg:    cfg,
		logger: log,
		done:   make(chan struct{}),
	}
}

// Start launches the ticker loop. It returns immediately. Every cycle, however
// it was triggered, runs under ctx so it outlives short-lived callers (an HTTP
// request that triggered it) and survives Stop, which only halts scheduling.
func (s *Scheduler) Start(ctx context.Context) {
	s.cycleCtx = ctx
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go func() {
		defer close(s.done)

		if s.cfg.RunOnStart {
			s.tryRun("startup")
		}

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				s.tryRun("scheduled")
			}
		}
	}()
}

// TriggerNow requests an immediate refresh. ctx gates admission only; the
// cycle itself runs under the scheduler's lifecycle context. It reports false
// when a cycle is already running; the request is dropped, not queued, because
// the running cycle will produce data at least as fresh.
func (s *Scheduler) TriggerNow(ctx context.Context) bool {
	if s.cycleCtx == nil || ctx.Err() != nil {
		return false
	}
	return s.tryRun("manual")
}

// Stop halts scheduling and waits for any in-flight cycle to finish. The
// running cycle keeps its context, so it drains to a commit (or its own
// deadline) rather than being aborted.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
	s.wg.Wait()
}

func (s *Scheduler) tryRun(trigger string) bool {
	if !s.running.CompareAndSwap(false, true) {
		metrics.TriggersDropped.Inc()
		s.logger.Info("Refresh already in progress, dropping trigger", map[string]interface{}{
			"trigger": trigger,
		})
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		// RunCycle logs its own outcome; the scheduler only enforces
		// mutual exclusion.
		_, _ = s.runner.RunCycle(s.cycleCtx, trigger)
	}()
	return true
}
