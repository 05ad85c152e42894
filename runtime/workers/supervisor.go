package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"nexchat/contract"
	"nexchat/errors"
	"nexchat/observability"
)

const defaultRestartInterval = 200 * time.Millisecond

// Supervisor keeps the long-running parts of the server alive: the HTTP
// listener, the gRPC health listener and the process monitor. A worker that
// panics or fails is restarted; a worker that returns nil is done.
type Supervisor struct {
	Cancel          context.CancelFunc
	wg              *sync.WaitGroup
	log             *slog.Logger
	metrics         *observability.Metrics
	restartInterval time.Duration
	workers         []contract.Worker
}

func NewSupervisor(log *slog.Logger, restartInterval time.Duration, metrics *observability.Metrics) *Supervisor {
	if restartInterval <= 0 {
		restartInterval = defaultRestartInterval
	}
	return &Supervisor{
		wg:              &sync.WaitGroup{},
		log:             log,
		metrics:         metrics,
		restartInterval: restartInterval,
	}
}

// Run starts every added worker and blocks until all of them returned.
// Canceling ctx or calling Stop ends the supervision.
func (s *Supervisor) Run(ctx context.Context) {
	supervisedCtx, cancel := context.WithCancel(ctx)
	s.Cancel = cancel
	defer cancel()

	for _, worker := range s.workers {
		s.Start(supervisedCtx, worker)
	}
	s.wg.Wait()
}

func (s *Supervisor) Add(worker ...contract.Worker) contract.ISupervisor {
	s.workers = append(s.workers, worker...)
	return s
}

// Start supervises one worker in its own goroutine.
func (s *Supervisor) Start(ctx context.Context, worker contract.Worker) {
	name := contract.GetWorkerName(worker)
	log := s.log.With("worker", name)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for attempt := 1; ; attempt++ {
			err := runGuarded(ctx, worker)
			switch {
			case ctx.Err() != nil:
				log.Info("Worker stopped")
				return
			case err == nil:
				log.Info("Worker finished")
				return
			}

			log.Warn("Worker failed, restarting", "attempt", attempt, "error", err,
				"delay", s.restartInterval)
			s.metrics.WorkerRestarted(name)
			select {
			case <-ctx.Done():
				log.Info("Worker stopped")
				return
			case <-time.After(s.restartInterval):
			}
		}
	}()
}

// runGuarded turns a panic into ErrWorkerPanic.
func runGuarded(ctx context.Context, worker contract.Worker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r)
		}
	}()
	return worker.Run(ctx)
}

// Stop cancels every supervised worker. Run returns once they are done.
func (s *Supervisor) Stop() {
	if s.Cancel != nil {
		s.Cancel()
	}
}
