package workers

import (
	"batepapo/contract"
	"batepapo/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var _ contract.ISupervisor = (*Supervisor)(nil)

// Supervisor runs workers in their own goroutines and restarts them after a
// backoff when they panic or fail. Run blocks until every worker returned.
type Supervisor struct {
	mu      sync.Mutex
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	workers []contract.Worker
	backoff time.Duration
	log     *slog.Logger
}

func NewSupervisor(log *slog.Logger, backoff time.Duration) *Supervisor {
	return &Supervisor{log: log, backoff: backoff}
}

func (s *Supervisor) Add(worker ...contract.Worker) contract.ISupervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers = append(s.workers, worker...)
	return s
}

// Run starts the added workers under a context derived from ctx. Cancelling
// ctx or calling Stop ends the run.
func (s *Supervisor) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.cancel = cancel
	workers := append([]contract.Worker(nil), s.workers...)
	s.mu.Unlock()

	for _, worker := range workers {
		s.Start(ctx, worker)
	}
	s.wg.Wait()
}

// Start supervises a single worker. A nil return means the worker is done and
// it is not restarted.
func (s *Supervisor) Start(ctx context.Context, worker contract.Worker) {
	name := contract.GetWorkerName(worker)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for attempt := 1; ; attempt++ {
			err := runGuarded(ctx, worker)
			switch {
			case ctx.Err() != nil:
				s.log.Info("Worker stopped", "name", name)
				return
			case err == nil:
				s.log.Info("Worker finished", "name", name)
				return
			}

			s.log.Warn("Worker crashed, restarting", "name", name, "attempt", attempt, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.backoff):
			}
		}
	}()
}

// runGuarded turns a panic into an ErrWorkerPanic error.
func runGuarded(ctx context.Context, worker contract.Worker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r)
		}
	}()
	return worker.Run(ctx)
}

func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}
