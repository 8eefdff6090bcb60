// Package runtime owns the long-lived parts of the chat: the registry and
// message stores, the session API on top of them and the supervised sweeper.
// It wires components together without holding business rules.
package runtime

import (
	"batepapo/contract"
	"batepapo/moderation"
	"batepapo/observability"
	"batepapo/repositories"
	"batepapo/runtime/workers"
	"batepapo/services"
	"context"
	"log/slog"
	"sync"
	"time"
)

type Options struct {
	SweepInterval     time.Duration
	InactivityTimeout time.Duration
	RestartInterval   time.Duration
}

type Engine struct {
	mu           sync.Mutex
	log          *slog.Logger
	participants repositories.IParticipantRepository
	messages     repositories.IMessageRepository
	service      *services.ChatService
	supervisor   contract.ISupervisor
	sweeper      *workers.SweeperWorker
	cancel       context.CancelFunc
	done         chan struct{}
}

func NewEngine(
	log *slog.Logger,
	participants repositories.IParticipantRepository,
	messages repositories.IMessageRepository,
	sanitizer *moderation.Sanitizer,
	clock contract.Clock,
	metrics *observability.Metrics,
	opts Options,
) *Engine {
	return &Engine{
		log:          log,
		participants: participants,
		messages:     messages,
		service:      services.NewChatService(log, participants, messages, sanitizer, clock, metrics),
		supervisor:   workers.NewSupervisor(log, opts.RestartInterval),
		sweeper: workers.NewSweeperWorker(log, participants, messages, clock, metrics,
			opts.SweepInterval, opts.InactivityTimeout),
	}
}

// Service is the session API served to clients.
func (e *Engine) Service() services.IChatService {
	return e.service
}

func (e *Engine) Sweeper() *workers.SweeperWorker {
	return e.sweeper
}

// ActiveParticipants is sampled by the metrics gauge.
func (e *Engine) ActiveParticipants() float64 {
	participants, err := e.participants.List()
	if err != nil {
		e.log.Debug("Unable to count participants", "error", err)
		return 0
	}
	return float64(len(participants))
}

// Start launches the supervised workers in the background. Calling it twice
// is a no-op.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done != nil {
		return
	}
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	e.supervisor.Add(e.sweeper)

	e.log.Info("Starting engine and supervised workers")
	go func(done chan struct{}) {
		defer close(done)
		e.supervisor.Run(ctx)
	}(e.done)
}

// Stop cancels the workers and waits for them to return.
func (e *Engine) Stop() {
	e.mu.Lock()
	done, cancel := e.done, e.cancel
	e.mu.Unlock()
	if done == nil {
		return
	}
	cancel()
	e.supervisor.Stop()
	<-done
	e.log.Info("Engine stopped")
}
