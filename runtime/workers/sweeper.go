package workers

import (
	"batepapo/contract"
	"batepapo/domain"
	"batepapo/observability"
	"batepapo/repositories"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var _ contract.Worker = (*SweeperWorker)(nil)

// SweeperWorker evicts participants whose last heartbeat is older than the
// inactivity timeout and announces each departure with a status message.
type SweeperWorker struct {
	mu           sync.Mutex
	log          *slog.Logger
	participants repositories.IParticipantRepository
	messages     repositories.IMessageRepository
	clock        contract.Clock
	metrics      *observability.Metrics
	interval     time.Duration
	timeout      time.Duration
	// leave notices whose append failed, retried on the next sweep
	pending []domain.Message
}

func NewSweeperWorker(
	log *slog.Logger,
	participants repositories.IParticipantRepository,
	messages repositories.IMessageRepository,
	clock contract.Clock,
	metrics *observability.Metrics,
	interval, timeout time.Duration,
) *SweeperWorker {
	return &SweeperWorker{
		log:          log,
		participants: participants,
		messages:     messages,
		clock:        clock,
		metrics:      metrics,
		interval:     interval,
		timeout:      timeout,
	}
}

func (w *SweeperWorker) Name() string {
	return "inactivity-sweeper"
}

// Run sweeps every interval until ctx is canceled. Sweep failures are logged
// and left to the next period; they never stop the loop.
func (w *SweeperWorker) Run(ctx context.Context) error {
	w.log.Info("Starting inactivity sweeper", "interval", w.interval, "timeout", w.timeout)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping sweeper")
			return nil
		case <-ticker.C:
			evicted, err := w.Sweep()
			if err != nil {
				w.log.Warn("Sweep incomplete, retrying next period", "evicted", len(evicted), "error", err)
			}
		}
	}
}

// Sweep runs a single eviction pass and returns the evicted names. The
// returned error joins every per-participant failure of the pass.
func (w *SweeperWorker) Sweep() ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var failures []error
	failures = append(failures, w.flushPending()...)

	now := w.clock.Now()
	snapshot, err := w.participants.List()
	if err != nil {
		w.metrics.SweepFailed()
		return nil, stderrors.Join(append(failures, fmt.Errorf("list participants: %w", err))...)
	}

	cutoff := now.Add(-w.timeout)
	var evicted []string
	for _, p := range snapshot {
		if !p.IdleSince(now, w.timeout) {
			continue
		}
		// RemoveIdle re-checks LastSeen under the registry lock. A heartbeat
		// received since the snapshot keeps the participant.
		removed, err := w.participants.RemoveIdle(p.Name, cutoff)
		if err != nil {
			w.log.Error("Failed to evict participant", "name", p.Name, "error", err)
			w.metrics.SweepFailed()
			failures = append(failures, fmt.Errorf("evict %q: %w", p.Name, err))
			continue
		}
		if !removed {
			w.log.Debug("Participant renewed during sweep", "name", p.Name)
			continue
		}
		evicted = append(evicted, p.Name)
		w.metrics.ParticipantEvicted()
		w.log.Info("Participant evicted for inactivity", "name", p.Name, "last_seen", p.LastSeen)

		notice := domain.NewStatusMessage(p.Name, domain.LeftText, now)
		if err := w.announce(notice); err != nil {
			w.pending = append(w.pending, notice)
			failures = append(failures, err)
		}
	}
	return evicted, stderrors.Join(failures...)
}

// flushPending retries leave notices from previous sweeps, keeping those that fail again.
func (w *SweeperWorker) flushPending() []error {
	if len(w.pending) == 0 {
		return nil
	}
	var failures []error
	var still []domain.Message
	for _, notice := range w.pending {
		if err := w.announce(notice); err != nil {
			still = append(still, notice)
			failures = append(failures, err)
		}
	}
	w.pending = still
	return failures
}

func (w *SweeperWorker) announce(notice domain.Message) error {
	if _, err := w.messages.Append(notice); err != nil {
		w.log.Error("Failed to announce departure", "name", notice.From, "error", err)
		w.metrics.SweepFailed()
		return fmt.Errorf("announce %q: %w", notice.From, err)
	}
	w.metrics.MessagePosted(domain.StatusMessage)
	return nil
}

// Pending reports how many leave notices wait for the next sweep.
func (w *SweeperWorker) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}
