//go:generate go run go.uber.org/mock/mockgen -source=participant.go -destination=../mocks/mock_participant_repository.go -package=mocks
package repositories

import (
	"batepapo/domain"
	"batepapo/errors"
	"sync"
	"time"
)

// IParticipantRepository is the participant registry. Implementations
// serialize mutations so that two concurrent joins of one name cannot both win.
type IParticipantRepository interface {
	Join(name string, at time.Time) (domain.Participant, error)
	Heartbeat(name string, at time.Time) error
	Get(name string) (domain.Participant, error)
	List() ([]domain.Participant, error)
	Remove(name string) (bool, error)
	// RemoveIdle removes name only if its LastSeen is not after cutoff,
	// so a heartbeat that landed after a sweep snapshot keeps it alive.
	RemoveIdle(name string, cutoff time.Time) (bool, error)
}

// ParticipantRepository keeps participants in memory, in join order.
type ParticipantRepository struct {
	mu           sync.RWMutex
	participants map[string]*domain.Participant
	order        []string
}

func NewParticipantRepository() *ParticipantRepository {
	return &ParticipantRepository{participants: make(map[string]*domain.Participant)}
}

func (r *ParticipantRepository) Join(name string, at time.Time) (domain.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.participants[name]; ok {
		return domain.Participant{}, errors.ErrDuplicateName
	}
	p := &domain.Participant{Name: name, LastSeen: at}
	r.participants[name] = p
	r.order = append(r.order, name)
	return *p, nil
}

func (r *ParticipantRepository) Heartbeat(name string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[name]
	if !ok {
		return errors.ErrParticipantNotFound
	}
	p.LastSeen = at
	return nil
}

func (r *ParticipantRepository) Get(name string) (domain.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.participants[name]
	if !ok {
		return domain.Participant{}, errors.ErrParticipantNotFound
	}
	return *p, nil
}

// List returns a snapshot; later mutations are not reflected in it.
func (r *ParticipantRepository) List() ([]domain.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make([]domain.Participant, 0, len(r.order))
	for _, name := range r.order {
		snapshot = append(snapshot, *r.participants[name])
	}
	return snapshot, nil
}

func (r *ParticipantRepository) Remove(name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(name), nil
}

func (r *ParticipantRepository) RemoveIdle(name string, cutoff time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[name]
	if !ok || p.LastSeen.After(cutoff) {
		return false, nil
	}
	return r.removeLocked(name), nil
}

func (r *ParticipantRepository) removeLocked(name string) bool {
	if _, ok := r.participants[name]; !ok {
		return false
	}
	delete(r.participants, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}
