package storage

import (
	"batepapo/domain"
	"batepapo/errors"
	"batepapo/repositories"
	stderrors "errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const participantPrefix = "participant:"

var _ repositories.IParticipantRepository = (*ParticipantRepository)(nil)

// ParticipantRepository persists the registry in BadgerDB under
// "participant:{name}". Mutations are serialized by mu, reads go straight to
// a Badger read transaction.
type ParticipantRepository struct {
	mu  sync.Mutex
	db  *badger.DB
	log *slog.Logger
}

func NewParticipantRepository(db *badger.DB, log *slog.Logger) *ParticipantRepository {
	return &ParticipantRepository{db: db, log: log}
}

func participantKey(name string) []byte {
	return []byte(participantPrefix + name)
}

// claimable turns the lookup of a name into the answer Join needs: nil when
// the key is absent, ErrDuplicateName when it exists, the read error otherwise.
func claimable(lookupErr error) error {
	switch {
	case lookupErr == nil:
		return errors.ErrDuplicateName
	case stderrors.Is(lookupErr, badger.ErrKeyNotFound):
		return nil
	default:
		return lookupErr
	}
}

func (r *ParticipantRepository) Join(name string, at time.Time) (domain.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := domain.Participant{Name: name, LastSeen: at}
	data, err := encodeParticipant(p)
	if err != nil {
		return domain.Participant{}, errors.StorageFailure("encode participant", err)
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		key := participantKey(name)
		_, err := txn.Get(key)
		if err := claimable(err); err != nil {
			return err
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return domain.Participant{}, errors.StorageFailure("join", err)
	}
	return p, nil
}

func (r *ParticipantRepository) Heartbeat(name string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.db.Update(func(txn *badger.Txn) error {
		key := participantKey(name)
		if _, err := txn.Get(key); err != nil {
			return err
		}
		data, err := encodeParticipant(domain.Participant{Name: name, LastSeen: at})
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return notFoundOr(err, errors.ErrParticipantNotFound, "heartbeat")
	}
	return nil
}

func (r *ParticipantRepository) Get(name string) (domain.Participant, error) {
	var p domain.Participant
	err := r.db.View(func(txn *badger.Txn) (err error) {
		p, err = getParticipant(txn, name)
		return err
	})
	if err != nil {
		return domain.Participant{}, notFoundOr(err, errors.ErrParticipantNotFound, "get participant")
	}
	return p, nil
}

// List returns participants in name order.
func (r *ParticipantRepository) List() ([]domain.Participant, error) {
	participants := []domain.Participant{}
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(participantPrefix)
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			p, err := decodeParticipant(value)
			if err != nil {
				return err
			}
			participants = append(participants, p)
		}
		return nil
	})
	if err != nil {
		return nil, errors.StorageFailure("list participants", err)
	}
	return participants, nil
}

func (r *ParticipantRepository) Remove(name string) (bool, error) {
	return r.remove(name, func(domain.Participant) bool { return true })
}

func (r *ParticipantRepository) RemoveIdle(name string, cutoff time.Time) (bool, error) {
	return r.remove(name, func(p domain.Participant) bool {
		return !p.LastSeen.After(cutoff)
	})
}

func (r *ParticipantRepository) remove(name string, shouldRemove func(domain.Participant) bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := false
	err := r.db.Update(func(txn *badger.Txn) error {
		p, err := getParticipant(txn, name)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		if !shouldRemove(p) {
			return nil
		}
		removed = true
		return txn.Delete(participantKey(name))
	})
	if err != nil {
		return false, errors.StorageFailure("remove participant", err)
	}
	if removed {
		r.log.Debug("Participant removed", "name", name)
	}
	return removed, nil
}

func getParticipant(txn *badger.Txn, name string) (domain.Participant, error) {
	item, err := txn.Get(participantKey(name))
	if err != nil {
		return domain.Participant{}, err
	}
	value, err := item.ValueCopy(nil)
	if err != nil {
		return domain.Participant{}, err
	}
	return decodeParticipant(value)
}
