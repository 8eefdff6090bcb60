package storage

import (
	"batepapo/domain"
	"batepapo/errors"
	"batepapo/repositories"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	messagePrefix   = "msg:"
	messageIDPrefix = "msgid:"
	sequenceKey     = "seq:msg"
	// Highest possible suffix after the message prefix, used to start a reverse scan.
	lastMessageKey = messagePrefix + "99999999999999999999"
)

var _ repositories.IMessageRepository = (*MessageRepository)(nil)

// MessageRepository stores the message log in BadgerDB.
// Entries are keyed "msg:{sequence_padded}" so that a prefix scan returns them
// in append order; "msgid:{uuid}" points back to the entry for lookups by ID.
type MessageRepository struct {
	mu       sync.Mutex
	db       *badger.DB
	sequence *badger.Sequence
	log      *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) (*MessageRepository, error) {
	sequence, err := db.GetSequence([]byte(sequenceKey), 100)
	if err != nil {
		return nil, fmt.Errorf("message sequence: %w", err)
	}
	return &MessageRepository{db: db, sequence: sequence, log: log}, nil
}

// Close hands the leased sequence range back to Badger.
func (m *MessageRepository) Close() error {
	return m.sequence.Release()
}

func messageKey(sequence uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", messagePrefix, sequence))
}

func messageIDKey(id uuid.UUID) []byte {
	return []byte(messageIDPrefix + id.String())
}

func (m *MessageRepository) Append(message domain.Message) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sequence, err := m.sequence.Next()
	if err != nil {
		return uuid.Nil, errors.StorageFailure("next sequence", err)
	}
	message.ID = uuid.New()
	data, err := encodeMessage(message, sequence)
	if err != nil {
		return uuid.Nil, errors.StorageFailure("encode message", err)
	}
	key := messageKey(sequence)
	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(messageIDKey(message.ID), key)
	})
	if err != nil {
		return uuid.Nil, errors.StorageFailure("append message", err)
	}
	return message.ID, nil
}

func (m *MessageRepository) Tail(n int) ([]domain.Message, error) {
	return TailMessages(m.db, n)
}

// TailMessages walks the log backwards from the newest entry and stops after
// n items. It only reads, so it also works on a read-only handle.
func TailMessages(db *badger.DB, n int) ([]domain.Message, error) {
	var messages []domain.Message
	err := db.View(func(txn *badger.Txn) error {
		prefix := []byte(messagePrefix)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek([]byte(lastMessageKey)); it.ValidForPrefix(prefix); it.Next() {
			if n > 0 && len(messages) == n {
				break
			}
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			message, err := DecodeMessage(value)
			if err != nil {
				return err
			}
			messages = append(messages, message)
		}
		return nil
	})
	if err != nil {
		return nil, errors.StorageFailure("tail messages", err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (m *MessageRepository) FindByID(id uuid.UUID) (domain.Message, error) {
	var message domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		key, err := lookupMessageKey(txn, id)
		if err != nil {
			return err
		}
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		message, err = DecodeMessage(value)
		return err
	})
	if err != nil {
		return domain.Message{}, notFoundOr(err, errors.ErrMessageNotFound, "find message")
	}
	return message, nil
}

func (m *MessageRepository) DeleteByID(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.db.Update(func(txn *badger.Txn) error {
		key, err := lookupMessageKey(txn, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Delete(messageIDKey(id))
	})
	if err != nil {
		return notFoundOr(err, errors.ErrMessageNotFound, "delete message")
	}
	m.log.Debug("Message deleted", "id", id)
	return nil
}

func lookupMessageKey(txn *badger.Txn, id uuid.UUID) ([]byte, error) {
	item, err := txn.Get(messageIDKey(id))
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// notFoundOr maps a missing key to the domain sentinel and anything else to a storage failure.
func notFoundOr(err, notFound error, op string) error {
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return notFound
	}
	return errors.StorageFailure(op, err)
}
