//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"batepapo/domain"
	"batepapo/errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// IMessageRepository is the append-only message log.
type IMessageRepository interface {
	// Append assigns a fresh ID to message and stores it after every
	// message appended before it.
	Append(message domain.Message) (uuid.UUID, error)
	// Tail returns the last n messages in store order, all of them when
	// n <= 0 or n exceeds the log size.
	Tail(n int) ([]domain.Message, error)
	FindByID(id uuid.UUID) (domain.Message, error)
	DeleteByID(id uuid.UUID) error
}

type MessageRepository struct {
	mu       sync.RWMutex
	log      *slog.Logger
	messages []domain.Message
}

func NewMessageRepository(log *slog.Logger) *MessageRepository {
	return &MessageRepository{log: log}
}

func (m *MessageRepository) Append(message domain.Message) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	message.ID = uuid.New()
	m.messages = append(m.messages, message)
	return message.ID, nil
}

func (m *MessageRepository) Tail(n int) ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	start := 0
	if n > 0 && n < len(m.messages) {
		start = len(m.messages) - n
	}
	tail := make([]domain.Message, len(m.messages)-start)
	copy(tail, m.messages[start:])
	return tail, nil
}

func (m *MessageRepository) FindByID(id uuid.UUID) (domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	message, ok := lo.Find(m.messages, func(item domain.Message) bool {
		return item.ID == id
	})
	if !ok {
		return domain.Message{}, errors.ErrMessageNotFound
	}
	return message, nil
}

func (m *MessageRepository) DeleteByID(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, index, ok := lo.FindIndexOf(m.messages, func(item domain.Message) bool {
		return item.ID == id
	})
	if !ok {
		return errors.ErrMessageNotFound
	}
	m.messages = append(m.messages[:index], m.messages[index+1:]...)
	m.log.Debug("Message deleted", "id", id)
	return nil
}
