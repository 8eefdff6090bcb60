//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"batepapo/contract"
	"batepapo/domain"
	"batepapo/errors"
	"batepapo/moderation"
	"batepapo/observability"
	"batepapo/repositories"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// IChatService is the session API. Identities are plain display names passed
// by the caller on every operation.
type IChatService interface {
	Join(name string) (domain.Participant, error)
	Participants() ([]domain.Participant, error)
	Send(sender string, request SendRequest) (domain.Message, error)
	Messages(viewer string, limit int) ([]domain.Message, error)
	Refresh(name string) error
	Delete(requester string, id uuid.UUID) error
}

type ChatService struct {
	participants repositories.IParticipantRepository
	messages     repositories.IMessageRepository
	sanitizer    *moderation.Sanitizer
	clock        contract.Clock
	metrics      *observability.Metrics
	log          *slog.Logger
}

func NewChatService(
	log *slog.Logger,
	participants repositories.IParticipantRepository,
	messages repositories.IMessageRepository,
	sanitizer *moderation.Sanitizer,
	clock contract.Clock,
	metrics *observability.Metrics,
) *ChatService {
	return &ChatService{
		participants: participants,
		messages:     messages,
		sanitizer:    sanitizer,
		clock:        clock,
		metrics:      metrics,
		log:          log,
	}
}

// Join registers a participant and announces it. The name is validated both
// before and after markup stripping, since a name made only of tags ends up
// empty. If the announcement cannot be stored the registration is undone.
func (s *ChatService) Join(name string) (domain.Participant, error) {
	if err := validateRequest(JoinRequest{Name: name}); err != nil {
		return domain.Participant{}, err
	}
	name = s.sanitizer.StripMarkup(name)
	if err := validateRequest(JoinRequest{Name: name}); err != nil {
		return domain.Participant{}, err
	}

	now := s.clock.Now()
	participant, err := s.participants.Join(name, now)
	if err != nil {
		return domain.Participant{}, errors.StorageFailure("join", err)
	}

	if _, err = s.messages.Append(domain.NewStatusMessage(name, domain.JoinedText, now)); err != nil {
		if _, rollbackErr := s.participants.Remove(name); rollbackErr != nil {
			s.log.Error("Failed to roll back join", "name", name, "error", rollbackErr)
		}
		return domain.Participant{}, errors.StorageFailure("announce join", err)
	}

	s.metrics.ParticipantJoined()
	s.metrics.MessagePosted(domain.StatusMessage)
	s.log.Info("Participant joined", "name", name)
	return participant, nil
}

func (s *ChatService) Participants() ([]domain.Participant, error) {
	participants, err := s.participants.List()
	if err != nil {
		return nil, errors.StorageFailure("list participants", err)
	}
	return participants, nil
}

// Send stores a public or private message from a registered sender. The
// recipient of a private message is not required to be registered.
func (s *ChatService) Send(sender string, request SendRequest) (domain.Message, error) {
	if err := validateRequest(request); err != nil {
		return domain.Message{}, err
	}
	if _, err := s.participants.Get(sender); err != nil {
		if stderrors.Is(err, errors.ErrParticipantNotFound) {
			return domain.Message{}, fmt.Errorf("%w: %q", errors.ErrSenderUnknown, sender)
		}
		return domain.Message{}, errors.StorageFailure("lookup sender", err)
	}

	text, censored := s.sanitizer.Text(request.Text)
	if text == "" {
		return domain.Message{}, fmt.Errorf("%w: text is empty once markup is removed", errors.ErrValidation)
	}
	if len(censored) > 0 {
		s.log.Warn("Censored words in message", "from", sender, "count", len(censored))
		s.metrics.WordsCensored(len(censored))
	}

	message := domain.Message{
		From:      sender,
		To:        request.To,
		Text:      text,
		Type:      domain.MessageType(request.Type),
		CreatedAt: s.clock.Now().UTC(),
	}
	id, err := s.messages.Append(message)
	if err != nil {
		return domain.Message{}, errors.StorageFailure("append message", err)
	}
	message.ID = id
	s.metrics.MessagePosted(message.Type)
	return message, nil
}

// Messages returns what viewer may read among the last limit stored messages.
// The tail is cut before filtering, so fewer than limit messages may come back.
func (s *ChatService) Messages(viewer string, limit int) ([]domain.Message, error) {
	tail, err := s.messages.Tail(limit)
	if err != nil {
		return nil, errors.StorageFailure("tail messages", err)
	}
	return lo.Filter(tail, func(item domain.Message, _ int) bool {
		return domain.Visible(viewer, item)
	}), nil
}

func (s *ChatService) Refresh(name string) error {
	err := s.participants.Heartbeat(name, s.clock.Now())
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, errors.ErrParticipantNotFound):
		return fmt.Errorf("%w: %q", errors.ErrSessionExpired, name)
	default:
		return errors.StorageFailure("heartbeat", err)
	}
}

// Delete removes a message on behalf of its sender only.
func (s *ChatService) Delete(requester string, id uuid.UUID) error {
	message, err := s.messages.FindByID(id)
	if err != nil {
		return errors.StorageFailure("find message", err)
	}
	if message.From != requester {
		return errors.ErrForbidden
	}
	if err = s.messages.DeleteByID(id); err != nil {
		return errors.StorageFailure("delete message", err)
	}
	s.metrics.MessageDeleted()
	s.log.Debug("Message deleted", "id", id, "by", requester)
	return nil
}
